package rowsync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/agentworkforce/rowsync/internal/db"
)

// PullRequest identifies the requesting client group and the cookie of
// the last patch it applied. The cookie is opaque to clients; an absent
// or unrecognized cookie forces a full reset patch.
type PullRequest struct {
	ClientGroupID string          `json:"clientGroupID"`
	Cookie        json.RawMessage `json:"cookie,omitempty"`
}

// PatchOperation is one step of the patch a client applies to reach the
// new state. A "clear" op, when present, is always first.
type PatchOperation struct {
	Op    string `json:"op"`
	Key   string `json:"key,omitempty"`
	Value any    `json:"value,omitempty"`
}

type PullResponse struct {
	Cookie                int            `json:"cookie"`
	LastMutationIDChanges map[string]int `json:"lastMutationIDChanges"`
	Patch                 []PatchOperation `json:"patch"`
}

// Pull computes the patch that brings the client group from its previous
// CVR to current server state, restricted to what userID may see. The
// new CVR is cached under a fresh version; the version is the cookie.
func (s *Service) Pull(ctx context.Context, userID string, req PullRequest) (*PullResponse, error) {
	if req.ClientGroupID == "" {
		return nil, errors.Wrap(ErrInvalidInput, "clientGroupID is required")
	}
	start := time.Now()
	requestsTotal.WithLabelValues("pull").Inc()

	var prevCVR *ClientViewRecord
	if version, ok := parseCookie(req.Cookie); ok {
		prevCVR, _ = s.cache.Get(req.ClientGroupID, version)
	}
	base := prevCVR
	if base == nil {
		base = emptyCVR()
	}

	var (
		next          *ClientViewRecord
		nextVersion   int
		clientChanges []ClientRecord
		diff          cvrDiff
		reset         bool
		lists         []List
		shares        []Share
		todos         []Todo
	)
	err := s.db.Transact(ctx, func(ex db.Executor) error {
		// Lock the group so the clientVersion baseline is consistent
		// with the projections read below.
		group, err := getClientGroupForUpdate(ctx, ex, req.ClientGroupID)
		if err != nil {
			return err
		}
		clientChanges, err = searchClients(ctx, ex, req.ClientGroupID, base.ClientVersion)
		if err != nil {
			return err
		}
		listMeta, err := searchLists(ctx, ex, userID)
		if err != nil {
			return err
		}
		listIDs := make([]string, 0, len(listMeta))
		for _, meta := range listMeta {
			listIDs = append(listIDs, meta.ID)
		}
		shareMeta, err := searchShares(ctx, ex, listIDs)
		if err != nil {
			return err
		}
		todoMeta, err := searchTodos(ctx, ex, listIDs)
		if err != nil {
			return err
		}

		next = &ClientViewRecord{
			Lists:         clientViewOf(listMeta),
			Shares:        clientViewOf(shareMeta),
			Todos:         clientViewOf(todoMeta),
			ClientVersion: group.ClientVersion,
		}
		diff = diffCVR(base, next)
		reset = prevCVR == nil || diff.size() >= s.resetThreshold

		listPuts, sharePuts, todoPuts := diff.listPuts, diff.sharePuts, diff.todoPuts
		if reset {
			// Abandon the incremental diff: repopulate everything visible.
			listPuts, sharePuts, todoPuts = next.Lists.IDs(), next.Shares.IDs(), next.Todos.IDs()
		}
		if lists, err = getLists(ctx, ex, listPuts); err != nil {
			return err
		}
		if shares, err = getShares(ctx, ex, sharePuts); err != nil {
			return err
		}
		if todos, err = getTodos(ctx, ex, todoPuts); err != nil {
			return err
		}

		nextVersion = group.CVRVersion + 1
		group.CVRVersion = nextVersion
		return putClientGroup(ctx, ex, group)
	})
	if err != nil {
		return nil, err
	}

	patch := buildPatch(reset, diff, lists, shares, todos)

	lastMutationIDChanges := make(map[string]int, len(clientChanges))
	for _, client := range clientChanges {
		lastMutationIDChanges[client.ID] = client.LastMutationID
	}

	s.cache.Put(req.ClientGroupID, nextVersion, next)
	s.mon.PullServed(time.Since(start))
	level.Debug(s.lg).Log("msg", "processed pull", "clientGroup", req.ClientGroupID,
		"cookie", nextVersion, "patchOps", len(patch), "reset", reset, "took", time.Since(start))

	return &PullResponse{
		Cookie:                nextVersion,
		LastMutationIDChanges: lastMutationIDChanges,
		Patch:                 patch,
	}, nil
}

// parseCookie accepts the integer cookies this server issues; anything
// else (absent, null, foreign) means no usable prior state.
func parseCookie(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var version int
	if err := json.Unmarshal(raw, &version); err != nil {
		return 0, false
	}
	return version, true
}

// buildPatch assembles the response patch. Reset patches start with a
// clear op and contain no dels; incremental patches interleave dels and
// puts per collection: lists, shares, todos.
func buildPatch(reset bool, diff cvrDiff, lists []List, shares []Share, todos []Todo) []PatchOperation {
	patch := make([]PatchOperation, 0, 1+len(lists)+len(shares)+len(todos))
	if reset {
		patchResetsTotal.Inc()
		patchOpsTotal.WithLabelValues("clear").Inc()
		patch = append(patch, PatchOperation{Op: "clear"})
	} else {
		for _, id := range diff.listDels {
			patch = append(patch, PatchOperation{Op: "del", Key: "list/" + id})
		}
	}
	for _, list := range lists {
		patch = append(patch, PatchOperation{Op: "put", Key: "list/" + list.ID, Value: list})
	}
	if !reset {
		for _, id := range diff.shareDels {
			patch = append(patch, PatchOperation{Op: "del", Key: "share/" + id})
		}
	}
	for _, share := range shares {
		patch = append(patch, PatchOperation{Op: "put", Key: "share/" + share.ID, Value: share})
	}
	if !reset {
		for _, id := range diff.todoDels {
			patch = append(patch, PatchOperation{Op: "del", Key: "todo/" + id})
		}
	}
	for _, todo := range todos {
		patch = append(patch, PatchOperation{Op: "put", Key: "todo/" + todo.ID, Value: todo})
	}
	for _, op := range patch {
		if op.Op != "clear" {
			patchOpsTotal.WithLabelValues(op.Op).Inc()
		}
	}
	return patch
}
