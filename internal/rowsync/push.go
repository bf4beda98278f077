package rowsync

import (
	"context"
	"sort"
	"time"

	"github.com/go-kit/log/level"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/agentworkforce/rowsync/internal/db"
)

// PushRequest is a batch of mutations from one client group, in the
// order the clients produced them.
type PushRequest struct {
	ClientGroupID string     `json:"clientGroupID"`
	Mutations     []Mutation `json:"mutations"`
}

// mutationOutcome is the terminal state of one processed mutation.
type mutationOutcome string

const (
	outcomeApplied mutationOutcome = "applied"
	outcomeSkipped mutationOutcome = "skipped"
	outcomeFailed  mutationOutcome = "failed"
)

// Push processes a mutation batch strictly in order, each mutation in its
// own transaction. Individual mutation failures are recorded and
// absorbed; protocol violations and store failures abort the batch.
// Affected scopes are deduplicated across the batch and poked once each.
func (s *Service) Push(ctx context.Context, userID string, req PushRequest) error {
	if req.ClientGroupID == "" {
		return errors.Wrap(ErrInvalidInput, "clientGroupID is required")
	}
	start := time.Now()
	requestsTotal.WithLabelValues("push").Inc()

	affectedLists := map[string]struct{}{}
	affectedUsers := map[string]struct{}{}
	applied := 0

	for _, m := range req.Mutations {
		outcome, affected, err := s.processMutation(ctx, userID, req.ClientGroupID, m)
		if err != nil {
			return err
		}
		mutationsTotal.WithLabelValues(string(outcome)).Inc()
		if outcome == outcomeApplied {
			applied++
		}
		for _, listID := range affected.ListIDs {
			affectedLists[listID] = struct{}{}
		}
		for _, affectedUserID := range affected.UserIDs {
			affectedUsers[affectedUserID] = struct{}{}
		}
	}

	for _, listID := range sortedKeys(affectedLists) {
		s.poker.Poke("list/" + listID)
	}
	for _, affectedUserID := range sortedKeys(affectedUsers) {
		s.poker.Poke("user/" + affectedUserID)
	}

	s.mon.PushServed(time.Since(start), applied)
	level.Debug(s.lg).Log("msg", "processed push", "clientGroup", req.ClientGroupID,
		"mutations", len(req.Mutations), "applied", applied, "took", time.Since(start))
	return nil
}

// processMutation runs one mutation through its state machine inside a
// single transaction:
//
//	duplicate id  -> Skipped, no state change
//	future id     -> batch-fatal protocol violation
//	otherwise     -> Applied or Failed; either way lastMutationID and
//	                 clientVersion advance exactly once
//
// The domain effect runs under a savepoint so a failed statement does not
// poison the counter writes that must still commit.
func (s *Service) processMutation(ctx context.Context, userID, clientGroupID string, m Mutation) (mutationOutcome, Affected, error) {
	outcome := outcomeSkipped
	var affected Affected

	err := s.db.Transact(ctx, func(ex db.Executor) error {
		group, err := getClientGroupForUpdate(ctx, ex, clientGroupID)
		if err != nil {
			return err
		}
		client, err := getClientForUpdate(ctx, ex, clientGroupID, m.ClientID)
		if err != nil {
			return err
		}

		nextMutationID := client.LastMutationID + 1
		nextClientVersion := group.ClientVersion + 1

		if m.ID < nextMutationID {
			// Already applied; a retried batch must be a no-op.
			level.Debug(s.lg).Log("msg", "skipping duplicate mutation",
				"client", m.ClientID, "mutation", m.ID, "last", client.LastMutationID)
			outcome = outcomeSkipped
			return nil
		}
		if m.ID > nextMutationID {
			return errors.Wrapf(ErrMutationFromFuture,
				"mutation %d from client %s, expected %d", m.ID, m.ClientID, nextMutationID)
		}

		if _, err := ex.ExecContext(ctx, "savepoint apply_mutation"); err != nil {
			return errors.Wrap(err, "creating savepoint")
		}
		result, applyErr := applyMutation(ctx, ex, userID, m)
		if applyErr != nil {
			if !recordable(applyErr) {
				return applyErr
			}
			if _, err := ex.ExecContext(ctx, "rollback to savepoint apply_mutation"); err != nil {
				return errors.Wrap(err, "rolling back savepoint")
			}
			level.Warn(s.lg).Log("msg", "mutation failed",
				"client", m.ClientID, "mutation", m.ID, "name", m.Name, "err", applyErr)
			outcome = outcomeFailed
		} else {
			if _, err := ex.ExecContext(ctx, "release savepoint apply_mutation"); err != nil {
				return errors.Wrap(err, "releasing savepoint")
			}
			outcome = outcomeApplied
			affected = result
		}

		group.ClientVersion = nextClientVersion
		if err := putClientGroup(ctx, ex, group); err != nil {
			return err
		}
		client.LastMutationID = nextMutationID
		client.ClientVersion = nextClientVersion
		return putClient(ctx, ex, client)
	})
	if err != nil {
		return outcome, Affected{}, err
	}
	return outcome, affected, nil
}

// recordable reports whether a mutation failure is recorded as that
// mutation's terminal state rather than aborting the batch. Integrity
// violations (duplicate ids, bad references) count; connection or driver
// failures do not.
func recordable(err error) bool {
	if IsMutationError(err) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "23"
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
