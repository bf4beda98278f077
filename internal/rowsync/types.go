// Package rowsync implements the server side of the optimistic-sync
// protocol: mutation intake and ordering (push) and per-client diff
// computation against Client View Records (pull). The relational store is
// the single source of truth; the CVR cache is a throwaway optimization.
package rowsync

import "errors"

var (
	// ErrNotFound marks a mutation that referenced an absent entity. It
	// fails the mutation, never the batch.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized marks a mutation whose actor has neither ownership
	// nor a share on the target list. Same handling as ErrNotFound.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidInput marks malformed mutation arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrWrongClientGroup is returned when a client record exists but
	// belongs to a different client group than the one pushing.
	ErrWrongClientGroup = errors.New("client group does not own client")
	// ErrMutationFromFuture is a protocol violation: a mutation id ahead
	// of the next expected id. It aborts the whole batch.
	ErrMutationFromFuture = errors.New("mutation id is from the future")
)

// IsMutationError reports whether err is a per-mutation failure that the
// push processor records and absorbs, as opposed to a store or protocol
// failure that aborts the batch.
func IsMutationError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidInput)
}

// List is the wire payload for a list entity. Row metadata (rowversion,
// lastmodified) never travels in patches; it is carried separately as
// RowMeta for diffing.
type List struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerID"`
	Name    string `json:"name"`
}

// Todo is the wire payload for an item row.
type Todo struct {
	ID        string `json:"id"`
	ListID    string `json:"listID"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	Sort      int    `json:"sort"`
}

// Share grants a user access to a list they do not own.
type Share struct {
	ID     string `json:"id"`
	ListID string `json:"listID"`
	UserID string `json:"userID"`
}

// ClientRecord tracks one client instance's mutation progress.
type ClientRecord struct {
	ID             string
	ClientGroupID  string
	LastMutationID int
	ClientVersion  int
}

// ClientGroupRecord tracks the version counters shared by all clients in
// a group. CVRVersion bumps on every pull, ClientVersion on every push.
type ClientGroupRecord struct {
	ID            string
	CVRVersion    int
	ClientVersion int
}

// RowMeta is the lightweight {id, rowversion} projection used by the
// diff engine. Payloads are fetched separately, only for ids that differ.
type RowMeta struct {
	ID         string
	RowVersion int
}

// Affected is the notification scope returned by entity operations:
// which list channels and user channels need a poke.
type Affected struct {
	ListIDs []string
	UserIDs []string
}
