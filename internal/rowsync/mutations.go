package rowsync

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/agentworkforce/rowsync/internal/db"
)

// MutationName identifies one of the closed set of mutation kinds. New
// kinds are added by extending this set and the dispatch below, each with
// its own typed argument payload.
type MutationName string

const (
	MutationCreateList  MutationName = "createList"
	MutationUpdateList  MutationName = "updateList"
	MutationDeleteList  MutationName = "deleteList"
	MutationCreateTodo  MutationName = "createTodo"
	MutationUpdateTodo  MutationName = "updateTodo"
	MutationDeleteTodo  MutationName = "deleteTodo"
	MutationCreateShare MutationName = "createShare"
	MutationDeleteShare MutationName = "deleteShare"
)

// Mutation is one client-submitted mutation. Args stay raw until the
// mutation is dispatched; decoding and validation happen at that boundary
// so a bad payload becomes a per-mutation domain error, not a batch
// failure.
type Mutation struct {
	ID       int             `json:"id"`
	ClientID string          `json:"clientID"`
	Name     MutationName    `json:"name"`
	Args     json.RawMessage `json:"args"`
}

type ListArgs struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerID"`
	Name    string `json:"name"`
}

type ListUpdateArgs struct {
	ID   string  `json:"id"`
	Name *string `json:"name"`
}

type TodoArgs struct {
	ID        string `json:"id"`
	ListID    string `json:"listID"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

type TodoUpdateArgs struct {
	ID        string  `json:"id"`
	Text      *string `json:"text"`
	Completed *bool   `json:"completed"`
	Sort      *int    `json:"sort"`
}

type ShareArgs struct {
	ID     string `json:"id"`
	ListID string `json:"listID"`
	UserID string `json:"userID"`
}

const maxIDLen = 36

func validID(id string) bool {
	return id != "" && len(id) <= maxIDLen
}

func decodeArgs(raw json.RawMessage, into any) error {
	if err := json.Unmarshal(raw, into); err != nil {
		return errors.Wrap(ErrInvalidInput, err.Error())
	}
	return nil
}

func decodeIDArg(raw json.RawMessage) (string, error) {
	var id string
	if err := decodeArgs(raw, &id); err != nil {
		return "", err
	}
	if !validID(id) {
		return "", errors.Wrap(ErrInvalidInput, "id must be a non-empty string")
	}
	return id, nil
}

// applyMutation decodes, validates, and executes one mutation's domain
// effect, returning the poke scope it affected.
func applyMutation(ctx context.Context, ex db.Executor, userID string, m Mutation) (Affected, error) {
	switch m.Name {
	case MutationCreateList:
		var args ListArgs
		if err := decodeArgs(m.Args, &args); err != nil {
			return Affected{}, err
		}
		if !validID(args.ID) || !validID(args.OwnerID) || args.Name == "" {
			return Affected{}, errors.Wrap(ErrInvalidInput, "createList requires id, ownerID and name")
		}
		return createList(ctx, ex, userID, args)

	case MutationUpdateList:
		var args ListUpdateArgs
		if err := decodeArgs(m.Args, &args); err != nil {
			return Affected{}, err
		}
		if !validID(args.ID) {
			return Affected{}, errors.Wrap(ErrInvalidInput, "updateList requires id")
		}
		return updateList(ctx, ex, userID, args)

	case MutationDeleteList:
		listID, err := decodeIDArg(m.Args)
		if err != nil {
			return Affected{}, err
		}
		return deleteList(ctx, ex, userID, listID)

	case MutationCreateTodo:
		var args TodoArgs
		if err := decodeArgs(m.Args, &args); err != nil {
			return Affected{}, err
		}
		if !validID(args.ID) || !validID(args.ListID) {
			return Affected{}, errors.Wrap(ErrInvalidInput, "createTodo requires id and listID")
		}
		return createTodo(ctx, ex, userID, args)

	case MutationUpdateTodo:
		var args TodoUpdateArgs
		if err := decodeArgs(m.Args, &args); err != nil {
			return Affected{}, err
		}
		if !validID(args.ID) {
			return Affected{}, errors.Wrap(ErrInvalidInput, "updateTodo requires id")
		}
		return updateTodo(ctx, ex, userID, args)

	case MutationDeleteTodo:
		todoID, err := decodeIDArg(m.Args)
		if err != nil {
			return Affected{}, err
		}
		return deleteTodo(ctx, ex, userID, todoID)

	case MutationCreateShare:
		var args ShareArgs
		if err := decodeArgs(m.Args, &args); err != nil {
			return Affected{}, err
		}
		if !validID(args.ID) || !validID(args.ListID) || !validID(args.UserID) {
			return Affected{}, errors.Wrap(ErrInvalidInput, "createShare requires id, listID and userID")
		}
		return createShare(ctx, ex, userID, args)

	case MutationDeleteShare:
		shareID, err := decodeIDArg(m.Args)
		if err != nil {
			return Affected{}, err
		}
		return deleteShare(ctx, ex, userID, shareID)

	default:
		// Unknown mutations are tolerated as no-ops so an older server
		// keeps accepting batches from newer clients.
		return Affected{}, nil
	}
}
