package rowsync

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/agentworkforce/rowsync/internal/db"
)

// Client group / client records.
//
// The ForUpdate variants take a row-level lock so that concurrent pushes
// from the same group serialize on the shared version counters. Absent
// records come back zero-valued rather than as errors; they are created
// lazily by the first put.

func getClientGroupForUpdate(ctx context.Context, ex db.Executor, id string) (ClientGroupRecord, error) {
	group := ClientGroupRecord{ID: id}
	err := ex.QueryRowContext(ctx,
		`select cvrversion, clientversion from sync_client_group where id = $1 for update`,
		id).Scan(&group.CVRVersion, &group.ClientVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return group, nil
	}
	if err != nil {
		return ClientGroupRecord{}, errors.Wrap(err, "locking client group")
	}
	return group, nil
}

func putClientGroup(ctx context.Context, ex db.Executor, group ClientGroupRecord) error {
	_, err := ex.ExecContext(ctx, `
		insert into sync_client_group (id, cvrversion, clientversion, lastmodified)
		values ($1, $2, $3, now())
		on conflict (id) do update set
			cvrversion = $2, clientversion = $3, lastmodified = now()`,
		group.ID, group.CVRVersion, group.ClientVersion)
	return errors.Wrap(err, "writing client group")
}

func getClientForUpdate(ctx context.Context, ex db.Executor, clientGroupID, id string) (ClientRecord, error) {
	client := ClientRecord{ID: id, ClientGroupID: clientGroupID}
	var ownerGroupID string
	err := ex.QueryRowContext(ctx,
		`select clientgroupid, lastmutationid, clientversion from sync_client where id = $1 for update`,
		id).Scan(&ownerGroupID, &client.LastMutationID, &client.ClientVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return client, nil
	}
	if err != nil {
		return ClientRecord{}, errors.Wrap(err, "locking client")
	}
	if ownerGroupID != clientGroupID {
		return ClientRecord{}, errors.Wrapf(ErrWrongClientGroup, "client %s belongs to group %s", id, ownerGroupID)
	}
	return client, nil
}

func putClient(ctx context.Context, ex db.Executor, client ClientRecord) error {
	_, err := ex.ExecContext(ctx, `
		insert into sync_client (id, clientgroupid, lastmutationid, clientversion, lastmodified)
		values ($1, $2, $3, $4, now())
		on conflict (id) do update set
			lastmutationid = $3, clientversion = $4, lastmodified = now()`,
		client.ID, client.ClientGroupID, client.LastMutationID, client.ClientVersion)
	return errors.Wrap(err, "writing client")
}

// searchClients returns the clients of a group whose clientversion moved
// past sinceClientVersion. Pull reports their lastMutationIDs back so a
// tab learns about its siblings' progress.
func searchClients(ctx context.Context, ex db.Executor, clientGroupID string, sinceClientVersion int) ([]ClientRecord, error) {
	rows, err := ex.QueryContext(ctx,
		`select id, lastmutationid, clientversion from sync_client
		 where clientgroupid = $1 and clientversion > $2`,
		clientGroupID, sinceClientVersion)
	if err != nil {
		return nil, errors.Wrap(err, "searching clients")
	}
	defer rows.Close()

	clients := make([]ClientRecord, 0)
	for rows.Next() {
		client := ClientRecord{ClientGroupID: clientGroupID}
		if err := rows.Scan(&client.ID, &client.LastMutationID, &client.ClientVersion); err != nil {
			return nil, errors.Wrap(err, "scanning client")
		}
		clients = append(clients, client)
	}
	return clients, errors.Wrap(rows.Err(), "iterating clients")
}

// Projections. These return {id, rowversion} only; the diff engine fetches
// payloads later, just for the ids that actually changed.

func searchLists(ctx context.Context, ex db.Executor, accessibleByUserID string) ([]RowMeta, error) {
	rows, err := ex.QueryContext(ctx,
		`select id, rowversion from list
		 where ownerid = $1 or id in (select listid from share where userid = $1)`,
		accessibleByUserID)
	if err != nil {
		return nil, errors.Wrap(err, "searching lists")
	}
	return scanRowMeta(rows)
}

func searchTodos(ctx context.Context, ex db.Executor, listIDs []string) ([]RowMeta, error) {
	rows, err := ex.QueryContext(ctx,
		`select id, rowversion from item where listid = any($1)`, pq.Array(listIDs))
	if err != nil {
		return nil, errors.Wrap(err, "searching todos")
	}
	return scanRowMeta(rows)
}

func searchShares(ctx context.Context, ex db.Executor, listIDs []string) ([]RowMeta, error) {
	rows, err := ex.QueryContext(ctx,
		`select id, rowversion from share where listid = any($1)`, pq.Array(listIDs))
	if err != nil {
		return nil, errors.Wrap(err, "searching shares")
	}
	return scanRowMeta(rows)
}

func scanRowMeta(rows *sql.Rows) ([]RowMeta, error) {
	defer rows.Close()
	metas := make([]RowMeta, 0)
	for rows.Next() {
		var meta RowMeta
		if err := rows.Scan(&meta.ID, &meta.RowVersion); err != nil {
			return nil, errors.Wrap(err, "scanning projection")
		}
		metas = append(metas, meta)
	}
	return metas, errors.Wrap(rows.Err(), "iterating projection")
}

// Payload fetches, used only for put ops.

func getLists(ctx context.Context, ex db.Executor, ids []string) ([]List, error) {
	rows, err := ex.QueryContext(ctx,
		`select id, ownerid, name from list where id = any($1) order by id`, pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "fetching lists")
	}
	defer rows.Close()
	lists := make([]List, 0, len(ids))
	for rows.Next() {
		var list List
		if err := rows.Scan(&list.ID, &list.OwnerID, &list.Name); err != nil {
			return nil, errors.Wrap(err, "scanning list")
		}
		lists = append(lists, list)
	}
	return lists, errors.Wrap(rows.Err(), "iterating lists")
}

func getTodos(ctx context.Context, ex db.Executor, ids []string) ([]Todo, error) {
	rows, err := ex.QueryContext(ctx,
		`select id, listid, title, complete, ord from item where id = any($1) order by id`, pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "fetching todos")
	}
	defer rows.Close()
	todos := make([]Todo, 0, len(ids))
	for rows.Next() {
		var todo Todo
		if err := rows.Scan(&todo.ID, &todo.ListID, &todo.Text, &todo.Completed, &todo.Sort); err != nil {
			return nil, errors.Wrap(err, "scanning todo")
		}
		todos = append(todos, todo)
	}
	return todos, errors.Wrap(rows.Err(), "iterating todos")
}

func getShares(ctx context.Context, ex db.Executor, ids []string) ([]Share, error) {
	rows, err := ex.QueryContext(ctx,
		`select id, listid, userid from share where id = any($1) order by id`, pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "fetching shares")
	}
	defer rows.Close()
	shares := make([]Share, 0, len(ids))
	for rows.Next() {
		var share Share
		if err := rows.Scan(&share.ID, &share.ListID, &share.UserID); err != nil {
			return nil, errors.Wrap(err, "scanning share")
		}
		shares = append(shares, share)
	}
	return shares, errors.Wrap(rows.Err(), "iterating shares")
}

// Access control. Ownership or an existing share row is the sole
// authorization predicate for list-scoped mutations.

func requireAccessToList(ctx context.Context, ex db.Executor, listID, userID string) error {
	var one int
	err := ex.QueryRowContext(ctx,
		`select 1 from list
		 where id = $1 and (ownerid = $2 or id in (select listid from share where userid = $2))`,
		listID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(ErrUnauthorized, "user %s cannot access list %s", userID, listID)
	}
	return errors.Wrap(err, "checking list access")
}

// getAccessors returns everyone who can see a list: the owner plus every
// user with a share row.
func getAccessors(ctx context.Context, ex db.Executor, listID string) ([]string, error) {
	rows, err := ex.QueryContext(ctx,
		`select ownerid from list where id = $1
		 union select userid from share where listid = $1`, listID)
	if err != nil {
		return nil, errors.Wrap(err, "fetching accessors")
	}
	defer rows.Close()
	userIDs := make([]string, 0, 2)
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, errors.Wrap(err, "scanning accessor")
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, errors.Wrap(rows.Err(), "iterating accessors")
}

// Entity mutations. Every successful write bumps rowversion by exactly 1;
// new rows start at 1. Each returns the poke scope it affected.

func createList(ctx context.Context, ex db.Executor, userID string, args ListArgs) (Affected, error) {
	if args.OwnerID != userID {
		return Affected{}, errors.Wrap(ErrUnauthorized, "cannot create list for another user")
	}
	if _, err := ex.ExecContext(ctx,
		`insert into list (id, ownerid, name, rowversion, lastmodified)
		 values ($1, $2, $3, 1, now())`,
		args.ID, args.OwnerID, args.Name); err != nil {
		return Affected{}, errors.Wrap(err, "inserting list")
	}
	return Affected{UserIDs: []string{args.OwnerID}}, nil
}

func updateList(ctx context.Context, ex db.Executor, userID string, args ListUpdateArgs) (Affected, error) {
	if err := requireAccessToList(ctx, ex, args.ID, userID); err != nil {
		return Affected{}, err
	}
	if _, err := ex.ExecContext(ctx,
		`update list set
			name = coalesce($2, name),
			rowversion = rowversion + 1,
			lastmodified = now()
		 where id = $1`,
		args.ID, args.Name); err != nil {
		return Affected{}, errors.Wrap(err, "updating list")
	}
	return Affected{ListIDs: []string{args.ID}}, nil
}

func deleteList(ctx context.Context, ex db.Executor, userID, listID string) (Affected, error) {
	if err := requireAccessToList(ctx, ex, listID, userID); err != nil {
		return Affected{}, err
	}
	userIDs, err := getAccessors(ctx, ex, listID)
	if err != nil {
		return Affected{}, err
	}
	if _, err := ex.ExecContext(ctx, `delete from list where id = $1`, listID); err != nil {
		return Affected{}, errors.Wrap(err, "deleting list")
	}
	return Affected{ListIDs: []string{listID}, UserIDs: userIDs}, nil
}

func createTodo(ctx context.Context, ex db.Executor, userID string, args TodoArgs) (Affected, error) {
	if err := requireAccessToList(ctx, ex, args.ListID, userID); err != nil {
		return Affected{}, err
	}
	// New items sort last: ord = max(ord in list) + 1.
	var ord int
	if err := ex.QueryRowContext(ctx,
		`select coalesce(max(ord), 0) + 1 from item where listid = $1`,
		args.ListID).Scan(&ord); err != nil {
		return Affected{}, errors.Wrap(err, "computing sort order")
	}
	if _, err := ex.ExecContext(ctx,
		`insert into item (id, listid, title, complete, ord, rowversion, lastmodified)
		 values ($1, $2, $3, $4, $5, 1, now())`,
		args.ID, args.ListID, args.Text, args.Completed, ord); err != nil {
		return Affected{}, errors.Wrap(err, "inserting todo")
	}
	return Affected{ListIDs: []string{args.ListID}}, nil
}

func updateTodo(ctx context.Context, ex db.Executor, userID string, args TodoUpdateArgs) (Affected, error) {
	listID, err := todoListID(ctx, ex, args.ID)
	if err != nil {
		return Affected{}, err
	}
	if err := requireAccessToList(ctx, ex, listID, userID); err != nil {
		return Affected{}, err
	}
	// Sparse patch: unspecified fields keep their current value.
	if _, err := ex.ExecContext(ctx,
		`update item set
			title = coalesce($2, title),
			complete = coalesce($3, complete),
			ord = coalesce($4, ord),
			rowversion = rowversion + 1,
			lastmodified = now()
		 where id = $1`,
		args.ID, args.Text, args.Completed, args.Sort); err != nil {
		return Affected{}, errors.Wrap(err, "updating todo")
	}
	return Affected{ListIDs: []string{listID}}, nil
}

func deleteTodo(ctx context.Context, ex db.Executor, userID, todoID string) (Affected, error) {
	listID, err := todoListID(ctx, ex, todoID)
	if err != nil {
		return Affected{}, err
	}
	if err := requireAccessToList(ctx, ex, listID, userID); err != nil {
		return Affected{}, err
	}
	if _, err := ex.ExecContext(ctx, `delete from item where id = $1`, todoID); err != nil {
		return Affected{}, errors.Wrap(err, "deleting todo")
	}
	return Affected{ListIDs: []string{listID}}, nil
}

func todoListID(ctx context.Context, ex db.Executor, todoID string) (string, error) {
	var listID string
	err := ex.QueryRowContext(ctx, `select listid from item where id = $1`, todoID).Scan(&listID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.Wrapf(ErrNotFound, "todo %s doesn't exist", todoID)
	}
	return listID, errors.Wrap(err, "resolving todo list")
}

func createShare(ctx context.Context, ex db.Executor, userID string, args ShareArgs) (Affected, error) {
	if err := requireAccessToList(ctx, ex, args.ListID, userID); err != nil {
		return Affected{}, err
	}
	if _, err := ex.ExecContext(ctx,
		`insert into share (id, listid, userid, rowversion, lastmodified)
		 values ($1, $2, $3, 1, now())`,
		args.ID, args.ListID, args.UserID); err != nil {
		return Affected{}, errors.Wrap(err, "inserting share")
	}
	// Poke the invited user too, so their client pulls the new list.
	return Affected{ListIDs: []string{args.ListID}, UserIDs: []string{args.UserID}}, nil
}

func deleteShare(ctx context.Context, ex db.Executor, userID, shareID string) (Affected, error) {
	var share Share
	err := ex.QueryRowContext(ctx,
		`select id, listid, userid from share where id = $1`, shareID).
		Scan(&share.ID, &share.ListID, &share.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return Affected{}, errors.Wrapf(ErrNotFound, "share %s doesn't exist", shareID)
	}
	if err != nil {
		return Affected{}, errors.Wrap(err, "resolving share")
	}
	if err := requireAccessToList(ctx, ex, share.ListID, userID); err != nil {
		return Affected{}, err
	}
	if _, err := ex.ExecContext(ctx, `delete from share where id = $1`, shareID); err != nil {
		return Affected{}, errors.Wrap(err, "deleting share")
	}
	return Affected{ListIDs: []string{share.ListID}, UserIDs: []string{share.UserID}}, nil
}
