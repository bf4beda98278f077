package db

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/pkg/errors"
)

// SchemaVersion is the newest schema this build understands. Migrations
// are gated on the version recorded in sync_meta so that an old binary
// never runs against a newer schema.
const SchemaVersion = 1

// EnsureSchema brings the database to the current schema version inside
// one transaction. It is safe to run on every startup.
func EnsureSchema(ctx context.Context, d *DB) error {
	return d.Transact(ctx, func(ex Executor) error {
		version, err := schemaVersion(ctx, ex)
		if err != nil {
			return err
		}
		if version < 0 || version > SchemaVersion {
			return errors.Errorf("unexpected schema version: %d", version)
		}
		if version == 0 {
			return createSchemaVersion1(ctx, ex)
		}
		return nil
	})
}

func schemaVersion(ctx context.Context, ex Executor) (int, error) {
	if _, err := ex.ExecContext(ctx, `create table if not exists sync_meta (
		key text primary key,
		value text not null
		)`); err != nil {
		return 0, errors.Wrap(err, "creating sync_meta")
	}
	var raw string
	err := ex.QueryRowContext(ctx, `select value from sync_meta where key = 'schemaVersion'`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "reading schema version")
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing schema version %q", raw)
	}
	return version, nil
}

func createSchemaVersion1(ctx context.Context, ex Executor) error {
	statements := []string{
		`create table sync_client_group (
			id varchar(36) primary key not null,
			cvrversion integer not null,
			clientversion integer not null,
			lastmodified timestamp(6) not null
			)`,
		`create table sync_client (
			id varchar(36) primary key not null,
			clientgroupid varchar(36) not null,
			lastmutationid integer not null,
			clientversion integer not null,
			lastmodified timestamp(6) not null
			)`,
		`create table list (
			id varchar(36) primary key not null,
			ownerid varchar(36) not null,
			name text not null,
			rowversion integer not null,
			lastmodified timestamp(6) not null
			)`,
		`create table share (
			id varchar(36) primary key not null,
			listid varchar(36) not null,
			userid varchar(36) not null,
			rowversion integer not null,
			lastmodified timestamp(6) not null
			)`,
		`create table item (
			id varchar(36) primary key not null,
			listid varchar(36) not null,
			title text not null,
			complete boolean not null,
			ord integer not null,
			rowversion integer not null,
			lastmodified timestamp(6) not null
			)`,
		`create index sync_client_group_idx on sync_client (clientgroupid, clientversion)`,
		`create index share_list_idx on share (listid)`,
		`create index share_user_idx on share (userid)`,
		`create index item_list_idx on item (listid)`,
		`insert into sync_meta (key, value) values ('schemaVersion', '1')`,
	}
	for _, statement := range statements {
		if _, err := ex.ExecContext(ctx, statement); err != nil {
			return errors.Wrap(err, "applying schema version 1")
		}
	}
	return nil
}
