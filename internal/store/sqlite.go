package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
)

// SQLite stores tasks, shared users and notifications in a single database
// file. The pool is capped at one connection; SQLite is single-writer
type SQLite struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

const sqlitePragmas = "?_pragma=foreign_keys(1)" +
	"&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id                         TEXT PRIMARY KEY,
		name                       TEXT NOT NULL DEFAULT '',
		owner_id                   TEXT NOT NULL,
		created_at                 INTEGER NOT NULL,
		updated_at                 INTEGER NOT NULL,
		configured_duration_millis INTEGER NOT NULL DEFAULT 1500000,
		remaining_millis           INTEGER NOT NULL DEFAULT 1500000,
		timer_active               BOOLEAN NOT NULL DEFAULT 0,
		last_update_timestamp      INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_active ON tasks(timer_active)`,

	`CREATE TABLE IF NOT EXISTS task_shared_users (
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		PRIMARY KEY (task_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id           TEXT PRIMARY KEY,
		recipient_id TEXT NOT NULL,
		type         TEXT NOT NULL,
		message      TEXT NOT NULL,
		payload      TEXT NOT NULL DEFAULT '',
		read         BOOLEAN NOT NULL DEFAULT 0,
		created_at   INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient
		ON notifications(recipient_id, read)`,
}

var _ Store = (*SQLite)(nil)

// OpenSQLite creates or opens the database file at path and migrates it
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+sqlitePragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) CreateTask(ctx context.Context, t *api.Task) error {
	prepareTask(t, time.Now())
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM tasks WHERE id = ?`, string(t.ID),
		).Scan(&exists)
		if err != nil {
			return err
		}
		if exists > 0 {
			return ErrTaskExists
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO tasks (
			id, name, owner_id, created_at, updated_at,
			configured_duration_millis, remaining_millis,
			timer_active, last_update_timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(t.ID), t.Name, string(t.OwnerID),
			t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli(),
			t.Timer.ConfiguredDuration, t.Timer.Remaining,
			t.Timer.Active, nullMillis(t.Timer.LastUpdate),
		)
		if err != nil {
			return err
		}
		return writeSharedUsers(ctx, tx, t)
	})
}

func (s *SQLite) GetTask(
	ctx context.Context, id api.TaskID,
) (*api.Task, error) {
	return loadTask(ctx, s.db, id)
}

func (s *SQLite) UpdateTask(
	ctx context.Context, id api.TaskID, fn UpdateFunc,
) (*api.Task, error) {
	var res *api.Task
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := loadTask(ctx, tx, id)
		if err != nil {
			return err
		}

		upd := cur.Clone()
		if err := fn(upd); err != nil {
			if errors.Is(err, ErrSkipUpdate) {
				res = cur
				return nil
			}
			return err
		}
		upd.ID = id
		upd.UpdatedAt = time.Now()

		_, err = tx.ExecContext(ctx, `UPDATE tasks SET
			name = ?, owner_id = ?, updated_at = ?,
			configured_duration_millis = ?, remaining_millis = ?,
			timer_active = ?, last_update_timestamp = ?
		WHERE id = ?`,
			upd.Name, string(upd.OwnerID), upd.UpdatedAt.UnixMilli(),
			upd.Timer.ConfiguredDuration, upd.Timer.Remaining,
			upd.Timer.Active, nullMillis(upd.Timer.LastUpdate),
			string(id),
		)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`DELETE FROM task_shared_users WHERE task_id = ?`, string(id),
		)
		if err != nil {
			return err
		}
		if err := writeSharedUsers(ctx, tx, upd); err != nil {
			return err
		}
		res = upd
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *SQLite) ListActiveTimers(ctx context.Context) ([]*api.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM tasks WHERE timer_active = 1`,
	)
	if err != nil {
		return nil, err
	}

	var ids []api.TaskID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, api.TaskID(id))
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	res := make([]*api.Task, 0, len(ids))
	for _, id := range ids {
		t, err := loadTask(ctx, s.db, id)
		if errors.Is(err, ErrTaskNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

func (s *SQLite) DeleteTask(ctx context.Context, id api.TaskID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = ?`, string(id),
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *SQLite) AddNotification(
	ctx context.Context, n *api.Notification,
) error {
	prepareNotification(n, time.Now())
	_, err := s.db.ExecContext(ctx, `INSERT INTO notifications (
		id, recipient_id, type, message, payload, read, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(n.ID), string(n.RecipientID), n.Type, n.Message,
		string(n.Payload), n.Read, n.CreatedAt.UnixMilli(),
	)
	return err
}

func (s *SQLite) ListUnread(
	ctx context.Context, user api.UserID,
) ([]*api.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, recipient_id, type, message, payload, read, created_at
	FROM notifications
	WHERE recipient_id = ? AND read = 0
	ORDER BY created_at DESC`, string(user))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var res []*api.Notification
	for rows.Next() {
		var (
			n               api.Notification
			id, recipient   string
			payload         string
			createdAtMillis int64
		)
		err := rows.Scan(&id, &recipient, &n.Type, &n.Message,
			&payload, &n.Read, &createdAtMillis,
		)
		if err != nil {
			return nil, err
		}
		n.ID = api.NotificationID(id)
		n.RecipientID = api.UserID(recipient)
		n.CreatedAt = time.UnixMilli(createdAtMillis).UTC()
		if payload != "" {
			n.Payload = json.RawMessage(payload)
		}
		res = append(res, &n)
	}
	return res, rows.Err()
}

func (s *SQLite) MarkRead(
	ctx context.Context, user api.UserID, id api.NotificationID,
) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1
		WHERE id = ? AND recipient_id = ?`,
		string(id), string(user),
	)
	return expectAffected(res, err, ErrNotificationNotFound)
}

func (s *SQLite) MarkAllRead(
	ctx context.Context, user api.UserID,
) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1
		WHERE recipient_id = ? AND read = 0`,
		string(user),
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLite) DeleteNotification(
	ctx context.Context, user api.UserID, id api.NotificationID,
) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = ? AND recipient_id = ?`,
		string(id), string(user),
	)
	return expectAffected(res, err, ErrNotificationNotFound)
}

// Close cleanly shuts down the database
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func loadTask(ctx context.Context, q querier, id api.TaskID) (*api.Task, error) {
	var (
		t                    api.Task
		owner                string
		createdAt, updatedAt int64
		lastUpdate           sql.NullInt64
	)
	err := q.QueryRowContext(ctx, `SELECT
		name, owner_id, created_at, updated_at,
		configured_duration_millis, remaining_millis,
		timer_active, last_update_timestamp
	FROM tasks WHERE id = ?`, string(id)).Scan(
		&t.Name, &owner, &createdAt, &updatedAt,
		&t.Timer.ConfiguredDuration, &t.Timer.Remaining,
		&t.Timer.Active, &lastUpdate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}

	t.ID = id
	t.OwnerID = api.UserID(owner)
	t.CreatedAt = time.UnixMilli(createdAt).UTC()
	t.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if lastUpdate.Valid {
		at := time.UnixMilli(lastUpdate.Int64).UTC()
		t.Timer.LastUpdate = &at
	}

	rows, err := q.QueryContext(ctx,
		`SELECT user_id FROM task_shared_users
		WHERE task_id = ? ORDER BY rowid`, string(id),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var user string
		if err := rows.Scan(&user); err != nil {
			return nil, err
		}
		t.SharedWith = append(t.SharedWith, api.UserID(user))
	}
	return &t, rows.Err()
}

func writeSharedUsers(ctx context.Context, tx *sql.Tx, t *api.Task) error {
	for _, user := range t.SharedWith {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO task_shared_users (task_id, user_id)
			VALUES (?, ?)`, string(t.ID), string(user),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func expectAffected(res sql.Result, err error, notFound error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullMillis(at *time.Time) sql.NullInt64 {
	if at == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: at.UnixMilli(), Valid: true}
}
