// Package postgres provides PostgreSQL storage for identities and
// relationship facts.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/presence/pkg/relation"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements relation.Store using PostgreSQL.
type Store struct {
	queries
	db *sql.DB
}

// New creates a new PostgreSQL relationship store.
func New(db *sql.DB) *Store {
	return &Store{queries: queries{q: db}, db: db}
}

// Update runs fn inside a database transaction.
func (s *Store) Update(ctx context.Context, fn func(relation.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(queries{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateIdentity returns the id of name, inserting the user if needed.
func (s *Store) CreateIdentity(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, errors.New("username is required")
	}
	query, args, err := psq.Insert("users").Columns("username").Values(name).
		Suffix("ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username RETURNING id").ToSql()
	if err != nil {
		return 0, fmt.Errorf("building identity insert: %w", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("creating identity %q: %w", name, err)
	}
	return id, nil
}

// queries implements relation.Tx on top of a querier.
type queries struct {
	q querier
}

// FindIDByName resolves a username.
func (r queries) FindIDByName(ctx context.Context, name string) (int64, error) {
	query, args, err := psq.Select("id").From("users").Where(sq.Eq{"username": name}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("building identity query: %w", err)
	}
	var id int64
	err = r.q.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, relation.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("finding identity %q: %w", name, err)
	}
	return id, nil
}

// FindNameByID resolves an id.
func (r queries) FindNameByID(ctx context.Context, id int64) (string, error) {
	query, args, err := psq.Select("username").From("users").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return "", fmt.Errorf("building identity query: %w", err)
	}
	var name string
	err = r.q.QueryRowContext(ctx, query, args...).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", relation.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("finding identity %d: %w", id, err)
	}
	return name, nil
}

// ListFriends returns the friends of id.
func (r queries) ListFriends(ctx context.Context, id int64) ([]string, error) {
	qb := psq.Select("u.username").From("users u").
		Join("friendships f ON (f.first_user_id = u.id AND f.second_user_id = ?) OR (f.second_user_id = u.id AND f.first_user_id = ?)", id, id).
		OrderBy("u.username")
	return r.names(ctx, qb, "friends")
}

// ListFoes returns the identities id has marked as foes.
func (r queries) ListFoes(ctx context.Context, id int64) ([]string, error) {
	qb := psq.Select("u.username").From("users u").
		Join("foeships f ON f.foe_id = u.id").
		Where(sq.Eq{"f.user_id": id}).
		OrderBy("u.username")
	return r.names(ctx, qb, "foes")
}

// ListPendingRequestsFor returns the senders of pending requests to id.
func (r queries) ListPendingRequestsFor(ctx context.Context, id int64) ([]string, error) {
	qb := psq.Select("u.username").From("users u").
		Join("friend_requests r ON r.user_id = u.id").
		Where(sq.Eq{"r.friend_id": id}).
		OrderBy("u.username")
	return r.names(ctx, qb, "friend requests")
}

func (r queries) names(ctx context.Context, qb sq.SelectBuilder, what string) ([]string, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building %s query: %w", what, err)
	}
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", what, err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", what, err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s rows: %w", what, err)
	}
	return out, nil
}

// InsertFriendship records a friendship for the unordered pair.
func (r queries) InsertFriendship(ctx context.Context, a, b int64) error {
	first, second := relation.Pair(a, b)
	return r.insert(ctx, "friendships", "first_user_id", "second_user_id", first, second)
}

// DeleteFriendship removes the friendship of the unordered pair.
func (r queries) DeleteFriendship(ctx context.Context, a, b int64) error {
	first, second := relation.Pair(a, b)
	return r.delete(ctx, "friendships", sq.Eq{"first_user_id": first, "second_user_id": second})
}

// InsertFoe records that from marked to as a foe.
func (r queries) InsertFoe(ctx context.Context, from, to int64) error {
	return r.insert(ctx, "foeships", "user_id", "foe_id", from, to)
}

// DeleteFoe removes from's foe mark on to.
func (r queries) DeleteFoe(ctx context.Context, from, to int64) error {
	return r.delete(ctx, "foeships", sq.Eq{"user_id": from, "foe_id": to})
}

// InsertPendingRequest records a friend request from -> to.
func (r queries) InsertPendingRequest(ctx context.Context, from, to int64) error {
	return r.insert(ctx, "friend_requests", "user_id", "friend_id", from, to)
}

// DeletePendingRequest removes the friend request from -> to.
func (r queries) DeletePendingRequest(ctx context.Context, from, to int64) error {
	return r.delete(ctx, "friend_requests", sq.Eq{"user_id": from, "friend_id": to})
}

func (r queries) insert(ctx context.Context, table, col1, col2 string, v1, v2 int64) error {
	query, args, err := psq.Insert(table).Columns(col1, col2).Values(v1, v2).
		Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("building %s insert: %w", table, err)
	}
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting into %s: %w", table, err)
	}
	return nil
}

func (r queries) delete(ctx context.Context, table string, where sq.Eq) error {
	query, args, err := psq.Delete(table).Where(where).ToSql()
	if err != nil {
		return fmt.Errorf("building %s delete: %w", table, err)
	}
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting from %s: %w", table, err)
	}
	return nil
}

// Verify interface compliance.
var (
	_ relation.Store = (*Store)(nil)
	_ relation.Tx    = queries{}
)
