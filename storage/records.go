package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"markestedt/clipkeeper/clip"
)

var ErrNotFound = errors.New("clipboard item not found")

const recordColumns = `id, content_type, content, created_at, is_favorite, content_hash`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*clip.Record, error) {
	var (
		r         clip.Record
		kind      string
		createdAt int64
		hash      sql.NullString
	)
	if err := s.Scan(&r.ID, &kind, &r.Content, &createdAt, &r.Favorite, &hash); err != nil {
		return nil, err
	}

	k, err := clip.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	r.Kind = k
	r.CreatedAt = time.UnixMilli(createdAt)
	if hash.Valid {
		r.ContentHash = hash.String
	}
	return &r, nil
}

func scanRecords(rows *sql.Rows) ([]*clip.Record, error) {
	defer rows.Close()

	var records []*clip.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan clipboard item: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func nullHash(hash string) sql.NullString {
	return sql.NullString{String: hash, Valid: hash != ""}
}

// Insert saves a new record and returns its id
func (db *DB) Insert(ctx context.Context, r *clip.Record) (int64, error) {
	query := `
		INSERT INTO clipboard_items (content_type, content, created_at, is_favorite, content_hash)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := db.conn.ExecContext(ctx, query,
		r.Kind.String(), r.Content, r.CreatedAt.UnixMilli(), r.Favorite, nullHash(r.ContentHash),
	)
	if err != nil {
		return clip.NoID, fmt.Errorf("failed to save clipboard item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return clip.NoID, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

// FindByHash returns the record with the content hash, or nil when there is none
func (db *DB) FindByHash(ctx context.Context, hash string) (*clip.Record, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM clipboard_items WHERE content_hash = ? LIMIT 1`, hash)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find clipboard item by hash: %w", err)
	}
	return r, nil
}

// Latest returns the most recently inserted record, or nil when the history is empty
func (db *DB) Latest(ctx context.Context) (*clip.Record, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM clipboard_items ORDER BY id DESC LIMIT 1`)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest clipboard item: %w", err)
	}
	return r, nil
}

// Touch moves a record to the top of the history
func (db *DB) Touch(ctx context.Context, id int64, at time.Time) error {
	return db.updateOne(ctx, `UPDATE clipboard_items SET created_at = ? WHERE id = ?`, at.UnixMilli(), id)
}

// BackfillHash sets the content hash of a row written before hashing existed
func (db *DB) BackfillHash(ctx context.Context, id int64, hash string) error {
	return db.updateOne(ctx, `UPDATE clipboard_items SET content_hash = ? WHERE id = ?`, hash, id)
}

// SetFavorite marks or unmarks a record as favorite
func (db *DB) SetFavorite(ctx context.Context, id int64, favorite bool) error {
	return db.updateOne(ctx, `UPDATE clipboard_items SET is_favorite = ? WHERE id = ?`, favorite, id)
}

// Delete deletes a record by ID
func (db *DB) Delete(ctx context.Context, id int64) error {
	return db.updateOne(ctx, `DELETE FROM clipboard_items WHERE id = ?`, id)
}

func (db *DB) updateOne(ctx context.Context, query string, args ...any) error {
	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update clipboard item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Get retrieves a record by ID
func (db *DB) Get(ctx context.Context, id int64) (*clip.Record, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM clipboard_items WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get clipboard item: %w", err)
	}
	return r, nil
}

// ListOptions filters and pages history queries
type ListOptions struct {
	Limit         int
	Offset        int
	FavoritesOnly bool
	// Query matches text and file paths; images never match a query
	Query string
}

// List retrieves records newest first
func (db *DB) List(ctx context.Context, opts ListOptions) ([]*clip.Record, error) {
	var (
		where []string
		args  []any
	)
	if opts.FavoritesOnly {
		where = append(where, "is_favorite = 1")
	}
	if q := strings.TrimSpace(opts.Query); q != "" {
		where = append(where, "content_type != 'image'", "CAST(content AS TEXT) LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(q)+"%")
	}

	query := `SELECT ` + recordColumns + ` FROM clipboard_items`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, max(opts.Offset, 0))

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clipboard items: %w", err)
	}
	return scanRecords(rows)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Count returns the total number of records
func (db *DB) Count(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM clipboard_items").Scan(&count)
	return count, err
}

// Cleanup applies retention: non-favorite records older than maxAge or
// beyond the newest maxItems are deleted. Zero disables either limit.
func (db *DB) Cleanup(ctx context.Context, maxItems int, maxAge time.Duration) (int64, error) {
	var deleted int64

	if maxAge > 0 {
		cutoff := time.Now().Add(-maxAge).UnixMilli()
		result, err := db.conn.ExecContext(ctx,
			`DELETE FROM clipboard_items WHERE is_favorite = 0 AND created_at < ?`, cutoff)
		if err != nil {
			return deleted, fmt.Errorf("failed to delete old items: %w", err)
		}
		n, _ := result.RowsAffected()
		deleted += n
	}

	if maxItems > 0 {
		result, err := db.conn.ExecContext(ctx, `
			DELETE FROM clipboard_items
			WHERE is_favorite = 0 AND id NOT IN (
				SELECT id FROM clipboard_items
				WHERE is_favorite = 0
				ORDER BY created_at DESC, id DESC
				LIMIT ?
			)
		`, maxItems)
		if err != nil {
			return deleted, fmt.Errorf("failed to cleanup excess items: %w", err)
		}
		n, _ := result.RowsAffected()
		deleted += n
	}

	return deleted, nil
}
