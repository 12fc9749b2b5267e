package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrNoItem indicates no row matched a (name, version) key.
var ErrNoItem = errors.New("no such item")

// NewItem carries the caller-supplied fields of an item insert. Timestamp
// and status are assigned by the catalog.
type NewItem struct {
	Name    string
	Version int64
	Source  string
	Archive string
	Size    int64
}

const itemColumns = `name, version, timestamp, status, source, archive, size`

// InsertItem records a freshly written blob with status Archived and the
// current time.
func (c *Catalog) InsertItem(ctx context.Context, in NewItem) (Item, error) {
	item := Item{
		Name:      in.Name,
		Version:   in.Version,
		Timestamp: c.now().UTC(),
		Status:    StatusArchived,
		Source:    in.Source,
		Archive:   in.Archive,
		Size:      in.Size,
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return Item{}, fmt.Errorf("insert item: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		item.Name,
		item.Version,
		formatTime(item.Timestamp),
		string(item.Status),
		item.Source,
		item.Archive,
		item.Size,
	)
	if err != nil {
		return Item{}, fmt.Errorf("insert item %s: %w", item.Archive, err)
	}

	if err := tx.Commit(); err != nil {
		return Item{}, fmt.Errorf("insert item: commit: %w", err)
	}
	return item, nil
}

// ListItems returns every item, oldest first.
func (c *Catalog) ListItems(ctx context.Context) ([]Item, error) {
	return c.queryItems(ctx, `
		SELECT `+itemColumns+` FROM items
		ORDER BY timestamp ASC, rowid ASC
	`)
}

// ListArchived returns the items with status Archived, oldest first.
func (c *Catalog) ListArchived(ctx context.Context) ([]Item, error) {
	return c.queryItems(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE status = ?
		ORDER BY timestamp ASC, rowid ASC
	`, string(StatusArchived))
}

// FindArchived returns the Archived items named name. A nil version matches
// every version.
func (c *Catalog) FindArchived(ctx context.Context, name string, version *int64) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE status = ? AND name = ?`
	args := []any{string(StatusArchived), name}
	if version != nil {
		query += ` AND version = ?`
		args = append(args, *version)
	}
	query += ` ORDER BY version ASC`
	return c.queryItems(ctx, query, args...)
}

// MarkStatus sets the status of one item.
func (c *Catalog) MarkStatus(ctx context.Context, name string, version int64, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("mark status: invalid status %q", status)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mark status: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE items SET status = ? WHERE name = ? AND version = ?`,
		string(status), name, version,
	)
	if err != nil {
		return fmt.Errorf("mark status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark status: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("mark status %s version %d: %w", name, version, ErrNoItem)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mark status: commit: %w", err)
	}
	return nil
}

// MarkDeleted sets status Deleted on every item whose archive is listed, in
// a single transaction. Items are addressed by archive because it is unique.
func (c *Catalog) MarkDeleted(ctx context.Context, archives []string) error {
	if len(archives) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mark deleted: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE items SET status = ? WHERE archive = ?`)
	if err != nil {
		return fmt.Errorf("mark deleted: prepare: %w", err)
	}
	defer stmt.Close()

	for _, archive := range archives {
		if _, err := stmt.ExecContext(ctx, string(StatusDeleted), archive); err != nil {
			return fmt.Errorf("mark deleted %s: %w", archive, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mark deleted: commit: %w", err)
	}
	return nil
}

func (c *Catalog) queryItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func scanItem(rows *sql.Rows) (Item, error) {
	var (
		item   Item
		ts     string
		status string
	)
	if err := rows.Scan(&item.Name, &item.Version, &ts, &status, &item.Source, &item.Archive, &item.Size); err != nil {
		return Item{}, fmt.Errorf("scan item: %w", err)
	}

	t, err := parseTime(strings.TrimSpace(ts))
	if err != nil {
		return Item{}, fmt.Errorf("scan item %s: %w", item.Archive, err)
	}
	item.Timestamp = t
	item.Status = Status(status)
	return item, nil
}
