package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("store: record not found")

// Doc is a stored JSON document. The envelope keys (id, companyId, posId,
// createdAt, updatedAt, syncStatus, _deleted) are managed by callers and
// mirrored into dedicated columns on write.
type Doc = map[string]any

// Collection describes one logical table.
type Collection struct {
	// Table is the SQLite table name.
	Table string
	// Indexed maps extra indexed columns to the document key they are
	// extracted from on every write.
	Indexed map[string]string
}

// Query filters a List call. CompanyID and PosID are mandatory: every read
// is tenant scoped.
type Query struct {
	CompanyID string
	PosID     string
	// Where filters on indexed columns (column name -> value).
	Where map[string]any
	// IncludeDeleted returns soft-deleted records too.
	IncludeDeleted bool
	// PendingOnly restricts to records awaiting synchronization.
	PendingOnly bool
	OrderBy     string
	Desc        bool
}

// runner abstracts *sql.DB and *sql.Tx.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	keyID         = "id"
	keyCompanyID  = "companyId"
	keyPosID      = "posId"
	keyCreatedAt  = "createdAt"
	keyUpdatedAt  = "updatedAt"
	keySyncStatus = "syncStatus"
	keyDeleted    = "_deleted"
)

func docString(doc Doc, key string) string {
	v, _ := doc[key].(string)
	return v
}

func docBool(doc Doc, key string) bool {
	v, _ := doc[key].(bool)
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// indexedColumns returns the extra columns in a stable order.
func indexedColumns(c Collection) []string {
	cols := make([]string, 0, len(c.Indexed))
	for col := range c.Indexed {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func insertDoc(ctx context.Context, r runner, c Collection, doc Doc) error {
	id := docString(doc, keyID)
	if id == "" {
		return fmt.Errorf("store: insert into %s: missing id", c.Table)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: marshal %s document: %w", c.Table, err)
	}

	cols := []string{"id", "company_id", "pos_id", "created_at", "updated_at", "sync_status", "deleted", "doc"}
	args := []any{
		id,
		docString(doc, keyCompanyID),
		docString(doc, keyPosID),
		docString(doc, keyCreatedAt),
		docString(doc, keyUpdatedAt),
		docString(doc, keySyncStatus),
		boolToInt(docBool(doc, keyDeleted)),
		string(raw),
	}
	for _, col := range indexedColumns(c) {
		cols = append(cols, col)
		args = append(args, doc[c.Indexed[col]])
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", c.Table, strings.Join(cols, ", "), placeholders)
	if _, err := r.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("store: insert into %s: %w", c.Table, err)
	}
	return nil
}

func updateDoc(ctx context.Context, r runner, c Collection, doc Doc) error {
	id := docString(doc, keyID)
	if id == "" {
		return fmt.Errorf("store: update %s: missing id", c.Table)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: marshal %s document: %w", c.Table, err)
	}

	sets := []string{"company_id = ?", "pos_id = ?", "created_at = ?", "updated_at = ?", "sync_status = ?", "deleted = ?", "doc = ?"}
	args := []any{
		docString(doc, keyCompanyID),
		docString(doc, keyPosID),
		docString(doc, keyCreatedAt),
		docString(doc, keyUpdatedAt),
		docString(doc, keySyncStatus),
		boolToInt(docBool(doc, keyDeleted)),
		string(raw),
	}
	for _, col := range indexedColumns(c) {
		sets = append(sets, col+" = ?")
		args = append(args, doc[c.Indexed[col]])
	}
	args = append(args, id)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", c.Table, strings.Join(sets, ", "))
	res, err := r.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("store: update %s: %w", c.Table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update %s: %w", c.Table, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func getDoc(ctx context.Context, r runner, c Collection, id string) (Doc, error) {
	var raw string
	stmt := fmt.Sprintf("SELECT doc FROM %s WHERE id = ?", c.Table)
	if err := r.QueryRowContext(ctx, stmt, id).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get from %s: %w", c.Table, err)
	}
	var doc Doc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("store: decode %s document: %w", c.Table, err)
	}
	return doc, nil
}

// patchDoc merges top-level patch keys into the stored document and
// rewrites the row. A nil patch value removes the key.
func patchDoc(ctx context.Context, r runner, c Collection, id string, patch Doc) (Doc, error) {
	doc, err := getDoc(ctx, r, c, id)
	if err != nil {
		return nil, err
	}
	for k, v := range patch {
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}
	if err := updateDoc(ctx, r, c, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func deleteDoc(ctx context.Context, r runner, c Collection, id string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE id = ?", c.Table)
	res, err := r.ExecContext(ctx, stmt, id)
	if err != nil {
		return fmt.Errorf("store: delete from %s: %w", c.Table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete from %s: %w", c.Table, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func listDocs(ctx context.Context, r runner, c Collection, q Query) ([]Doc, error) {
	if q.CompanyID == "" || q.PosID == "" {
		return nil, fmt.Errorf("store: list %s: tenant scope required", c.Table)
	}

	conds := []string{"company_id = ?", "pos_id = ?"}
	args := []any{q.CompanyID, q.PosID}
	if !q.IncludeDeleted {
		conds = append(conds, "deleted = 0")
	}
	if q.PendingOnly {
		conds = append(conds, "sync_status = 'pending'")
	}

	whereCols := make([]string, 0, len(q.Where))
	for col := range q.Where {
		whereCols = append(whereCols, col)
	}
	sort.Strings(whereCols)
	for _, col := range whereCols {
		if !validColumn(c, col) {
			return nil, fmt.Errorf("store: list %s: unknown filter column %q", c.Table, col)
		}
		conds = append(conds, col+" = ?")
		args = append(args, q.Where[col])
	}

	stmt := fmt.Sprintf("SELECT doc FROM %s WHERE %s", c.Table, strings.Join(conds, " AND "))
	if q.OrderBy != "" {
		if !validColumn(c, q.OrderBy) {
			return nil, fmt.Errorf("store: list %s: unknown order column %q", c.Table, q.OrderBy)
		}
		stmt += " ORDER BY " + q.OrderBy
		if q.Desc {
			stmt += " DESC"
		}
	}

	rows, err := r.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", c.Table, err)
	}
	defer rows.Close()

	var docs []Doc
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: list %s: %w", c.Table, err)
		}
		var doc Doc
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("store: decode %s document: %w", c.Table, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list %s: %w", c.Table, err)
	}
	return docs, nil
}

func validColumn(c Collection, col string) bool {
	switch col {
	case "id", "company_id", "pos_id", "created_at", "updated_at", "sync_status", "deleted":
		return true
	}
	_, ok := c.Indexed[col]
	return ok
}

// Get returns the document with the given id.
func (s *Store) Get(ctx context.Context, c Collection, id string) (Doc, error) {
	return getDoc(ctx, s.db, c, id)
}

// List returns documents matching the query.
func (s *Store) List(ctx context.Context, c Collection, q Query) ([]Doc, error) {
	return listDocs(ctx, s.db, c, q)
}

// Insert writes a new document outside any caller transaction. The single
// statement is atomic on its own; subscribers are notified on success.
func (s *Store) Insert(ctx context.Context, c Collection, doc Doc) error {
	if err := insertDoc(ctx, s.db, c, doc); err != nil {
		return err
	}
	s.broker.Publish([]string{c.Table})
	return nil
}

// Update replaces an existing document.
func (s *Store) Update(ctx context.Context, c Collection, doc Doc) error {
	if err := updateDoc(ctx, s.db, c, doc); err != nil {
		return err
	}
	s.broker.Publish([]string{c.Table})
	return nil
}

// Patch merges top-level keys into an existing document and returns the
// merged result.
func (s *Store) Patch(ctx context.Context, c Collection, id string, patch Doc) (Doc, error) {
	doc, err := patchDoc(ctx, s.db, c, id, patch)
	if err != nil {
		return nil, err
	}
	s.broker.Publish([]string{c.Table})
	return doc, nil
}

// Delete removes a document permanently. Soft deletion is a domain-level
// concern; this is the physical purge used after sync acknowledgement.
func (s *Store) Delete(ctx context.Context, c Collection, id string) error {
	if err := deleteDoc(ctx, s.db, c, id); err != nil {
		return err
	}
	s.broker.Publish([]string{c.Table})
	return nil
}
