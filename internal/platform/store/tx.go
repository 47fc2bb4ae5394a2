package store

import (
	"context"
	"fmt"
)

// Tx groups reads and writes across collections into one atomic unit.
// Change notifications for touched tables fire only after commit.
type Tx struct {
	runner  runner
	touched map[string]struct{}
}

// WithTx executes fn inside a transaction. Any error from fn rolls the
// whole transaction back; nothing is partially applied across tables.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}

	defer func() {
		_ = sqlTx.Rollback()
	}()

	tx := &Tx{runner: sqlTx, touched: make(map[string]struct{})}
	if err := fn(tx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("store: commit tx: %w", err)
	}

	if len(tx.touched) > 0 {
		tables := make([]string, 0, len(tx.touched))
		for table := range tx.touched {
			tables = append(tables, table)
		}
		s.broker.Publish(tables)
	}
	return nil
}

func (t *Tx) touch(c Collection) {
	t.touched[c.Table] = struct{}{}
}

// Get returns the document with the given id.
func (t *Tx) Get(ctx context.Context, c Collection, id string) (Doc, error) {
	return getDoc(ctx, t.runner, c, id)
}

// List returns documents matching the query.
func (t *Tx) List(ctx context.Context, c Collection, q Query) ([]Doc, error) {
	return listDocs(ctx, t.runner, c, q)
}

// Insert writes a new document.
func (t *Tx) Insert(ctx context.Context, c Collection, doc Doc) error {
	if err := insertDoc(ctx, t.runner, c, doc); err != nil {
		return err
	}
	t.touch(c)
	return nil
}

// Update replaces an existing document.
func (t *Tx) Update(ctx context.Context, c Collection, doc Doc) error {
	if err := updateDoc(ctx, t.runner, c, doc); err != nil {
		return err
	}
	t.touch(c)
	return nil
}

// Patch merges top-level keys into an existing document.
func (t *Tx) Patch(ctx context.Context, c Collection, id string, patch Doc) (Doc, error) {
	doc, err := patchDoc(ctx, t.runner, c, id, patch)
	if err != nil {
		return nil, err
	}
	t.touch(c)
	return doc, nil
}

// Delete removes a document permanently.
func (t *Tx) Delete(ctx context.Context, c Collection, id string) error {
	if err := deleteDoc(ctx, t.runner, c, id); err != nil {
		return err
	}
	t.touch(c)
	return nil
}
