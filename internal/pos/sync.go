package pos

import (
	"context"
	"errors"

	"github.com/kesspos/kesspos/internal/platform/store"
	"github.com/kesspos/kesspos/internal/session"
)

// Pending gathers every record awaiting synchronization under the given
// scope, grouped by kind. Soft-deleted records are included: the deletion
// itself is the change being pushed.
func (s *Service) Pending(ctx context.Context, scope session.Scope) (map[string][]store.Doc, error) {
	if !scope.Valid() {
		return nil, session.ErrSessionInvalid
	}

	out := make(map[string][]store.Doc)
	for _, kind := range Kinds() {
		docs, err := s.store.List(ctx, kind.Collection(), store.Query{
			CompanyID:      scope.CompanyID,
			PosID:          scope.PosID,
			PendingOnly:    true,
			IncludeDeleted: true,
			OrderBy:        "created_at",
		})
		if err != nil {
			return nil, err
		}
		if len(docs) > 0 {
			out[string(kind)] = docs
		}
	}
	return out, nil
}

// Reconcile applies a successful flush in one transaction: soft-deleted
// records the remote acknowledged are purged for good, everything else
// flips to synced. A record mutated again while the push was in flight
// keeps its pending status (detected by a changed updatedAt) so the next
// flush picks it up.
func (s *Service) Reconcile(ctx context.Context, scope session.Scope, flushed map[string][]store.Doc) error {
	if !scope.Valid() {
		return session.ErrSessionInvalid
	}

	return s.store.WithTx(ctx, func(tx *store.Tx) error {
		for kindName, docs := range flushed {
			kind, err := ParseKind(kindName)
			if err != nil {
				return err
			}
			for _, pushed := range docs {
				id, _ := pushed["id"].(string)
				if id == "" {
					continue
				}
				current, err := tx.Get(ctx, kind.Collection(), id)
				if err != nil {
					if errors.Is(err, store.ErrNotFound) && docBoolValue(pushed, "_deleted") {
						continue
					}
					return err
				}
				if current["updatedAt"] != pushed["updatedAt"] {
					// Mutated again while the push was in flight. Applies
					// to deletions too: a record restored mid-flight must
					// not be purged on the stale snapshot's behalf.
					continue
				}
				if docBoolValue(pushed, "_deleted") {
					if err := tx.Delete(ctx, kind.Collection(), id); err != nil {
						return err
					}
					continue
				}
				if _, err := tx.Patch(ctx, kind.Collection(), id, store.Doc{"syncStatus": string(SyncSynced)}); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
