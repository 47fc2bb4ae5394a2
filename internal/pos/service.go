package pos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kesspos/kesspos/internal/observability"
	"github.com/kesspos/kesspos/internal/platform/store"
	"github.com/kesspos/kesspos/internal/session"
)

// Signaler is notified after every successful local mutation so the sync
// engine can schedule a flush. No network I/O happens on this path.
type Signaler interface {
	Signal()
}

// Service is the single write path for all entity kinds: generic
// lifecycle operations here, cross-entity invariants in the mutators.
// Presentation code never writes to the store directly.
type Service struct {
	store   *store.Store
	signal  Signaler
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   func() time.Time
}

// NewService builds the service. signal and metrics may be nil.
func NewService(st *store.Store, signal Signaler, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   st,
		signal:  signal,
		logger:  logger,
		metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Store exposes the underlying local store for read-side helpers.
func (s *Service) Store() *store.Store {
	return s.store
}

func (s *Service) fireSignal() {
	if s.signal != nil {
		s.signal.Signal()
	}
}

func (s *Service) observeMutation(kind Kind, op string) {
	if s.metrics != nil {
		s.metrics.RecordMutation(string(kind), op)
	}
}

// stamp writes the sync envelope onto a fresh document.
func stamp(doc store.Doc, id string, scope session.Scope, now string) {
	doc["id"] = id
	doc["companyId"] = scope.CompanyID
	doc["posId"] = scope.PosID
	doc["createdAt"] = now
	doc["updatedAt"] = now
	doc["syncStatus"] = string(SyncPending)
	delete(doc, "_deleted")
}

// normalize enforces kind-level invariants on a document about to be
// written.
func normalize(kind Kind, doc store.Doc) {
	switch kind {
	case KindProducts:
		// Services never hold stock or carry a barcode.
		if t, _ := doc["type"].(string); t == string(ProductTypeService) {
			doc["stock"] = 0
			doc["barcode"] = ""
		}
	case KindStockMovements:
		doc["movementId"] = doc["id"]
	case KindCreditPayments:
		doc["paymentId"] = doc["id"]
	}
}

func scopeMatches(doc store.Doc, scope session.Scope) bool {
	companyID, _ := doc["companyId"].(string)
	posID, _ := doc["posId"].(string)
	return companyID == scope.CompanyID && posID == scope.PosID
}

// Create persists a new entity of the given kind, stamped with the tenant
// scope, fresh timestamps and pending sync status, then signals the sync
// engine. Returns the generated id.
func (s *Service) Create(ctx context.Context, scope session.Scope, kind Kind, payload any) (string, error) {
	if !scope.Valid() {
		return "", session.ErrSessionInvalid
	}
	if _, ok := kindSpecs[kind]; !ok {
		return "", fmt.Errorf("%w: unknown entity kind %q", ErrInvalidOperation, kind)
	}

	doc, err := toDoc(payload)
	if err != nil {
		return "", err
	}

	now := s.clock()
	id := newID(kind, now)
	stamp(doc, id, scope, formatTime(now))
	normalize(kind, doc)

	if err := s.store.Insert(ctx, kind.Collection(), doc); err != nil {
		return "", err
	}

	s.observeMutation(kind, "create")
	s.fireSignal()
	return id, nil
}

// immutableKeys are envelope fields a patch may never change.
var immutableKeys = []string{"id", "companyId", "posId", "createdAt", "movementId", "paymentId"}

// Update merges a patch into an existing entity, refreshes updatedAt,
// marks the record pending and signals the sync engine.
func (s *Service) Update(ctx context.Context, scope session.Scope, kind Kind, id string, patch store.Doc) error {
	if !scope.Valid() {
		return session.ErrSessionInvalid
	}
	if _, ok := kindSpecs[kind]; !ok {
		return fmt.Errorf("%w: unknown entity kind %q", ErrInvalidOperation, kind)
	}
	for _, key := range immutableKeys {
		if _, ok := patch[key]; ok {
			return fmt.Errorf("%w: field %q is immutable", ErrInvalidOperation, key)
		}
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		return s.applyPatch(ctx, tx, scope, kind, id, patch)
	})
	if err != nil {
		return err
	}

	s.observeMutation(kind, "update")
	s.fireSignal()
	return nil
}

// applyPatch is the shared patch path used by Update and the
// transactional mutators. It assumes immutable keys were already checked.
func (s *Service) applyPatch(ctx context.Context, tx *store.Tx, scope session.Scope, kind Kind, id string, patch store.Doc) error {
	doc, err := tx.Get(ctx, kind.Collection(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s %s", ErrEntityNotFound, kind, id)
		}
		return err
	}
	if !scopeMatches(doc, scope) {
		// A record from another tenant is indistinguishable from a
		// missing one.
		return fmt.Errorf("%w: %s %s", ErrEntityNotFound, kind, id)
	}

	for k, v := range patch {
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}
	doc["updatedAt"] = formatTime(s.clock())
	doc["syncStatus"] = string(SyncPending)
	normalize(kind, doc)

	return tx.Update(ctx, kind.Collection(), doc)
}

// Delete soft-deletes an entity: the record stays local, flagged, until a
// successful flush confirms the remote accepted the deletion.
func (s *Service) Delete(ctx context.Context, scope session.Scope, kind Kind, id string) error {
	return s.Update(ctx, scope, kind, id, store.Doc{"_deleted": true})
}
