package pos

import (
	"context"
	"log/slog"

	"github.com/kesspos/kesspos/internal/platform/store"
	"github.com/kesspos/kesspos/internal/session"
)

// List returns the live (non-deleted) records of one kind under the given
// scope, newest first.
func (s *Service) List(ctx context.Context, scope session.Scope, kind Kind) ([]store.Doc, error) {
	if !scope.Valid() {
		return nil, session.ErrSessionInvalid
	}
	if _, ok := kindSpecs[kind]; !ok {
		return nil, ErrInvalidOperation
	}
	return s.store.List(ctx, kind.Collection(), store.Query{
		CompanyID: scope.CompanyID,
		PosID:     scope.PosID,
		OrderBy:   "created_at",
		Desc:      true,
	})
}

// Watch returns a channel that carries the current scoped snapshot of one
// kind and re-emits it whenever the underlying collection changes. The
// scope is captured once, at subscription time. The channel closes when
// ctx is done.
func (s *Service) Watch(ctx context.Context, scope session.Scope, kind Kind) (<-chan []store.Doc, error) {
	if !scope.Valid() {
		return nil, session.ErrSessionInvalid
	}
	if _, ok := kindSpecs[kind]; !ok {
		return nil, ErrInvalidOperation
	}

	sub := s.store.Subscribe(kind.Collection().Table)
	out := make(chan []store.Doc, 1)

	emit := func() {
		docs, err := s.List(ctx, scope, kind)
		if err != nil {
			s.logger.Warn("live query re-evaluation failed",
				slog.String("kind", string(kind)), slog.Any("error", err))
			return
		}
		// Replace a stale pending snapshot rather than queueing behind it.
		select {
		case <-out:
		default:
		}
		out <- docs
	}

	emit()
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.C:
				emit()
			}
		}
	}()
	return out, nil
}
