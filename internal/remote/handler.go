package remote

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kesspos/kesspos/internal/platform/httpx"
	"github.com/kesspos/kesspos/internal/syncer"
)

// Applier abstracts the repository for the handler.
type Applier interface {
	Apply(ctx context.Context, batch syncer.Batch) error
}

// Handler accepts sync batches from POS clients.
type Handler struct {
	logger *slog.Logger
	repo   Applier
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, repo Applier) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, repo: repo}
}

// MountRoutes registers the sync endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/v1/sync", h.acceptBatch)
}

func (h *Handler) acceptBatch(w http.ResponseWriter, r *http.Request) {
	var batch syncer.Batch
	if err := httpx.DecodeJSON(r, &batch); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if batch.CompanyID == "" || batch.PosID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "batch requires companyId and posId")
		return
	}

	// Tenant isolation: a batch may only carry records stamped with its
	// own scope.
	for kind, docs := range batch.Changes {
		for _, doc := range docs {
			companyID, _ := doc["companyId"].(string)
			posID, _ := doc["posId"].(string)
			if companyID != batch.CompanyID || posID != batch.PosID {
				httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Operation",
					"record scope does not match batch scope in "+kind)
				return
			}
		}
	}

	if err := h.repo.Apply(r.Context(), batch); err != nil {
		h.logger.Error("apply batch", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
