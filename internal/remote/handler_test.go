package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/kesspos/kesspos/internal/syncer"
)

type fakeApplier struct {
	batches []syncer.Batch
	err     error
}

func (f *fakeApplier) Apply(ctx context.Context, batch syncer.Batch) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, batch)
	return nil
}

func newTestRouter(applier *fakeApplier) *chi.Mux {
	router := chi.NewRouter()
	NewHandler(nil, applier).MountRoutes(router)
	return router
}

func postBatch(t *testing.T, router http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch v := body.(type) {
	case string:
		buf.WriteString(v)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(v))
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/sync", &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAcceptBatch(t *testing.T) {
	applier := &fakeApplier{}
	router := newTestRouter(applier)

	rec := postBatch(t, router, syncer.Batch{
		CompanyID: "comp_a",
		PosID:     "pos_a",
		Changes: map[string][]map[string]any{
			"products": {
				{"id": "prod_1", "companyId": "comp_a", "posId": "pos_a"},
			},
		},
	})
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, applier.batches, 1)
	require.Equal(t, "comp_a", applier.batches[0].CompanyID)
}

func TestAcceptBatchRequiresScope(t *testing.T) {
	router := newTestRouter(&fakeApplier{})

	rec := postBatch(t, router, syncer.Batch{PosID: "pos_a"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postBatch(t, router, "{not json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcceptBatchRejectsForeignRecords(t *testing.T) {
	applier := &fakeApplier{}
	router := newTestRouter(applier)

	rec := postBatch(t, router, syncer.Batch{
		CompanyID: "comp_a",
		PosID:     "pos_a",
		Changes: map[string][]map[string]any{
			"products": {
				{"id": "prod_1", "companyId": "comp_b", "posId": "pos_b"},
			},
		},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Empty(t, applier.batches)
}

func TestAcceptBatchApplyFailure(t *testing.T) {
	router := newTestRouter(&fakeApplier{err: errors.New("pg down")})

	rec := postBatch(t, router, syncer.Batch{
		CompanyID: "comp_a",
		PosID:     "pos_a",
		Changes: map[string][]map[string]any{
			"products": {
				{"id": "prod_1", "companyId": "comp_a", "posId": "pos_a"},
			},
		},
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
