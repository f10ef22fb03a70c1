package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, repo *memoryRepo) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(slog.Default(), newTestService(repo), validator.New()).MountRoutes(r)
	return r
}

// LOT strings contain slashes, so the lookup endpoint must accept them both
// raw and percent-encoded.
func TestLotLookupRoute(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	_, _, err := svc.CreateOrMergeRoast(context.Background(), CreateRoastInput{
		ProductID: 1, Level: "V", RoastDate: day(2025, time.November, 5),
		GreenWeightG: 1000, RoastedWeightG: 850,
	})
	require.NoError(t, err)
	router := newTestRouter(t, repo)

	for _, path := range []string{"/lots/V/2025NOV05/1", "/lots/V%2F2025NOV05%2F1"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)

		var body struct {
			Components struct {
				Sequence int
			} `json:"components"`
			Batch *RoastBatch `json:"batch"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, 1, body.Components.Sequence, path)
		require.NotNil(t, body.Batch, path)
		require.Equal(t, "V/2025NOV05/1", body.Batch.Lot)
	}
}

func TestLotLookupUnknownShape(t *testing.T) {
	router := newTestRouter(t, newMemoryRepo())

	req := httptest.NewRequest(http.MethodGet, "/lots/XX/notalot", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
