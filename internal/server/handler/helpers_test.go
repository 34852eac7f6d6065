package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

func TestWriteErrorWithholdsServerDetail(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	tests := []struct {
		name      string
		err       error
		status    int
		kind      string
		wantError string
	}{
		{
			name: "settlement",
			err: fmt.Errorf("marketplace: buy item 3: %w", errors.Join(domain.ErrSettlement,
				errors.New("record sale 7f1c: pq: connection refused to 10.0.4.12:5432"))),
			status:    http.StatusInternalServerError,
			kind:      "settlement_failed",
			wantError: "Internal Server Error",
		},
		{
			name:      "unclassified",
			err:       errors.New("dial tcp 10.0.4.12:6379: i/o timeout"),
			status:    http.StatusInternalServerError,
			kind:      "internal",
			wantError: "Internal Server Error",
		},
		{
			name:      "client error keeps text",
			err:       fmt.Errorf("listing 9: %w", domain.ErrNotFound),
			status:    http.StatusNotFound,
			kind:      "not_found",
			wantError: "listing 9: not found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/api/listings/9", nil), logger, tt.err)

			require.Equal(t, tt.status, rec.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.kind, body.Kind)
			assert.Equal(t, tt.wantError, body.Error)
		})
	}
}
