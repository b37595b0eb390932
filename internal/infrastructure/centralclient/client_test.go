package centralclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jhoicas/pos-multitienda/internal/application/dto"
	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope() *entity.SyncEnvelope {
	ops := []entity.Operation{{ID: "op-1", Type: entity.OpSale, StoreID: "E", ActorID: "u", ClientKey: "k1"}}
	hash, _ := entity.HashOperations(ops)
	return &entity.SyncEnvelope{ID: "env-1", EdgeStoreID: "E", Sequence: 4, Operations: ops, Hash: hash, ProducedAt: time.Now().UTC()}
}

func serve(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "edge-token", 5*time.Second)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestSend_Accepted(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, envelopesPath, r.URL.Path)
		assert.Equal(t, "Bearer edge-token", r.Header.Get("Authorization"))

		var req dto.EnvelopeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(4), req.Sequence)
		assert.Len(t, req.Operations, 1)

		writeJSON(w, http.StatusOK, dto.IngestResponse{
			Accepted:             true,
			LastAcceptedSequence: 4,
			Conflicts:            []dto.ConflictDTO{{OperationIndex: 0, OperationID: "op-1", Reason: entity.ConflictStockShort, Resolution: entity.ResolutionRejected}},
			BackoffHint:          3,
		})
	})

	res, err := c.Send(context.Background(), envelope())
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, int64(4), res.LastAcceptedSequence)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, entity.ConflictStockShort, res.Conflicts[0].Reason)
	assert.Equal(t, 3, res.BackoffHint)
}

func TestSend_OutOfOrderCarriesCursor(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{
			Code:    string(domain.KindOutOfOrder),
			Message: "se esperaba 3",
			Details: dto.IngestResponse{LastAcceptedSequence: 2},
		})
	})

	res, err := c.Send(context.Background(), envelope())
	assert.ErrorIs(t, err, domain.ErrOutOfOrder)
	require.NotNil(t, res)
	assert.Equal(t, int64(2), res.LastAcceptedSequence)
}

func TestSend_OverloadedUsesRetryAfter(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "9")
		writeJSON(w, http.StatusServiceUnavailable, dto.ErrorResponse{Code: string(domain.KindOverloaded), Message: "saturado"})
	})

	res, err := c.Send(context.Background(), envelope())
	assert.ErrorIs(t, err, domain.ErrOverloaded)
	require.NotNil(t, res)
	assert.Equal(t, 9, res.BackoffHint)
}

func TestSend_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   domain.Kind
		want   error
	}{
		{"corrupt", http.StatusBadRequest, domain.KindCorruptEnvelope, domain.ErrCorruptEnvelope},
		{"unauthorized", http.StatusUnauthorized, domain.KindUnauthorized, domain.ErrUnauthorized},
		{"forbidden", http.StatusForbidden, domain.KindForbidden, domain.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := serve(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, dto.ErrorResponse{Code: string(tt.code), Message: tt.name})
			})
			_, err := c.Send(context.Background(), envelope())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSend_NonJSONFailure(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	res, err := c.Send(context.Background(), envelope())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "502")
}
