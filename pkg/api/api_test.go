package api

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/paystream-hq/paystreamer/pkg/engine"
	"github.com/paystream-hq/paystreamer/pkg/events"
	"github.com/paystream-hq/paystreamer/pkg/ledger"
	"github.com/paystream-hq/paystreamer/pkg/models"
	"github.com/paystream-hq/paystreamer/pkg/registry"
	"github.com/paystream-hq/paystreamer/pkg/store"
	"github.com/paystream-hq/paystreamer/pkg/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	apiWallet    = "0x1111111111111111111111111111111111111111"
	apiRecipient = "0xaaaa000000000000000000000000000000000000"
)

func newTestRouter(t *testing.T) (*gin.Engine, *wallet.SimProvider) {
	t.Helper()
	sim := wallet.NewSimProvider()
	eng := engine.New(store.New(), ledger.New(), registry.New(), sim, events.NewBus(),
		engine.SystemClock(), engine.DefaultParams(), nil)
	srv := NewServer(eng, nil, nil, Config{Port: "0"}, nil)
	return srv.buildRouter(), sim
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func validCreateBody() map[string]interface{} {
	return map[string]interface{}{
		"wallet":     apiWallet,
		"name":       "payroll",
		"recipients": []string{apiRecipient},
		"amounts":    []string{"10"},
		"duration":   "3m",
		"interval":   "1m",
		"policy":     "skip",
	}
}

func TestCreateIntentEndpoint(t *testing.T) {
	router, sim := newTestRouter(t)
	sim.Fund(common.HexToAddress(apiWallet), models.NativeAsset, big.NewInt(100))

	w := doJSON(router, http.MethodPost, "/api/v1/intents", validCreateBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["id"])
	assert.Equal(t, "active", resp["status"])
	assert.Equal(t, float64(3), resp["total_executions"])
	assert.Equal(t, "30", resp["remaining_commitment"])
}

func TestCreateIntentEndpointErrors(t *testing.T) {
	router, sim := newTestRouter(t)
	sim.Fund(common.HexToAddress(apiWallet), models.NativeAsset, big.NewInt(100))

	tests := []struct {
		name     string
		mutate   func(map[string]interface{})
		wantCode int
	}{
		{
			name:     "Missing required field",
			mutate:   func(b map[string]interface{}) { delete(b, "policy") },
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "Bad wallet address",
			mutate:   func(b map[string]interface{}) { b["wallet"] = "not-an-address" },
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "Bad amount",
			mutate:   func(b map[string]interface{}) { b["amounts"] = []string{"ten"} },
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "Interval below minimum",
			mutate:   func(b map[string]interface{}) { b["interval"] = "1s" },
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "Unknown policy",
			mutate:   func(b map[string]interface{}) { b["policy"] = "maybe" },
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "Insufficient funds",
			mutate:   func(b map[string]interface{}) { b["amounts"] = []string{"1000"} },
			wantCode: http.StatusUnprocessableEntity,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := validCreateBody()
			tc.mutate(body)
			w := doJSON(router, http.MethodPost, "/api/v1/intents", body)
			assert.Equal(t, tc.wantCode, w.Code, w.Body.String())
		})
	}
}

func TestGetAndListIntents(t *testing.T) {
	router, sim := newTestRouter(t)
	sim.Fund(common.HexToAddress(apiWallet), models.NativeAsset, big.NewInt(100))

	w := doJSON(router, http.MethodPost, "/api/v1/intents", validCreateBody())
	require.Equal(t, http.StatusCreated, w.Code)
	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	id := created["id"].(string)

	w = doJSON(router, http.MethodGet, "/api/v1/intents/"+id+"?wallet="+apiWallet, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Unknown id
	w = doJSON(router, http.MethodGet, "/api/v1/intents/0xdead?wallet="+apiWallet, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// List
	w = doJSON(router, http.MethodGet, "/api/v1/intents?wallet="+apiWallet, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, float64(1), list["total_count"])

	// Missing wallet parameter
	w = doJSON(router, http.MethodGet, "/api/v1/intents", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelIntentEndpoint(t *testing.T) {
	router, sim := newTestRouter(t)
	sim.Fund(common.HexToAddress(apiWallet), models.NativeAsset, big.NewInt(100))

	w := doJSON(router, http.MethodPost, "/api/v1/intents", validCreateBody())
	require.Equal(t, http.StatusCreated, w.Code)
	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	id := created["id"].(string)

	w = doJSON(router, http.MethodDelete, "/api/v1/intents/"+id+"?wallet="+apiWallet, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "30", resp["refunded"])

	// Double cancel conflicts
	w = doJSON(router, http.MethodDelete, "/api/v1/intents/"+id+"?wallet="+apiWallet, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCheckAndPerformEndpoints(t *testing.T) {
	router, sim := newTestRouter(t)
	sim.Fund(common.HexToAddress(apiWallet), models.NativeAsset, big.NewInt(100))

	// Nothing due yet
	w := doJSON(router, http.MethodGet, "/api/v1/check", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var check map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &check))
	assert.Equal(t, false, check["due"])

	w = doJSON(router, http.MethodPost, "/api/v1/intents", validCreateBody())
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/check", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &check))
	require.Equal(t, true, check["due"])

	w = doJSON(router, http.MethodPost, "/api/v1/perform", map[string]string{
		"wallet":    check["wallet"].(string),
		"intent_id": check["intent_id"].(string),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var perform map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &perform))
	assert.Equal(t, float64(0), perform["execution_index"])
	assert.Equal(t, "10", perform["total_amount"])

	// Immediately performing again conflicts: the round was taken
	w = doJSON(router, http.MethodPost, "/api/v1/perform", map[string]string{
		"wallet":    check["wallet"].(string),
		"intent_id": check["intent_id"].(string),
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCommittedEndpoint(t *testing.T) {
	router, sim := newTestRouter(t)
	sim.Fund(common.HexToAddress(apiWallet), models.NativeAsset, big.NewInt(100))

	w := doJSON(router, http.MethodPost, "/api/v1/intents", validCreateBody())
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/wallets/"+apiWallet+"/committed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "30", resp["committed"])
}

func TestOperationalEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// History endpoints need the indexer
	w = doJSON(router, http.MethodGet, "/api/v1/intents/0xabc/executions", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestOwnerAuth(t *testing.T) {
	sim := wallet.NewSimProvider()
	sim.Fund(common.HexToAddress(apiWallet), models.NativeAsset, big.NewInt(100))
	eng := engine.New(store.New(), ledger.New(), registry.New(), sim, events.NewBus(),
		engine.SystemClock(), engine.DefaultParams(), nil)
	srv := NewServer(eng, nil, nil, Config{Port: "0", OwnerAPIKey: "owner-secret"}, nil)
	router := srv.buildRouter()

	doAuthed := func(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			_ = json.NewEncoder(&buf).Encode(body)
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	// Owner routes reject unauthenticated callers
	w := doAuthed(http.MethodPost, "/api/v1/intents", validCreateBody(), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Read and keeper routes stay open: triggering is permissionless
	w = doAuthed(http.MethodGet, "/api/v1/intents?wallet="+apiWallet, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = doAuthed(http.MethodGet, "/api/v1/check", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doAuthed(http.MethodPost, "/api/v1/intents", validCreateBody(), "owner-secret")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	id := created["id"].(string)

	w = doAuthed(http.MethodDelete, "/api/v1/intents/"+id+"?wallet="+apiWallet, nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doAuthed(http.MethodDelete, "/api/v1/intents/"+id+"?wallet="+apiWallet, nil, "owner-secret")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsAuth(t *testing.T) {
	sim := wallet.NewSimProvider()
	eng := engine.New(store.New(), ledger.New(), registry.New(), sim, events.NewBus(),
		engine.SystemClock(), engine.DefaultParams(), nil)
	srv := NewServer(eng, nil, nil, Config{Port: "0", MetricsAPIKey: "secret"}, nil)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
