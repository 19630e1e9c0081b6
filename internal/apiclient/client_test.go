package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_RetriesTransientServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(Account{ID: "acct-1"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	acct, err := c.GetAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", acct.ID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_JWTFailureTriggersResyncAndRetriesOnce(t *testing.T) {
	var calls int32
	var healthCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/public/v1/health" {
			atomic.AddInt32(&healthCalls, 1)
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(HealthResponse{Status: "ok", TimestampUTC: time.Now()})
			return
		}
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(ErrorResponse{Message: "expired jwt"})
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(Account{ID: "acct-1"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.SetAccountJWT("stale")
	acct, err := c.GetAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", acct.ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&healthCalls), "clock resync must fire exactly once")
}

func TestClient_JWTFailureRetryBudgetIsPerCall(t *testing.T) {
	// A second call after a first JWT failure gets its own fresh retry
	// budget (spec §9: "reset per call, not shared mutable state").
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/public/v1/health" {
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
			return
		}
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(ErrorResponse{Message: "still expired"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err1 := c.GetAccount(context.Background(), "acct-1")
	require.Error(t, err1)
	_, err2 := c.GetAccount(context.Background(), "acct-1")
	require.Error(t, err2)

	// Each call retries once on top of its initial attempt: 2 calls * 2
	// attempts = 4.
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestClient_SetStaticAddressesSwapsBaseURLAtomically(t *testing.T) {
	var hitOld, hitNew int32
	oldSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hitOld, 1)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(HealthResponse{Status: "old"})
	}))
	defer oldSrv.Close()
	newSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hitNew, 1)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(HealthResponse{Status: "new"})
	}))
	defer newSrv.Close()

	c := New(oldSrv.URL)
	_, err := c.Health(context.Background())
	require.NoError(t, err)

	c.SetStaticAddresses(newSrv.URL)
	_, err = c.Health(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hitOld))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hitNew))
}

func TestClient_NonTransientErrorSurfacesVpnApiError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(ErrorResponse{Message: "no such account", MessageID: "acct.not_found"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.GetAccount(context.Background(), "missing")
	require.Error(t, err)
	var apiErr *VpnApiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "acct.not_found", apiErr.Body.MessageID)
}
