package graph

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenHandler(t *testing.T, calls *atomic.Int32, token string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "client_credentials", r.FormValue("grant_type"))
		assert.Equal(t, "test-client-id", r.FormValue("client_id"))
		assert.Equal(t, "test-client-secret", r.FormValue("client_secret"))
		assert.Equal(t, "https://graph.microsoft.com/.default", r.FormValue("scope"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": token,
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}
}

func TestAuthClient_AttachesAndCachesToken(t *testing.T) {
	t.Parallel()

	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(t, &tokenCalls, "test-access-token"))
	mux.HandleFunc("/resource", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-access-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newAuthClient(server.URL+"/token", "test-client-id", "test-client-secret", server.Client())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Get(server.URL + "/resource")
			if err != nil {
				t.Error(err)
				return
			}
			resp.Body.Close()
		}()
	}
	wg.Wait()

	// Concurrent first use may race to fetch, but the token is reused after.
	resp, err := client.Get(server.URL + "/resource")
	require.NoError(t, err)
	resp.Body.Close()
	assert.LessOrEqual(t, tokenCalls.Load(), int32(10))
	before := tokenCalls.Load()

	resp, err = client.Get(server.URL + "/resource")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, before, tokenCalls.Load())
}

func TestAuthClient_TokenEndpointFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_client","error_description":"bad secret"}`))
	}))
	defer server.Close()

	client := newAuthClient(server.URL, "id", "secret", server.Client())
	_, err := client.Get(server.URL + "/resource")
	require.Error(t, err)

	se := transportError(err)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, "invalid_client", se.Code)
}
