package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/mcdev12/gavel/go/internal/auction/rpc"
	"github.com/mcdev12/gavel/go/internal/config"
)

func newTestServer(t *testing.T, backend string) (*httptest.Server, *Services) {
	t.Helper()
	dir := t.TempDir()
	seed := filepath.Join(dir, "seed.yaml")
	assert.NoError(t, os.WriteFile(seed, []byte(`
items:
  - name: S. Gill
    role: Batsman
    base_price: 100
bidders:
  - name: Gujarat
    budget: 2000
`), 0o600))

	cfg := config.Default()
	cfg.Store.Backend = backend
	cfg.Store.SeedFile = seed
	cfg.Store.SQLitePath = filepath.Join(dir, "gavel.db")

	ctx, cancel := context.WithCancel(context.Background())
	st, err := setupStore(ctx, &cfg)
	assert.NoError(t, err)

	services, err := setupServices(ctx, &cfg, st)
	assert.NoError(t, err)
	services.run(ctx)

	server := httptest.NewServer(setupServer(&cfg, services, st).Handler)
	t.Cleanup(func() {
		server.Close()
		cancel()
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer closeCancel()
		services.close(closeCtx)
		_ = st.close()
	})
	return server, services
}

func TestServerWiring(t *testing.T) {
	for _, backend := range []string{config.BackendMemory, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			server, _ := newTestServer(t, backend)
			ctx := context.Background()

			resp, err := http.Get(server.URL + "/health")
			assert.NoError(t, err)
			var health healthResponse
			assert.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
			resp.Body.Close()
			check.Equal(t, http.StatusOK, resp.StatusCode)
			check.Equal(t, "ok", health.Status)
			check.Equal(t, "IDLE", health.Phase)

			client := rpc.NewClient(http.DefaultClient, server.URL)
			phase, err := client.Start(ctx)
			assert.NoError(t, err)
			check.Equal(t, "WAITING", phase)

			phase, err = client.ForceNext(ctx)
			assert.NoError(t, err)
			check.Equal(t, "BIDDING", phase)

			status, err := client.GetStatus(ctx)
			assert.NoError(t, err)
			assert.NotNil(t, status.CurrentItem)
			check.Equal(t, "S. Gill", status.CurrentItem.Name)

			resp, err = http.Get(server.URL + "/metrics")
			assert.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			assert.NoError(t, err)
			check.True(t, strings.Contains(string(body), "go_goroutines"))
			check.True(t, strings.Contains(string(body), "gavel_broadcast_dropped_events"))
		})
	}
}

func TestUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = "redis"
	_, err := setupStore(context.Background(), &cfg)
	check.Error(t, err)
}
