package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-dns/policyengine/internal/policy/config"
)

func clearPolicyEnv(t *testing.T) {
	t.Helper()
	for _, e := range os.Environ() {
		if len(e) > len("POLICY_") && e[:len("POLICY_")] == "POLICY_" {
			i := 0
			for ; i < len(e) && e[i] != '='; i++ {
			}
			require.NoError(t, os.Unsetenv(e[:i]))
		}
	}
}

func TestBuildApplication_WiresAllComponents(t *testing.T) {
	clearPolicyEnv(t)
	defer clearPolicyEnv(t)

	dbPath := filepath.Join(t.TempDir(), "rules.db")
	require.NoError(t, os.Setenv("POLICY_STORE_PATH", dbPath))
	require.NoError(t, os.Setenv("POLICY_STORE_POOLSIZE", "2"))
	require.NoError(t, os.Setenv("POLICY_BLOOM_CAPACITY", "1000"))

	cfg, err := config.Load()
	require.NoError(t, err)

	app, err := buildApplication(cfg)
	require.NoError(t, err)
	assert.NotNil(t, app.pipeline)
	assert.NotNil(t, app.rewriter)
	assert.NotNil(t, app.refresh)
	assert.False(t, app.store.Degraded())
	require.NoError(t, app.store.Close())
}

func TestApplication_RunServesHealthzAndShutsDownGracefully(t *testing.T) {
	clearPolicyEnv(t)
	defer clearPolicyEnv(t)

	dbPath := filepath.Join(t.TempDir(), "rules.db")
	require.NoError(t, os.Setenv("POLICY_STORE_PATH", dbPath))
	require.NoError(t, os.Setenv("POLICY_STORE_POOLSIZE", "2"))

	cfg, err := config.Load()
	require.NoError(t, err)

	app, err := buildApplication(cfg)
	require.NoError(t, err)

	// Bind to an ephemeral port instead of the fixed default to avoid
	// collisions between parallel test runs.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	app.httpServer.Addr = addr

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- app.Run(ctx) }()

	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err = http.Get(fmt.Sprintf("http://%s/healthz", addr))
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("application failed to shut down within timeout")
	}
}
