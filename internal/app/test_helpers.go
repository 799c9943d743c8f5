package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/specialistvlad/esxigrid/internal/provider/memory"
	"github.com/specialistvlad/esxigrid/internal/state"
	"github.com/stretchr/testify/require"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// TestConfig returns a valid configuration for the in-memory provider with
// state kept in a temporary directory.
func TestConfig(t *testing.T, configPaths ...string) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ConfigPaths = configPaths
	cfg.Provider.Type = ProviderMemory
	cfg.State = StateConfig{Driver: state.DriverSQLite, DSN: filepath.Join(t.TempDir(), "state.db")}
	cfg.LogLevel = "debug"
	return cfg
}

// SetupAppTest creates an App backed by an in-memory provider for system
// testing. The provider is returned so tests can inspect its journal.
func SetupAppTest(t *testing.T, cfg Config, opts ...memory.Option) (*App, *memory.Provider, *SafeBuffer) {
	t.Helper()

	validated, err := NewConfig(cfg)
	require.NoError(t, err)

	logBuffer := &SafeBuffer{}
	p := memory.New(opts...)
	testApp, err := NewApp(context.Background(), logBuffer, validated, WithProvider(p))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = testApp.Close(context.Background())
		if os.Getenv("ESXIGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, p, logBuffer
}
