package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/specialistvlad/esxigrid/internal/engine"
	"github.com/specialistvlad/esxigrid/internal/provider"
	"github.com/specialistvlad/esxigrid/internal/provider/memory"
	"github.com/specialistvlad/esxigrid/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const poolsHCL = `
resource "esxi_resource_pool" "pool1" {
  name = "pool1"
}

resource "esxi_resource_pool" "pool2" {
  name   = "${resource.esxi_resource_pool.pool1.name}/pool2"
  cpuMin = 200
}
`

func writeHCL(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewConfig(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		cfg := DefaultConfig()
		cfg.Provider.Type = ProviderMemory
		return cfg
	}

	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults with memory provider", mutate: func(*Config) {}},
		{name: "uppercase log level is normalised", mutate: func(c *Config) { c.LogLevel = "DEBUG" }},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "invalid log-format"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "trace" }, wantErr: "invalid log-level"},
		{name: "zero workers", mutate: func(c *Config) { c.Workers = 0 }, wantErr: "workers must be at least 1"},
		{name: "zero timeout", mutate: func(c *Config) { c.CallTimeout = 0 }, wantErr: "call-timeout must be positive"},
		{name: "unknown driver", mutate: func(c *Config) { c.State.Driver = "mysql" }, wantErr: `unknown state driver "mysql"`},
		{name: "postgres needs dsn", mutate: func(c *Config) { c.State = StateConfig{Driver: state.DriverPostgres} }, wantErr: "needs a DSN"},
		{name: "unknown provider", mutate: func(c *Config) { c.Provider.Type = "kvm" }, wantErr: `unknown provider "kvm"`},
		{name: "vsphere needs host", mutate: func(c *Config) { c.Provider.Type = ProviderVSphere }, wantErr: "needs a host"},
		{
			name: "vsphere with credentials",
			mutate: func(c *Config) {
				c.Provider = ProviderConfig{Type: ProviderVSphere, Host: "esxi.local", Port: 443, Username: "root"}
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tc.mutate(&cfg)
			got, err := NewConfig(cfg)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, []string{"debug", "info", "warn", "error"}, got.LogLevel)
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "esxigrid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
config_paths: [infra/]
workers: 8
call_timeout: 90s
provider:
  type: vsphere
  host: esxi01.lab
  insecure: true
state:
  driver: postgres
  dsn: postgres://grid@localhost/grid
`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"infra/"}, cfg.ConfigPaths)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 90*time.Second, cfg.CallTimeout)
	assert.Equal(t, "esxi01.lab", cfg.Provider.Host)
	assert.Equal(t, DefaultESXiPort, cfg.Provider.Port, "unset keys keep their defaults")
	assert.True(t, cfg.Provider.Insecure)
	assert.Equal(t, state.DriverPostgres, cfg.State.Driver)
	assert.Equal(t, "info", cfg.LogLevel)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	defaults, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), defaults)
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"ESXI_HOST":     "esxi02.lab",
		"ESXI_USERNAME": "root",
		"ESXI_PASSWORD": "secret",
		"ESXI_SSL_PORT": "8443",
	}
	getenv := func(k string) string { return env[k] }

	cfg := DefaultConfig()
	cfg.Provider.Username = "admin"
	require.NoError(t, cfg.ApplyEnv(getenv))
	assert.Equal(t, "esxi02.lab", cfg.Provider.Host)
	assert.Equal(t, "admin", cfg.Provider.Username, "explicit values win over the environment")
	assert.Equal(t, "secret", cfg.Provider.Password)
	assert.Equal(t, 8443, cfg.Provider.Port)

	env["ESXI_SSL_PORT"] = "https"
	cfg = DefaultConfig()
	assert.ErrorIs(t, cfg.ApplyEnv(getenv), ErrInvalidConfig)
}

func TestAppUpPreviewDestroy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	a, p, logs := SetupAppTest(t, TestConfig(t, writeHCL(t, poolsHCL)))

	preview, err := a.Preview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, preview.Summary().Created)
	assert.Zero(t, p.Len(), "preview creates nothing")

	res, err := a.Up(ctx)
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.Equal(t, 2, res.Summary().Created)

	pool2, ok := res.Outcome("pool2")
	require.True(t, ok)
	assert.Equal(t, "pool1/pool2", pool2.Outputs["name"].AsString())

	records, err := a.Records(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	again, err := a.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Summary().Unchanged)

	refreshed, err := a.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, refreshed.Summary().Read)

	destroyed, err := a.Destroy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, destroyed.Summary().Deleted)
	assert.Zero(t, p.Len())

	assert.Contains(t, logs.String(), "Logger configured successfully.")
}

func TestAppLoadErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	a, _, _ := SetupAppTest(t, TestConfig(t))
	_, err := a.Up(ctx)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	b, _, _ := SetupAppTest(t, TestConfig(t, writeHCL(t, `resource "esxi_resource_pool" "p" {`)))
	_, err = b.Up(ctx)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	c, p, _ := SetupAppTest(t, TestConfig(t, writeHCL(t, `resource "esxi_virtual_disk" "d" {}`)))
	_, err = c.Up(ctx)
	var cfgErr *engine.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr), "missing required inputs are configuration errors, got %v", err)
	assert.Empty(t, p.Calls())
}

func TestAppRunFailureIsReported(t *testing.T) {
	t.Parallel()

	boom := errors.New("host unreachable")
	a, _, _ := SetupAppTest(t, TestConfig(t, writeHCL(t, poolsHCL)), memory.WithFailure(func(c memory.Call) error {
		if c.Operation == provider.OpCreate {
			return boom
		}
		return nil
	}))

	res, err := a.Up(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, res, "run failures still come with a result")

	s := res.Summary()
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Skipped)
}

func TestRoutes(t *testing.T) {
	t.Parallel()

	a, _, _ := SetupAppTest(t, TestConfig(t, writeHCL(t, poolsHCL)))
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body := new(SafeBuffer)
		_, err = body.b.ReadFrom(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, body.String()
	}

	code, body := get("/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK\n", body)

	code, _ = get("/graph")
	assert.Equal(t, http.StatusNotFound, code, "no graph before the configuration is loaded")

	_, err := a.Up(context.Background())
	require.NoError(t, err)

	code, body = get("/graph")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "digraph esxigrid")
	assert.Contains(t, body, "n0 -> n1;")

	_, body = get("/graph?format=mermaid")
	assert.Contains(t, body, "n0 --> n1")

	_, err = a.Destroy(context.Background())
	require.NoError(t, err)
	_, body = get("/graph")
	assert.Contains(t, body, "n0 -> n1;", "destroy leaves the configuration graph in place")

	code, body = get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "esxigrid_provider_calls_total")
	assert.Contains(t, body, "esxigrid_run_duration_seconds")
}
