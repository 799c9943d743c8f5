package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const poolsHCL = `
resource "esxi_resource_pool" "pool1" {
  name = "pool1"
}

resource "esxi_resource_pool" "pool2" {
  name = "${resource.esxi_resource_pool.pool1.name}/pool2"
}
`

type harness struct {
	t    *testing.T
	env  map[string]string
	base []string
	hcl  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	hcl := filepath.Join(dir, "main.hcl")
	require.NoError(t, os.WriteFile(hcl, []byte(poolsHCL), 0o600))
	statePath := filepath.Join(dir, "state.db")
	return &harness{
		t:    t,
		env:  map[string]string{},
		hcl:  hcl,
		base: []string{"--provider", "memory", "--state-dsn", statePath, "--log-level", "error"},
	}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	out, logs := &bytes.Buffer{}, &bytes.Buffer{}
	root := NewRootCommand(func(k string) string { return h.env[k] })
	err := execute(context.Background(), root, append(args, h.base...), out, logs)
	if os.Getenv("ESXIGRID_TEST_LOGS") == "true" {
		h.t.Logf("logs for %v:\n%s", args, logs.String())
	}
	return out.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	return exitErr.Code
}

func TestUpStateDestroy(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out, err := h.run("preview", h.hcl)
	require.NoError(t, err)
	assert.Contains(t, out, "planned")
	assert.Contains(t, out, "preview: 2 created")

	out, err = h.run("up", h.hcl)
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "pool2")
	assert.Contains(t, out, "up: 2 created")

	out, err = h.run("state", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "pool1")
	assert.Contains(t, out, "esxi_resource_pool")
	assert.Contains(t, out, "realized")

	out, err = h.run("destroy")
	require.NoError(t, err)
	assert.Contains(t, out, "2 deleted")

	out, err = h.run("state", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "pool1")
}

func TestGraph(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out, err := h.run("graph", "-f", h.hcl)
	require.NoError(t, err)
	assert.Contains(t, out, "digraph esxigrid")

	out, err = h.run("graph", "--format", "mermaid", h.hcl)
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")

	out, err = h.run("graph", "--format", "order", h.hcl)
	require.NoError(t, err)
	assert.Regexp(t, `(?s)^1\s+pool1\s+esxi_resource_pool\n2\s+pool2\s+esxi_resource_pool\n$`, out)

	out, err = h.run("graph", "--format", "teardown", h.hcl)
	require.NoError(t, err)
	assert.Regexp(t, `(?s)^1\s+pool2\s+esxi_resource_pool\n2\s+pool1\s+esxi_resource_pool\n$`, out)

	_, err = h.run("graph", "--format", "svg", h.hcl)
	assert.Equal(t, ExitInvalidConfig, exitCode(t, err))
}

func TestExitCodes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		args func(h *harness) []string
		want int
	}{
		{name: "unknown flag", args: func(h *harness) []string { return []string{"up", "--no-such-flag", h.hcl} }, want: ExitInvalidConfig},
		{name: "bad log level", args: func(h *harness) []string { return []string{"up", "--log-level", "trace", h.hcl} }, want: ExitInvalidConfig},
		{name: "no configuration paths", args: func(h *harness) []string { return []string{"up"} }, want: ExitInvalidConfig},
		{name: "missing settings file", args: func(h *harness) []string { return []string{"up", "--config", "/nonexistent.yaml", h.hcl} }, want: ExitInvalidConfig},
		{name: "vsphere without host", args: func(h *harness) []string {
			h.base[1] = "vsphere"
			return []string{"up", h.hcl}
		}, want: ExitInvalidConfig},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			_, err := h.run(tc.args(h)...)
			assert.Equal(t, tc.want, exitCode(t, err))
		})
	}
}

func TestConfigurationErrorExitCode(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.hcl, []byte(`resource "esxi_virtual_disk" "d" {}`), 0o600))

	out, err := h.run("up", h.hcl)
	assert.Equal(t, ExitInvalidConfig, exitCode(t, err))
	assert.Empty(t, out, "configuration errors are reported before any run")
}

func TestInvalidEnvironmentPort(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.env["ESXI_SSL_PORT"] = "not-a-port"

	_, err := h.run("up", h.hcl)
	assert.Equal(t, ExitInvalidConfig, exitCode(t, err))
}

func TestVersion(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out, err := h.run("version")
	require.NoError(t, err)
	assert.Equal(t, "esxigrid dev\n", out)
}
