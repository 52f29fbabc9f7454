package enginecmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.ntppool.org/common/logger"

	rootcmd "go.lipi.dev/providerd/cmd"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func parse(t *testing.T, args ...string) (*Cmd, *kong.Context) {
	t.Helper()
	cli := &Cmd{}
	parser, err := rootcmd.New(context.Background(), cli, "providerd", "test", kong.Exit(func(int) {
		t.Fatal("kong exited")
	}))
	require.NoError(t, err)

	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	return cli, kctx
}

func TestParseScan(t *testing.T) {
	cli, kctx := parse(t, "scan",
		"--registry", "/etc/providerd/endpoints.yaml",
		"--probe-timeout", "2s",
		"--filter", "bengali-support",
		"--json",
	)
	assert.Equal(t, "scan", kctx.Command())
	assert.Equal(t, "/etc/providerd/endpoints.yaml", cli.Scan.Registry)
	assert.Equal(t, 2*time.Second, cli.Scan.ProbeTimeout)
	assert.Equal(t, "bengali-support", cli.Scan.Filter)
	assert.True(t, cli.Scan.JSON)
}

func TestParseRunEnvironment(t *testing.T) {
	t.Setenv("PROVIDERD_REGISTRY", "/srv/endpoints.yaml")
	t.Setenv("PROVIDERD_MONITOR_INTERVAL", "10s")

	cli, kctx := parse(t, "run", "--no-watch")
	assert.Equal(t, "run", kctx.Command())
	assert.Equal(t, "/srv/endpoints.yaml", cli.Run.Registry)
	assert.Equal(t, 10*time.Second, cli.Run.MonitorInterval)
	assert.Equal(t, 9000, cli.Run.MetricsPort)
	assert.False(t, cli.Run.Watch)
}

func TestLoadOverrides(t *testing.T) {
	ctx := logger.NewContext(context.Background(), logger.Setup())

	cfgPath := writeFile(t, "providerd.yaml", "probe_timeout: 4s\nscan_deadline: 6s\n")
	regPath := writeFile(t, "endpoints.yaml", `
endpoints:
  - id: ok
    kind: transport
    probe: static
  - id: broken
    kind: satellite
    probe: static
`)

	f := EngineFlags{Config: cfgPath, Registry: regPath, ScanDeadline: 2 * time.Second}
	cfg, reg, err := f.load(ctx)
	require.NoError(t, err, "invalid entries are skipped, not fatal")
	assert.Equal(t, 4*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 2*time.Second, cfg.ScanDeadline)
	assert.Equal(t, 1, reg.Len())

	f.Registry = filepath.Join(t.TempDir(), "missing.yaml")
	_, _, err = f.load(ctx)
	assert.Error(t, err)
}

func TestScan(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	regPath := writeFile(t, "endpoints.yaml", fmt.Sprintf(`
endpoints:
  - id: gateway
    name: Local gateway
    address: %s
    kind: transport
    priority: 1
  - id: fallback
    kind: transport
    probe: static
    priority: 2
`, ts.URL))

	var out bytes.Buffer
	cmd := &ScanCmd{
		EngineFlags: EngineFlags{Registry: regPath, ScanDeadline: 2 * time.Second},
		out:         &out,
	}
	require.NoError(t, cmd.Run(context.Background()))

	assert.Contains(t, out.String(), "gateway")
	assert.Contains(t, out.String(), "Selected Local gateway (gateway)")

	out.Reset()
	cmd.JSON = true
	require.NoError(t, cmd.Run(context.Background()))

	var report struct {
		Selection struct {
			DescriptorID string `json:"descriptor_id"`
			Generation   uint64 `json:"generation"`
		} `json:"selection"`
		Providers []json.RawMessage `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, "gateway", report.Selection.DescriptorID)
	assert.Equal(t, uint64(1), report.Selection.Generation)
	assert.Len(t, report.Providers, 2)
}

func TestScanNoProvider(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	regPath := writeFile(t, "endpoints.yaml", fmt.Sprintf(`
endpoints:
  - id: gateway
    address: %s
    kind: transport
`, ts.URL))

	var out bytes.Buffer
	cmd := &ScanCmd{
		EngineFlags: EngineFlags{Registry: regPath},
		out:         &out,
	}
	require.NoError(t, cmd.Run(context.Background()))
	assert.Contains(t, out.String(), "unreachable")
	assert.Contains(t, out.String(), "No provider available")
}
