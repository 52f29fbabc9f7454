package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"go.lipi.dev/providerd/registry"
)

// Dispatch picks a checker by the descriptor's probe strategy.
type Dispatch map[string]Checker

// NewDispatch returns the standard set of strategies sharing client.
func NewDispatch(client *http.Client) Dispatch {
	if client == nil {
		client = NewHTTPClient()
	}
	return Dispatch{
		registry.ProbeHTTP:   &HTTPChecker{Client: client},
		registry.ProbeTCP:    &TCPChecker{},
		registry.ProbeOllama: &OllamaChecker{Client: client},
		registry.ProbeStatic: StaticChecker{},
	}
}

func (ds Dispatch) Check(ctx context.Context, d registry.Descriptor) (*Sample, error) {
	c, ok := ds[d.ProbeStrategy()]
	if !ok {
		return nil, fmt.Errorf("no checker for probe strategy %q", d.ProbeStrategy())
	}
	return c.Check(ctx, d)
}

// StaticChecker always succeeds. It stands in for cloud APIs that can't
// be probed cheaply.
type StaticChecker struct{}

func (StaticChecker) Check(ctx context.Context, d registry.Descriptor) (*Sample, error) {
	return nil, ctx.Err()
}

// TCPChecker succeeds when a TCP connection to the address can be opened.
type TCPChecker struct {
	Dialer net.Dialer
}

func (c *TCPChecker) Check(ctx context.Context, d registry.Descriptor) (*Sample, error) {
	conn, err := c.Dialer.DialContext(ctx, "tcp", hostPort(d.Address))
	if err != nil {
		return nil, err
	}
	return nil, conn.Close()
}

// hostPort accepts either "host:port" or a URL.
func hostPort(address string) string {
	if !strings.Contains(address, "://") {
		return address
	}
	u, err := url.Parse(address)
	if err != nil {
		return address
	}
	if u.Port() != "" {
		return u.Host
	}
	switch u.Scheme {
	case "https":
		return net.JoinHostPort(u.Hostname(), "443")
	default:
		return net.JoinHostPort(u.Hostname(), "80")
	}
}

// HTTPChecker sends a GET to the health path of the endpoint. A 2xx
// answer is reachable; 5xx and connection failures are unreachable. If
// the body is a JSON object with "throughput" and "accuracy" fields, they
// are returned as a provider reported sample.
type HTTPChecker struct {
	Client *http.Client
	Path   string // defaults to /health
}

func (c *HTTPChecker) Check(ctx context.Context, d registry.Descriptor) (*Sample, error) {
	path := c.Path
	if path == "" {
		path = "/health"
	}

	resp, err := get(ctx, c.Client, d.Address, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return nil, err
	}

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, nil
	}

	var reported struct {
		Throughput    *float64 `json:"throughput"`
		Accuracy      *float64 `json:"accuracy"`
		ResourceUsage float64  `json:"resource_usage"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&reported); err != nil {
		// a health endpoint with an odd body is still up
		return nil, nil
	}
	if reported.Throughput == nil || reported.Accuracy == nil {
		return nil, nil
	}
	return &Sample{
		Throughput:    *reported.Throughput,
		Accuracy:      *reported.Accuracy,
		ResourceUsage: reported.ResourceUsage,
	}, nil
}

// OllamaChecker asks a local model runtime for its installed models and
// succeeds only if the descriptor's model is among them.
type OllamaChecker struct {
	Client *http.Client
}

type ollamaTags struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

func (c *OllamaChecker) Check(ctx context.Context, d registry.Descriptor) (*Sample, error) {
	resp, err := get(ctx, c.Client, d.Address, "/api/tags")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return nil, err
	}

	var tags ollamaTags
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decoding model list: %w", err)
	}

	want := normalizeModel(d.Model)
	for _, m := range tags.Models {
		if normalizeModel(m.Name) == want || normalizeModel(m.Model) == want {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("%w: model %q is not installed", ErrUnreachable, d.Model)
}

func normalizeModel(name string) string {
	return strings.TrimSuffix(name, ":latest")
}

func get(ctx context.Context, client *http.Client, base, path string) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(base, "/")+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return client.Do(req)
}

func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s", ErrUnreachable, resp.Status)
	default:
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
}
