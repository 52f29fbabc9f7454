package probe

import (
	"net"
	"net/http"
	"time"

	"go.ntppool.org/common/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHTTPClient returns the client used by the HTTP based checkers. It
// has no overall timeout; every request is bounded by the probe context.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: otelhttp.NewTransport(&flushingTransport{Transport: transport}),
	}
}

// flushingTransport drops idle connections after a transport error so a
// restarted local daemon isn't probed over a dead keep-alive connection.
// The failed request is not retried.
type flushingTransport struct {
	*http.Transport
}

func (ft *flushingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := ft.Transport.RoundTrip(req)
	if err != nil && req.Context().Err() == nil {
		logger.FromContext(req.Context()).DebugContext(req.Context(),
			"transport error, flushing idle connections", "url", req.URL.String(), "err", err)
		ft.Transport.CloseIdleConnections()
	}
	return resp, err
}
