// Package statusapi serves the engine's selection, provider table and
// status events over HTTP, and accepts rescan and filter requests.
package statusapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	slogecho "github.com/samber/slog-echo"
	"go.ntppool.org/common/logger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"go.lipi.dev/providerd/engine"
	"go.lipi.dev/providerd/selector"
)

// Engine is the part of *engine.Engine the API uses.
type Engine interface {
	Selection() selector.Selection
	State() engine.State
	Filter() selector.Filter
	Providers() []engine.Provider
	Recent(n int) []engine.Event
	Rescan()
	SetFilter(capability string)
}

type Server struct {
	eng  Engine
	echo *echo.Echo
	log  *slog.Logger
}

type selectionJSON struct {
	Active    bool               `json:"active"`
	State     engine.State       `json:"state"`
	Selection selector.Selection `json:"selection"`
}

type stateJSON struct {
	State      engine.State    `json:"state"`
	Generation uint64          `json:"generation"`
	Active     string          `json:"active,omitempty"`
	Filter     selector.Filter `json:"filter"`
}

type filterJSON struct {
	Capability string `json:"capability"`
}

func New(ctx context.Context, eng Engine) *Server {
	log := logger.FromContext(ctx).WithGroup("statusapi")

	s := &Server{
		eng:  eng,
		echo: echo.New(),
		log:  log,
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Use(otelecho.Middleware("providerd"))
	e.Use(slogecho.New(log))

	e.GET("/v1/selection", s.selection)
	e.GET("/v1/state", s.state)
	e.GET("/v1/providers", s.providers)
	e.GET("/v1/events", s.events)
	e.POST("/v1/rescan", s.rescan)
	e.PUT("/v1/filter", s.setFilter)

	return s
}

// Handler returns the HTTP handler for the API routes.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// ListenAndServe serves the API on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.InfoContext(ctx, "status api listening", "addr", addr)
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.log.WarnContext(ctx, "status api shutdown", "err", err)
		return err
	}
	return nil
}

func (s *Server) selection(c echo.Context) error {
	sel := s.eng.Selection()
	return c.JSON(http.StatusOK, selectionJSON{
		Active:    sel.Active(),
		State:     s.eng.State(),
		Selection: sel,
	})
}

func (s *Server) state(c echo.Context) error {
	sel := s.eng.Selection()
	return c.JSON(http.StatusOK, stateJSON{
		State:      s.eng.State(),
		Generation: sel.Generation,
		Active:     sel.DescriptorID,
		Filter:     s.eng.Filter(),
	})
}

func (s *Server) providers(c echo.Context) error {
	return c.JSON(http.StatusOK, s.eng.Providers())
}

func (s *Server) events(c echo.Context) error {
	n := 0
	if v := c.QueryParam("n"); v != "" {
		var err error
		n, err = strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "n must be a non-negative integer")
		}
	}
	return c.JSON(http.StatusOK, s.eng.Recent(n))
}

func (s *Server) rescan(c echo.Context) error {
	s.eng.Rescan()
	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) setFilter(c echo.Context) error {
	var req filterJSON
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid filter")
	}
	s.eng.SetFilter(req.Capability)
	return c.JSON(http.StatusAccepted, s.eng.Filter())
}
