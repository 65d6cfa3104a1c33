// Package httpapi is the Echo application serving the carrier-facing HTTP
// surface: the call-setup webhook at /voice and the media WebSocket at /ws.
package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/voxrelay/callbridge/pkg/core"
	"github.com/voxrelay/callbridge/pkg/dialogue"
	"github.com/voxrelay/callbridge/pkg/pipeline"
	"github.com/voxrelay/callbridge/pkg/ratelimit"
	"github.com/voxrelay/callbridge/pkg/telemetry"
	"github.com/voxrelay/callbridge/pkg/transport"
)

const apologyText = "Sorry, we're at capacity right now. Please try again in a moment. Goodbye."

// Server is the Echo application exposing the carrier webhook and media
// WebSocket.
type Server struct {
	echo          *echo.Echo
	limiter       *ratelimit.Limiter
	providers     transport.Providers
	publicBaseURL string
	pipelineCfg   pipeline.Config
	dialogueCfg   dialogue.Config
	log           core.Logger
	metrics       *telemetry.Metrics
}

// New constructs an Echo app with the /voice and /ws routes registered.
// pipelineCfg and dialogueCfg are cloned onto every call's Adapter; they are
// resolved once at process startup from config.Config.
func New(limiter *ratelimit.Limiter, providers transport.Providers, pipelineCfg pipeline.Config, dialogueCfg dialogue.Config, log core.Logger, metrics *telemetry.Metrics, publicBaseURL string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{
		echo:          e,
		limiter:       limiter,
		providers:     providers,
		publicBaseURL: publicBaseURL,
		pipelineCfg:   pipelineCfg,
		dialogueCfg:   dialogueCfg,
		log:           log,
		metrics:       metrics,
	}
	s.registerRoutes()
	return s
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			slog.Info("http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.POST("/voice", s.handleVoice)
	s.echo.GET("/ws", s.handleWebSocket)
	s.echo.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

// Echo exposes the underlying Echo instance, for tests and for cmd/callbridge
// to wrap with its own listener.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

type healthResponse struct {
	Status      string `json:"status"`
	ActiveCalls int    `json:"active_calls"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", ActiveCalls: s.limiter.Active()})
}

// handleVoice admission-checks the caller, then returns markup pointing the
// carrier at our media WebSocket, or an apology and hangup on denial.
// Always 200, always text/xml.
func (s *Server) handleVoice(c echo.Context) error {
	from := c.FormValue("From")

	if !s.limiter.TryAdmit(from) {
		s.log.Warn("call rejected by admission control", "from", from)
		if s.metrics != nil {
			s.metrics.AdmissionDenied(c.Request().Context())
		}
		return c.Blob(http.StatusOK, "text/xml", []byte(apologyMarkup()))
	}

	host := s.publicBaseURL
	if u, err := url.Parse(host); err == nil && u.Host != "" {
		host = u.Host
	}
	streamURL := fmt.Sprintf("wss://%s/ws", host)
	return c.Blob(http.StatusOK, "text/xml", []byte(connectMarkup(streamURL)))
}

func connectMarkup(streamURL string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
  <Connect>
    <Stream url="%s" />
  </Connect>
</Response>`, streamURL)
}

func apologyMarkup() string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
  <Say>%s</Say>
  <Hangup/>
</Response>`, apologyText)
}

// handleWebSocket upgrades the carrier's media stream connection and hands
// it to a transport.Adapter for the lifetime of the call. Admission was
// already decided in handleVoice; the Adapter releases that slot exactly
// once when the call ends.
func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: false,
	})
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return err
	}
	defer conn.CloseNow()

	callLog := s.log
	if scoped, ok := s.log.(core.ScopedLogger); ok {
		callLog = scoped.With("call_id", uuid.NewString())
	}

	callerID := c.QueryParam("from")
	adapter := transport.New(conn, callerID, s.limiter, s.providers, s.pipelineCfg, s.dialogueCfg, callLog, s.metrics)

	if s.metrics != nil {
		ctx := c.Request().Context()
		s.metrics.CallStarted(ctx)
		defer s.metrics.CallEnded(ctx)
	}

	if err := adapter.Run(c.Request().Context()); err != nil {
		s.log.Error("call ended with error", "error", err, "caller", callerID)
	}
	return nil
}
