package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/playperu/motionquiz/internal/auth"
	"github.com/playperu/motionquiz/internal/hub"
	"github.com/playperu/motionquiz/internal/sensor"
	"github.com/playperu/motionquiz/internal/session"
)

// SensorCache keeps each user's latest normalized reading across
// connections and instances. pubsub.Redis implements it.
type SensorCache interface {
	CacheSensor(ctx context.Context, roomID, userID string, r sensor.Reading) error
	LatestSensor(ctx context.Context, roomID, userID string) (sensor.Reading, bool, error)
}

// RoomStates reads the presence snapshot shared across instances.
// pubsub.Redis implements it.
type RoomStates interface {
	RoomState(ctx context.Context, roomID string) (hub.RoomState, bool, error)
}

type Deps struct {
	Sessions *session.Manager
	Hub      *hub.Hub
	Verifier *auth.Verifier

	// Optional.
	Sensors SensorCache
	Rooms   RoomStates
	Health  http.Handler

	SendQueueSize   int
	SmoothingFactor int
}

type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

func New(addr string, logger *slog.Logger, d Deps) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           newRouter(logger, d),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

func newRouter(logger *slog.Logger, d Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(newStructuredLogger(logger))
	r.Use(middleware.Recoverer)

	addRoutes(r, logger, d)
	return r
}

func (s *Server) Run(_ context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
	}

	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func newStructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
