// Package server exposes the dashboard over a small local HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/anicoll/ato-dashboard/internal/pkg/control"
	"github.com/anicoll/ato-dashboard/internal/pkg/device"
	"github.com/anicoll/ato-dashboard/internal/pkg/model"
	"github.com/anicoll/ato-dashboard/internal/pkg/render"
)

const maxBodyBytes = 1 << 16

type Controller interface {
	ToggleMaintenance(enable bool) bool
	ResetError() bool
	SetTemperatureRange(ctx context.Context, minTemp, maxTemp float64) error
	CheckForUpdates(ctx context.Context) error
	StartUpdate(ctx context.Context) error
	TemperatureHistory(ctx context.Context) ([]control.ChartPoint, error)
}

// ControllerFactory builds a controller that reports through p. One is
// built per request so alerts can be returned to the caller.
type ControllerFactory func(p control.Prompter) Controller

type ScreenSource interface {
	Screen() render.Screen
}

type Archive interface {
	Readings(ctx context.Context, identifier, slug string, from, to *time.Time) (model.Readings, error)
	LatestReadings(ctx context.Context, identifier string) (model.Readings, error)
}

type server struct {
	controllers ControllerFactory
	screen      ScreenSource
	archive     Archive
	logger      *zap.Logger
}

type Option func(*server)

// WithArchive enables the readings endpoints.
func WithArchive(a Archive) Option {
	return func(s *server) {
		s.archive = a
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *server) {
		s.logger = l
	}
}

func New(controllers ControllerFactory, screen ScreenSource, opts ...Option) *server {
	s := &server{
		controllers: controllers,
		screen:      screen,
		logger:      zap.L(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)

	r.Route("/api", func(api chi.Router) {
		api.Get("/screen", s.getScreen)
		api.Get("/history", s.getHistory)
		api.Post("/maintenance", s.postMaintenance)
		api.Post("/reset_error", s.postResetError)
		api.Post("/temp_range", s.postTempRange)
		api.Post("/update", s.postUpdate)
		api.Post("/check_updates", s.postCheckUpdates)
		if s.archive != nil {
			api.Get("/readings/{identifier}", s.getLatestReadings)
			api.Get("/readings/{identifier}/{slug}", s.getReadings)
		}
	})
	return r
}

// Run serves until ctx ends, then shuts the server down.
func Run(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type maintenancePayload struct {
	Enable bool `json:"enable"`
}

type tempRangePayload struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

type actionResponse struct {
	OK       bool     `json:"ok"`
	Messages []string `json:"messages,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func (s *server) getScreen(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.screen.Screen())
}

func (s *server) getHistory(w http.ResponseWriter, r *http.Request) {
	points, err := s.controllers(autoConfirm{}).TemperatureHistory(r.Context())
	if err != nil {
		s.logger.Error("failed to load temperature history", zap.Error(err))
		writeJSON(w, statusFor(err), actionResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *server) postMaintenance(w http.ResponseWriter, r *http.Request) {
	req, err := unmarshalPayload[maintenancePayload](w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, actionResponse{Error: err.Error()})
		return
	}
	s.sent(w, s.controllers(autoConfirm{}).ToggleMaintenance(req.Enable))
}

func (s *server) postResetError(w http.ResponseWriter, _ *http.Request) {
	s.sent(w, s.controllers(autoConfirm{}).ResetError())
}

func (s *server) postTempRange(w http.ResponseWriter, r *http.Request) {
	req, err := unmarshalPayload[tempRangePayload](w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, actionResponse{Error: err.Error()})
		return
	}
	if req.Min == nil || req.Max == nil {
		writeJSON(w, http.StatusBadRequest, actionResponse{Error: "min and max are required"})
		return
	}
	rec := &recorder{}
	err = s.controllers(rec).SetTemperatureRange(r.Context(), *req.Min, *req.Max)
	s.respond(w, rec, err)
}

func (s *server) postUpdate(w http.ResponseWriter, r *http.Request) {
	rec := &recorder{}
	err := s.controllers(rec).StartUpdate(r.Context())
	s.respond(w, rec, err)
}

func (s *server) postCheckUpdates(w http.ResponseWriter, r *http.Request) {
	rec := &recorder{}
	err := s.controllers(rec).CheckForUpdates(r.Context())
	s.respond(w, rec, err)
}

func (s *server) getReadings(w http.ResponseWriter, r *http.Request) {
	var from, to *time.Time
	for name, dst := range map[string]**time.Time{"from": &from, "to": &to} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, actionResponse{Error: name + " must be an RFC 3339 timestamp"})
			return
		}
		*dst = &t
	}
	readings, err := s.archive.Readings(r.Context(), chi.URLParam(r, "identifier"), chi.URLParam(r, "slug"), from, to)
	if err != nil {
		s.logger.Error("failed to read archive", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, actionResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

func (s *server) getLatestReadings(w http.ResponseWriter, r *http.Request) {
	readings, err := s.archive.LatestReadings(r.Context(), chi.URLParam(r, "identifier"))
	if err != nil {
		s.logger.Error("failed to read archive", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, actionResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

// sent reports a fire and forget socket command.
func (s *server) sent(w http.ResponseWriter, ok bool) {
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, actionResponse{Error: "not connected to the controller"})
		return
	}
	writeJSON(w, http.StatusAccepted, actionResponse{OK: true})
}

func (s *server) respond(w http.ResponseWriter, rec *recorder, err error) {
	resp := actionResponse{OK: err == nil, Messages: rec.messages()}
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, control.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, device.ErrUnexpectedStatus):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func unmarshalPayload[T any](w http.ResponseWriter, r *http.Request) (*T, error) {
	var out T
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// autoConfirm is the prompter for requests that produce no messages.
type autoConfirm struct{}

func (autoConfirm) Confirm(string) bool { return true }
func (autoConfirm) Alert(string)        {}

// recorder confirms everything and keeps the alerts for the response.
type recorder struct {
	mu     sync.Mutex
	alerts []string
}

func (r *recorder) Confirm(string) bool { return true }

func (r *recorder) Alert(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, message)
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.alerts...)
}
