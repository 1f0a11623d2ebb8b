// Package httpapi exposes the artwork resolver over HTTP.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-coverart/internal/domain/artwork"
	"github.com/edumarques81/stellar-coverart/internal/version"
)

const (
	// DefaultWidth is used when a request names no width.
	DefaultWidth = 300

	// MaxWidth bounds requested widths.
	MaxWidth = 4096

	maxBodyBytes = 1 << 20
)

// Resolver is the part of the artwork resolver the HTTP surface needs.
type Resolver interface {
	Resolve(ctx context.Context, m artwork.MediaRef, width int) image.Image
	ResolveAny(ctx context.Context, items []artwork.MediaRef, width int, memoryOnly bool) image.Image
	ClearCache() error
}

var (
	// ErrOutsideMediaRoots rejects references to local files outside the
	// configured media roots.
	ErrOutsideMediaRoots = errors.New("path is outside the media roots")

	// ErrRemoteRefused rejects remote artwork URLs when they are disabled.
	ErrRemoteRefused = errors.New("remote artwork references are disabled")

	// ErrCrossOrigin rejects state-changing requests from another origin.
	ErrCrossOrigin = errors.New("cross-origin request refused")
)

// Server routes cover requests to a Resolver.
type Server struct {
	resolver    Resolver
	health      func() error
	gatherer    prometheus.Gatherer
	mediaRoots  []string
	allowRemote bool
	mux         *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithHealthCheck sets the check behind /health.
func WithHealthCheck(check func() error) Option {
	return func(s *Server) {
		s.health = check
	}
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithMediaRoots sets the directories that file:// references and media
// locations must lie in. Without roots every local path is refused.
func WithMediaRoots(roots ...string) Option {
	return func(s *Server) {
		s.mediaRoots = roots
	}
}

// WithRemoteArtwork lets clients name http(s) artwork for the server to fetch.
func WithRemoteArtwork(allow bool) Option {
	return func(s *Server) {
		s.allowRemote = allow
	}
}

// NewServer creates the HTTP surface.
func NewServer(resolver Resolver, opts ...Option) *Server {
	s := &Server{
		resolver: resolver,
		health:   func() error { return nil },
		gatherer: prometheus.DefaultGatherer,
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.public(http.MethodGet, "/cover", http.HandlerFunc(s.handleCover))
	s.public(http.MethodPost, "/cover/any", http.HandlerFunc(s.handleCoverAny))
	s.public(http.MethodGet, "/health", http.HandlerFunc(s.handleHealth))
	s.public(http.MethodGet, "/api/v1/version", http.HandlerFunc(s.handleVersion))
	s.public(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// Same-origin only: no CORS headers and no preflight.
	s.mux.Handle("POST /cache/clear", sameOrigin(http.HandlerFunc(s.handleClear)))
	return s
}

// public registers a route readable from any origin, with its preflight.
func (s *Server) public(method, path string, h http.Handler) {
	h = corsMiddleware(h)
	s.mux.Handle(method+" "+path, h)
	s.mux.Handle(http.MethodOptions+" "+path, h)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("Server stopped")
	return nil
}

// AnyRequest is the body of POST /cover/any.
type AnyRequest struct {
	Items      []artwork.MediaRef `json:"items"`
	Width      int                `json:"width,omitempty"`
	MemoryOnly bool               `json:"memoryOnly,omitempty"`
}

func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	width, err := parseWidth(q.Get("width"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m := artwork.MediaRef{
		Artist:     q.Get("artist"),
		Album:      q.Get("album"),
		Title:      q.Get("title"),
		ArtworkRef: q.Get("artwork"),
		Location:   q.Get("location"),
	}

	if err := s.checkMedia(m); err != nil {
		refuse(w, r, err)
		return
	}

	img := s.resolver.Resolve(r.Context(), m, width)
	if img == nil {
		log.Debug().Str("title", m.Title).Str("album", m.Album).Msg("Cover not found")
		http.Error(w, "cover not found", http.StatusNotFound)
		return
	}
	writeJPEG(w, img)
}

func (s *Server) handleCoverAny(w http.ResponseWriter, r *http.Request) {
	var req AnyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	width := req.Width
	if width == 0 {
		width = DefaultWidth
	}
	if width < 0 || width > MaxWidth {
		http.Error(w, errInvalidWidth.Error(), http.StatusBadRequest)
		return
	}

	for _, m := range req.Items {
		if err := s.checkMedia(m); err != nil {
			refuse(w, r, err)
			return
		}
	}

	img := s.resolver.ResolveAny(r.Context(), req.Items, width, req.MemoryOnly)
	if img == nil {
		http.Error(w, "cover not found", http.StatusNotFound)
		return
	}
	writeJPEG(w, img)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.resolver.ClearCache(); err != nil {
		log.Error().Err(err).Msg("Failed to clear cover cache")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.health(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.GetInfo())
}

// checkMedia confines the local paths of m to the media roots and refuses
// remote artwork unless it is allowed.
func (s *Server) checkMedia(m artwork.MediaRef) error {
	if path, ok := artwork.FileRefPath(m.ArtworkRef); ok && !artwork.WithinRoots(path, s.mediaRoots) {
		return ErrOutsideMediaRoots
	}
	if m.IsRemote() && !s.allowRemote {
		return ErrRemoteRefused
	}
	if m.Location != "" && !artwork.WithinRoots(strings.TrimPrefix(m.Location, artwork.SchemeFile), s.mediaRoots) {
		return ErrOutsideMediaRoots
	}
	return nil
}

func refuse(w http.ResponseWriter, r *http.Request, err error) {
	log.Warn().Err(err).Str("path", r.URL.Path).Str("remote", r.RemoteAddr).Msg("Refused request")
	http.Error(w, err.Error(), http.StatusForbidden)
}

// sameOrigin refuses requests whose Origin header names another host. Clients
// that send no Origin, such as curl, pass.
func sameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			u, err := url.Parse(origin)
			if err != nil || u.Host != r.Host {
				refuse(w, r, ErrCrossOrigin)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

var errInvalidWidth = errors.New("width must be between 1 and 4096")

func parseWidth(raw string) (int, error) {
	if raw == "" {
		return DefaultWidth, nil
	}
	width, err := strconv.Atoi(raw)
	if err != nil || width <= 0 || width > MaxWidth {
		return 0, errInvalidWidth
	}
	return width, nil
}

func writeJPEG(w http.ResponseWriter, img image.Image) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: artwork.CoverQuality}); err != nil {
		log.Error().Err(err).Msg("Failed to encode cover")
		http.Error(w, "failed to encode cover", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "public, max-age=86400") // Cache for 1 day
	w.Write(buf.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
