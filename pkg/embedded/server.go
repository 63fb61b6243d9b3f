// Package embedded provides an embeddable hivewatch server for in-process use,
// so a host tool can run the hub without shelling out to the binary.
package embedded

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	httpapi "github.com/mistakeknot/hivewatch/internal/http"
	"github.com/mistakeknot/hivewatch/internal/storage/sqlite"
	"github.com/mistakeknot/hivewatch/internal/ws"
)

// Config configures the embedded server.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// If empty, defaults to ~/.hivewatch/data.db.
	DBPath string

	// Port is the HTTP port to listen on. If 0, a free port is chosen.
	Port int

	// Host is the host to bind to. If empty, defaults to 127.0.0.1.
	Host string
}

// Server is an embedded hivewatch server.
type Server struct {
	store   *sqlite.ResilientStore
	hub     *ws.Hub
	http    *http.Server
	ln      net.Listener
	mu      sync.Mutex
	started bool
}

func New(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		cfg.DBPath = filepath.Join(home, ".hivewatch", "data.db")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	base, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	store := sqlite.NewResilient(base)

	hub := ws.NewHub()
	svc := httpapi.NewService(store).WithBroadcaster(hub)
	router := httpapi.NewRouter(svc, hub.Handler())

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	return &Server{
		store: store,
		hub:   hub,
		http:  &http.Server{Handler: router},
		ln:    ln,
	}, nil
}

// Start serves in a background goroutine. Safe to call more than once.
func (s *Server) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	go func() {
		if err := s.http.Serve(s.ln); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "hivewatch server error: %v\n", err)
		}
	}()
}

// Stop shuts the server down gracefully and closes the store.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return s.store.Close()
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.http.Shutdown(ctx)
	if cerr := s.store.Close(); err == nil {
		err = cerr
	}
	return err
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// URL returns the base URL for the server.
func (s *Server) URL() string {
	return fmt.Sprintf("http://%s", s.Addr())
}

// Store returns the underlying store for direct access if needed.
func (s *Server) Store() *sqlite.ResilientStore {
	return s.store
}
