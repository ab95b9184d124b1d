// Package server provides the vellum preview server: it renders app and
// template listings, preview pages carrying the real emitted link markup,
// serves the version-tokened assets themselves, exposes finalized context
// payloads, and pushes live-reload messages over websockets as templates and
// assets change on disk.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/vellum/internal/assets"
	"github.com/conneroisu/vellum/internal/config"
	"github.com/conneroisu/vellum/internal/jscontext"
	"github.com/conneroisu/vellum/internal/lineage"
	"github.com/conneroisu/vellum/internal/logging"
	"github.com/conneroisu/vellum/internal/metrics"
	"github.com/conneroisu/vellum/internal/provider"
	"github.com/conneroisu/vellum/internal/registry"
	"github.com/conneroisu/vellum/internal/scanner"
	"github.com/conneroisu/vellum/internal/watcher"
)

const (
	watchDebounce = 300 * time.Millisecond

	// Scopes left open this long are presumed aborted and swept.
	scopeMaxAge   = 5 * time.Minute
	sweepInterval = time.Minute
)

// Client represents a connected live-reload websocket client
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *PreviewServer
}

// PreviewServer serves the apps tree with live reload capability
type PreviewServer struct {
	config      *config.Config
	logger      logging.Logger
	metrics     *metrics.Metrics
	httpServer  *http.Server
	serverMutex sync.RWMutex

	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *websocket.Conn

	registry *registry.TemplateRegistry
	scanner  *scanner.TemplateScanner
	walker   *lineage.Walker
	tokens   *assets.TokenCache
	contexts *jscontext.Registry
	provider *provider.Provider
	watcher  *watcher.FileWatcher

	shutdownOnce sync.Once
}

// UpdateMessage represents a live-reload message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Paths     []string  `json:"paths,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New assembles a preview server and its collaborators from configuration.
// logger may be nil.
func New(cfg *config.Config, logger logging.Logger) (*PreviewServer, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithComponent("server")

	reg := registry.NewTemplateRegistry()
	scan := scanner.NewTemplateScanner(reg, cfg.Apps, logger)
	walker := lineage.NewWalker(reg)
	locator := assets.NewLocator(cfg.Apps, cfg.Assets)
	tokens := assets.NewTokenCache()
	contexts := jscontext.NewRegistry(cfg.Assets.PayloadHistory)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		m.ObserveTokenCache(tokens)
		m.ObservePayloadRegistry(contexts)
	}

	builder := provider.NewBuilder(walker, locator, tokens, cfg.Apps.Base, logger, m)
	prov := provider.NewProvider(builder, contexts, cfg.Assets.StaticPrefix, m)

	fileWatcher, err := watcher.NewFileWatcher(watchDebounce, logger)
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	return &PreviewServer{
		config:     cfg,
		logger:     logger,
		metrics:    m,
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
		registry:   reg,
		scanner:    scan,
		walker:     walker,
		tokens:     tokens,
		contexts:   contexts,
		provider:   prov,
		watcher:    fileWatcher,
	}, nil
}

// Registry returns the template registry, for the CLI and tests.
func (s *PreviewServer) Registry() *registry.TemplateRegistry {
	return s.registry
}

// Provider returns the link provider, for the CLI and tests.
func (s *PreviewServer) Provider() *provider.Provider {
	return s.provider
}

// Start runs the initial scan, starts the watcher, hub, and sweep
// goroutines, and serves HTTP until the listener fails or Shutdown is
// called.
func (s *PreviewServer) Start(ctx context.Context) error {
	if s.config.Development.HotReload {
		s.setupFileWatcher(ctx)
	}

	if err := s.scanner.ScanAll(ctx); err != nil {
		s.logger.Warn(ctx, err, "initial scan failed", "root", s.config.Apps.Root)
	}

	go s.runWebSocketHub(ctx)
	go s.sweepLoop(ctx)

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	if s.config.Server.Open && !s.config.Server.NoOpen {
		go s.openBrowser(fmt.Sprintf("http://%s", addr))
	}

	s.logger.Info(ctx, "preview server listening",
		"addr", addr,
		"apps_root", s.config.Apps.Root,
	)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Handler builds the full route table wrapped in the middleware stack.
func (s *PreviewServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/preview/", s.handlePreview)
	mux.HandleFunc(s.config.Assets.StaticPrefix+"/", s.handleStatic)
	mux.HandleFunc("/context/", s.handleContext)
	mux.HandleFunc("/vellum.js", s.handleRuntimeJS)
	mux.HandleFunc("/api/templates", s.handleTemplates)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle(s.config.Metrics.Path, s.metrics.Handler())
	}
	return s.addMiddleware(mux)
}

func (s *PreviewServer) setupFileWatcher(ctx context.Context) {
	s.watcher.AddFilter(watcher.WatchedFilter(s.config.Apps.TemplateExt))
	s.watcher.AddFilter(watcher.NoHiddenFilter)
	s.watcher.AddFilter(watcher.NoNodeModulesFilter)
	s.watcher.AddFilter(watcher.NoBackupFilter)

	s.watcher.AddHandler(s.handleFileChange)

	if err := s.watcher.AddRecursive(s.config.Apps.Root); err != nil {
		s.logger.Warn(ctx, err, "watching apps root", "root", s.config.Apps.Root)
	}
	if err := s.watcher.Start(ctx); err != nil {
		s.logger.Warn(ctx, err, "starting file watcher")
	}
}

// handleFileChange routes a debounced batch to the subsystems that care:
// asset edits invalidate version tokens, template edits rescan or remove
// registry entries, and one reload message covers the whole batch.
func (s *PreviewServer) handleFileChange(events []watcher.ChangeEvent) error {
	ctx := context.Background()
	changed := make([]string, 0, len(events))

	for _, event := range events {
		s.logger.Debug(ctx, "file changed", "path", event.Path, "type", event.Type.String())
		changed = append(changed, event.Path)

		switch filepath.Ext(event.Path) {
		case ".css", ".js":
			s.tokens.Invalidate(event.Path)
		case s.config.Apps.TemplateExt:
			if event.Type == watcher.EventTypeDeleted || event.Type == watcher.EventTypeRenamed {
				s.scanner.RemoveFile(ctx, event.Path)
				continue
			}
			if err := s.scanner.ScanFile(ctx, event.Path); err != nil {
				s.logger.Warn(ctx, err, "rescanning template", "path", event.Path)
			}
		}
	}

	s.broadcastMessage(UpdateMessage{
		Type:      "full_reload",
		Paths:     changed,
		Timestamp: time.Now(),
	})
	return nil
}

// sweepLoop disposes scopes whose requests never completed, so aborted
// renders cannot pin payloads forever.
func (s *PreviewServer) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if swept := s.contexts.Sweep(scopeMaxAge); swept > 0 {
				s.logger.Debug(ctx, "swept stale context scopes", "count", swept)
			}
		}
	}
}

func (s *PreviewServer) openBrowser(rawURL string) {
	time.Sleep(100 * time.Millisecond)

	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		s.logger.Warn(context.Background(), err, "not opening browser for invalid url", "url", rawURL)
		return
	}

	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", rawURL).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL).Start()
	case "darwin":
		err = exec.Command("open", rawURL).Start()
	default:
		err = fmt.Errorf("unsupported platform")
	}
	if err != nil {
		s.logger.Warn(context.Background(), err, "opening browser", "url", rawURL)
	}
}

func (s *PreviewServer) broadcastMessage(msg UpdateMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn(context.Background(), err, "marshaling reload message")
		data = []byte(`{"type":"full_reload"}`)
	}

	select {
	case s.broadcast <- data:
		if s.metrics != nil {
			s.metrics.ReloadBroadcasts.Inc()
		}
	default:
		// Hub is saturated; the next change will reload anyway.
	}
}

// Shutdown gracefully shuts down the server and cleans up resources.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "shutting down preview server")

		if s.watcher != nil {
			if err := s.watcher.Stop(); err != nil {
				s.logger.Warn(ctx, err, "stopping file watcher")
			}
		}

		s.clientsMutex.Lock()
		for conn, client := range s.clients {
			close(client.send)
			conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		s.clients = make(map[*websocket.Conn]*Client)
		s.clientsMutex.Unlock()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}
