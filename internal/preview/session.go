// Package preview owns long-lived live-preview sessions: each session
// compiles one document, serves the rendered output over HTTP, watches the
// document's files for modification, and pushes reload notifications to
// connected clients after every successful rebuild.
package preview

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/conneroisu/qmd/internal/compiler"
	"github.com/conneroisu/qmd/internal/config"
	qmderrors "github.com/conneroisu/qmd/internal/errors"
	"github.com/conneroisu/qmd/internal/logging"
)

// State is a session lifecycle phase.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Options configures one preview session.
type Options struct {
	SourceContent string
	InputFile     string
	Port          int
	Theme         string
	AutoReload    bool
	WatchFiles    []string
	OpenBrowser   bool
}

// Session serves one document's live preview. Rebuilds are strictly
// serialized: at most one runs at a time, and change events arriving during
// a rebuild coalesce into a single trailing rebuild.
type Session struct {
	ID string

	cfg  config.PreviewConfig
	comp *compiler.Compiler
	opts Options
	log  logging.Logger

	state atomic.Int32

	renderMu   sync.RWMutex
	render     []byte
	renderHash string

	hub      *Hub
	watcher  *Watcher
	listener net.Listener
	httpSrv  *http.Server

	rebuildCh chan struct{}
	cancel    context.CancelFunc
	stopOnce  sync.Once
}

// NewSession creates a session in the Stopped state.
func NewSession(cfg config.PreviewConfig, comp *compiler.Compiler, opts Options, log logging.Logger) *Session {
	if log == nil {
		log = logging.Nop()
	}
	id := uuid.NewString()
	return &Session{
		ID:   id,
		cfg:  cfg,
		comp: comp,
		opts: opts,
		log:  log.WithComponent("preview").With("session_id", id),
		// Single-slot buffer: changes arriving mid-rebuild merge into one
		// pending cycle instead of queuing unboundedly.
		rebuildCh: make(chan struct{}, 1),
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	return State(s.state.Load())
}

// URL returns the address the session serves on. Valid after Start.
func (s *Session) URL() string {
	return fmt.Sprintf("http://%s:%d", s.cfg.Host, s.opts.Port)
}

// Start binds the HTTP listener, performs the initial compile, and enters
// the running state. A port that cannot be bound fails with a BindError
// before any watcher or subscriber state exists.
func (s *Session) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return qmderrors.NewInternalError("session already started", nil)
	}

	if err := s.rebuild(ctx); err != nil {
		s.state.Store(int32(StateStopped))
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.opts.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.state.Store(int32(StateStopped))
		return qmderrors.NewBindError(s.opts.Port, err)
	}
	s.listener = listener

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.hub = NewHub(s.allowedOrigins(), s.log)
	go s.hub.Run(runCtx)

	watcher, err := NewWatcher(s.cfg.Debounce(), s.onFilesChanged, s.log)
	if err != nil {
		s.closeListener()
		cancel()
		s.state.Store(int32(StateStopped))
		return qmderrors.NewInternalError("could not create file watcher", err)
	}
	s.watcher = watcher
	for _, path := range s.watchSet() {
		if err := watcher.Add(path); err != nil {
			s.log.Warn(ctx, err, "could not watch file", "path", path)
		}
	}
	watcher.Start(runCtx)

	go s.rebuildLoop(runCtx)

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRender)
	mux.HandleFunc("/ws", s.hub.HandleWebSocket)
	mux.HandleFunc("/status", s.handleStatus)

	s.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Warn(runCtx, err, "preview server stopped")
		}
	}()

	s.state.Store(int32(StateRunning))
	s.log.Info(ctx, "preview started", "url", s.URL(), "watched", len(s.watchSet()))

	if s.opts.OpenBrowser {
		openBrowser(s.URL())
	}
	return nil
}

// Stop closes the listener, drops all subscribers, releases watch handles,
// and cancels any in-flight rebuild's subprocess. Idempotent.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.closeListener()
		if s.watcher != nil {
			s.watcher.Close()
		}
		s.state.Store(int32(StateStopped))
		s.log.Info(context.Background(), "preview stopped")
	})
}

func (s *Session) closeListener() {
	if s.httpSrv != nil {
		s.httpSrv.Close()
	} else if s.listener != nil {
		s.listener.Close()
	}
}

func (s *Session) allowedOrigins() []string {
	origins := []string{
		fmt.Sprintf("%s:%d", s.cfg.Host, s.opts.Port),
		fmt.Sprintf("localhost:%d", s.opts.Port),
		fmt.Sprintf("127.0.0.1:%d", s.opts.Port),
	}
	return append(origins, s.cfg.AllowedOrigins...)
}

func (s *Session) watchSet() []string {
	set := s.opts.WatchFiles
	if s.opts.InputFile != "" {
		set = append([]string{s.opts.InputFile}, set...)
	}
	return set
}

// onFilesChanged requests a rebuild. The non-blocking send is what makes
// changes coalesce: if a rebuild is already pending, the slot is occupied
// and the new change rides along with it.
func (s *Session) onFilesChanged(paths []string) {
	s.log.Debug(context.Background(), "files changed", "paths", strings.Join(paths, ","))
	select {
	case s.rebuildCh <- struct{}{}:
	default:
	}
}

// rebuildLoop serializes rebuilds. A failed rebuild keeps the last good
// render in place and is surfaced only through logs and the status
// endpoint; the session stays up.
func (s *Session) rebuildLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.rebuildCh:
			if err := s.rebuild(ctx); err != nil {
				s.log.Warn(ctx, err, "rebuild failed")
				continue
			}
			if s.opts.AutoReload && s.hub != nil {
				s.hub.Broadcast([]byte("reload"))
			}
		}
	}
}

// rebuild compiles the document and, on success, swaps in the new render.
func (s *Session) rebuild(ctx context.Context) error {
	result, err := s.comp.Compile(ctx, compiler.CompileRequest{
		SourceContent: s.opts.SourceContent,
		InputFile:     s.opts.InputFile,
		Format:        compiler.FormatHTML,
		Template:      s.opts.Theme,
		Wrap:          true,
	})
	if err != nil {
		return err
	}
	if !result.Succeeded {
		return qmderrors.NewCompileError("preview compile failed", nil).
			WithContext("log", result.RawLog())
	}

	body := result.Output
	if s.opts.AutoReload {
		body = injectReloadScript(body)
	}

	sum := sha256.Sum256(body)
	s.renderMu.Lock()
	s.render = body
	s.renderHash = hex.EncodeToString(sum[:8])
	s.renderMu.Unlock()
	return nil
}

// handleRender serves the latest render. Never blocks on a rebuild in
// progress; while one is underway this is the last good render.
func (s *Session) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.renderMu.RLock()
	body := s.render
	hash := s.renderHash
	s.renderMu.RUnlock()

	if len(body) == 0 {
		http.Error(w, "no render available yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", compiler.FormatHTML.ContentType())
	w.Header().Set("ETag", `"`+hash+`"`)
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(body)
}

func (s *Session) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.renderMu.RLock()
	hash := s.renderHash
	s.renderMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"session_id":%q,"state":%q,"render_hash":%q,"subscribers":%d}`,
		s.ID, s.State().String(), hash, s.hub.SubscriberCount())
}

const reloadScript = `<script>
(function() {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  function connect() {
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onmessage = function(e) { if (e.data === "reload") location.reload(); };
    ws.onclose = function() { setTimeout(connect, 1000); };
  }
  connect();
})();
</script>`

// injectReloadScript places the live-reload client before </body>, or
// appends it when the document has no closing tag.
func injectReloadScript(body []byte) []byte {
	html := string(body)
	if idx := strings.LastIndex(strings.ToLower(html), "</body>"); idx >= 0 {
		return []byte(html[:idx] + reloadScript + html[idx:])
	}
	return append(body, []byte(reloadScript)...)
}

// openBrowser makes a best-effort attempt to open the URL in the user's
// default browser.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_ = cmd.Start()
}

// Manager tracks live sessions by id.
type Manager struct {
	cfg  config.PreviewConfig
	comp *compiler.Compiler
	log  logging.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager(cfg config.PreviewConfig, comp *compiler.Compiler, log logging.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		comp:     comp,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// Start creates and starts a session.
func (m *Manager) Start(ctx context.Context, opts Options) (*Session, error) {
	if opts.Port == 0 {
		opts.Port = m.cfg.Port
	}

	s := NewSession(m.cfg, m.comp, opts, m.log)
	if err := s.Start(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s, nil
}

// Get looks a session up by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Stop stops and forgets one session.
func (m *Manager) Stop(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Stop()
	}
	return ok
}

// StopAll stops every live session. Used at server shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
}
