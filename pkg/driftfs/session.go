package driftfs

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/driftfs/driftfs-go/internal/metrics"
	"github.com/driftfs/driftfs-go/internal/native"
	"github.com/driftfs/driftfs-go/pkg/fserrors"
)

type sessionState int

const (
	stateActive sessionState = iota
	stateClosed
)

// Session is one mounted DriftFS volume. It owns exactly one native mount
// handle, resolved from the name and configuration passed to OpenSession.
// A Session may be shared by any number of Files and goroutines; it must
// outlive every File opened from it.
type Session struct {
	name    string
	cfg     *SessionConfig
	lib     native.Library
	handle  native.Handle
	logger  *slog.Logger
	metrics *metrics.Collector

	mu        sync.Mutex
	state     sessionState
	openFiles int
}

// OpenSession mounts the named volume and returns an active session. The
// native client library must have been registered first; cfg may be nil for
// defaults.
func OpenSession(name string, cfg *SessionConfig) (*Session, error) {
	if name == "" {
		return nil, fserrors.New(fserrors.ErrCodeMountFailed, "mount", "", "volume name is empty")
	}
	lib := native.Default()
	if lib == nil {
		return nil, fserrors.New(fserrors.ErrCodeNotInitialized, "mount", name,
			"native client library is not loaded")
	}

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fserrors.Wrap(fserrors.ErrCodeMountFailed, "mount", name, err)
	}
	opts, err := cfg.nativeOptions()
	if err != nil {
		return nil, fserrors.Wrap(fserrors.ErrCodeMountFailed, "mount", name, err)
	}

	handle, code := lib.Mount(name, opts)
	if code != native.OK {
		e := fserrors.New(fserrors.ErrCodeMountFailed, "mount", name,
			fmt.Sprintf("native mount failed: %s", code.Error()))
		e.Errno = int(code)
		return nil, e
	}

	s := &Session{
		name:   name,
		cfg:    cfg,
		lib:    lib,
		handle: handle,
		logger: slog.Default().With("component", "session", "volume", name),
		metrics: metrics.NewCollector(metrics.Config{
			Volume:       name,
			PushGateway:  cfg.PushGateway,
			PushInterval: time.Duration(cfg.PushIntervalS) * time.Second,
		}),
	}
	s.logger.Info("volume mounted", "meta", cfg.Meta, "read_only", cfg.ReadOnly)
	return s, nil
}

// Name returns the volume name the session was opened with.
func (s *Session) Name() string { return s.name }

// Config returns a copy of the resolved session configuration.
func (s *Session) Config() SessionConfig { return *s.cfg }

// OpenFiles reports how many Files opened from this session are still open.
func (s *Session) OpenFiles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openFiles
}

// Close unmounts the volume. It fails with SESSION_BUSY while Files opened
// from the session remain open; callers close their files first. A second
// Close after a successful one is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return nil
	}
	if s.openFiles > 0 {
		n := s.openFiles
		s.mu.Unlock()
		s.logger.Error("close refused, files still open", "open_files", n)
		return fserrors.New(fserrors.ErrCodeSessionBusy, "umount", s.name,
			fmt.Sprintf("%d files still open", n))
	}
	s.state = stateClosed
	s.mu.Unlock()

	code := s.lib.Umount(s.handle)
	s.observe("umount", code)
	s.metrics.Close()
	if code != native.OK {
		// The session is closed regardless; the handle must not be reused.
		s.logger.Error("native umount failed", "errno", int(code))
		e := fserrors.New(fserrors.ErrCodeMountFailed, "umount", s.name,
			fmt.Sprintf("native umount failed: %s", code.Error()))
		e.Errno = int(code)
		return e
	}
	s.logger.Info("volume unmounted")
	return nil
}

// MetricsRegistry exposes the session's Prometheus registry so embedders
// can serve it from their own endpoint.
func (s *Session) MetricsRegistry() *prometheus.Registry {
	return s.metrics.Registry()
}

// active fails when the session has been closed.
func (s *Session) active(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateActive {
		return fserrors.New(fserrors.ErrCodeSessionClosed, op, s.name, "session is closed")
	}
	return nil
}

func (s *Session) observe(op string, code native.Errno) {
	s.metrics.ObserveCall(op, code != native.OK)
}

func (s *Session) fileOpened() {
	s.mu.Lock()
	s.openFiles++
	s.mu.Unlock()
	s.metrics.FileOpened()
}

func (s *Session) fileClosed() {
	s.mu.Lock()
	if s.openFiles > 0 {
		s.openFiles--
	}
	s.mu.Unlock()
	s.metrics.FileClosed()
}
