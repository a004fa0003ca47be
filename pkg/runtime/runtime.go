// Package runtime composes configuration, settings storage, readiness checks
// and the site HTTP server into a controllable lifecycle usable from the CLI
// or embedded in another program.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/theroutercompany/devdirect_website/internal/config"
	"github.com/theroutercompany/devdirect_website/internal/platform/health"
	"github.com/theroutercompany/devdirect_website/internal/settings"
	"github.com/theroutercompany/devdirect_website/internal/site"
	pkglog "github.com/theroutercompany/devdirect_website/pkg/log"
	"github.com/theroutercompany/devdirect_website/pkg/metrics"
)

var (
	// ErrAlreadyRunning indicates the runtime is already serving requests.
	ErrAlreadyRunning = errors.New("runtime already running")
	// ErrNotRunning indicates the runtime has not been started yet.
	ErrNotRunning = errors.New("runtime not running")
	// ErrReloadWhileRunning is returned when attempting to reload while serving.
	ErrReloadWhileRunning = errors.New("cannot reload runtime while it is running")
)

// Runtime orchestrates the site server lifecycle.
type Runtime struct {
	mu sync.Mutex

	cfg       config.Config
	logger    pkglog.Logger
	storage   settings.Storage
	openStore func(config.SettingsConfig) (settings.Storage, error)
	comps     components

	cancel context.CancelFunc
	errCh  chan error
}

type components struct {
	server   *site.Server
	checker  *health.Checker
	registry *metrics.Registry
	storage  settings.Storage
	owned    bool
}

// Option customises runtime behaviour.
type Option func(*Runtime)

// WithLogger overrides the logger used by the runtime and the site server.
func WithLogger(logger pkglog.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSettingsStorage pins the settings store instead of opening the one
// named by configuration. The runtime does not close a pinned store.
func WithSettingsStorage(storage settings.Storage) Option {
	return func(r *Runtime) {
		r.storage = storage
	}
}

// New constructs a runtime from the provided configuration.
func New(cfg config.Config, opts ...Option) (*Runtime, error) {
	rt := &Runtime{
		cfg:       cfg,
		logger:    pkglog.Shared(),
		openStore: settings.Open,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(rt)
		}
	}

	comps, err := rt.build(cfg)
	if err != nil {
		return nil, err
	}
	rt.comps = comps
	return rt, nil
}

// Start begins serving in the background until ctx is cancelled or Shutdown is called.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.errCh != nil {
		return ErrAlreadyRunning
	}
	if ctx == nil {
		ctx = context.Background()
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.errCh = make(chan error, 1)

	server := r.comps.server
	errCh := r.errCh
	go func() {
		errCh <- server.Start(runCtx)
		close(errCh)
	}()

	r.logger.Infow("site runtime started",
		"port", r.cfg.HTTP.Port,
		"basePath", r.cfg.HTTP.BasePath,
		"settingsStore", r.cfg.Settings.Store,
	)
	return nil
}

// Wait blocks until the runtime stops and returns the terminal error,
// normalising context cancellation to nil.
func (r *Runtime) Wait() error {
	r.mu.Lock()
	errCh := r.errCh
	r.mu.Unlock()

	if errCh == nil {
		return ErrNotRunning
	}

	err := <-errCh
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	r.mu.Lock()
	r.errCh = nil
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()

	return err
}

// Run starts the runtime and waits for completion.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	return r.Wait()
}

// Shutdown gracefully stops the runtime if it is running.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.errCh == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if r.cancel != nil {
		r.cancel()
	}
	return r.comps.server.Shutdown(ctx)
}

// Reload rebuilds dependencies from cfg. The runtime must not be running.
func (r *Runtime) Reload(cfg config.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.errCh != nil {
		return ErrReloadWhileRunning
	}

	comps, err := r.build(cfg)
	if err != nil {
		return err
	}

	previous := r.comps
	r.cfg = cfg
	r.comps = comps
	if previous.owned {
		r.closeStorage(previous.storage)
	}
	return nil
}

// Close releases the settings store connection, if the runtime opened one.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	storage, owned := r.comps.storage, r.comps.owned
	r.comps.storage, r.comps.owned = nil, false
	if !owned {
		return nil
	}
	if closer, ok := storage.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Config returns the runtime's current configuration.
func (r *Runtime) Config() config.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Handler exposes the site handler, mainly for in-process tests.
func (r *Runtime) Handler() http.Handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.comps.server.Handler()
}

// Settings returns the settings store currently in use.
func (r *Runtime) Settings() settings.Storage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.comps.storage
}

func (r *Runtime) build(cfg config.Config) (components, error) {
	storage, owned := r.storage, false
	if storage == nil {
		opened, err := r.openStore(cfg.Settings)
		if err != nil {
			return components{}, err
		}
		storage, owned = opened, true
	}

	readinessTimeout := cfg.Storage.ReadinessTimeout.AsDuration()
	client := &http.Client{Timeout: readinessTimeout, Transport: defaultHTTPTransport()}
	checker := health.NewChecker(client, []health.Dependency{{
		Name:       "storage",
		BaseURL:    cfg.Storage.BaseURL,
		HealthPath: cfg.Storage.HealthPath,
	}}, readinessTimeout)

	var registry *metrics.Registry
	if cfg.Metrics.Enabled {
		registry = metrics.NewRegistry()
	}

	srv, err := site.New(cfg, checker, registry,
		site.WithLogger(r.logger),
		site.WithSettingsStorage(storage),
	)
	if err != nil {
		if owned {
			r.closeStorage(storage)
		}
		return components{}, fmt.Errorf("build site server: %w", err)
	}

	return components{server: srv, checker: checker, registry: registry, storage: storage, owned: owned}, nil
}

func (r *Runtime) closeStorage(storage settings.Storage) {
	if closer, ok := storage.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			r.logger.Warnw("failed to close settings store", "error", err)
		}
	}
}

func defaultHTTPTransport() *http.Transport {
	if base, ok := http.DefaultTransport.(*http.Transport); ok && base != nil {
		return base.Clone()
	}
	return &http.Transport{}
}
