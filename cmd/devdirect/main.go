package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/theroutercompany/devdirect_website/internal/config"
	"github.com/theroutercompany/devdirect_website/internal/paths"
	"github.com/theroutercompany/devdirect_website/internal/settings"
	pkglog "github.com/theroutercompany/devdirect_website/pkg/log"
	siteruntime "github.com/theroutercompany/devdirect_website/pkg/runtime"
)

var errUntrustedURL = errors.New("url is not served by the trusted storage host")

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "init":
		err = initCommand(os.Args[2:])
	case "convert-env":
		err = convertEnvCommand(os.Args[2:])
	case "settings":
		err = settingsCommand(os.Args[2:])
	case "check-url":
		err = checkURLCommand(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}

	if syncErr := pkglog.Sync(); syncErr != nil {
		log.Printf("logger sync failed: %v", syncErr)
	}
	if err != nil {
		log.Fatalf("devdirect %s: %v", os.Args[1], err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: devdirect <command> [options]\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  run          Serve the site using the provided config\n")
	fmt.Fprintf(os.Stderr, "  validate     Validate configuration without starting the server\n")
	fmt.Fprintf(os.Stderr, "  init         Generate a config skeleton\n")
	fmt.Fprintf(os.Stderr, "  convert-env  Snapshot environment variables into a YAML config\n")
	fmt.Fprintf(os.Stderr, "  settings     Print the company settings the site would display\n")
	fmt.Fprintf(os.Stderr, "  check-url    Report whether a media URL is served by the trusted storage host\n")
}

func loadOptions(configPath string) []config.Option {
	opts := []config.Option{}
	if strings.TrimSpace(configPath) != "" {
		opts = append(opts, config.WithPath(configPath))
	}
	return opts
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to site configuration file")
	watch := fs.Bool("watch", false, "Watch the config file for changes and restart with the new values")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := loadOptions(*configPath)
	cfg, err := config.Load(opts...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := siteruntime.New(cfg)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Printf("close settings store: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		reloadCh   <-chan config.Config
		watchErrCh <-chan error
	)
	if *watch {
		if *configPath == "" {
			return errors.New("--config is required when --watch is enabled")
		}
		cfgCh, errCh, cancelWatch, err := watchConfig(ctx, *configPath, opts)
		if err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		defer cancelWatch()
		reloadCh, watchErrCh = cfgCh, errCh
	}

	runCtx, runCancel := context.WithCancel(ctx)
	runDone := make(chan error, 1)
	go func() { runDone <- rt.Run(runCtx) }()

	for {
		select {
		case err := <-runDone:
			runCancel()
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case next, ok := <-reloadCh:
			if !ok {
				reloadCh = nil
				continue
			}
			runCancel()
			if err := <-runDone; err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			if err := rt.Reload(next); err != nil {
				return fmt.Errorf("reload config: %w", err)
			}
			runCtx, runCancel = context.WithCancel(ctx)
			runDone = make(chan error, 1)
			go func() { runDone <- rt.Run(runCtx) }()
			log.Printf("configuration reloaded")
		case err, ok := <-watchErrCh:
			if !ok {
				watchErrCh = nil
				continue
			}
			if err != nil {
				log.Printf("config watch error: %v", err)
			}
		case <-ctx.Done():
			runCancel()
			if err := <-runDone; err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		}
	}
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to site configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := config.Load(loadOptions(*configPath)...); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	fmt.Println("configuration valid")
	return nil
}

func initCommand(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	outputPath := fs.String("path", "devdirect.yaml", "Destination path for generated config")
	force := fs.Bool("force", false, "Overwrite existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*force {
		if _, err := os.Stat(*outputPath); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", *outputPath)
		}
	}

	if err := os.WriteFile(*outputPath, []byte(sampleConfigYAML), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("configuration written to %s\n", *outputPath)
	return nil
}

func convertEnvCommand(args []string) error {
	fs := flag.NewFlagSet("convert-env", flag.ExitOnError)
	configPath := fs.String("config", "", "Optional config file to merge before env overrides")
	outputPath := fs.String("output", "", "Destination path for generated YAML (stdout when empty)")
	force := fs.Bool("force", false, "Overwrite existing output file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(loadOptions(*configPath)...)
	if err != nil {
		return fmt.Errorf("load config from environment: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	path := strings.TrimSpace(*outputPath)
	if path == "" {
		fmt.Print(string(data))
		return nil
	}

	if !*force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("output file %s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat output file: %w", err)
		}
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure output directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}

	fmt.Printf("configuration written to %s\n", path)
	return nil
}

func settingsCommand(args []string) error {
	fs := flag.NewFlagSet("settings", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to site configuration file")
	timeout := fs.Duration("timeout", 5*time.Second, "Time allowed for reading the settings store")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(loadOptions(*configPath)...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	storage, err := settings.Open(cfg.Settings)
	if err != nil {
		return err
	}
	if closer, ok := storage.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	company := settings.NewLoader(storage).Load(ctx)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(company)
}

func checkURLCommand(args []string) error {
	fs := flag.NewFlagSet("check-url", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to site configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected exactly one URL argument")
	}

	cfg, err := config.Load(loadOptions(*configPath)...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	raw := fs.Arg(0)
	validator := paths.NewStorageURLValidator(cfg.Storage.BaseURL, cfg.Storage.TrustedSuffix)
	if !validator.Valid(raw) {
		fmt.Printf("untrusted %s\n", raw)
		return errUntrustedURL
	}
	fmt.Printf("trusted %s\n", raw)
	return nil
}

func watchConfig(parent context.Context, path string, opts []config.Option) (<-chan config.Config, <-chan error, context.CancelFunc, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, nil, err
	}
	// Editors replace files on save, so watch the directory rather than the file.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, nil, nil, fmt.Errorf("watch directory: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	reloadCh := make(chan config.Config)
	errCh := make(chan error, 1)

	go func() {
		defer close(reloadCh)
		defer close(errCh)
		defer watcher.Close()

		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !targetsFile(evt.Name, absPath) {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				debounce = time.After(200 * time.Millisecond)
			case <-debounce:
				debounce = nil
				cfg, err := config.Load(opts...)
				if err != nil {
					select {
					case errCh <- err:
					default:
					}
					continue
				}
				select {
				case reloadCh <- cfg:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return reloadCh, errCh, cancel, nil
}

func targetsFile(eventPath, target string) bool {
	if eventPath == "" {
		return false
	}
	abs, err := filepath.Abs(eventPath)
	if err != nil {
		return false
	}
	return abs == target
}

const sampleConfigYAML = `# devdirect site configuration
version: dev

http:
  port: 8080
  shutdownTimeout: 15s
  basePath: /devdirect-website

storage:
  # Base URL of the hosted media storage. Media URLs on this host, or on any
  # host ending with trustedSuffix, are accepted.
  baseURL: ""
  trustedSuffix: .supabase.co
  healthPath: /storage/v1/version
  readinessTimeout: 2s

settings:
  # none | memory | file | sqlite | redis
  store: file
  path: data/settings.json
  redisAddr: ""
  redisPrefix: "devdirect:"

sessions:
  ttl: 30m
  cookieName: devdirect_session

cors:
  allowedOrigins: []

rateLimit:
  window: 60s
  max: 300

metrics:
  enabled: true
`
