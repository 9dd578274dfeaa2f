package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/skarlatos/foliograph/internal/analysis"
	"github.com/skarlatos/foliograph/internal/bus"
	"github.com/skarlatos/foliograph/internal/config"
	"github.com/skarlatos/foliograph/internal/coordinator"
	"github.com/skarlatos/foliograph/internal/extract"
	"github.com/skarlatos/foliograph/internal/llm"
	"github.com/skarlatos/foliograph/internal/store"
	"github.com/skarlatos/foliograph/internal/stream"
	"github.com/skarlatos/foliograph/internal/sweep"
	"github.com/skarlatos/foliograph/internal/vault"
	"github.com/skarlatos/foliograph/internal/web"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("foliograph %s\n", version)
	case "serve":
		if err := runServe(); err != nil {
			slog.Error("serve failed", "error", err)
			os.Exit(1)
		}
	case "export":
		if err := runExport(os.Args[2:]); err != nil {
			slog.Error("export failed", "error", err)
			os.Exit(1)
		}
	case "import":
		if err := runImport(os.Args[2:]); err != nil {
			slog.Error("import failed", "error", err)
			os.Exit(1)
		}
	case "vault":
		if err := runVault(os.Args[2:]); err != nil {
			slog.Error("vault command failed", "error", err)
			os.Exit(1)
		}
	case "watch":
		if err := runWatch(os.Args[2:]); err != nil {
			slog.Error("watch failed", "error", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: foliograph <command>

Commands:
  serve      Start the extraction engine
  watch      Tail bus events from a running engine
  export     Archive the data directory to a .tar.zst file
  import     Restore the data directory from a .tar.zst file
  vault      Manage sealed credentials
  version    Print version
`)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting foliograph engine", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQLite store
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	// Embedded NATS
	b, err := bus.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer b.Close()
	slog.Info("nats started", "port", cfg.NATS.Port)

	// Event fan-out onto the bus
	var notifier coordinator.Notifier
	busClient, err := bus.NewClient(b)
	if err != nil {
		slog.Error("bus client failed, events disabled", "error", err)
	} else {
		notifier = bus.NewNotifier(busClient)
	}

	// Credentials sealed in the vault fill in whatever config left blank
	keyring, err := openKeyring(db)
	if err != nil {
		return err
	}
	if cfg.Gateway.APIKey == "" && keyring != nil {
		key, err := keyring.Get(vault.CredGatewayKey)
		if err != nil {
			return fmt.Errorf("read gateway key: %w", err)
		}
		if key != "" {
			cfg.Gateway.APIKey = key
			slog.Info("gateway key loaded from vault")
		}
	}
	if cfg.Web.Auth == "" && keyring != nil {
		token, err := keyring.Get(vault.CredWebAuth)
		if err != nil {
			return fmt.Errorf("read web auth token: %w", err)
		}
		cfg.Web.Auth = token
	}

	// Gateway client and continuation controller
	llmClient := llm.NewClient(llm.Config{
		Endpoint: cfg.Gateway.Endpoint,
		APIKey:   cfg.Gateway.APIKey,
		Model:    cfg.Gateway.Model,
		Timeout:  cfg.Gateway.Timeout,
	})
	ctrl := extract.NewController(llmClient, extract.Config{
		MaxBatches: cfg.Extract.MaxBatches,
		BatchDelay: cfg.Extract.BatchDelay,
		Session: stream.SessionConfig{
			RetryAttempts: cfg.Gateway.RetryAttempts,
			RetryDelay:    cfg.Gateway.RetryDelay,
		},
	})

	// Protocol coordinator and the analysis service on top
	coord := coordinator.New(notifier, cfg.Agents.IdleDelay)
	svc := analysis.New(coord, ctrl, db, llmClient)

	// Retention sweeper
	var sw *sweep.Sweeper
	if cfg.Sweep.Enabled {
		sw, err = sweep.New(db, cfg.Sweep)
		if err != nil {
			return fmt.Errorf("init sweeper: %w", err)
		}
		go sw.Start(ctx)
	}

	// Web API
	if cfg.Web.Enabled {
		srv := web.NewServer(db, svc, coord, b, cfg.Web, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
			}
		}()
		slog.Info("web server started", "port", cfg.Web.Port)
	}

	// SIGHUP reloads config; SIGINT/SIGTERM shut down
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			reloadConfig(cfg, sw)
			continue
		}
		slog.Info("shutting down", "signal", sig)
		break
	}
	cancel()
	return nil
}

// reloadConfig re-reads the config file and applies what can change at
// runtime. Settings baked into running components are only warned about.
func reloadConfig(cfg *config.Config, sw *sweep.Sweeper) {
	next, err := config.Load()
	if err != nil {
		slog.Error("config reload failed", "error", err)
		return
	}

	d := config.Diff(cfg, next)
	for _, name := range d.NonReloadable {
		slog.Warn("setting changed but needs a restart", "setting", name)
	}
	if d.SweepChanged && sw != nil {
		if err := sw.UpdateConfig(d.NewSweep); err != nil {
			slog.Error("sweep config rejected", "error", err)
		}
	}
	if !d.HasChanges() && len(d.NonReloadable) == 0 {
		slog.Info("config reloaded, no changes")
		return
	}

	*cfg = *next
	slog.Info("config reloaded")
}

// openKeyring opens the credential vault when a passphrase is present in the
// environment. No passphrase means no keyring, not an error.
func openKeyring(db *store.Store) (*vault.Keyring, error) {
	passphrase := os.Getenv("FOLIOGRAPH_VAULT_PASSPHRASE")
	if passphrase == "" {
		return nil, nil
	}
	k, err := vault.NewKeyring(db, passphrase)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}
	return k, nil
}
