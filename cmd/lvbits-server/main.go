// lvbits-server serves the image compression API.
//
// Configuration is read from --config, or the file named by LVBITS_CONFIG, or the
// built-in defaults. The codec model is loaded on the first request unless
// codec.preload is set.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/arloliu/lvbits/api"
	"github.com/arloliu/lvbits/codec"
	"github.com/arloliu/lvbits/config"
	"github.com/arloliu/lvbits/orchestrator"
	"github.com/arloliu/lvbits/session"
	"github.com/arloliu/lvbits/staging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, addr string
	var showVersion bool

	flagSet := pflag.NewFlagSet("lvbits-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML config file (default: $"+config.EnvConfig+")")
	flagSet.StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	flagSet.BoolVar(&showVersion, "version", false, "print the version and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("lvbits-server %s\n", version)
		return nil
	}

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := cfg.NewLogger(os.Stderr)
	logger.Info("starting lvbits-server", "version", version, "model", cfg.Codec.Model)

	loadCfg, err := cfg.LoadConfig()
	if err != nil {
		return err
	}

	stager, err := staging.NewStager(staging.WithDir(cfg.Staging.Dir), staging.WithLogger(logger))
	if err != nil {
		return err
	}

	sess, err := session.New(codec.Load, loadCfg,
		session.WithInitRetry(cfg.Codec.RetryInit),
		session.WithSerializedInvocation(cfg.Codec.Serialize),
		session.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(sess, stager, orchestrator.WithLogger(logger))
	if err != nil {
		return err
	}

	srv := api.NewServer(cfg.APIConfig(version), orch, sess, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Codec.Preload {
		// a failed preload is reported by /healthz; the server still starts
		if _, err := sess.Get(ctx); err != nil {
			logger.Error("codec preload failed", "error", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return <-errCh
}
