package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/evrelay/internal/config"
	"github.com/die-net/evrelay/internal/dialer"
	"github.com/die-net/evrelay/internal/logging"
	"github.com/die-net/evrelay/internal/proxy"
)

func main() {
	if err := run(os.Args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := config.NewFlagSet(args[0])
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [LISTEN [UPSTREAM]]\n", args[0])
		fs.PrintDefaults()
	}

	cfg, err := config.Load(fs, args[1:])
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	defer func() { _ = log.Sync() }()

	d, err := dialer.New(cfg.DialerConfig(), cfg.Via)
	if err != nil {
		return fmt.Errorf("%w: --via: %w", config.ErrInvalidConfig, err)
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DebugListen != "" {
		debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
		lc := net.ListenConfig{KeepAliveConfig: cfg.KeepAlive}
		debugLn, err := lc.Listen(ctx, "tcp", cfg.DebugListen)
		if err != nil {
			return fmt.Errorf("debug listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = debugSrv.Close()
		})

		g.Go(func() error {
			if err := debugSrv.Serve(debugLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("debug serve: %w", err)
			}
			return nil
		})
		log.Info("debug listening", zap.String("addr", cfg.DebugListen))
	}

	ln, err := proxy.ListenTCP(ctx, "tcp", cfg.Listen, proxy.ListenOptions{
		KeepAlive: cfg.KeepAlive,
		ReusePort: cfg.ReusePort,
	})
	if err != nil {
		return err
	}

	srv := proxy.NewServer(proxy.Config{
		Target:   cfg.UpstreamAddr,
		Dialer:   d,
		Relay:    cfg.RelayConfig(),
		Endpoint: cfg.EndpointConfig(),
		Logger:   log,
	})

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil {
			return fmt.Errorf("relay serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down", zap.Int64("active", srv.Active()), zap.Duration("timeout", cfg.ShutdownTimeout))

		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn("connections force-closed", zap.Error(err))
		}
		return nil
	})

	log.Info("listening",
		zap.Stringer("addr", ln.Addr()),
		zap.String("upstream", cfg.Upstream),
		zap.String("via", cfg.Via))

	err = g.Wait()
	log.Info("stopped")
	return err
}
