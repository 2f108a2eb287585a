// xapitest logs in to the venue, subscribes to tick prices, and streams
// drained records to the console until interrupted.
// Usage: go run ./cmd/xapitest --env demo --symbols EURUSD,USDJPY
//
// Credentials are read from ~/.xapi/credentials.yaml unless overridden
// with --credentials.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/venuewire/xapi"
	"github.com/venuewire/xapi/internal/config"
	"github.com/venuewire/xapi/internal/creds"
	"github.com/venuewire/xapi/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	credsPath := flag.String("credentials", "", "path to credentials file (default ~/.xapi/credentials.yaml)")
	env := flag.String("env", "demo", "environment: demo or live")
	symbols := flag.String("symbols", "EURUSD", "comma-separated symbols to stream tick prices for")
	drainEvery := flag.Duration("drain-every", time.Second, "how often to drain the tick buffer")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("xapitest", version.String())
		return
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	if err := run(logger, *configPath, *credsPath, *env, strings.Split(*symbols, ","), *drainEvery); err != nil {
		logger.Error("xapitest failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath, credsPath, env string, symbols []string, drainEvery time.Duration) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.LoadAndValidate(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	if credsPath == "" {
		var err error
		credsPath, err = creds.DefaultPath()
		if err != nil {
			return err
		}
	}
	credsFile, err := creds.Load(credsPath)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	cr, err := credsFile.Resolve(config.Environment(env))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session := xapi.New(cfg, cr, logger)
	if err := session.Login(ctx); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer session.Logout()

	ver, err := session.GetVersion()
	if err != nil {
		return fmt.Errorf("getVersion: %w", err)
	}
	st, err := session.GetServerTime()
	if err != nil {
		return fmt.Errorf("getServerTime: %w", err)
	}
	logger.Info("connected", "api_version", ver, "server_time", st.TimeString)

	subs := make([]*xapi.Subscription, 0, len(symbols))
	for _, symbol := range symbols {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		sub, err := session.StreamTickPrices(symbol)
		if err != nil {
			return fmt.Errorf("subscribe tick prices %s: %w", symbol, err)
		}
		subs = append(subs, sub)
	}
	logger.Info("streaming", "symbols", symbols, "drain_every", drainEvery)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(drainEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				for _, sub := range subs {
					for _, rec := range sub.Drain() {
						line, err := json.Marshal(rec)
						if err != nil {
							continue
						}
						fmt.Println(string(line))
					}
					if dropped := sub.Dropped(); dropped > 0 {
						logger.Warn("records dropped unread", "symbol", sub.Symbol(), "count", dropped)
					}
				}
			}
		}
	})

	g.Go(func() error {
		// Surface background session failure instead of draining forever.
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if s := session.State(); s != xapi.StateAuthenticated {
					return fmt.Errorf("session left authenticated state: %s", s)
				}
			}
		}
	})

	err = g.Wait()
	logger.Info("shutting down")
	return err
}
