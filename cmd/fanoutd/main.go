package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/strogmv/fanout/internal/app"
	"github.com/strogmv/fanout/internal/bootstrap"
	"github.com/strogmv/fanout/internal/config"
	"github.com/strogmv/fanout/internal/pkg/auth"
	"github.com/strogmv/fanout/internal/pkg/logger"
	"github.com/strogmv/fanout/internal/pkg/tracing"
)

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe()
	case "replay":
		err = runReplay(args)
	case "token":
		err = runToken(args)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("fanoutd failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`fanoutd - realtime broadcast fan-out service

Usage:
  fanoutd [serve]                      run the ingest API and subscriber gateway
  fanoutd replay [-limit N]            republish pending dead letters once
  fanoutd token -user ID [-roles a,b] [-groups 1,2] [-ttl 1h]
                                       sign a subscriber token for local testing

Configuration is read from the environment (see internal/config).`)
}

func setup(ctx context.Context) (*config.Config, *app.Container, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Init(cfg.LogLevel)

	shutdownTracing, err := tracing.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return nil, nil, nil, err
	}
	c, err := app.NewContainer(ctx, cfg)
	if err != nil {
		_ = shutdownTracing(context.Background())
		return nil, nil, nil, err
	}
	cleanup := func() {
		c.Close()
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}
	return cfg, c, cleanup, nil
}

func runServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, c, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	return bootstrap.Run(ctx, c)
}

func runReplay(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	limit := fs.Int("limit", 0, "maximum dead letters to replay (0 uses REPLAY_BATCH)")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, c, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	return bootstrap.Replay(ctx, c, *limit)
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	userID := fs.Int64("user", 0, "user id (token subject)")
	roles := fs.String("roles", "", "comma-separated role names")
	groups := fs.String("groups", "", "comma-separated group ids")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	_ = fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	if err != nil {
		return err
	}
	if *userID <= 0 {
		return fmt.Errorf("-user must be a positive id")
	}
	var groupIDs []int64
	for _, g := range splitList(*groups) {
		id, err := strconv.ParseInt(g, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid group id %q", g)
		}
		groupIDs = append(groupIDs, id)
	}
	token, err := verifier.Issue(*userID, splitList(*roles), groupIDs, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
