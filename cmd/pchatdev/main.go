package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/matheus3301/pchat/internal/config"
	"github.com/matheus3301/pchat/internal/devserver"
	"github.com/matheus3301/pchat/internal/logging"
	"github.com/matheus3301/pchat/internal/session"
	"github.com/matheus3301/pchat/internal/store"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}

	if len(os.Args) > 1 && os.Args[1] == "token" {
		cmdToken(cfg, os.Args[2:])
		return
	}
	cmdServe(cfg, os.Args[1:])
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: pchatdev [--addr <addr>] [--db <path>] [--reset] [--secret <s>]")
	fmt.Fprintln(os.Stderr, "       pchatdev token [--secret <s>] <user-id>")
}

func cmdServe(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("pchatdev", flag.ExitOnError)
	fs.Usage = printUsage
	addr := fs.String("addr", cfg.Dev.Addr, "listen address")
	dbPath := fs.String("db", cfg.Dev.DBPath, "SQLite database path")
	reset := fs.Bool("reset", false, "drop and recreate the schema before serving")
	secret := fs.String("secret", cfg.Dev.JWTSecret, "HS256 secret; empty disables auth")
	_ = fs.Parse(args)

	if *dbPath == "" {
		*dbPath = session.DevDBPath()
	}

	logger, err := logging.New(logging.Options{
		Path:    session.LogPath("dev"),
		Session: "dev",
		Level:   cfg.Log.Level,
		Stderr:  true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	db, err := store.Open(*dbPath)
	if err != nil {
		logger.Fatal("open database", zap.String("path", *dbPath), zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	migrateFn := db.Migrate
	if *reset {
		migrateFn = db.Reset
	}
	res, err := migrateFn()
	if err != nil {
		logger.Fatal("migrate database", zap.Error(err))
	}
	logger.Info("database ready",
		zap.String("path", db.Path()),
		zap.Uint("version", res.Version),
		zap.Bool("changed", res.Changed),
	)

	var auth *devserver.Auth
	if *secret != "" {
		auth = &devserver.Auth{Secret: []byte(*secret)}
	} else {
		logger.Warn("bearer auth disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := devserver.New(db, auth, logger).ListenAndServe(ctx, *addr); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func cmdToken(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	fs.Usage = printUsage
	secret := fs.String("secret", cfg.Dev.JWTSecret, "HS256 secret")
	_ = fs.Parse(args)

	if fs.NArg() != 1 || *secret == "" {
		printUsage()
		os.Exit(1)
	}
	userID, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil || userID <= 0 {
		fmt.Fprintf(os.Stderr, "error: invalid user id %q\n", fs.Arg(0))
		os.Exit(1)
	}

	token, err := (&devserver.Auth{Secret: []byte(*secret)}).Mint(userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
