package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodsign/monday"
	"github.com/matheus3301/pchat/internal/bus"
	"github.com/matheus3301/pchat/internal/chat"
	"github.com/matheus3301/pchat/internal/config"
	"github.com/matheus3301/pchat/internal/daemon"
	"github.com/matheus3301/pchat/internal/peer"
	"github.com/matheus3301/pchat/internal/session"
	intsync "github.com/matheus3301/pchat/internal/sync"
	"github.com/matheus3301/pchat/internal/tui"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	peerFlag := flag.Int64("peer", 0, "user id of the counterpart")
	viewerFlag := flag.Int64("viewer", 0, "viewer user id (overrides profile.viewer_id)")
	flag.Parse()

	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}

	sessionName := session.ResolveWith(*sessionFlag, cfg)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *viewerFlag != 0 {
		cfg.Profile.ViewerID = *viewerFlag
	}
	if err := session.ValidatePair(cfg.Profile.ViewerID, *peerFlag); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var (
		engine    *intsync.Engine
		directory *peer.Directory
		events    *bus.Bus
		logger    *zap.Logger
	)
	app := fx.New(
		daemon.Module(daemon.Params{
			SessionName: sessionName,
			PeerID:      *peerFlag,
			Config:      cfg,
		}),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		fx.Populate(&engine, &directory, &events, &logger),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ui := tui.NewApp(tui.Options{
		Session:  sessionName,
		Engine:   engine,
		Profiles: directory,
		Bus:      events,
		Labeler: chat.Labeler{
			Now:      time.Now,
			Location: cfg.Location(),
			Locale:   monday.Locale(cfg.Profile.Locale),
		},
		Logger: logger.Named("tui"),
	})

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	go func() {
		<-sigCtx.Done()
		ui.Stop()
	}()

	runErr := ui.Run()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error: shutdown: %v\n", err)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}
