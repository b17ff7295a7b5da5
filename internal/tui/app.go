// Package tui is the terminal front end of one conversation. It renders the
// engine's timeline and tells the engine when the newest message is on screen.
package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/pchat/internal/bus"
	"github.com/matheus3301/pchat/internal/chat"
	"github.com/matheus3301/pchat/internal/outbox"
	"github.com/matheus3301/pchat/internal/peer"
	"github.com/matheus3301/pchat/internal/status"
	intsync "github.com/matheus3301/pchat/internal/sync"
	"github.com/matheus3301/pchat/internal/tui/keys"
	"github.com/matheus3301/pchat/internal/tui/ui"
	"github.com/matheus3301/pchat/internal/tui/views"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const sendTimeout = 5 * time.Second

// Engine is the part of the sync engine the UI drives.
type Engine interface {
	ViewerID() int64
	Send(ctx context.Context, text string) (chat.Message, error)
	Snapshot(ctx context.Context) (intsync.Snapshot, error)
	TailVisible(seq uint64, visible bool)
}

// Profiles resolves the counterpart's header data.
type Profiles interface {
	Lookup(ctx context.Context, userID int64) (peer.Profile, error)
}

// Options configures the application shell.
type Options struct {
	Session  string
	Engine   Engine
	Profiles Profiles
	Bus      *bus.Bus
	Labeler  chat.Labeler
	Logger   *zap.Logger
}

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	theme     *ui.Theme
	header    *views.Header
	thread    *views.Thread
	composer  *views.Composer
	statusBar *views.StatusBar
	flash     *ui.FlashModel
	registry  *keys.Registry
	opts      Options
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc

	// pump goroutine only
	peerShown int64

	// draw goroutine only
	reported    bool
	lastSeq     uint64
	lastVisible bool
}

// NewApp creates the TUI application.
func NewApp(opts Options) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{
		app:       tview.NewApplication(),
		theme:     theme,
		header:    views.NewHeader(theme),
		thread:    views.NewThread(theme),
		composer:  views.NewComposer(theme),
		statusBar: views.NewStatusBar(theme),
		flash:     ui.NewFlashModel(),
		registry:  keys.NewRegistry(),
		opts:      opts,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetSession(opts.Session)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.Add(keys.Global, &keys.Action{
		Key: tcell.KeyTab, Description: "Tab:switch",
		Handler: a.toggleFocus,
	})
	a.registry.Add(keys.Thread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i', Description: "i:compose",
		Handler: func() { a.app.SetFocus(a.composer) },
	})
	a.registry.Add(keys.Thread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'q', Description: "q:quit",
		Handler: a.app.Stop,
	})
	a.statusBar.SetHints(a.registry.Hints(keys.Thread))
}

func (a *App) setupCallbacks() {
	a.composer.SetOnSend(func(text string) {
		go func() {
			ctx, cancel := context.WithTimeout(a.ctx, sendTimeout)
			defer cancel()
			if _, err := a.opts.Engine.Send(ctx, text); err != nil {
				a.logger.Warn("send failed", zap.Error(err))
				a.flash.Err(fmt.Errorf("send failed: %w", err))
				a.app.QueueUpdateDraw(func() { a.statusBar.SetFlash(a.flash.Current()) })
			}
		}()
	})

	a.app.SetAfterDrawFunc(func(tcell.Screen) { a.reportTail() })
}

func (a *App) setupLayout() {
	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.header, 1, 0, false).
		AddItem(a.thread, 0, 1, false).
		AddItem(a.composer, 1, 0, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)
	a.app.SetFocus(a.composer)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if a.composer.HasFocus() {
			switch event.Key() {
			case tcell.KeyEscape:
				a.app.SetFocus(a.thread)
				return nil
			case tcell.KeyTab:
				a.toggleFocus()
				return nil
			}
			// Let the input field handle everything else.
			return event
		}
		if a.registry.HandleEvent(keys.Thread, event) {
			return nil
		}
		return event
	})
}

func (a *App) toggleFocus() {
	if a.composer.HasFocus() {
		a.app.SetFocus(a.thread)
		return
	}
	a.app.SetFocus(a.composer)
}

// reportTail forwards tail visibility changes after each draw.
func (a *App) reportTail() {
	seq, ok := a.thread.Tail()
	if !ok {
		return
	}
	visible := a.thread.TailOnScreen()
	if a.reported && seq == a.lastSeq && visible == a.lastVisible {
		return
	}
	a.reported, a.lastSeq, a.lastVisible = true, seq, visible
	a.opts.Engine.TailVisible(seq, visible)
}

// Run starts the TUI and blocks until it is stopped.
func (a *App) Run() error {
	events, unsubscribe := a.opts.Bus.Subscribe("", 64)
	defer unsubscribe()
	defer a.cancel()

	go a.pump(events)
	go a.tick()

	return a.app.Run()
}

// pump turns bus events into redraws. Bursts collapse into one snapshot.
func (a *App) pump(events <-chan bus.Event) {
	a.refresh()
	for {
		select {
		case evt := <-events:
			a.handle(evt)
		drain:
			for {
				select {
				case evt := <-events:
					a.handle(evt)
				default:
					break drain
				}
			}
			a.refresh()
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) handle(evt bus.Event) {
	switch evt.Kind {
	case bus.KindSendFailed:
		if r, ok := evt.Payload.(outbox.Result); ok {
			a.flash.Err(fmt.Errorf("message not saved: %s", r.Err))
		}
	case bus.KindViewFailed:
		a.flash.Err(fmt.Errorf("conversation failed: %v", evt.Payload))
	case bus.KindLiveDown:
		a.flash.Warn("live updates unavailable")
	case bus.KindReceiptApplied:
		if n, ok := evt.Payload.(int); ok && n > 0 {
			a.flash.Info("messages read")
		}
	}
}

func (a *App) refresh() {
	snap, err := a.opts.Engine.Snapshot(a.ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, intsync.ErrStopped) {
			a.logger.Warn("snapshot failed", zap.Error(err))
		}
		return
	}
	if snap.PeerID != 0 && snap.PeerID != a.peerShown {
		a.peerShown = snap.PeerID
		go a.loadProfile(snap.PeerID)
	}

	groups := chat.Group(snap.Messages, a.opts.Labeler)
	viewerID := a.opts.Engine.ViewerID()
	a.app.QueueUpdateDraw(func() {
		a.thread.Update(groups, viewerID, a.opts.Labeler.Location)
		a.statusBar.SetView(snap.State, snap.Unread)
		a.statusBar.SetFlash(a.flash.Current())
		a.composer.SetEnabled(snap.State == status.Active)
	})
}

func (a *App) loadProfile(peerID int64) {
	a.app.QueueUpdateDraw(func() { a.header.SetPeer(peerID) })
	if a.opts.Profiles == nil {
		return
	}
	p, err := a.opts.Profiles.Lookup(a.ctx, peerID)
	if err != nil {
		a.logger.Warn("profile lookup failed", zap.Int64("peer", peerID), zap.Error(err))
		return
	}
	a.app.QueueUpdateDraw(func() {
		a.header.SetProfile(p)
		a.thread.SetPeer(p.Name)
	})
}

// tick expires flash messages and keeps the clock current.
func (a *App) tick() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.app.QueueUpdateDraw(func() { a.statusBar.SetFlash(a.flash.Current()) })
		case <-a.ctx.Done():
			return
		}
	}
}

// Stop shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
