package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"markestedt/clipkeeper/capture"
	"markestedt/clipkeeper/clip"
	"markestedt/clipkeeper/config"
	"markestedt/clipkeeper/foreground"
	"markestedt/clipkeeper/keyhook"
	"markestedt/clipkeeper/paste"
	"markestedt/clipkeeper/pastetarget"
	"markestedt/clipkeeper/platform"
	"markestedt/clipkeeper/storage"
	"markestedt/clipkeeper/systray"
	"markestedt/clipkeeper/web"
)

// hotkeys are the combos the agent claims from the keyboard hook
type hotkeys struct {
	toggle    keyhook.Combo
	favorites keyhook.Combo
	hasFav    bool
}

// Agent wires the keyboard hook, foreground tracking, capture and paste together
type Agent struct {
	cfgPath string
	log     *slog.Logger

	cfgMu sync.RWMutex
	cfg   *config.Config

	db         *storage.DB
	clipboard  platform.Clipboard
	suppressor *keyhook.Suppressor
	tracker    *foreground.Tracker
	coord      *pastetarget.Coordinator
	capture    *capture.Service
	writer     *paste.RetryWriter
	paster     *paste.Orchestrator
	web        *web.Server
	tray       *systray.SystrayManager

	keys atomic.Pointer[hotkeys]

	// pasteMu serializes pastes; pasting counts pastes in flight, queued ones included
	pasteMu sync.Mutex
	pasting atomic.Int32
}

// comboFromConfig converts a parsed hotkey to the form the hook matches on
func comboFromConfig(s string) (keyhook.Combo, error) {
	kc, err := config.ParseHotkey(s)
	if err != nil {
		return keyhook.Combo{}, err
	}
	vk, err := keyhook.VKCode(kc.Key)
	if err != nil {
		return keyhook.Combo{}, err
	}

	var mods keyhook.Modifiers
	if kc.Ctrl {
		mods |= keyhook.ModCtrl
	}
	if kc.Alt {
		mods |= keyhook.ModAlt
	}
	if kc.Shift {
		mods |= keyhook.ModShift
	}
	if kc.Win {
		mods |= keyhook.ModWin
	}
	return keyhook.Combo{Key: vk, Mods: mods}, nil
}

func parseHotkeys(cfg config.HotkeyConfig) (*hotkeys, error) {
	toggle, err := comboFromConfig(cfg.Toggle)
	if err != nil {
		return nil, fmt.Errorf("invalid toggle hotkey %q: %w", cfg.Toggle, err)
	}
	hk := &hotkeys{toggle: toggle}
	if cfg.Favorites != "" {
		fav, err := comboFromConfig(cfg.Favorites)
		if err != nil {
			return nil, fmt.Errorf("invalid favorites hotkey %q: %w", cfg.Favorites, err)
		}
		hk.favorites = fav
		hk.hasFav = true
	}
	return hk, nil
}

// agentDeps are the OS collaborators; tests replace them
type agentDeps struct {
	hook      platform.KeyboardHook
	injector  platform.Injector
	fg        platform.ForegroundSource
	clipboard platform.Clipboard
}

func systemDeps() agentDeps {
	return agentDeps{
		hook:      platform.NewKeyboardHook(),
		injector:  platform.NewInjector(),
		fg:        platform.NewForegroundSource(),
		clipboard: platform.NewClipboard(),
	}
}

// NewAgent creates a new agent instance
func NewAgent(cfg *config.Config, cfgPath string, db *storage.DB, logger *slog.Logger) (*Agent, error) {
	return newAgent(cfg, cfgPath, db, systemDeps(), logger)
}

func newAgent(cfg *config.Config, cfgPath string, db *storage.DB, deps agentDeps, logger *slog.Logger) (*Agent, error) {
	if logger == nil {
		logger = slog.Default()
	}

	hk, err := parseHotkeys(cfg.Hotkey)
	if err != nil {
		return nil, err
	}
	guardKey, err := keyhook.VKCode(cfg.Guard.Key)
	if err != nil {
		return nil, fmt.Errorf("invalid guard key: %w", err)
	}

	a := &Agent{
		cfgPath:   cfgPath,
		log:       logger,
		cfg:       cfg,
		db:        db,
		clipboard: deps.clipboard,
	}
	a.keys.Store(hk)

	a.suppressor = keyhook.New(deps.hook, deps.injector, keyhook.Options{
		GuardEnabled:      cfg.Guard.Enabled,
		GuardKey:          guardKey,
		GuardReleaseDelay: cfg.Guard.ReleaseDelay(),
		Logger:            logger,
	})
	a.tracker = foreground.New(deps.fg, logger)
	a.coord = pastetarget.New(a.tracker, logger)
	a.capture = capture.New(db, capture.Options{
		MaxItemBytes: cfg.History.MaxItemBytes,
		Logger:       logger,
	})
	a.capture.Pause(cfg.History.Paused)

	a.writer = paste.NewRetryWriter(deps.clipboard)
	a.writer.Attempts = cfg.Paste.WriteAttempts
	a.writer.Backoff = cfg.Paste.WriteBackoff()
	a.writer.Logger = logger

	var ui paste.UI
	if cfg.Web.Enabled {
		a.web = web.NewServer(db, a, web.Options{
			Port:          cfg.Web.Port,
			OpenBrowser:   systray.OpenURL,
			OnVisibility:  a.onVisibility,
			OnShown:       a.rememberDashboardWindow,
			CapturePaused: a.capture.Paused,
			Logger:        logger,
		})
		ui = a.newDashboardUI(a.web)
	}
	a.paster = paste.New(a.writer, ui, a.coord, deps.injector, paste.Options{
		HideTimeout: cfg.Paste.HideTimeout(),
		WaitTimeout: cfg.Paste.WaitTimeout(),
		Logger:      logger,
	})

	if cfg.Tray.Enabled {
		a.tray = systray.NewSystrayManager(systray.Options{
			OnShow:  a.showUI,
			OnPause: a.setPaused,
			Paused:  cfg.History.Paused,
			Logger:  logger,
		})
	}

	return a, nil
}

func (a *Agent) config() *config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

// Run starts the agent's main event loop
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.tracker.Start(); err != nil {
		a.log.Warn("Foreground tracking unavailable, pastes use the fallback target check", "error", err)
	}
	defer a.tracker.Stop()

	unsubscribe := a.suppressor.Subscribe(a.onKeyPressed)
	defer unsubscribe()
	if err := a.suppressor.Start(); err != nil {
		a.log.Warn("Keyboard hook unavailable, hotkeys disabled", "error", err)
	}
	defer a.suppressor.Stop()

	if a.web != nil {
		if err := a.web.Start(ctx); err != nil {
			return fmt.Errorf("failed to start web server: %w", err)
		}
		defer a.web.Stop()
	}

	signals, err := a.clipboard.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch clipboard: %w", err)
	}

	changes := make(chan clip.Payload, 16)
	go a.readClipboard(ctx, signals, changes)
	go a.capture.Run(ctx, changes, a.onCapture)
	go a.cleanupLoop(ctx)

	if a.cfgPath != "" {
		go func() {
			if err := config.Watch(ctx, a.cfgPath, a.log, a.applyConfig); err != nil {
				a.log.Warn("Config reload disabled", "error", err)
			}
		}()
	}

	var quit <-chan struct{}
	if a.tray != nil {
		go a.tray.Run()
		defer a.tray.Stop()
		quit = a.tray.WaitForQuit()
	}

	cfg := a.config()
	a.log.Info("clipkeeper started", "toggle", cfg.Hotkey.Toggle, "favorites", cfg.Hotkey.Favorites, "guard", cfg.Guard.Enabled)

	select {
	case <-ctx.Done():
	case <-quit:
	}
	return nil
}

// readClipboard reads the clipboard on every change notification
func (a *Agent) readClipboard(ctx context.Context, signals <-chan struct{}, changes chan<- clip.Payload) {
	defer close(changes)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-signals:
			if !ok {
				return
			}
			p, err := a.clipboard.Read()
			if err != nil {
				a.log.Debug("Failed to read clipboard", "error", err)
				continue
			}
			select {
			case changes <- p:
			case <-ctx.Done():
				return
			}
		}
	}
}

// onKeyPressed runs on the hook thread; anything slow goes to a goroutine
func (a *Agent) onKeyPressed(key keyhook.VKey, mods keyhook.Modifiers) bool {
	hk := a.keys.Load()
	switch {
	case hk.toggle.Matches(key, mods):
		go a.toggleUI()
		return true
	case hk.hasFav && hk.favorites.Matches(key, mods):
		if a.web == nil {
			return false
		}
		go a.web.ToggleFavoritesFilter()
		return true
	}
	return false
}

func (a *Agent) showUI() {
	if a.web == nil {
		a.log.Warn("History UI requested but the web dashboard is disabled")
		return
	}
	a.web.Show()
}

func (a *Agent) toggleUI() {
	if a.web == nil {
		a.showUI()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.config().Paste.HideTimeout())
	defer cancel()
	a.web.Toggle(ctx)
}

// onVisibility freezes the paste target while the dashboard is shown. A
// paste in progress keeps the target until it finishes.
func (a *Agent) onVisibility(visible bool) {
	if visible {
		a.coord.Freeze()
		return
	}
	if a.pasting.Load() == 0 {
		a.releaseTarget()
	}
}

func (a *Agent) releaseTarget() {
	a.coord.Unfreeze()
	a.tracker.SetManagerWindow(0)
}

// rememberDashboardWindow registers the foreground window as the dashboard
// host. The dashboard lives in a browser process, so without this its
// window would pass as a paste target.
func (a *Agent) rememberDashboardWindow() {
	h := a.tracker.CurrentForeground()
	if h == 0 || a.tracker.IsOwnProcessWindow(h) {
		return
	}
	if target, frozen := a.coord.Target(); frozen && h == target {
		return
	}
	a.tracker.SetManagerWindow(h)
}

// Paste implements web.Paster. Pastes run one at a time and the target
// stays frozen until the last queued one finishes.
func (a *Agent) Paste(ctx context.Context, rec *clip.Record) error {
	a.pasting.Add(1)
	defer func() {
		if a.pasting.Add(-1) == 0 {
			a.releaseTarget()
		}
	}()

	// The request came from the dashboard, so it holds focus now
	if a.tracker.ManagerWindow() == 0 {
		a.rememberDashboardWindow()
	}

	a.pasteMu.Lock()
	defer a.pasteMu.Unlock()
	return a.paster.Paste(ctx, rec)
}

// dashboardUI hides the dashboard, then hands focus back to the frozen
// target. Browsers do not give focus away when a page blurs itself.
type dashboardUI struct {
	ui    paste.UI
	coord *pastetarget.Coordinator
	fg    *foreground.Tracker
	log   *slog.Logger
}

func (a *Agent) newDashboardUI(ui paste.UI) *dashboardUI {
	return &dashboardUI{ui: ui, coord: a.coord, fg: a.tracker, log: a.log}
}

func (d *dashboardUI) Hide(ctx context.Context) error {
	err := d.ui.Hide(ctx)
	if target, frozen := d.coord.Target(); frozen && target != 0 {
		if aerr := d.fg.Activate(target); aerr != nil {
			d.log.Warn("Failed to restore paste target focus", "target", target, "error", aerr)
		}
	}
	return err
}

func (a *Agent) onCapture(res capture.Result) {
	if a.web != nil {
		a.web.BroadcastCapture(res)
	}
}

func (a *Agent) setPaused(paused bool) {
	a.capture.Pause(paused)
	if a.web != nil {
		a.web.BroadcastStatus()
	}
}

// applyConfig applies the settings that can change without a restart.
// Paste timings and listener settings are read once at startup.
func (a *Agent) applyConfig(cfg *config.Config) {
	hk, err := parseHotkeys(cfg.Hotkey)
	if err != nil {
		a.log.Warn("Keeping previous hotkeys", "error", err)
	} else {
		a.keys.Store(hk)
	}

	a.suppressor.SetGuardEnabled(cfg.Guard.Enabled)

	if a.capture.Paused() != cfg.History.Paused {
		a.setPaused(cfg.History.Paused)
		if a.tray != nil {
			a.tray.SetPaused(cfg.History.Paused)
		}
	}

	a.cfgMu.Lock()
	a.cfg = cfg
	a.cfgMu.Unlock()
}

func (a *Agent) cleanup(ctx context.Context) {
	h := a.config().History
	deleted, err := a.db.Cleanup(ctx, h.MaxItems, h.MaxAge())
	if err != nil {
		a.log.Error("History cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		a.log.Info("History cleanup", "deleted", deleted)
	}
}

func (a *Agent) cleanupLoop(ctx context.Context) {
	a.cleanup(ctx)

	interval := a.config().History.CleanupInterval()
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			a.cleanup(ctx)
			timer.Reset(a.config().History.CleanupInterval())
		}
	}
}
