package systray

import (
	"log/slog"
	"os/exec"
	"runtime"
	"sync"

	"github.com/getlantern/systray"
)

// Options configures the tray menu
type Options struct {
	// OnShow runs when "Show history" is clicked
	OnShow func()
	// OnPause runs when capture is paused or resumed from the menu
	OnPause func(paused bool)
	Paused  bool
	Logger  *slog.Logger
}

// SystrayManager manages the system tray icon and menu
type SystrayManager struct {
	opts     Options
	iconData []byte
	log      *slog.Logger
	quit     chan struct{}

	// mu guards the pause item, created on the systray goroutine, and its state
	mu     sync.Mutex
	pause  *systray.MenuItem
	paused bool
}

// NewSystrayManager creates a new systray manager
func NewSystrayManager(opts Options) *SystrayManager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &SystrayManager{
		opts:     opts,
		iconData: Icon(),
		log:      opts.Logger.With("component", "systray"),
		quit:     make(chan struct{}),
		paused:   opts.Paused,
	}
}

// Run starts the system tray (blocking call)
func (m *SystrayManager) Run() {
	systray.Run(m.onReady, m.onExit)
}

// Stop stops the system tray
func (m *SystrayManager) Stop() {
	systray.Quit()
}

// WaitForQuit returns a channel that will be closed when user clicks Quit
func (m *SystrayManager) WaitForQuit() <-chan struct{} {
	return m.quit
}

// SetPaused updates the pause check mark after a config reload
func (m *SystrayManager) SetPaused(paused bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = paused
	if m.pause != nil {
		setChecked(m.pause, paused)
	}
}

// Paused reports the state shown by the pause menu item
func (m *SystrayManager) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// togglePaused flips the pause state after a menu click
func (m *SystrayManager) togglePaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = !m.paused
	if m.pause != nil {
		setChecked(m.pause, m.paused)
	}
	return m.paused
}

func setChecked(item *systray.MenuItem, checked bool) {
	if checked {
		item.Check()
	} else {
		item.Uncheck()
	}
}

// onReady is called when the systray is ready
func (m *SystrayManager) onReady() {
	// Set icon
	if len(m.iconData) > 0 {
		systray.SetIcon(m.iconData)
	}

	// Set tooltip
	systray.SetTitle("clipkeeper")
	systray.SetTooltip("clipkeeper - Clipboard history")

	// Add menu items
	mShow := systray.AddMenuItem("Show history", "Open the clipboard history")
	mPause := systray.AddMenuItem("Pause capture", "Stop recording clipboard changes")
	m.mu.Lock()
	m.pause = mPause
	setChecked(mPause, m.paused)
	m.mu.Unlock()
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Exit clipkeeper")

	// Handle menu clicks
	go func() {
		for {
			select {
			case <-mShow.ClickedCh:
				if m.opts.OnShow != nil {
					m.opts.OnShow()
				}
			case <-mPause.ClickedCh:
				paused := m.togglePaused()
				m.log.Info("Capture pause toggled from system tray", "paused", paused)
				if m.opts.OnPause != nil {
					m.opts.OnPause(paused)
				}
			case <-mQuit.ClickedCh:
				m.log.Info("User requested quit from system tray")
				close(m.quit)
				systray.Quit()
				return
			}
		}
	}()
}

// onExit is called when the systray is exiting
func (m *SystrayManager) onExit() {
	m.log.Info("System tray exited")
}

// OpenURL opens url in the default browser
func OpenURL(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
