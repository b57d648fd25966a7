// Package keyhook turns raw low-level keyboard events into application key
// presses and enforces the suppression rules the application cannot: a
// suppressed key-down always has its key-up suppressed, and a suppressed
// Win+<key> combo never leaves the OS with a pending lone-Win gesture.
package keyhook

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"markestedt/clipkeeper/platform"
)

// DefaultGuardReleaseDelay is how long after a guard tap the compensating key-up is sent
const DefaultGuardReleaseDelay = 150 * time.Millisecond

// KeyPressedFunc receives each non-modifier key-down and returns true to suppress it
type KeyPressedFunc func(key VKey, mods Modifiers) bool

// GuardState is the Win-combo guard state
type GuardState int

const (
	GuardIdle GuardState = iota
	GuardComboSuppressed
	GuardInjected
)

func (s GuardState) String() string {
	switch s {
	case GuardIdle:
		return "idle"
	case GuardComboSuppressed:
		return "combo-suppressed"
	case GuardInjected:
		return "guard-injected"
	default:
		return fmt.Sprintf("guard(%d)", int(s))
	}
}

// Stats counts suppressor activity since creation
type Stats struct {
	Suppressed       uint64
	GuardTransitions uint64
	GuardInjections  uint64
}

// Options configures a Suppressor
type Options struct {
	// GuardEnabled controls only the physical guard tap; state transitions happen regardless
	GuardEnabled bool
	// GuardKey is a key with no bound system action. Defaults to right shift.
	GuardKey          VKey
	GuardReleaseDelay time.Duration
	Logger            *slog.Logger
}

// suppressionState is owned by one hook lifetime and reset on Stop
type suppressionState struct {
	held            map[VKey]bool
	suppressed      map[VKey]struct{}
	comboSuppressed bool
	guardInjected   bool
	guardInjectedAt time.Time
}

func newSuppressionState() suppressionState {
	return suppressionState{
		held:       make(map[VKey]bool),
		suppressed: make(map[VKey]struct{}),
	}
}

func (s *suppressionState) winHeld() bool {
	return s.held[VKLWin] || s.held[VKRWin]
}

func (s *suppressionState) modifiers() Modifiers {
	var mods Modifiers
	for vk := range s.held {
		if m, ok := modifierOf(vk); ok {
			mods |= m
		}
	}
	return mods
}

type subscriber struct {
	id int
	fn KeyPressedFunc
}

// Suppressor wraps a global keyboard hook
type Suppressor struct {
	hook         platform.KeyboardHook
	injector     platform.Injector
	guardKey     VKey
	releaseDelay time.Duration
	log          *slog.Logger
	guardEnabled atomic.Bool

	now       func() time.Time
	afterFunc func(time.Duration, func())

	lifecycleMu sync.Mutex
	running     bool

	subsMu sync.Mutex
	subs   []subscriber
	nextID int

	mu sync.Mutex
	st suppressionState

	suppressedCount  atomic.Uint64
	guardTransitions atomic.Uint64
	guardInjections  atomic.Uint64
}

// New creates a suppressor. The hook is not installed until Start.
func New(hook platform.KeyboardHook, injector platform.Injector, opts Options) *Suppressor {
	if opts.GuardKey == 0 {
		opts.GuardKey = VKRShift
	}
	if opts.GuardReleaseDelay <= 0 {
		opts.GuardReleaseDelay = DefaultGuardReleaseDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Suppressor{
		hook:         hook,
		injector:     injector,
		guardKey:     opts.GuardKey,
		releaseDelay: opts.GuardReleaseDelay,
		log:          opts.Logger.With("component", "keyhook"),
		now:          time.Now,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
		st: newSuppressionState(),
	}
	s.guardEnabled.Store(opts.GuardEnabled)
	return s
}

// Start installs the hook. On failure the suppressor is stopped and left not running.
func (s *Suppressor) Start() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.running {
		return nil
	}

	if err := s.hook.Install(s.handle); err != nil {
		s.log.Error("Failed to install keyboard hook", "error", err)
		if stopErr := s.stopLocked(); stopErr != nil {
			s.log.Warn("Cleanup after failed hook install", "error", stopErr)
		}
		return fmt.Errorf("failed to install keyboard hook: %w", err)
	}

	s.running = true
	s.log.Info("Keyboard hook installed", "guard", s.guardEnabled.Load())
	return nil
}

// Stop removes the hook and resets all suppression state. Safe to call repeatedly.
func (s *Suppressor) Stop() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	return s.stopLocked()
}

func (s *Suppressor) stopLocked() error {
	err := s.hook.Uninstall()

	s.mu.Lock()
	s.st = newSuppressionState()
	s.mu.Unlock()

	if s.running {
		s.log.Info("Keyboard hook removed")
	}
	s.running = false
	return err
}

// Running reports whether the hook is installed
func (s *Suppressor) Running() bool {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	return s.running
}

// Subscribe adds a key-press subscriber. Subscribers are called in order and
// their votes are OR'd.
func (s *Suppressor) Subscribe(fn KeyPressedFunc) (unsubscribe func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// SetGuardEnabled toggles the physical guard injection
func (s *Suppressor) SetGuardEnabled(enabled bool) {
	s.guardEnabled.Store(enabled)
}

// GuardEnabled reports whether guard taps are physically injected
func (s *Suppressor) GuardEnabled() bool {
	return s.guardEnabled.Load()
}

// GuardState returns the current Win-combo guard state
func (s *Suppressor) GuardState() GuardState {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.st.guardInjected:
		return GuardInjected
	case s.st.comboSuppressed:
		return GuardComboSuppressed
	default:
		return GuardIdle
	}
}

// Stats returns activity counters
func (s *Suppressor) Stats() Stats {
	return Stats{
		Suppressed:       s.suppressedCount.Load(),
		GuardTransitions: s.guardTransitions.Load(),
		GuardInjections:  s.guardInjections.Load(),
	}
}

// handle is the hook callback. It must never block.
func (s *Suppressor) handle(ev platform.KeyEvent) bool {
	if ev.Injected {
		return false
	}

	vk := VKey(ev.VKey)
	if mod, ok := modifierOf(vk); ok {
		s.handleModifier(vk, mod, ev.Down)
		return false
	}
	if ev.Down {
		return s.handleDown(vk)
	}
	return s.handleUp(vk)
}

func (s *Suppressor) handleModifier(vk VKey, mod Modifiers, down bool) {
	s.mu.Lock()
	if down {
		s.st.held[vk] = true
		s.mu.Unlock()
		return
	}

	delete(s.st.held, vk)

	inject := false
	if mod == ModWin && !s.st.winHeld() {
		if s.st.comboSuppressed && !s.st.guardInjected {
			inject = s.markGuardInjectedLocked()
		}
		if s.st.comboSuppressed || s.st.guardInjected {
			s.st.comboSuppressed = false
			s.st.guardInjected = false
			s.st.guardInjectedAt = time.Time{}
			s.guardTransitions.Add(1)
		}
	}
	s.mu.Unlock()

	if inject {
		s.injectGuard()
	}
}

func (s *Suppressor) handleDown(vk VKey) bool {
	s.mu.Lock()
	if _, ok := s.st.suppressed[vk]; ok {
		// Auto-repeat of a key that is already suppressed
		s.mu.Unlock()
		s.suppressedCount.Add(1)
		return true
	}
	mods := s.st.modifiers()
	s.mu.Unlock()

	if !s.dispatch(vk, mods) {
		return false
	}

	s.mu.Lock()
	s.st.suppressed[vk] = struct{}{}
	if s.st.winHeld() && !s.st.comboSuppressed && !s.st.guardInjected {
		s.st.comboSuppressed = true
		s.guardTransitions.Add(1)
	}
	s.mu.Unlock()

	s.suppressedCount.Add(1)
	return true
}

func (s *Suppressor) handleUp(vk VKey) bool {
	s.mu.Lock()
	if _, ok := s.st.suppressed[vk]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.st.suppressed, vk)

	inject := false
	if s.st.comboSuppressed && !s.st.guardInjected && s.st.winHeld() {
		inject = s.markGuardInjectedLocked()
	}
	s.mu.Unlock()

	if inject {
		s.injectGuard()
	}
	s.suppressedCount.Add(1)
	return true
}

// markGuardInjectedLocked moves ComboSuppressed to GuardInjected and reports
// whether the tap should physically be sent. Caller holds mu.
func (s *Suppressor) markGuardInjectedLocked() bool {
	s.st.guardInjected = true
	s.st.guardInjectedAt = s.now()
	s.guardTransitions.Add(1)
	return s.guardEnabled.Load()
}

func (s *Suppressor) injectGuard() {
	s.guardInjections.Add(1)
	key := uint16(s.guardKey)

	if err := s.injector.Tap(key); err != nil {
		s.log.Warn("Failed to inject guard key", "key", key, "error", err)
	}

	// The tap's own key-up is not always delivered; release again later so the key cannot stick
	s.afterFunc(s.releaseDelay, func() {
		if err := s.injector.KeyUp(key); err != nil {
			s.log.Debug("Compensating guard key-up failed", "key", key, "error", err)
		}
	})
}

// dispatch invokes every subscriber and ORs their votes
func (s *Suppressor) dispatch(vk VKey, mods Modifiers) bool {
	s.subsMu.Lock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.subsMu.Unlock()

	suppress := false
	for _, sub := range subs {
		if s.invoke(sub.fn, vk, mods) {
			suppress = true
		}
	}
	return suppress
}

func (s *Suppressor) invoke(fn KeyPressedFunc, vk VKey, mods Modifiers) (suppress bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Key press subscriber panicked", "panic", r, "key", vk, "mods", mods.String())
			suppress = false
		}
	}()
	return fn(vk, mods)
}
