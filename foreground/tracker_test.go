package foreground

import (
	"errors"
	"os"
	"testing"

	"markestedt/clipkeeper/platform"
)

const (
	ownWindow platform.Handle = 0x100
	notepad   platform.Handle = 0x200
	browser   platform.Handle = 0x300
	otherPID  uint32          = 4242
)

type fakeSource struct {
	fg           platform.Handle
	fn           func(platform.Handle)
	subscribes   int
	unsubscribes int
	subscribeErr error
	activated    []platform.Handle
}

func (s *fakeSource) Subscribe(fn func(platform.Handle)) (func() error, error) {
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	s.subscribes++
	s.fn = fn
	return func() error {
		s.unsubscribes++
		s.fn = nil
		return nil
	}, nil
}

func (s *fakeSource) Foreground() platform.Handle { return s.fg }

func (s *fakeSource) Activate(h platform.Handle) error {
	if h == 0 {
		return errors.New("null window")
	}
	s.activated = append(s.activated, h)
	return nil
}

func (s *fakeSource) ProcessID(h platform.Handle) (uint32, error) {
	switch h {
	case ownWindow:
		return uint32(os.Getpid()), nil
	case 0:
		return 0, errors.New("null window")
	default:
		return otherPID, nil
	}
}

func TestTrackerRecordsExternalWindows(t *testing.T) {
	src := &fakeSource{fg: notepad}
	tr := New(src, nil)
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}

	if got := tr.CurrentForeground(); got != notepad {
		t.Errorf("seeded current = %#x, want %#x", got, notepad)
	}
	if got := tr.LastExternalForeground(); got != notepad {
		t.Errorf("seeded lastExternal = %#x, want %#x", got, notepad)
	}

	src.fn(ownWindow)
	if got := tr.CurrentForeground(); got != ownWindow {
		t.Errorf("current = %#x, want own window", got)
	}
	if got := tr.LastExternalForeground(); got != notepad {
		t.Errorf("own window replaced lastExternal: %#x", got)
	}

	src.fn(browser)
	if got := tr.LastExternalForeground(); got != browser {
		t.Errorf("lastExternal = %#x, want browser", got)
	}

	src.fn(0)
	if got := tr.CurrentForeground(); got != 0 {
		t.Errorf("current = %#x, want 0", got)
	}
	if got := tr.LastExternalForeground(); got != browser {
		t.Errorf("null window replaced lastExternal: %#x", got)
	}
}

func TestTrackerStartStopIdempotent(t *testing.T) {
	src := &fakeSource{}
	tr := New(src, nil)

	for i := 0; i < 2; i++ {
		if err := tr.Start(); err != nil {
			t.Fatal(err)
		}
	}
	if src.subscribes != 1 {
		t.Errorf("subscribes = %d, want 1", src.subscribes)
	}

	for i := 0; i < 2; i++ {
		if err := tr.Stop(); err != nil {
			t.Fatal(err)
		}
	}
	if src.unsubscribes != 1 {
		t.Errorf("unsubscribes = %d, want 1", src.unsubscribes)
	}
}

func TestTrackerStartError(t *testing.T) {
	tr := New(&fakeSource{subscribeErr: platform.ErrUnsupported}, nil)
	if err := tr.Start(); !errors.Is(err, platform.ErrUnsupported) {
		t.Errorf("Start() error = %v, want ErrUnsupported", err)
	}
	if err := tr.Stop(); err != nil {
		t.Errorf("Stop() after failed start = %v", err)
	}
}

func TestIsOwnProcessWindow(t *testing.T) {
	tr := New(&fakeSource{}, nil)
	tests := []struct {
		h    platform.Handle
		want bool
	}{
		{ownWindow, true},
		{notepad, false},
		{0, false},
	}
	for _, tt := range tests {
		if got := tr.IsOwnProcessWindow(tt.h); got != tt.want {
			t.Errorf("IsOwnProcessWindow(%#x) = %v, want %v", tt.h, got, tt.want)
		}
	}
}

func TestManagerWindow(t *testing.T) {
	src := &fakeSource{fg: notepad}
	tr := New(src, nil)
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}

	tr.SetManagerWindow(browser)
	for _, tt := range []struct {
		h    platform.Handle
		want bool
	}{
		{ownWindow, true},
		{browser, true},
		{notepad, false},
		{0, false},
	} {
		if got := tr.IsManagerWindow(tt.h); got != tt.want {
			t.Errorf("IsManagerWindow(%#x) = %v, want %v", tt.h, got, tt.want)
		}
	}

	// The dashboard host never becomes the paste target
	src.fn(browser)
	if got := tr.LastExternalForeground(); got != notepad {
		t.Errorf("lastExternal = %#x, want notepad", got)
	}

	tr.SetManagerWindow(0)
	if tr.IsManagerWindow(browser) {
		t.Error("browser still a manager window after clearing")
	}
	src.fn(browser)
	if got := tr.LastExternalForeground(); got != browser {
		t.Errorf("lastExternal = %#x, want browser once cleared", got)
	}
}

func TestActivate(t *testing.T) {
	src := &fakeSource{}
	tr := New(src, nil)

	if err := tr.Activate(notepad); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if len(src.activated) != 1 || src.activated[0] != notepad {
		t.Errorf("activated = %v", src.activated)
	}
	if err := tr.Activate(0); err == nil {
		t.Error("Activate(0) succeeded")
	}
}

func TestOnForegroundChangedFanOut(t *testing.T) {
	src := &fakeSource{}
	tr := New(src, nil)
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}

	var a, b []platform.Handle
	cancelA := tr.OnForegroundChanged(func(h platform.Handle) { a = append(a, h) })
	cancelB := tr.OnForegroundChanged(func(h platform.Handle) {
		// The tracker state is already updated when listeners run
		if tr.CurrentForeground() != h {
			t.Errorf("listener saw stale current")
		}
		b = append(b, h)
	})

	src.fn(notepad)
	cancelA()
	src.fn(browser)
	cancelB()

	if len(a) != 1 || a[0] != notepad {
		t.Errorf("listener a = %v", a)
	}
	if len(b) != 2 {
		t.Errorf("listener b = %v", b)
	}
	if n := tr.listenerCount(); n != 0 {
		t.Errorf("listeners left = %d", n)
	}
}

func TestCallbackPanicIsContained(t *testing.T) {
	src := &fakeSource{}
	tr := New(src, nil)
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	tr.OnForegroundChanged(func(platform.Handle) { panic("listener bug") })

	src.fn(notepad)

	if got := tr.LastExternalForeground(); got != notepad {
		t.Errorf("lastExternal = %#x, want notepad", got)
	}
}
