package systray

import (
	"bytes"
	"encoding/binary"
	"image/png"
	"testing"
)

func TestDrawIcon(t *testing.T) {
	data, err := drawIcon()
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != iconSize || b.Dy() != iconSize {
		t.Errorf("icon bounds = %v", b)
	}
}

func TestWrapICO(t *testing.T) {
	data, _ := drawIcon()
	ico := wrapICO(data, iconSize)

	var header [3]uint16
	if err := binary.Read(bytes.NewReader(ico), binary.LittleEndian, &header); err != nil {
		t.Fatal(err)
	}
	if header != [3]uint16{0, 1, 1} {
		t.Errorf("ICONDIR = %v", header)
	}
	if size := binary.LittleEndian.Uint32(ico[14:18]); int(size) != len(data) {
		t.Errorf("entry size = %d, want %d", size, len(data))
	}
	if offset := binary.LittleEndian.Uint32(ico[18:22]); offset != 22 {
		t.Errorf("entry offset = %d, want 22", offset)
	}
	if !bytes.Equal(ico[22:], data) {
		t.Error("PNG payload not copied verbatim")
	}
}

func TestIconCached(t *testing.T) {
	a, b := Icon(), Icon()
	if len(a) == 0 || &a[0] != &b[0] {
		t.Error("Icon() should render once")
	}
}
