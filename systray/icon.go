package systray

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"runtime"
	"sync"
)

const iconSize = 32

var (
	iconOnce  sync.Once
	iconBytes []byte
)

// Icon returns the tray icon: ICO on Windows, PNG elsewhere
func Icon() []byte {
	iconOnce.Do(func() {
		data, err := drawIcon()
		if err != nil {
			return
		}
		if runtime.GOOS == "windows" {
			data = wrapICO(data, iconSize)
		}
		iconBytes = data
	})
	return iconBytes
}

// drawIcon renders a clipboard: a board with a clip on top and text lines
func drawIcon() ([]byte, error) {
	img := image.NewNRGBA(image.Rect(0, 0, iconSize, iconSize))
	board := color.NRGBA{R: 0x3d, G: 0x7e, B: 0xd6, A: 0xff}
	paper := color.NRGBA{R: 0xf5, G: 0xf5, B: 0xf5, A: 0xff}
	ink := color.NRGBA{R: 0x55, G: 0x55, B: 0x55, A: 0xff}

	fill(img, image.Rect(5, 4, 27, 31), board)
	fill(img, image.Rect(8, 8, 24, 28), paper)
	fill(img, image.Rect(11, 1, 21, 7), ink)
	for y := 12; y <= 24; y += 4 {
		fill(img, image.Rect(10, y, 22, y+2), ink)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func fill(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

// wrapICO packs one PNG image into an ICO container
func wrapICO(pngData []byte, size int) []byte {
	var buf bytes.Buffer
	// ICONDIR
	binary.Write(&buf, binary.LittleEndian, [3]uint16{0, 1, 1})
	// ICONDIRENTRY
	binary.Write(&buf, binary.LittleEndian, struct {
		Width, Height, Colors, Reserved uint8
		Planes, BitCount                uint16
		Size, Offset                    uint32
	}{
		Width:    uint8(size),
		Height:   uint8(size),
		Planes:   1,
		BitCount: 32,
		Size:     uint32(len(pngData)),
		Offset:   6 + 16,
	})
	buf.Write(pngData)
	return buf.Bytes()
}
