package keyhook

import (
	"fmt"
	"strings"
)

// VKey is a Windows virtual key code
type VKey uint16

const (
	VKShift    VKey = 0x10
	VKControl  VKey = 0x11
	VKMenu     VKey = 0x12 // Alt
	VKLWin     VKey = 0x5B
	VKRWin     VKey = 0x5C
	VKLShift   VKey = 0xA0
	VKRShift   VKey = 0xA1
	VKLControl VKey = 0xA2
	VKRControl VKey = 0xA3
	VKLMenu    VKey = 0xA4
	VKRMenu    VKey = 0xA5
)

// Modifiers is a bitmask of held modifier keys
type Modifiers uint8

const (
	ModCtrl Modifiers = 1 << iota
	ModAlt
	ModShift
	ModWin
)

// Has reports whether all bits of m2 are set in m
func (m Modifiers) Has(m2 Modifiers) bool {
	return m&m2 == m2
}

// String renders the mask as "ctrl+alt+shift+win"
func (m Modifiers) String() string {
	var parts []string
	if m.Has(ModCtrl) {
		parts = append(parts, "ctrl")
	}
	if m.Has(ModAlt) {
		parts = append(parts, "alt")
	}
	if m.Has(ModShift) {
		parts = append(parts, "shift")
	}
	if m.Has(ModWin) {
		parts = append(parts, "win")
	}
	return strings.Join(parts, "+")
}

// modifierOf maps a modifier key to its mask bit
func modifierOf(vk VKey) (Modifiers, bool) {
	switch vk {
	case VKControl, VKLControl, VKRControl:
		return ModCtrl, true
	case VKMenu, VKLMenu, VKRMenu:
		return ModAlt, true
	case VKShift, VKLShift, VKRShift:
		return ModShift, true
	case VKLWin, VKRWin:
		return ModWin, true
	default:
		return 0, false
	}
}

var keyCodes = map[string]VKey{
	"a": 0x41, "b": 0x42, "c": 0x43, "d": 0x44, "e": 0x45,
	"f": 0x46, "g": 0x47, "h": 0x48, "i": 0x49, "j": 0x4A,
	"k": 0x4B, "l": 0x4C, "m": 0x4D, "n": 0x4E, "o": 0x4F,
	"p": 0x50, "q": 0x51, "r": 0x52, "s": 0x53, "t": 0x54,
	"u": 0x55, "v": 0x56, "w": 0x57, "x": 0x58, "y": 0x59, "z": 0x5A,
	"0": 0x30, "1": 0x31, "2": 0x32, "3": 0x33, "4": 0x34,
	"5": 0x35, "6": 0x36, "7": 0x37, "8": 0x38, "9": 0x39,
	"f1": 0x70, "f2": 0x71, "f3": 0x72, "f4": 0x73,
	"f5": 0x74, "f6": 0x75, "f7": 0x76, "f8": 0x77,
	"f9": 0x78, "f10": 0x79, "f11": 0x7A, "f12": 0x7B,
	"space": 0x20, "enter": 0x0D, "esc": 0x1B,
	"tab": 0x09, "backspace": 0x08, "insert": 0x2D, "delete": 0x2E,
	"lshift": VKLShift, "rshift": VKRShift,
	"lctrl": VKLControl, "rctrl": VKRControl,
	"f13": 0x7C, "f14": 0x7D, "f15": 0x7E, "f16": 0x7F,
}

// VKCode returns the virtual key code for a key name
func VKCode(key string) (VKey, error) {
	if code, ok := keyCodes[strings.ToLower(key)]; ok {
		return code, nil
	}
	return 0, fmt.Errorf("unknown key: %s", key)
}

// Combo is a key plus the exact modifier set that must be held
type Combo struct {
	Key  VKey
	Mods Modifiers
}

// Matches reports whether a key press is this combo
func (c Combo) Matches(key VKey, mods Modifiers) bool {
	return c.Key == key && c.Mods == mods
}
