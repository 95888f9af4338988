// internal/browser/keymap_test.go
package browser

import (
	"testing"

	"github.com/chromedp/cdproto/input"
	"github.com/stretchr/testify/assert"
)

func TestDomKey(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"control alias", "ctrl", "Control"},
		{"control canonical", "CONTROL", "Control"},
		{"command to meta", "cmd", "Meta"},
		{"win to meta", "win", "Meta"},
		{"option to alt", "option", "Alt"},
		{"space becomes literal", "space", " "},
		{"escape short form", "esc", "Escape"},
		{"arrow alias", "down", "ArrowDown"},
		{"arrow canonical", "ArrowDown", "ArrowDown"},
		{"return to enter", "return", "Enter"},
		{"single char passthrough", "a", "a"},
		{"uppercase single char", "W", "W"},
		{"function key normalized", "f4", "F4"},
		{"page key preserved", "pagedown", "PageDown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, domKey(tc.in))
		})
	}
}

func TestModifierBit(t *testing.T) {
	assert.Equal(t, input.ModifierAlt, modifierBit("Alt"))
	assert.Equal(t, input.ModifierCtrl, modifierBit("Control"))
	assert.Equal(t, input.ModifierMeta, modifierBit("Meta"))
	assert.Equal(t, input.ModifierShift, modifierBit("Shift"))
	assert.Equal(t, input.Modifier(0), modifierBit("Enter"))
	assert.Equal(t, input.Modifier(0), modifierBit("a"))
}

func TestSplitChord(t *testing.T) {
	t.Run("modifier plus terminal", func(t *testing.T) {
		mods, terms := splitChord([]string{"ctrl", "c"})
		assert.Equal(t, []string{"Control"}, mods)
		assert.Equal(t, []string{"c"}, terms)
	})

	t.Run("stacked modifiers", func(t *testing.T) {
		mods, terms := splitChord([]string{"ctrl", "shift", "t"})
		assert.Equal(t, []string{"Control", "Shift"}, mods)
		assert.Equal(t, []string{"t"}, terms)
	})

	t.Run("modifier only chord", func(t *testing.T) {
		mods, terms := splitChord([]string{"cmd"})
		assert.Equal(t, []string{"Meta"}, mods)
		assert.Empty(t, terms)
	})

	t.Run("bare key", func(t *testing.T) {
		mods, terms := splitChord([]string{"enter"})
		assert.Empty(t, mods)
		assert.Equal(t, []string{"Enter"}, terms)
	})
}
