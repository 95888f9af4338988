// internal/browser/keymap.go
package browser

import (
	"strings"

	"github.com/chromedp/cdproto/input"
)

// cuaKeyNames folds the key spellings the model emits onto DOM key values the
// Chrome DevTools Protocol understands. Single characters pass through
// untouched.
var cuaKeyNames = map[string]string{
	"alt":        "Alt",
	"arrowdown":  "ArrowDown",
	"down":       "ArrowDown",
	"arrowleft":  "ArrowLeft",
	"left":       "ArrowLeft",
	"arrowright": "ArrowRight",
	"right":      "ArrowRight",
	"arrowup":    "ArrowUp",
	"up":         "ArrowUp",
	"backspace":  "Backspace",
	"capslock":   "CapsLock",
	"cmd":        "Meta",
	"command":    "Meta",
	"super":      "Meta",
	"win":        "Meta",
	"meta":       "Meta",
	"ctrl":       "Control",
	"control":    "Control",
	"delete":     "Delete",
	"del":        "Delete",
	"end":        "End",
	"enter":      "Enter",
	"return":     "Enter",
	"esc":        "Escape",
	"escape":     "Escape",
	"home":       "Home",
	"insert":     "Insert",
	"option":     "Alt",
	"pagedown":   "PageDown",
	"pageup":     "PageUp",
	"shift":      "Shift",
	"space":      " ",
	"tab":        "Tab",
}

// domKey resolves one model-issued key name to its DOM key value.
func domKey(name string) string {
	if mapped, ok := cuaKeyNames[strings.ToLower(name)]; ok {
		return mapped
	}
	if len(name) == 1 {
		return name
	}
	// Function keys and anything else already in DOM spelling: normalize the
	// leading rune so "f4" arrives as "F4".
	return strings.ToUpper(name[:1]) + name[1:]
}

// modifierBit returns the CDP modifier bit for a DOM key value, or zero for
// non-modifier keys.
func modifierBit(key string) input.Modifier {
	switch key {
	case "Alt":
		return input.ModifierAlt
	case "Control":
		return input.ModifierCtrl
	case "Meta":
		return input.ModifierMeta
	case "Shift":
		return input.ModifierShift
	}
	return 0
}

// splitChord partitions mapped keys into the held modifiers and the terminal
// keys they apply to. A chord of only modifiers yields an empty terminal set
// and the modifiers are tapped instead.
func splitChord(keys []string) (modifiers []string, terminals []string) {
	for _, k := range keys {
		mapped := domKey(k)
		if modifierBit(mapped) != 0 {
			modifiers = append(modifiers, mapped)
		} else {
			terminals = append(terminals, mapped)
		}
	}
	return modifiers, terminals
}
