package rod

import (
	"strings"
	"unicode/utf8"

	"github.com/go-rod/rod/lib/input"

	"github.com/devicelab-dev/domkit/pkg/core"
)

var namedKeys = map[string]input.Key{
	"enter":      input.Enter,
	"tab":        input.Tab,
	"escape":     input.Escape,
	"esc":        input.Escape,
	"backspace":  input.Backspace,
	"delete":     input.Delete,
	"space":      input.Space,
	"arrowup":    input.ArrowUp,
	"arrowdown":  input.ArrowDown,
	"arrowleft":  input.ArrowLeft,
	"arrowright": input.ArrowRight,
	"home":       input.Home,
	"end":        input.End,
	"pageup":     input.PageUp,
	"pagedown":   input.PageDown,
	"insert":     input.Insert,
	"f1":         input.F1,
	"f5":         input.F5,
	"f12":        input.F12,
}

var modifierKeys = map[string]input.Key{
	"control": input.ControlLeft,
	"ctrl":    input.ControlLeft,
	"shift":   input.ShiftLeft,
	"alt":     input.AltLeft,
	"meta":    input.MetaLeft,
	"cmd":     input.MetaLeft,
}

// parseChord splits "Control+Shift+K" into modifiers and the final key.
func parseChord(chord string) ([]input.Key, input.Key, error) {
	parts := strings.Split(chord, "+")
	if chord == "+" {
		parts = []string{"+"}
	}
	var mods []input.Key
	for _, m := range parts[:len(parts)-1] {
		k, ok := modifierKeys[strings.ToLower(strings.TrimSpace(m))]
		if !ok {
			return nil, 0, core.ErrInvalidConfig.WithMessagef("unknown modifier %q in key %q", m, chord)
		}
		mods = append(mods, k)
	}

	last := parts[len(parts)-1]
	if k, ok := namedKeys[strings.ToLower(last)]; ok {
		return mods, k, nil
	}
	if k, ok := modifierKeys[strings.ToLower(last)]; ok {
		return mods, k, nil
	}
	if utf8.RuneCountInString(last) == 1 {
		r, _ := utf8.DecodeRuneInString(last)
		return mods, input.Key(r), nil
	}
	return nil, 0, core.ErrInvalidConfig.WithMessagef("unknown key %q", chord)
}
