package hid

// Boot-protocol keyboard report layout: byte 0 modifiers, byte 1 reserved,
// bytes 2..7 pressed usage ids.

const (
	usageEnter  = 0x28
	usageEscape = 0x29

	modLeftShift  = 0x02
	modRightShift = 0x20
)

// KeyEvent is one decoded keystroke.
type KeyEvent struct {
	Rune   rune
	Enter  bool
	Escape bool
}

// usage id -> (unshifted, shifted) rune. Zero means unmapped.
var usageRunes = map[byte][2]rune{
	0x1e: {'1', '!'}, 0x1f: {'2', '@'}, 0x20: {'3', '#'},
	0x21: {'4', '$'}, 0x22: {'5', '%'}, 0x23: {'6', '^'},
	0x24: {'7', '&'}, 0x25: {'8', '*'}, 0x26: {'9', '('},
	0x27: {'0', ')'},
	0x2c: {' ', ' '}, 0x2d: {'-', '_'}, 0x2e: {'=', '+'},
	0x36: {',', '<'}, 0x37: {'.', '>'}, 0x38: {'/', '?'},
}

func usageToRune(usage byte, shifted bool) (rune, bool) {
	if usage >= 0x04 && usage <= 0x1d { // a..z
		r := rune('a' + usage - 0x04)
		if shifted {
			r = rune('A' + usage - 0x04)
		}
		return r, true
	}
	pair, ok := usageRunes[usage]
	if !ok {
		return 0, false
	}
	if shifted {
		return pair[1], true
	}
	return pair[0], true
}

// decoder turns a stream of boot keyboard reports into key events. Keys
// held across consecutive reports fire once, on the report where they
// first appear.
type decoder struct {
	prev [6]byte
}

// Decode processes one report. Short or malformed reports decode to nothing.
func (d *decoder) Decode(data []byte) []KeyEvent {
	if len(data) < 8 {
		return nil
	}
	shifted := data[0]&(modLeftShift|modRightShift) != 0

	var events []KeyEvent
	var cur [6]byte
	copy(cur[:], data[2:8])

	for _, usage := range cur {
		if usage == 0 || d.wasPressed(usage) {
			continue
		}
		switch usage {
		case usageEnter:
			events = append(events, KeyEvent{Enter: true})
		case usageEscape:
			events = append(events, KeyEvent{Escape: true})
		default:
			if r, ok := usageToRune(usage, shifted); ok {
				events = append(events, KeyEvent{Rune: r})
			}
		}
	}
	d.prev = cur
	return events
}

func (d *decoder) wasPressed(usage byte) bool {
	for _, u := range d.prev {
		if u == usage {
			return true
		}
	}
	return false
}
