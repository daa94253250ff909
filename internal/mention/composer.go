// Package mention implements @mention autocomplete over a text buffer and the
// extraction of finalized mentions from sent messages.
package mention

import (
	"sort"
	"strings"
	"unicode"
)

// PageSize caps the number of candidates offered while composing.
const PageSize = 8

// Member is a mentionable user as seen by the composer.
type Member struct {
	ID       string
	Username string
	// RolePosition is the display rank of the member's server role; lower
	// sorts first and members without a role sort last.
	RolePosition *int
}

// State of the composer.
type State int

const (
	Idle State = iota
	Composing
)

func (s State) String() string {
	if s == Composing {
		return "composing"
	}
	return "idle"
}

// Key is a navigation key delivered while the dropdown is open.
type Key int

const (
	KeyDown Key = iota
	KeyUp
	KeyEnter
	KeyEscape
)

// Composer tracks one input buffer and its caret. Offsets are in runes.
type Composer struct {
	members    []Member
	text       []rune
	caret      int
	state      State
	trigger    int
	query      string
	candidates []Member
	selected   int
}

func NewComposer(members []Member) *Composer {
	c := &Composer{}
	c.SetMembers(members)
	return c
}

// SetMembers replaces the candidate pool, refiltering an open dropdown.
func (c *Composer) SetMembers(members []Member) {
	c.members = append([]Member(nil), members...)
	if c.state == Composing {
		c.candidates = Filter(c.members, c.query, PageSize)
		c.selected = 0
	}
}

// Input records the buffer after a keystroke and rescans for a trigger.
func (c *Composer) Input(text string, caret int) {
	c.text = []rune(text)
	c.caret = clamp(caret, 0, len(c.text))
	c.rescan()
}

func (c *Composer) State() State         { return c.state }
func (c *Composer) Query() string        { return c.query }
func (c *Composer) Text() string         { return string(c.text) }
func (c *Composer) Caret() int           { return c.caret }
func (c *Composer) Selected() int        { return c.selected }
func (c *Composer) Candidates() []Member { return c.candidates }

// Key handles dropdown navigation. It reports whether the key was consumed;
// an unconsumed Enter falls through to the send action.
func (c *Composer) Key(k Key) bool {
	if c.state != Composing {
		return false
	}
	switch k {
	case KeyDown:
		if c.selected < len(c.candidates)-1 {
			c.selected++
		}
	case KeyUp:
		if c.selected > 0 {
			c.selected--
		}
	case KeyEnter:
		if len(c.candidates) == 0 {
			return false
		}
		return c.Choose(c.candidates[c.selected])
	case KeyEscape:
		c.close()
	default:
		return false
	}
	return true
}

// Choose replaces the trigger and search term with "@username " and places the
// caret after the trailing space.
func (c *Composer) Choose(m Member) bool {
	if c.state != Composing {
		return false
	}
	insert := []rune("@" + m.Username + " ")
	out := make([]rune, 0, len(c.text)+len(insert))
	out = append(out, c.text[:c.trigger]...)
	out = append(out, insert...)
	out = append(out, c.text[c.caret:]...)
	c.text = out
	c.caret = c.trigger + len(insert)
	c.close()
	return true
}

// Reset clears the buffer, e.g. after a send.
func (c *Composer) Reset() {
	c.text = nil
	c.caret = 0
	c.close()
}

func (c *Composer) rescan() {
	at, ok := findTrigger(c.text, c.caret)
	if !ok {
		c.close()
		return
	}
	query := string(c.text[at+1 : c.caret])
	if c.state == Composing && at == c.trigger && query == c.query {
		return
	}
	c.state = Composing
	c.trigger = at
	c.query = query
	c.candidates = Filter(c.members, query, PageSize)
	c.selected = 0
}

func (c *Composer) close() {
	c.state = Idle
	c.trigger = 0
	c.query = ""
	c.candidates = nil
	c.selected = 0
}

// findTrigger walks back from the caret to the nearest '@'. Whitespace or an
// escaped '@' ends the search.
func findTrigger(text []rune, caret int) (int, bool) {
	for i := caret - 1; i >= 0; i-- {
		r := text[i]
		if unicode.IsSpace(r) {
			return 0, false
		}
		if r == '@' {
			if i > 0 && text[i-1] == '\\' {
				return 0, false
			}
			return i, true
		}
	}
	return 0, false
}

// Filter returns members whose username contains query (case-insensitive),
// ordered by role position, at most limit entries when limit > 0.
func Filter(members []Member, query string, limit int) []Member {
	q := strings.ToLower(query)
	out := make([]Member, 0, len(members))
	for _, m := range members {
		if strings.Contains(strings.ToLower(m.Username), q) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return positionLess(out[i], out[j])
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func positionLess(a, b Member) bool {
	switch {
	case a.RolePosition == nil:
		return false
	case b.RolePosition == nil:
		return true
	default:
		return *a.RolePosition < *b.RolePosition
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
