package mention

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`@(\w+)`)

// Mention is a resolved reference to a known member in committed text.
type Mention struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Extract resolves every "@word" token in text against members by
// case-insensitive exact username. Unknown tokens are dropped; repeated
// mentions of the same user each produce an entry.
func Extract(text string, members []Member) []Mention {
	index := make(map[string]Member, len(members))
	for _, m := range members {
		key := strings.ToLower(m.Username)
		if _, ok := index[key]; !ok {
			index[key] = m
		}
	}

	var out []Mention
	for _, loc := range tokenPattern.FindAllStringSubmatchIndex(text, -1) {
		if loc[0] > 0 && text[loc[0]-1] == '\\' {
			continue
		}
		m, ok := index[strings.ToLower(text[loc[2]:loc[3]])]
		if !ok {
			continue
		}
		out = append(out, Mention{UserID: m.ID, Username: m.Username})
	}
	return out
}

// Mentions reports whether text literally contains "@username".
func Mentions(text, username string) bool {
	return username != "" && strings.Contains(text, "@"+username)
}
