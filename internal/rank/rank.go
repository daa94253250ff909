// Package rank holds the static rank tables: power levels used for every
// authorization comparison and the display appearance of each rank.
package rank

import "sort"

// Global rank keys.
const (
	TheHead           = "the_head"
	AppDeveloper      = "app_developer"
	Admin             = "admin"
	BusinessMentor    = "business_mentor"
	CryptoMentor      = "crypto_trading_mentor"
	CopywritingMentor = "copywriting_mentor"
	FitnessMentor     = "fitness_mentor"
	Moderator         = "moderator"
	Coach             = "coach"
	Legionnaire       = "legionnaire"
	User              = "user"
)

const (
	// DefaultPowerLevel is the level of "user" and of any unknown key.
	DefaultPowerLevel   = 10
	ModeratorPowerLevel = 40
)

var powerLevels = map[string]int{
	TheHead:           100,
	AppDeveloper:      90,
	Admin:             80,
	BusinessMentor:    60,
	CryptoMentor:      60,
	CopywritingMentor: 60,
	FitnessMentor:     60,
	Moderator:         40,
	Coach:             30,
	Legionnaire:       20,
	User:              DefaultPowerLevel,
}

// superRanks always display their global rank, whatever server the user is viewing.
var superRanks = map[string]bool{
	TheHead:      true,
	AppDeveloper: true,
}

// Appearance is how a rank or server role is rendered next to a username.
type Appearance struct {
	Label string `json:"label"`
	Emoji string `json:"emoji"`
	Color string `json:"color"`
}

// MemberAppearance is shown for unknown or absent rank keys.
var MemberAppearance = Appearance{Label: "Member", Emoji: "👤", Color: "#9ca3af"}

var appearances = map[string]Appearance{
	TheHead:           {Label: "The Head", Emoji: "👑", Color: "#facc15"},
	AppDeveloper:      {Label: "App Developer", Emoji: "🛠️", Color: "#38bdf8"},
	Admin:             {Label: "Admin", Emoji: "🛡️", Color: "#ef4444"},
	BusinessMentor:    {Label: "Business Mentor", Emoji: "💼", Color: "#22c55e"},
	CryptoMentor:      {Label: "Crypto Trading Mentor", Emoji: "📈", Color: "#f97316"},
	CopywritingMentor: {Label: "Copywriting Mentor", Emoji: "✍️", Color: "#a855f7"},
	FitnessMentor:     {Label: "Fitness Mentor", Emoji: "🏋️", Color: "#14b8a6"},
	Moderator:         {Label: "Moderator", Emoji: "🔨", Color: "#3b82f6"},
	Coach:             {Label: "Coach", Emoji: "🎯", Color: "#eab308"},
	Legionnaire:       {Label: "Legionnaire", Emoji: "⚔️", Color: "#64748b"},
	User:              MemberAppearance,
}

// PowerLevel returns the fixed power level of a rank key. Unknown keys
// get DefaultPowerLevel, the same as "user".
func PowerLevel(key string) int {
	if lvl, ok := powerLevels[key]; ok {
		return lvl
	}
	return DefaultPowerLevel
}

// Known reports whether key is a defined global rank.
func Known(key string) bool {
	_, ok := powerLevels[key]
	return ok
}

// IsSuper reports whether key is a platform-wide rank (head of organization, developer).
func IsSuper(key string) bool {
	return superRanks[key]
}

// CanManage reports whether actor strictly outranks target. A rank never manages itself.
func CanManage(actor, target string) bool {
	return PowerLevel(actor) > PowerLevel(target)
}

// All returns every defined rank key, highest power level first, ties by key.
func All() []string {
	keys := make([]string, 0, len(powerLevels))
	for k := range powerLevels {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		li, lj := PowerLevel(keys[i]), PowerLevel(keys[j])
		if li != lj {
			return li > lj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// GlobalAppearance returns the generic appearance of a global rank.
func GlobalAppearance(key string) Appearance {
	if a, ok := appearances[key]; ok {
		return a
	}
	return MemberAppearance
}

// EffectiveDisplay decides which appearance to show for a user inside a server:
// super ranks win everywhere, then the server role if one is assigned, then the
// global rank.
func EffectiveDisplay(globalRank string, serverRole *Appearance) Appearance {
	if IsSuper(globalRank) {
		return GlobalAppearance(globalRank)
	}
	if serverRole != nil {
		return *serverRole
	}
	return GlobalAppearance(globalRank)
}
