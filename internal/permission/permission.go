// Package permission resolves who may write, moderate, pin and upload course
// content. Every decision here mirrors a check the backend repeats
// authoritatively; callers use the result for UI gating and must still handle
// a backend rejection.
package permission

import "github.com/Lejs5034/LegionOfBrothers-sub000/internal/rank"

// DefaultProfessorKey is the server role key that may upload course content
// when a server has no explicit entry.
const DefaultProfessorKey = "professor"

// CanWrite reports whether a member with the given global rank may post in a
// channel restricted to allowedWriterRoles. An empty list means unrestricted.
// Server roles are not consulted.
func CanWrite(allowedWriterRoles []string, actorGlobalRank string) bool {
	if len(allowedWriterRoles) == 0 {
		return true
	}
	for _, r := range allowedWriterRoles {
		if r == actorGlobalRank {
			return true
		}
	}
	return false
}

// CanModerate decides whether actor may ban target. Unlike rank.CanManage the
// comparison is non-strict, so peers of equal rank can moderate each other.
func CanModerate(actorRank, targetRank string, targetIsAlreadyBanned, actorIsTarget bool) bool {
	if actorIsTarget || targetIsAlreadyBanned {
		return false
	}
	return rank.PowerLevel(actorRank) >= rank.PowerLevel(targetRank)
}

// CanChangeRank applies the moderation comparison to rank changes.
func CanChangeRank(actorRank, targetRank string, actorIsTarget bool) bool {
	if actorIsTarget {
		return false
	}
	return rank.PowerLevel(actorRank) >= rank.PowerLevel(targetRank)
}

// AssignableRanks returns the ranks in all whose power level is strictly below
// the actor's, preserving order.
func AssignableRanks(actorRank string, all []string) []string {
	actor := rank.PowerLevel(actorRank)
	out := make([]string, 0, len(all))
	for _, r := range all {
		if rank.PowerLevel(r) < actor {
			out = append(out, r)
		}
	}
	return out
}

// CanAssignRank reports whether newRank is something actor may grant.
func CanAssignRank(actorRank, newRank string) bool {
	return rank.Known(newRank) && rank.PowerLevel(newRank) < rank.PowerLevel(actorRank)
}

// CanBan reports whether the rank may issue or lift bans at all. Targets are
// still checked with CanModerate.
func CanBan(actorRank string) bool {
	return rank.PowerLevel(actorRank) >= rank.ModeratorPowerLevel
}

// CanPin reports whether the rank may pin or unpin channel messages.
func CanPin(actorRank string) bool {
	return rank.PowerLevel(actorRank) >= rank.ModeratorPowerLevel
}

// CourseGate holds the per-server professor role keys.
type CourseGate struct {
	professorKeys map[string]string
}

// NewCourseGate builds a gate from server id -> professor role key.
func NewCourseGate(professorKeys map[string]string) *CourseGate {
	keys := make(map[string]string, len(professorKeys))
	for k, v := range professorKeys {
		keys[k] = v
	}
	return &CourseGate{professorKeys: keys}
}

// ProfessorKey returns the role key designated as professor for serverID.
func (g *CourseGate) ProfessorKey(serverID string) string {
	if g != nil {
		if k, ok := g.professorKeys[serverID]; ok && k != "" {
			return k
		}
	}
	return DefaultProfessorKey
}

// CanUploadCourseContent is true for super ranks anywhere, or for a member whose
// role in this particular server is that server's professor role.
func (g *CourseGate) CanUploadCourseContent(actorGlobalRank, actorServerRoleKey, serverID string) bool {
	if rank.IsSuper(actorGlobalRank) {
		return true
	}
	return actorServerRoleKey != "" && actorServerRoleKey == g.ProfessorKey(serverID)
}
