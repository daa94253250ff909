package permission

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/rank"
)

func TestCanWrite(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		actor   string
		want    bool
	}{
		{"nil list is unrestricted", nil, rank.User, true},
		{"empty list is unrestricted", []string{}, rank.User, true},
		{"listed rank may write", []string{rank.Admin}, rank.Admin, true},
		{"unlisted rank may not write", []string{rank.Admin}, rank.User, false},
		{"higher rank is not implied", []string{rank.Admin}, rank.TheHead, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanWrite(tt.allowed, tt.actor))
		})
	}
}

func TestCanModerate(t *testing.T) {
	t.Run("equal ranks may moderate each other", func(t *testing.T) {
		assert.True(t, CanModerate(rank.Moderator, rank.Moderator, false, false))
	})
	t.Run("self is never moderated", func(t *testing.T) {
		assert.False(t, CanModerate(rank.TheHead, rank.TheHead, false, true))
	})
	t.Run("already banned target", func(t *testing.T) {
		assert.False(t, CanModerate(rank.Admin, rank.User, true, false))
	})
	t.Run("lower rank cannot ban higher", func(t *testing.T) {
		assert.False(t, CanModerate(rank.User, rank.Moderator, false, false))
	})
}

func TestAssignableRanks(t *testing.T) {
	got := AssignableRanks(rank.Moderator, rank.All())
	assert.Equal(t, []string{rank.Coach, rank.Legionnaire, rank.User}, got)
	assert.Empty(t, AssignableRanks(rank.User, rank.All()))
	assert.NotContains(t, AssignableRanks(rank.Admin, rank.All()), rank.Admin)

	assert.True(t, CanAssignRank(rank.Admin, rank.Moderator))
	assert.False(t, CanAssignRank(rank.Admin, rank.Admin))
	assert.False(t, CanAssignRank(rank.TheHead, "made_up"))
}

func TestCanPin(t *testing.T) {
	assert.True(t, CanPin(rank.Moderator))
	assert.True(t, CanPin(rank.Admin))
	assert.False(t, CanPin(rank.Coach))
}

func TestCanBan(t *testing.T) {
	assert.True(t, CanBan(rank.Moderator))
	assert.True(t, CanBan(rank.TheHead))
	assert.False(t, CanBan(rank.Coach))
	assert.False(t, CanBan(rank.User))
}

func TestCourseGate(t *testing.T) {
	gate := NewCourseGate(map[string]string{"srv-business": "business_professor"})

	assert.True(t, gate.CanUploadCourseContent(rank.TheHead, "", "srv-business"))
	assert.True(t, gate.CanUploadCourseContent(rank.AppDeveloper, "", "anything"))
	assert.True(t, gate.CanUploadCourseContent(rank.User, "business_professor", "srv-business"))
	assert.False(t, gate.CanUploadCourseContent(rank.User, "business_professor", "srv-fitness"))
	assert.True(t, gate.CanUploadCourseContent(rank.User, DefaultProfessorKey, "srv-fitness"))
	assert.False(t, gate.CanUploadCourseContent(rank.Admin, "", "srv-business"))

	var nilGate *CourseGate
	assert.Equal(t, DefaultProfessorKey, nilGate.ProfessorKey("x"))
}

func TestProperty_ModerationAsymmetry(t *testing.T) {
	properties := gopter.NewProperties(nil)
	ranks := rank.All()

	properties.Property("equal power levels moderate but never manage", prop.ForAll(
		func(a, b string) bool {
			if rank.PowerLevel(a) != rank.PowerLevel(b) {
				return true
			}
			return CanModerate(a, b, false, false) && !rank.CanManage(a, b)
		},
		gen.OneConstOf(toInterfaces(ranks)...),
		gen.OneConstOf(toInterfaces(ranks)...),
	))

	properties.Property("empty allow-list admits any rank", prop.ForAll(
		func(r string) bool {
			return CanWrite(nil, r) && CanWrite([]string{}, r)
		},
		gen.AnyString(),
	))

	properties.Property("assignable ranks are strictly below actor", prop.ForAll(
		func(actor string) bool {
			for _, r := range AssignableRanks(actor, ranks) {
				if rank.PowerLevel(r) >= rank.PowerLevel(actor) {
					return false
				}
			}
			return true
		},
		gen.OneConstOf(toInterfaces(ranks)...),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func toInterfaces(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
