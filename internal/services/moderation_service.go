package services

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/models"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/permission"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/rank"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/repositories"
)

// RPCResult is the reply of every privileged procedure. Error is shown to the
// user verbatim when Success is false.
type RPCResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func rpcOK() RPCResult { return RPCResult{Success: true} }
func rpcFail(msg string) RPCResult { return RPCResult{Error: msg} }

// ModerationService 管理服务: bans, rank changes, server roles and the course
// upload check. Each call re-runs the permission rules against current data.
type ModerationService struct {
	users   *repositories.UserRepository
	servers *repositories.ServerRepository
	courses *permission.CourseGate
	logger  *zap.Logger
}

func NewModerationService(users *repositories.UserRepository, servers *repositories.ServerRepository,
	courses *permission.CourseGate, logger *zap.Logger) *ModerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModerationService{users: users, servers: servers, courses: courses, logger: logger.Named("moderation")}
}

func (s *ModerationService) internal(op string, err error) RPCResult {
	s.logger.Error(op, zap.Error(err))
	return rpcFail("Something went wrong, please try again")
}

// pair loads actor and target. The RPCResult is non-zero when loading failed.
func (s *ModerationService) pair(ctx context.Context, op, actorID, targetID string) (*models.User, *models.User, *RPCResult) {
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		r := s.internal(op, err)
		return nil, nil, &r
	}
	if actor.Banned {
		r := rpcFail("You are banned")
		return nil, nil, &r
	}
	target, err := s.users.GetByID(ctx, targetID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		r := rpcFail("User not found")
		return nil, nil, &r
	}
	if err != nil {
		r := s.internal(op, err)
		return nil, nil, &r
	}
	return actor, target, nil
}

// BanUser bans target when the actor is moderator or above and its power
// level is at least the target's.
func (s *ModerationService) BanUser(ctx context.Context, actorID, targetID string) RPCResult {
	actor, target, res := s.pair(ctx, "ban_user", actorID, targetID)
	if res != nil {
		return *res
	}
	switch {
	case !permission.CanBan(actor.Rank):
		return rpcFail("You do not have permission to ban users")
	case actor.ID == target.ID:
		return rpcFail("You cannot ban yourself")
	case target.Banned:
		return rpcFail("User is already banned")
	case !permission.CanModerate(actor.Rank, target.Rank, target.Banned, false):
		return rpcFail("You cannot ban a user with a higher rank")
	}
	if err := s.users.SetBanned(ctx, target.ID, true); err != nil {
		return s.internal("ban_user", err)
	}
	s.logger.Info("user banned", zap.String("actor", actor.ID), zap.String("target", target.ID))
	return rpcOK()
}

// UnbanUser lifts a ban under the same rank rule.
func (s *ModerationService) UnbanUser(ctx context.Context, actorID, targetID string) RPCResult {
	actor, target, res := s.pair(ctx, "unban_user", actorID, targetID)
	if res != nil {
		return *res
	}
	if !permission.CanBan(actor.Rank) {
		return rpcFail("You do not have permission to unban users")
	}
	if !target.Banned {
		return rpcFail("User is not banned")
	}
	if !permission.CanChangeRank(actor.Rank, target.Rank, actor.ID == target.ID) {
		return rpcFail("You cannot unban this user")
	}
	if err := s.users.SetBanned(ctx, target.ID, false); err != nil {
		return s.internal("unban_user", err)
	}
	return rpcOK()
}

// ChangeUserRank sets target's global rank. newRank must be strictly below the
// actor's own rank.
func (s *ModerationService) ChangeUserRank(ctx context.Context, actorID, targetID, newRank string) RPCResult {
	if !rank.Known(newRank) {
		return rpcFail("Unknown rank")
	}
	actor, target, res := s.pair(ctx, "change_user_rank", actorID, targetID)
	if res != nil {
		return *res
	}
	if !permission.CanChangeRank(actor.Rank, target.Rank, actor.ID == target.ID) {
		return rpcFail("You cannot change the rank of this user")
	}
	if !permission.CanAssignRank(actor.Rank, newRank) {
		return rpcFail("You cannot grant a rank equal to or above your own")
	}
	if err := s.users.UpdateRank(ctx, target.ID, newRank); err != nil {
		return s.internal("change_user_rank", err)
	}
	s.logger.Info("rank changed", zap.String("actor", actor.ID), zap.String("target", target.ID), zap.String("rank", newRank))
	return rpcOK()
}

// PromoteToHead grants the top rank. Only a current head may do it.
func (s *ModerationService) PromoteToHead(ctx context.Context, actorID, targetID string) RPCResult {
	actor, target, res := s.pair(ctx, "promote_to_head", actorID, targetID)
	if res != nil {
		return *res
	}
	switch {
	case actor.Rank != rank.TheHead:
		return rpcFail("Only the head can promote to head")
	case actor.ID == target.ID || target.Rank == rank.TheHead:
		return rpcFail("User already holds this rank")
	case target.Banned:
		return rpcFail("User is banned")
	}
	if err := s.users.UpdateRank(ctx, target.ID, rank.TheHead); err != nil {
		return s.internal("promote_to_head", err)
	}
	return rpcOK()
}

// AssignServerRole gives target a role of serverID, or clears it when roleID
// is empty. The server owner may always do this; other members need
// moderator power and at least the target's rank.
func (s *ModerationService) AssignServerRole(ctx context.Context, actorID, serverID, targetID, roleID string) RPCResult {
	actor, target, res := s.pair(ctx, "assign_server_role", actorID, targetID)
	if res != nil {
		return *res
	}
	server, err := s.servers.GetServer(ctx, serverID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rpcFail("Server not found")
	}
	if err != nil {
		return s.internal("assign_server_role", err)
	}

	if server.OwnerID != actor.ID {
		if rank.PowerLevel(actor.Rank) < rank.ModeratorPowerLevel ||
			!permission.CanChangeRank(actor.Rank, target.Rank, actor.ID == target.ID) {
			return rpcFail("You cannot assign roles to this user")
		}
	}
	if member, err := s.servers.IsMember(ctx, serverID, target.ID); err != nil {
		return s.internal("assign_server_role", err)
	} else if !member {
		return rpcFail("User is not a member of this server")
	}

	var rolePtr *string
	if roleID != "" {
		role, err := s.servers.GetRole(ctx, roleID)
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && role.ServerID != serverID) {
			return rpcFail("Role not found")
		}
		if err != nil {
			return s.internal("assign_server_role", err)
		}
		rolePtr = &role.ID
	}
	if err := s.servers.AssignRole(ctx, serverID, target.ID, rolePtr); err != nil {
		return s.internal("assign_server_role", err)
	}
	return rpcOK()
}

// CheckCourseUpload is the authoritative course-content gate.
func (s *ModerationService) CheckCourseUpload(ctx context.Context, userID, serverID string) RPCResult {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return s.internal("check_course_upload", err)
	}
	if user.Banned {
		return rpcFail("You are banned")
	}
	roleKey := ""
	member, err := s.servers.GetMember(ctx, serverID, userID)
	switch {
	case err == nil:
		if member.Role != nil {
			roleKey = member.Role.RoleKey
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if !rank.IsSuper(user.Rank) {
			return rpcFail("You are not a member of this server")
		}
	default:
		return s.internal("check_course_upload", err)
	}
	if !s.courses.CanUploadCourseContent(user.Rank, roleKey, serverID) {
		return rpcFail("Only professors can upload course content")
	}
	return rpcOK()
}
