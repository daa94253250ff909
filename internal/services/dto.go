package services

import (
	"time"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/models"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/rank"
)

// UserDTO is the public view of an account.
type UserDTO struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Rank      string `json:"rank"`
	Banned    bool   `json:"banned,omitempty"`
}

func toUserDTO(u *models.User) *UserDTO {
	return &UserDTO{
		ID:        u.ID,
		Username:  u.UserName,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		Rank:      u.Rank,
		Banned:    u.Banned,
	}
}

type AuthorDTO struct {
	ID       string          `json:"id"`
	Username string          `json:"username"`
	Rank     string          `json:"rank"`
	Display  rank.Appearance `json:"display"`
}

type AttachmentDTO struct {
	ID          string `json:"id"`
	StoragePath string `json:"storage_path"`
	FileName    string `json:"file_name"`
	FileType    string `json:"file_type"`
	FileSize    int64  `json:"file_size"`
	URL         string `json:"url"`
}

// MessageDTO is a channel message or a DM. ChannelID is empty for DMs.
type MessageDTO struct {
	ID              string          `json:"id"`
	Content         string          `json:"content"`
	UserID          string          `json:"user_id"`
	ChannelID       string          `json:"channel_id,omitempty"`
	ReceiverID      string          `json:"receiver_id,omitempty"`
	ParentMessageID string          `json:"parent_message_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	EditedAt        *time.Time      `json:"edited_at,omitempty"`
	Read            bool            `json:"read,omitempty"`
	Author          AuthorDTO       `json:"author"`
	Attachments     []AttachmentDTO `json:"attachments,omitempty"`
}

type ChannelDTO struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	ServerID           string   `json:"server_id"`
	AllowedWriterRoles []string `json:"allowed_writer_roles,omitempty"`
	CanWrite           bool     `json:"can_write"`
}

// MemberDTO is a server member with its display appearance. RolePosition is
// nil when the member has no server role.
type MemberDTO struct {
	ID           string          `json:"id"`
	Username     string          `json:"username"`
	Rank         string          `json:"rank"`
	RoleID       string          `json:"role_id,omitempty"`
	RoleKey      string          `json:"role_key,omitempty"`
	RolePosition *int            `json:"role_position,omitempty"`
	Display      rank.Appearance `json:"display"`
}

// roleAppearance returns nil when no role is assigned.
func roleAppearance(role *models.ServerRole) *rank.Appearance {
	if role == nil {
		return nil
	}
	return &rank.Appearance{Label: role.Name, Emoji: role.Icon, Color: role.Color}
}

func toMemberDTO(m *models.ServerMember) MemberDTO {
	dto := MemberDTO{ID: m.UserID}
	globalRank := ""
	if m.User != nil {
		dto.Username = m.User.UserName
		dto.Rank = m.User.Rank
		globalRank = m.User.Rank
	}
	if m.Role != nil {
		pos := m.Role.Rank
		dto.RoleID = m.Role.ID
		dto.RoleKey = m.Role.RoleKey
		dto.RolePosition = &pos
	}
	dto.Display = rank.EffectiveDisplay(globalRank, roleAppearance(m.Role))
	return dto
}

func toAttachmentDTOs(rows []models.Attachment, publicURL func(string) string) []AttachmentDTO {
	if len(rows) == 0 {
		return nil
	}
	out := make([]AttachmentDTO, len(rows))
	for i, a := range rows {
		out[i] = AttachmentDTO{
			ID:          a.ID,
			StoragePath: a.StoragePath,
			FileName:    a.FileName,
			FileType:    a.FileType,
			FileSize:    a.FileSize,
		}
		if publicURL != nil {
			out[i].URL = publicURL(a.StoragePath)
		}
	}
	return out
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
