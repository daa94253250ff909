package chatview

import (
	"context"
	"time"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/mention"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/rank"
)

// Kind distinguishes channel conversations from friend DMs.
type Kind int

const (
	ChannelConversation Kind = iota
	DirectConversation
)

// Conversation identifies the active context. ID is the channel id or the
// friend's user id.
type Conversation struct {
	Kind Kind
	ID   string
}

func Channel(id string) Conversation { return Conversation{Kind: ChannelConversation, ID: id} }
func Direct(friendID string) Conversation {
	return Conversation{Kind: DirectConversation, ID: friendID}
}

// Identity is the signed-in user.
type Identity struct {
	ID       string
	Username string
	Rank     string
}

type Author struct {
	ID       string          `json:"id"`
	Username string          `json:"username"`
	Rank     string          `json:"rank"`
	Display  rank.Appearance `json:"display"`
}

type Attachment struct {
	ID          string `json:"id,omitempty"`
	StoragePath string `json:"storage_path"`
	FileName    string `json:"file_name"`
	FileType    string `json:"file_type"`
	FileSize    int64  `json:"file_size"`
	URL         string `json:"url,omitempty"`
}

// Message is a channel message or a direct message. ChannelID is empty for
// DMs; ReceiverID and Read are only meaningful for DMs.
type Message struct {
	ID              string       `json:"id"`
	Content         string       `json:"content"`
	UserID          string       `json:"user_id"`
	ChannelID       string       `json:"channel_id,omitempty"`
	ReceiverID      string       `json:"receiver_id,omitempty"`
	ParentMessageID string       `json:"parent_message_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	EditedAt        *time.Time   `json:"edited_at,omitempty"`
	Read            bool         `json:"read,omitempty"`
	Author          Author       `json:"author"`
	Attachments     []Attachment `json:"attachments,omitempty"`
}

type ChannelInfo struct {
	ID                 string
	Name               string
	ServerID           string
	AllowedWriterRoles []string
}

// NewMessage is what Send hands to the backend.
type NewMessage struct {
	Conversation    Conversation
	Content         string
	ParentMessageID string
	// HasAttachments is set when files accompany the message, which permits
	// an empty Content.
	HasAttachments bool
}

type EventType string

const (
	EventCreated EventType = "message.created"
	EventUpdated EventType = "message.updated"
	EventDeleted EventType = "message.deleted"
)

// Event is a pushed change. Delivery is at-least-once and unordered relative
// to the client's own writes.
type Event struct {
	Type    EventType
	Message Message
}

// Subscription is one live event stream. Close must close Events.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Backend is every capability the view needs from the platform. All checks it
// performs are authoritative; the view's own checks only gate the UI.
type Backend interface {
	Subscribe(ctx context.Context, conv Conversation) (Subscription, error)

	Channel(ctx context.Context, channelID string) (ChannelInfo, error)
	ChannelHistory(ctx context.Context, channelID string) ([]Message, error)
	DirectHistory(ctx context.Context, friendID string) ([]Message, error)
	Members(ctx context.Context, conv Conversation) ([]mention.Member, error)
	PinnedSet(ctx context.Context, channelID string) ([]string, error)
	ReplyCounts(ctx context.Context, channelID string) (map[string]int, error)

	// ResolveMessage fills author display fields and attachments of a pushed row.
	ResolveMessage(ctx context.Context, m Message) (Message, error)

	// SendMessage announces the new row to subscribers unless HasAttachments
	// is set; PublishMessage does that once the attachments are linked.
	SendMessage(ctx context.Context, m NewMessage) (Message, error)
	PublishMessage(ctx context.Context, conv Conversation, id string) error
	UpdateMessage(ctx context.Context, conv Conversation, id, content string) (time.Time, error)
	DeleteMessage(ctx context.Context, conv Conversation, id string) error
	PinMessage(ctx context.Context, channelID, messageID string) error
	UnpinMessage(ctx context.Context, channelID, messageID string) error
	MarkDirectRead(ctx context.Context, friendID string) error
}
