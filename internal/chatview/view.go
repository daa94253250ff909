// Package chatview owns the message list of the active channel or friend
// conversation. It merges pushed events by id, tracks pins, reply counts and
// mentions of the signed-in user, and applies optimistic edits and deletes.
//
// Every asynchronous result is checked against the conversation generation it
// was started under; results that arrive after a switch are dropped.
package chatview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/mention"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/permission"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/upload"
)

var (
	ErrStale           = errors.New("conversation changed")
	ErrNotOpen         = errors.New("no conversation is open")
	ErrNotReady        = errors.New("conversation is still loading")
	ErrCannotWrite     = errors.New("you do not have permission to send messages here")
	ErrEmptyContent    = errors.New("message is empty")
	ErrContentTooLong  = errors.New("message is too long")
	ErrSendInFlight    = errors.New("a message is already being sent")
	ErrNotFound        = errors.New("message not found")
	ErrNotOwner        = errors.New("only the author can change this message")
	ErrNotConfirmed    = errors.New("deletion was not confirmed")
	ErrCannotPin       = errors.New("you do not have permission to pin messages")
	ErrNotEditing      = errors.New("no edit in progress")
	ErrUploadsDisabled = errors.New("attachments are not available")
)

// DefaultMaxContentLength applies when Options leaves it zero.
const DefaultMaxContentLength = 2000

type State int

const (
	Closed State = iota
	Loading
	Ready
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "closed"
	}
}

type Options struct {
	Uploads          *upload.Coordinator
	MaxContentLength int
	Logger           *zap.Logger
	Now              func() time.Time
}

type View struct {
	backend  Backend
	me       Identity
	uploads  *upload.Coordinator
	maxLen   int
	logger   *zap.Logger
	now      func() time.Time
	validate *validator.Validate

	mu       sync.Mutex
	gen      uint64
	conv     Conversation
	state    State
	channel  ChannelInfo
	sub      Subscription
	stopPump context.CancelFunc

	messages     []Message
	pinned       map[string]bool
	replies      map[string]int
	mentionsOnly bool
	composer     *mention.Composer
	replyTo      string
	editing      string
	draft        string
	sending      bool
}

func NewView(backend Backend, me Identity, opts Options) *View {
	v := &View{
		backend:  backend,
		me:       me,
		uploads:  opts.Uploads,
		maxLen:   opts.MaxContentLength,
		logger:   opts.Logger,
		now:      opts.Now,
		validate: validator.New(),
		composer: mention.NewComposer(nil),
	}
	if v.maxLen <= 0 {
		v.maxLen = DefaultMaxContentLength
	}
	if v.logger == nil {
		v.logger = zap.NewNop()
	}
	if v.now == nil {
		v.now = time.Now
	}
	return v
}

// Open switches to conv. The previous subscription is torn down before the new
// one is created, history is fetched after subscribing, and live events are
// merged only once history is in place.
func (v *View) Open(ctx context.Context, conv Conversation) error {
	v.mu.Lock()
	v.gen++
	gen := v.gen
	old, stop := v.detachLocked()
	v.conv = conv
	v.state = Loading
	v.resetLocked()
	v.mu.Unlock()
	closeSubscription(old, stop)

	sub, err := v.backend.Subscribe(ctx, conv)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	v.mu.Lock()
	if v.gen != gen {
		v.mu.Unlock()
		_ = sub.Close()
		return ErrStale
	}
	pumpCtx, cancel := context.WithCancel(context.Background())
	v.sub, v.stopPump = sub, cancel
	v.mu.Unlock()

	snap, err := v.load(ctx, conv)

	v.mu.Lock()
	if v.gen != gen {
		v.mu.Unlock()
		return ErrStale
	}
	if err != nil {
		old, stop := v.detachLocked()
		v.mu.Unlock()
		closeSubscription(old, stop)
		return err
	}
	v.channel = snap.channel
	v.messages = dedupe(snap.messages)
	v.pinned = toSet(snap.pinned)
	v.replies = snap.replies
	if v.replies == nil {
		v.replies = countReplies(v.messages)
	}
	v.composer.SetMembers(snap.members)
	v.state = Ready
	unread := v.markReadLocked()
	v.mu.Unlock()

	go v.pump(pumpCtx, gen, sub)

	if unread {
		v.sendReadReceipt(ctx, conv.ID)
	}
	v.logger.Debug("conversation ready",
		zap.Int("kind", int(conv.Kind)),
		zap.String("id", conv.ID),
		zap.Int("messages", len(snap.messages)),
	)
	return nil
}

// Close tears down the subscription and clears all state.
func (v *View) Close() {
	v.mu.Lock()
	v.gen++
	old, stop := v.detachLocked()
	v.conv = Conversation{}
	v.state = Closed
	v.resetLocked()
	v.mu.Unlock()
	closeSubscription(old, stop)
}

type snapshot struct {
	channel  ChannelInfo
	messages []Message
	members  []mention.Member
	pinned   []string
	replies  map[string]int
}

func (v *View) load(ctx context.Context, conv Conversation) (snapshot, error) {
	var snap snapshot
	var err error

	switch conv.Kind {
	case ChannelConversation:
		if snap.channel, err = v.backend.Channel(ctx, conv.ID); err != nil {
			return snap, fmt.Errorf("load channel: %w", err)
		}
		if snap.messages, err = v.backend.ChannelHistory(ctx, conv.ID); err != nil {
			return snap, fmt.Errorf("load history: %w", err)
		}
		if snap.pinned, err = v.backend.PinnedSet(ctx, conv.ID); err != nil {
			return snap, fmt.Errorf("load pins: %w", err)
		}
		if snap.replies, err = v.backend.ReplyCounts(ctx, conv.ID); err != nil {
			return snap, fmt.Errorf("load reply counts: %w", err)
		}
	case DirectConversation:
		if snap.messages, err = v.backend.DirectHistory(ctx, conv.ID); err != nil {
			return snap, fmt.Errorf("load direct messages: %w", err)
		}
	}

	if snap.members, err = v.backend.Members(ctx, conv); err != nil {
		// Autocomplete degrades to an empty list.
		v.logger.Warn("load members failed", zap.String("conversation", conv.ID), zap.Error(err))
		snap.members = nil
	}
	return snap, nil
}

func (v *View) pump(ctx context.Context, gen uint64, sub Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := v.deliver(ctx, gen, ev); err != nil && !errors.Is(err, ErrStale) {
				v.logger.Warn("apply event failed",
					zap.String("type", string(ev.Type)),
					zap.String("message_id", ev.Message.ID),
					zap.Error(err),
				)
			}
		}
	}
}

// Deliver applies a pushed event to the current conversation.
func (v *View) Deliver(ctx context.Context, ev Event) error {
	v.mu.Lock()
	gen := v.gen
	v.mu.Unlock()
	return v.deliver(ctx, gen, ev)
}

func (v *View) deliver(ctx context.Context, gen uint64, ev Event) error {
	switch ev.Type {
	case EventCreated:
		v.mu.Lock()
		if v.gen != gen {
			v.mu.Unlock()
			return ErrStale
		}
		if !v.belongsLocked(ev.Message) || v.indexLocked(ev.Message.ID) >= 0 {
			v.mu.Unlock()
			return nil
		}
		v.mu.Unlock()

		m, err := v.backend.ResolveMessage(ctx, ev.Message)
		if err != nil {
			v.logger.Warn("resolve pushed message", zap.String("message_id", ev.Message.ID), zap.Error(err))
			m = ev.Message
		}

		v.mu.Lock()
		if v.gen != gen {
			v.mu.Unlock()
			return ErrStale
		}
		if !v.appendLocked(m) {
			v.mu.Unlock()
			return nil
		}
		friend := v.conv.ID
		unread := v.conv.Kind == DirectConversation && m.ReceiverID == v.me.ID && !m.Read
		if unread {
			v.messages[len(v.messages)-1].Read = true
		}
		v.mu.Unlock()
		if unread {
			v.sendReadReceipt(ctx, friend)
		}
		return nil

	case EventUpdated:
		v.mu.Lock()
		defer v.mu.Unlock()
		if v.gen != gen {
			return ErrStale
		}
		if i := v.indexLocked(ev.Message.ID); i >= 0 {
			v.messages[i].Content = ev.Message.Content
			v.messages[i].EditedAt = ev.Message.EditedAt
		}
		return nil

	case EventDeleted:
		v.mu.Lock()
		defer v.mu.Unlock()
		if v.gen != gen {
			return ErrStale
		}
		if i := v.indexLocked(ev.Message.ID); i >= 0 {
			v.removeLocked(i)
		}
		return nil
	}
	return fmt.Errorf("unknown event type %q", ev.Type)
}

// Send posts content to the open conversation, uploading files first. Only one
// send may be in flight at a time.
func (v *View) Send(ctx context.Context, content string, files []upload.File) (Message, error) {
	v.mu.Lock()
	if err := v.readyLocked(); err != nil {
		v.mu.Unlock()
		return Message{}, err
	}
	if v.sending {
		v.mu.Unlock()
		return Message{}, ErrSendInFlight
	}
	if !v.canWriteLocked() {
		v.mu.Unlock()
		return Message{}, ErrCannotWrite
	}
	if err := v.checkContent(content, len(files) > 0); err != nil {
		v.mu.Unlock()
		return Message{}, err
	}
	if len(files) > 0 && v.uploads == nil {
		v.mu.Unlock()
		return Message{}, ErrUploadsDisabled
	}
	v.sending = true
	gen, conv, parent := v.gen, v.conv, v.replyTo
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		v.sending = false
		v.mu.Unlock()
	}()

	draft := NewMessage{Conversation: conv, Content: content, ParentMessageID: parent, HasAttachments: len(files) > 0}
	var sent Message
	create := func(ctx context.Context) (string, error) {
		m, err := v.backend.SendMessage(ctx, draft)
		if err != nil {
			return "", err
		}
		sent = m
		return m.ID, nil
	}

	if len(files) > 0 {
		target := upload.MessageTarget
		if conv.Kind == DirectConversation {
			target = upload.DirectMessageTarget
		}
		_, uploaded, err := v.uploads.Send(ctx, target, files, create)
		if err != nil {
			return Message{}, fmt.Errorf("send message: %w", err)
		}
		if err := v.backend.PublishMessage(ctx, conv, sent.ID); err != nil {
			v.logger.Warn("announce message", zap.String("message_id", sent.ID), zap.Error(err))
		}
		for _, u := range uploaded {
			sent.Attachments = append(sent.Attachments, Attachment{
				StoragePath: u.StoragePath,
				FileName:    u.FileName,
				FileType:    u.FileType,
				FileSize:    u.FileSize,
			})
		}
	} else if _, err := create(ctx); err != nil {
		return Message{}, fmt.Errorf("send message: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gen != gen {
		return sent, nil
	}
	if i := v.indexLocked(sent.ID); i >= 0 {
		// The pushed copy won the race; keep its position, prefer our attachments.
		if len(v.messages[i].Attachments) == 0 {
			v.messages[i].Attachments = sent.Attachments
		}
	} else {
		v.appendLocked(sent)
	}
	v.replyTo = ""
	v.composer.Reset()
	return sent, nil
}

// BeginEdit starts editing one of the user's own messages and returns the
// initial draft.
func (v *View) BeginEdit(id string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	i := v.indexLocked(id)
	if i < 0 {
		return "", ErrNotFound
	}
	if v.messages[i].UserID != v.me.ID {
		return "", ErrNotOwner
	}
	v.editing = id
	v.draft = v.messages[i].Content
	return v.draft, nil
}

// CancelEdit drops the draft.
func (v *View) CancelEdit() {
	v.mu.Lock()
	v.editing, v.draft = "", ""
	v.mu.Unlock()
}

// EditDraft returns the message being edited and its draft text.
func (v *View) EditDraft() (id, draft string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.editing, v.draft
}

// Edit applies content to the message being edited optimistically. On failure
// the message is restored and the draft is kept so the user can retry.
func (v *View) Edit(ctx context.Context, content string) error {
	v.mu.Lock()
	if v.editing == "" {
		v.mu.Unlock()
		return ErrNotEditing
	}
	v.draft = content
	if err := v.checkContent(content, false); err != nil {
		v.mu.Unlock()
		return err
	}
	id := v.editing
	i := v.indexLocked(id)
	if i < 0 {
		v.editing, v.draft = "", ""
		v.mu.Unlock()
		return ErrNotFound
	}
	prev := v.messages[i]
	now := v.now()
	v.messages[i].Content = content
	v.messages[i].EditedAt = &now
	gen, conv := v.gen, v.conv
	v.mu.Unlock()

	editedAt, err := v.backend.UpdateMessage(ctx, conv, id, content)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gen != gen {
		if err != nil {
			return fmt.Errorf("edit message: %w", err)
		}
		return nil
	}
	j := v.indexLocked(id)
	if err != nil {
		if j >= 0 {
			v.messages[j].Content = prev.Content
			v.messages[j].EditedAt = prev.EditedAt
		}
		return fmt.Errorf("edit message: %w", err)
	}
	if j >= 0 && !editedAt.IsZero() {
		v.messages[j].EditedAt = &editedAt
	}
	if v.editing == id {
		v.editing, v.draft = "", ""
	}
	return nil
}

// Delete removes one of the user's own messages. confirmed must carry the
// user's explicit acceptance of the confirmation dialog.
func (v *View) Delete(ctx context.Context, id string, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}
	v.mu.Lock()
	i := v.indexLocked(id)
	if i < 0 {
		v.mu.Unlock()
		return ErrNotFound
	}
	removed := v.messages[i]
	if removed.UserID != v.me.ID {
		v.mu.Unlock()
		return ErrNotOwner
	}
	v.removeLocked(i)
	gen, conv := v.gen, v.conv
	v.mu.Unlock()

	if err := v.backend.DeleteMessage(ctx, conv, id); err != nil {
		v.mu.Lock()
		if v.gen == gen && v.indexLocked(id) < 0 {
			v.insertLocked(i, removed)
		}
		v.mu.Unlock()
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// Reply prefills the composer with an @mention of the author and links the
// next send to id.
func (v *View) Reply(id string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	i := v.indexLocked(id)
	if i < 0 {
		return "", ErrNotFound
	}
	prefill := "@" + v.messages[i].Author.Username + " "
	v.replyTo = id
	v.composer.Input(prefill, len([]rune(prefill)))
	return prefill, nil
}

// CancelReply clears the parent reference and the prefilled text.
func (v *View) CancelReply() {
	v.mu.Lock()
	v.replyTo = ""
	v.composer.Reset()
	v.mu.Unlock()
}

// Key routes a compose-box key press. The mention dropdown gets it first; an
// Escape it does not consume cancels a pending reply. It reports whether the
// key was handled.
func (v *View) Key(k mention.Key) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.composer.Key(k) {
		return true
	}
	if k == mention.KeyEscape && v.replyTo != "" {
		v.replyTo = ""
		v.composer.Reset()
		return true
	}
	return false
}

func (v *View) ReplyingTo() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.replyTo
}

// Composer exposes the compose buffer and its mention dropdown. Callers must
// not use it concurrently with Reply, CancelReply, Key or Send.
func (v *View) Composer() *mention.Composer { return v.composer }

// TogglePin pins or unpins id, then reloads the pinned set. Nothing changes
// locally until the backend has confirmed.
func (v *View) TogglePin(ctx context.Context, id string) error {
	v.mu.Lock()
	if err := v.readyLocked(); err != nil {
		v.mu.Unlock()
		return err
	}
	if v.conv.Kind != ChannelConversation {
		v.mu.Unlock()
		return ErrNotFound
	}
	if !permission.CanPin(v.me.Rank) {
		v.mu.Unlock()
		return ErrCannotPin
	}
	pinned := v.pinned[id]
	gen, channelID := v.gen, v.conv.ID
	v.mu.Unlock()

	var err error
	if pinned {
		err = v.backend.UnpinMessage(ctx, channelID, id)
	} else {
		err = v.backend.PinMessage(ctx, channelID, id)
	}
	if err != nil {
		return fmt.Errorf("toggle pin: %w", err)
	}

	ids, err := v.backend.PinnedSet(ctx, channelID)
	if err != nil {
		return fmt.Errorf("reload pins: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gen != gen {
		return ErrStale
	}
	v.pinned = toSet(ids)
	return nil
}

func (v *View) IsPinned(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pinned[id]
}

// PinnedSet returns the pinned message ids in no particular order.
func (v *View) PinnedSet() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, 0, len(v.pinned))
	for id := range v.pinned {
		out = append(out, id)
	}
	return out
}

func (v *View) ReplyCount(id string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.replies[id]
}

// MentionCount counts messages by others that mention the user or reply to
// one of the user's messages.
func (v *View) MentionCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, m := range v.messages {
		if v.mentionsMeLocked(m) {
			n++
		}
	}
	return n
}

// ToggleMentionsOnly flips the mentions filter and returns the new setting.
func (v *View) ToggleMentionsOnly() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mentionsOnly = !v.mentionsOnly
	return v.mentionsOnly
}

// Messages returns the full list in arrival order.
func (v *View) Messages() []Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Message(nil), v.messages...)
}

// Visible returns the list after applying the mentions filter.
func (v *View) Visible() []Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.mentionsOnly {
		return append([]Message(nil), v.messages...)
	}
	var out []Message
	for _, m := range v.messages {
		if v.mentionsMeLocked(m) {
			out = append(out, m)
		}
	}
	return out
}

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *View) Conversation() Conversation {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.conv
}

// CanWrite is the advisory write check for the open conversation.
func (v *View) CanWrite() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.canWriteLocked()
}

// WriteNotice is shown in place of the compose control when CanWrite is false.
func (v *View) WriteNotice() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.canWriteLocked() {
		return ""
	}
	return fmt.Sprintf("You do not have permission to send messages in #%s", v.channel.Name)
}

func (v *View) canWriteLocked() bool {
	if v.conv.Kind != ChannelConversation {
		return true
	}
	return permission.CanWrite(v.channel.AllowedWriterRoles, v.me.Rank)
}

func (v *View) readyLocked() error {
	switch v.state {
	case Closed:
		return ErrNotOpen
	case Loading:
		return ErrNotReady
	}
	return nil
}

func (v *View) checkContent(content string, hasFiles bool) error {
	if strings.TrimSpace(content) == "" {
		if hasFiles {
			return nil
		}
		return ErrEmptyContent
	}
	if err := v.validate.Var(content, fmt.Sprintf("max=%d", v.maxLen)); err != nil {
		return ErrContentTooLong
	}
	return nil
}

func (v *View) mentionsMeLocked(m Message) bool {
	if m.UserID == v.me.ID {
		return false
	}
	if mention.Mentions(m.Content, v.me.Username) {
		return true
	}
	if m.ParentMessageID != "" {
		if i := v.indexLocked(m.ParentMessageID); i >= 0 && v.messages[i].UserID == v.me.ID {
			return true
		}
	}
	return false
}

func (v *View) belongsLocked(m Message) bool {
	switch v.conv.Kind {
	case ChannelConversation:
		return m.ChannelID == v.conv.ID
	case DirectConversation:
		return (m.UserID == v.conv.ID && m.ReceiverID == v.me.ID) ||
			(m.UserID == v.me.ID && m.ReceiverID == v.conv.ID)
	}
	return false
}

// markReadLocked flips unread DMs addressed to the user and reports whether a
// receipt must be sent.
func (v *View) markReadLocked() bool {
	if v.conv.Kind != DirectConversation {
		return false
	}
	unread := false
	for i := range v.messages {
		if v.messages[i].ReceiverID == v.me.ID && !v.messages[i].Read {
			v.messages[i].Read = true
			unread = true
		}
	}
	return unread
}

func (v *View) sendReadReceipt(ctx context.Context, friendID string) {
	if err := v.backend.MarkDirectRead(ctx, friendID); err != nil {
		v.logger.Warn("mark direct messages read", zap.String("friend_id", friendID), zap.Error(err))
	}
}

func (v *View) indexLocked(id string) int {
	for i := range v.messages {
		if v.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// appendLocked adds m unless its id is already present.
func (v *View) appendLocked(m Message) bool {
	if v.indexLocked(m.ID) >= 0 {
		return false
	}
	v.messages = append(v.messages, m)
	if m.ParentMessageID != "" {
		v.replies[m.ParentMessageID]++
	}
	return true
}

func (v *View) insertLocked(i int, m Message) {
	if i > len(v.messages) {
		i = len(v.messages)
	}
	v.messages = append(v.messages, Message{})
	copy(v.messages[i+1:], v.messages[i:])
	v.messages[i] = m
	if m.ParentMessageID != "" {
		v.replies[m.ParentMessageID]++
	}
}

func (v *View) removeLocked(i int) {
	m := v.messages[i]
	v.messages = append(v.messages[:i], v.messages[i+1:]...)
	if m.ParentMessageID != "" && v.replies[m.ParentMessageID] > 0 {
		v.replies[m.ParentMessageID]--
	}
}

func (v *View) resetLocked() {
	v.channel = ChannelInfo{}
	v.messages = nil
	v.pinned = make(map[string]bool)
	v.replies = make(map[string]int)
	v.mentionsOnly = false
	v.replyTo = ""
	v.editing, v.draft = "", ""
	v.composer.Reset()
	v.composer.SetMembers(nil)
}

func (v *View) detachLocked() (Subscription, context.CancelFunc) {
	sub, stop := v.sub, v.stopPump
	v.sub, v.stopPump = nil, nil
	return sub, stop
}

func closeSubscription(sub Subscription, stop context.CancelFunc) {
	if stop != nil {
		stop()
	}
	if sub != nil {
		_ = sub.Close()
	}
}

func dedupe(ms []Message) []Message {
	seen := make(map[string]bool, len(ms))
	out := make([]Message, 0, len(ms))
	for _, m := range ms {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	return out
}

func countReplies(ms []Message) map[string]int {
	out := make(map[string]int)
	for _, m := range ms {
		if m.ParentMessageID != "" {
			out[m.ParentMessageID]++
		}
	}
	return out
}

func toSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}
