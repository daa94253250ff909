package chatview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/mention"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/rank"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/upload"
)

var (
	ari = Identity{ID: "u-ari", Username: "ari", Rank: rank.Moderator}
	bob = Author{ID: "u-bob", Username: "bob"}
	t0  = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
)

type fakeSub struct {
	ch     chan Event
	once   sync.Once
	mu     sync.Mutex
	closed bool
}

func (s *fakeSub) Events() <-chan Event { return s.ch }

func (s *fakeSub) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.ch)
	})
	return nil
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeBackend struct {
	mu       sync.Mutex
	me       Identity
	channels map[string]ChannelInfo
	history  map[string][]Message
	direct   map[string][]Message
	members  []mention.Member
	pins     map[string]map[string]bool
	subs     []*fakeSub
	gates    map[string]chan struct{}
	entered  chan string
	sendGate chan struct{}
	sending  chan struct{}

	sendErr   error
	updateErr error
	deleteErr error
	editedAt  time.Time

	sent      []NewMessage
	published []string
	deleted   []string
	readCalls []string
	seq       int
}

func newFakeBackend(me Identity) *fakeBackend {
	return &fakeBackend{
		me:       me,
		channels: make(map[string]ChannelInfo),
		history:  make(map[string][]Message),
		direct:   make(map[string][]Message),
		pins:     make(map[string]map[string]bool),
		gates:    make(map[string]chan struct{}),
		editedAt: t0.Add(time.Hour),
	}
}

func (b *fakeBackend) Subscribe(context.Context, Conversation) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &fakeSub{ch: make(chan Event, 16)}
	b.subs = append(b.subs, s)
	return s, nil
}

func (b *fakeBackend) Channel(_ context.Context, id string) (ChannelInfo, error) {
	b.mu.Lock()
	g := b.gates[id]
	info, ok := b.channels[id]
	entered := b.entered
	b.mu.Unlock()
	if entered != nil {
		entered <- id
	}
	if g != nil {
		<-g
	}
	if !ok {
		return ChannelInfo{}, errors.New("no such channel")
	}
	return info, nil
}

func (b *fakeBackend) ChannelHistory(_ context.Context, id string) ([]Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.history[id]...), nil
}

func (b *fakeBackend) DirectHistory(_ context.Context, friendID string) ([]Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.direct[friendID]...), nil
}

func (b *fakeBackend) Members(context.Context, Conversation) ([]mention.Member, error) {
	return b.members, nil
}

func (b *fakeBackend) PinnedSet(_ context.Context, channelID string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var ids []string
	for id := range b.pins[channelID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (b *fakeBackend) ReplyCounts(_ context.Context, channelID string) (map[string]int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return countReplies(b.history[channelID]), nil
}

func (b *fakeBackend) ResolveMessage(_ context.Context, m Message) (Message, error) {
	if m.UserID == bob.ID {
		m.Author = bob
	}
	return m, nil
}

func (b *fakeBackend) SendMessage(_ context.Context, m NewMessage) (Message, error) {
	b.mu.Lock()
	gate, started := b.sendGate, b.sending
	b.mu.Unlock()
	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return Message{}, b.sendErr
	}
	b.seq++
	b.sent = append(b.sent, m)
	out := Message{
		ID:              fmt.Sprintf("sent-%d", b.seq),
		Content:         m.Content,
		UserID:          b.me.ID,
		ParentMessageID: m.ParentMessageID,
		CreatedAt:       t0,
		Author:          Author{ID: b.me.ID, Username: b.me.Username},
	}
	if m.Conversation.Kind == ChannelConversation {
		out.ChannelID = m.Conversation.ID
	} else {
		out.ReceiverID = m.Conversation.ID
	}
	return out, nil
}

func (b *fakeBackend) PublishMessage(_ context.Context, _ Conversation, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, id)
	return nil
}

func (b *fakeBackend) UpdateMessage(context.Context, Conversation, string, string) (time.Time, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.editedAt, b.updateErr
}

func (b *fakeBackend) DeleteMessage(_ context.Context, _ Conversation, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteErr != nil {
		return b.deleteErr
	}
	b.deleted = append(b.deleted, id)
	return nil
}

func (b *fakeBackend) PinMessage(_ context.Context, channelID, messageID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pins[channelID] == nil {
		b.pins[channelID] = make(map[string]bool)
	}
	b.pins[channelID][messageID] = true
	return nil
}

func (b *fakeBackend) UnpinMessage(_ context.Context, channelID, messageID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pins[channelID], messageID)
	return nil
}

func (b *fakeBackend) MarkDirectRead(_ context.Context, friendID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readCalls = append(b.readCalls, friendID)
	return nil
}

func (b *fakeBackend) openSubs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.subs {
		if !s.isClosed() {
			n++
		}
	}
	return n
}

func (b *fakeBackend) lastSub() *fakeSub {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subs[len(b.subs)-1]
}

func msg(id, userID, channelID, content string) Message {
	m := Message{ID: id, UserID: userID, ChannelID: channelID, Content: content, CreatedAt: t0}
	if userID == bob.ID {
		m.Author = bob
	} else {
		m.Author = Author{ID: userID, Username: strings.TrimPrefix(userID, "u-")}
	}
	return m
}

func seeded(t *testing.T) (*fakeBackend, *View) {
	t.Helper()
	b := newFakeBackend(ari)
	b.channels["general"] = ChannelInfo{ID: "general", Name: "general", ServerID: "s1"}
	b.history["general"] = []Message{
		msg("m1", ari.ID, "general", "hello"),
		msg("m2", bob.ID, "general", "hey @ari"),
	}
	b.members = []mention.Member{{ID: ari.ID, Username: "ari"}, {ID: bob.ID, Username: "bob"}}
	v := NewView(b, ari, Options{})
	require.NoError(t, v.Open(context.Background(), Channel("general")))
	t.Cleanup(v.Close)
	return b, v
}

func ids(ms []Message) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func TestOpen_Channel(t *testing.T) {
	b, v := seeded(t)

	assert.Equal(t, Ready, v.State())
	assert.Equal(t, []string{"m1", "m2"}, ids(v.Messages()))
	assert.Equal(t, 1, b.openSubs())
	assert.True(t, v.CanWrite())
	assert.Empty(t, v.WriteNotice())
}

func TestDeliver_Idempotent(t *testing.T) {
	_, v := seeded(t)
	ctx := context.Background()

	ev := Event{Type: EventCreated, Message: msg("m3", bob.ID, "general", "again")}
	require.NoError(t, v.Deliver(ctx, ev))
	require.NoError(t, v.Deliver(ctx, ev))

	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(v.Messages()))
	assert.Equal(t, "bob", v.Messages()[2].Author.Username)
}

func TestDeliver_ThroughSubscription(t *testing.T) {
	b, v := seeded(t)
	sub := b.lastSub()

	ev := Event{Type: EventCreated, Message: msg("m3", bob.ID, "general", "pushed")}
	sub.ch <- ev
	sub.ch <- ev
	sub.ch <- Event{Type: EventCreated, Message: msg("m1", ari.ID, "general", "dup of history")}
	sub.ch <- Event{Type: EventCreated, Message: msg("x1", bob.ID, "elsewhere", "wrong channel")}

	require.Eventually(t, func() bool { return len(v.Messages()) == 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(v.Messages()))
}

func TestDeliver_UpdateAndDelete(t *testing.T) {
	_, v := seeded(t)
	ctx := context.Background()
	edited := t0.Add(time.Minute)

	require.NoError(t, v.Deliver(ctx, Event{Type: EventUpdated, Message: Message{ID: "m2", Content: "changed", EditedAt: &edited}}))
	assert.Equal(t, "changed", v.Messages()[1].Content)
	assert.Equal(t, edited, *v.Messages()[1].EditedAt)

	require.NoError(t, v.Deliver(ctx, Event{Type: EventDeleted, Message: Message{ID: "m1"}}))
	assert.Equal(t, []string{"m2"}, ids(v.Messages()))

	assert.Error(t, v.Deliver(ctx, Event{Type: "bogus"}))
}

func TestOpen_SwitchDropsStaleLoad(t *testing.T) {
	b := newFakeBackend(ari)
	b.channels["slow"] = ChannelInfo{ID: "slow", Name: "slow"}
	b.channels["fast"] = ChannelInfo{ID: "fast", Name: "fast"}
	b.history["slow"] = []Message{msg("s1", bob.ID, "slow", "old")}
	b.history["fast"] = []Message{msg("f1", bob.ID, "fast", "new")}
	release := make(chan struct{})
	b.gates["slow"] = release
	b.entered = make(chan string, 4)

	v := NewView(b, ari, Options{})
	defer v.Close()

	done := make(chan error, 1)
	go func() { done <- v.Open(context.Background(), Channel("slow")) }()
	require.Equal(t, "slow", <-b.entered)
	require.Equal(t, 1, b.openSubs())

	require.NoError(t, v.Open(context.Background(), Channel("fast")))
	assert.Equal(t, 1, b.openSubs())

	close(release)
	assert.ErrorIs(t, <-done, ErrStale)

	assert.Equal(t, Channel("fast"), v.Conversation())
	assert.Equal(t, []string{"f1"}, ids(v.Messages()))
	assert.Equal(t, 1, b.openSubs())
}

func TestOpen_RapidSwitchingKeepsOneSubscription(t *testing.T) {
	b := newFakeBackend(ari)
	for i := 0; i < 5; i++ {
		id := fmt.Sprint("c", i)
		b.channels[id] = ChannelInfo{ID: id, Name: id}
	}
	v := NewView(b, ari, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = v.Open(context.Background(), Channel(fmt.Sprint("c", i)))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, b.openSubs())

	v.Close()
	assert.Equal(t, 0, b.openSubs())
	assert.Equal(t, Closed, v.State())
}

func TestEdit(t *testing.T) {
	b, v := seeded(t)
	ctx := context.Background()

	_, err := v.BeginEdit("m2")
	assert.ErrorIs(t, err, ErrNotOwner)

	draft, err := v.BeginEdit("m1")
	require.NoError(t, err)
	assert.Equal(t, "hello", draft)

	b.updateErr = errors.New("network down")
	err = v.Edit(ctx, "hello world")
	require.Error(t, err)
	assert.Equal(t, "hello", v.Messages()[0].Content)
	assert.Nil(t, v.Messages()[0].EditedAt)
	id, kept := v.EditDraft()
	assert.Equal(t, "m1", id)
	assert.Equal(t, "hello world", kept)

	b.updateErr = nil
	require.NoError(t, v.Edit(ctx, "hello world"))
	assert.Equal(t, "hello world", v.Messages()[0].Content)
	require.NotNil(t, v.Messages()[0].EditedAt)
	assert.Equal(t, b.editedAt, *v.Messages()[0].EditedAt)
	id, _ = v.EditDraft()
	assert.Empty(t, id)

	assert.ErrorIs(t, v.Edit(ctx, "again"), ErrNotEditing)
}

func TestDelete(t *testing.T) {
	b, v := seeded(t)
	ctx := context.Background()

	assert.ErrorIs(t, v.Delete(ctx, "m1", false), ErrNotConfirmed)
	assert.Len(t, v.Messages(), 2)
	assert.Empty(t, b.deleted)

	assert.ErrorIs(t, v.Delete(ctx, "m2", true), ErrNotOwner)

	b.deleteErr = errors.New("rejected")
	require.Error(t, v.Delete(ctx, "m1", true))
	assert.Equal(t, []string{"m1", "m2"}, ids(v.Messages()))

	b.deleteErr = nil
	require.NoError(t, v.Delete(ctx, "m1", true))
	assert.Equal(t, []string{"m2"}, ids(v.Messages()))
	assert.Equal(t, []string{"m1"}, b.deleted)
}

func TestReply(t *testing.T) {
	b, v := seeded(t)

	prefill, err := v.Reply("m2")
	require.NoError(t, err)
	assert.Equal(t, "@bob ", prefill)
	assert.Equal(t, "m2", v.ReplyingTo())
	assert.Equal(t, "@bob ", v.Composer().Text())

	v.CancelReply()
	assert.Empty(t, v.ReplyingTo())
	assert.Empty(t, v.Composer().Text())

	_, err = v.Reply("m2")
	require.NoError(t, err)
	sent, err := v.Send(context.Background(), "@bob sure", nil)
	require.NoError(t, err)
	assert.Equal(t, "m2", sent.ParentMessageID)
	assert.Equal(t, "m2", b.sent[0].ParentMessageID)
	assert.Empty(t, v.ReplyingTo())
	assert.Equal(t, 1, v.ReplyCount("m2"))
}

func TestKey_EscapeCancelsReply(t *testing.T) {
	_, v := seeded(t)

	assert.False(t, v.Key(mention.KeyEscape), "nothing to cancel")

	_, err := v.Reply("m2")
	require.NoError(t, err)
	text := "@bob hi @"
	v.Composer().Input(text, len([]rune(text)))
	require.Equal(t, mention.Composing, v.Composer().State())

	require.True(t, v.Key(mention.KeyEscape))
	assert.Equal(t, mention.Idle, v.Composer().State(), "the dropdown closes first")
	assert.Equal(t, "m2", v.ReplyingTo())
	assert.Equal(t, text, v.Composer().Text())

	require.True(t, v.Key(mention.KeyEscape))
	assert.Empty(t, v.ReplyingTo())
	assert.Empty(t, v.Composer().Text())

	assert.False(t, v.Key(mention.KeyDown))
}

func TestMentionCount(t *testing.T) {
	b := newFakeBackend(ari)
	b.channels["general"] = ChannelInfo{ID: "general", Name: "general"}
	reply := msg("m4", bob.ID, "general", "agreed")
	reply.ParentMessageID = "m1"
	b.history["general"] = []Message{
		msg("m1", ari.ID, "general", "@ari talking to myself"),
		msg("m2", bob.ID, "general", "hey @ari"),
		msg("m3", bob.ID, "general", "no mention"),
		reply,
	}
	v := NewView(b, ari, Options{})
	require.NoError(t, v.Open(context.Background(), Channel("general")))
	defer v.Close()

	assert.Equal(t, 2, v.MentionCount())
	assert.Equal(t, 1, v.ReplyCount("m1"))

	assert.True(t, v.ToggleMentionsOnly())
	assert.Equal(t, []string{"m2", "m4"}, ids(v.Visible()))
	assert.Len(t, v.Messages(), 4)

	assert.False(t, v.ToggleMentionsOnly())
	assert.Len(t, v.Visible(), 4)
}

func TestTogglePin(t *testing.T) {
	b, v := seeded(t)
	ctx := context.Background()
	b.pins["general"] = map[string]bool{"m1": true}
	require.NoError(t, v.Open(ctx, Channel("general")))
	require.True(t, v.IsPinned("m1"))
	assert.Equal(t, []string{"m1"}, v.PinnedSet())

	require.NoError(t, v.TogglePin(ctx, "m1"))
	assert.False(t, v.IsPinned("m1"))
	assert.NotContains(t, v.PinnedSet(), "m1")

	require.NoError(t, v.TogglePin(ctx, "m2"))
	assert.True(t, v.IsPinned("m2"))
}

func TestTogglePin_RequiresModerator(t *testing.T) {
	b := newFakeBackend(ari)
	b.channels["general"] = ChannelInfo{ID: "general", Name: "general"}
	member := Identity{ID: "u-cal", Username: "cal", Rank: rank.User}
	v := NewView(b, member, Options{})
	require.NoError(t, v.Open(context.Background(), Channel("general")))
	defer v.Close()

	assert.ErrorIs(t, v.TogglePin(context.Background(), "m1"), ErrCannotPin)
}

func TestCanWrite_RestrictedChannel(t *testing.T) {
	b := newFakeBackend(ari)
	b.channels["announcements"] = ChannelInfo{ID: "announcements", Name: "announcements", AllowedWriterRoles: []string{rank.Admin}}
	v := NewView(b, Identity{ID: "u-cal", Username: "cal", Rank: rank.User}, Options{})
	require.NoError(t, v.Open(context.Background(), Channel("announcements")))
	defer v.Close()

	assert.False(t, v.CanWrite())
	assert.Contains(t, v.WriteNotice(), "#announcements")

	_, err := v.Send(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, ErrCannotWrite)
	assert.Empty(t, b.sent)
}

func TestSend_Validation(t *testing.T) {
	b := newFakeBackend(ari)
	b.channels["general"] = ChannelInfo{ID: "general", Name: "general"}
	v := NewView(b, ari, Options{MaxContentLength: 5})
	ctx := context.Background()

	_, err := v.Send(ctx, "hi", nil)
	assert.ErrorIs(t, err, ErrNotOpen)

	require.NoError(t, v.Open(ctx, Channel("general")))
	defer v.Close()

	_, err = v.Send(ctx, "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyContent)
	_, err = v.Send(ctx, "toolong", nil)
	assert.ErrorIs(t, err, ErrContentTooLong)
	_, err = v.Send(ctx, "héllo", nil)
	assert.NoError(t, err)
	assert.Len(t, b.sent, 1)
}

func TestSend_InFlightGuard(t *testing.T) {
	b, v := seeded(t)
	ctx := context.Background()
	b.mu.Lock()
	b.sendGate = make(chan struct{})
	b.sending = make(chan struct{}, 1)
	b.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := v.Send(ctx, "first", nil)
		done <- err
	}()
	<-b.sending

	_, err := v.Send(ctx, "second", nil)
	assert.ErrorIs(t, err, ErrSendInFlight)

	close(b.sendGate)
	require.NoError(t, <-done)

	b.mu.Lock()
	b.sendErr = errors.New("offline")
	b.mu.Unlock()
	_, err = v.Send(ctx, "third", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSendInFlight)

	b.mu.Lock()
	b.sendErr = nil
	b.mu.Unlock()
	_, err = v.Send(ctx, "fourth", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "fourth"}, []string{b.sent[0].Content, b.sent[1].Content})
}

type memStore struct {
	mu      sync.Mutex
	objects map[string]bool
}

func (s *memStore) Put(_ context.Context, p string, _ io.Reader, _ int64, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[p] = true
	return nil
}

func (s *memStore) Delete(_ context.Context, paths ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		delete(s.objects, p)
	}
	return nil
}

func (s *memStore) PublicURL(p string) string { return p }

type memLinks struct {
	target upload.Target
	err    error
}

func (l *memLinks) CreateAttachments(_ context.Context, target upload.Target, _ []upload.Uploaded) error {
	l.target = target
	return l.err
}

func TestSend_WithAttachments(t *testing.T) {
	b := newFakeBackend(ari)
	b.channels["general"] = ChannelInfo{ID: "general", Name: "general"}
	store := &memStore{objects: make(map[string]bool)}
	links := &memLinks{}
	v := NewView(b, ari, Options{Uploads: upload.NewCoordinator(store, links, upload.Options{})})
	ctx := context.Background()
	require.NoError(t, v.Open(ctx, Channel("general")))
	defer v.Close()

	files := []upload.File{{Name: "notes.txt", Type: "text/plain", Size: 3, Body: strings.NewReader("abc")}}
	sent, err := v.Send(ctx, "", files)
	require.NoError(t, err)
	require.Len(t, sent.Attachments, 1)
	assert.Equal(t, "notes.txt", sent.Attachments[0].FileName)
	assert.Equal(t, upload.Target{Kind: upload.MessageTarget, ID: sent.ID}, links.target)
	assert.Len(t, store.objects, 1)
	assert.Equal(t, []string{sent.ID}, ids(v.Messages()))
	assert.True(t, b.sent[0].HasAttachments)
	assert.Equal(t, []string{sent.ID}, b.published, "announced once the files are linked")
}

func TestSend_LinkFailureIsNotAnnounced(t *testing.T) {
	b := newFakeBackend(ari)
	b.channels["general"] = ChannelInfo{ID: "general", Name: "general"}
	store := &memStore{objects: make(map[string]bool)}
	links := &memLinks{err: errors.New("insert failed")}
	v := NewView(b, ari, Options{Uploads: upload.NewCoordinator(store, links, upload.Options{})})
	ctx := context.Background()
	require.NoError(t, v.Open(ctx, Channel("general")))
	defer v.Close()

	files := []upload.File{{Name: "notes.txt", Type: "text/plain", Size: 3, Body: strings.NewReader("abc")}}
	_, err := v.Send(ctx, "", files)
	require.ErrorIs(t, err, upload.ErrAttachmentLink)
	assert.Empty(t, store.objects)
	assert.Empty(t, b.published)
}

func TestSend_WithoutFilesIsNotAnnouncedTwice(t *testing.T) {
	b := newFakeBackend(ari)
	b.channels["general"] = ChannelInfo{ID: "general", Name: "general"}
	v := NewView(b, ari, Options{})
	ctx := context.Background()
	require.NoError(t, v.Open(ctx, Channel("general")))
	defer v.Close()

	_, err := v.Send(ctx, "plain", nil)
	require.NoError(t, err)
	assert.False(t, b.sent[0].HasAttachments)
	assert.Empty(t, b.published)
}

func TestDirect_MarksRead(t *testing.T) {
	b := newFakeBackend(ari)
	b.direct[bob.ID] = []Message{
		{ID: "d1", UserID: bob.ID, ReceiverID: ari.ID, Content: "yo", Author: bob},
		{ID: "d2", UserID: ari.ID, ReceiverID: bob.ID, Content: "hi"},
	}
	v := NewView(b, ari, Options{})
	ctx := context.Background()
	require.NoError(t, v.Open(ctx, Direct(bob.ID)))
	defer v.Close()

	assert.True(t, v.Messages()[0].Read)
	assert.False(t, v.Messages()[1].Read)
	assert.Equal(t, []string{bob.ID}, b.readCalls)
	assert.True(t, v.CanWrite())

	require.NoError(t, v.Deliver(ctx, Event{Type: EventCreated, Message: Message{ID: "d3", UserID: bob.ID, ReceiverID: ari.ID, Content: "u there"}}))
	require.NoError(t, v.Deliver(ctx, Event{Type: EventCreated, Message: Message{ID: "z9", UserID: "u-eve", ReceiverID: ari.ID, Content: "other chat"}}))
	assert.Equal(t, []string{"d1", "d2", "d3"}, ids(v.Messages()))
	assert.True(t, v.Messages()[2].Read)
	assert.Equal(t, []string{bob.ID, bob.ID}, b.readCalls)
}

func TestProperty_DeliverIdempotent(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("repeated deliveries leave one entry per id", prop.ForAll(
		func(seq []int) bool {
			b := newFakeBackend(ari)
			b.channels["general"] = ChannelInfo{ID: "general", Name: "general"}
			v := NewView(b, ari, Options{})
			ctx := context.Background()
			if err := v.Open(ctx, Channel("general")); err != nil {
				return false
			}
			defer v.Close()

			distinct := make(map[string]bool)
			for _, n := range seq {
				id := fmt.Sprint("m", n)
				distinct[id] = true
				if err := v.Deliver(ctx, Event{Type: EventCreated, Message: msg(id, bob.ID, "general", "x")}); err != nil {
					return false
				}
			}
			got := v.Messages()
			seen := make(map[string]bool)
			for _, m := range got {
				if seen[m.ID] {
					return false
				}
				seen[m.ID] = true
			}
			return len(got) == len(distinct)
		},
		gen.SliceOf(gen.IntRange(0, 9)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
