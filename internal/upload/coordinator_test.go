package upload

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	objects map[string]string
	failOn  string
	puts    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string]string)}
}

func (s *fakeStore) Put(_ context.Context, p string, body io.Reader, _ int64, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.failOn != "" && strings.HasSuffix(p, s.failOn) {
		return errors.New("storage unavailable")
	}
	data, _ := io.ReadAll(body)
	s.objects[p] = string(data)
	return nil
}

func (s *fakeStore) Delete(_ context.Context, paths ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		delete(s.objects, p)
	}
	return nil
}

func (s *fakeStore) PublicURL(p string) string { return "https://cdn.test/" + p }

type fakeLinks struct {
	target Target
	files  []Uploaded
	err    error
}

func (l *fakeLinks) CreateAttachments(_ context.Context, target Target, files []Uploaded) error {
	if l.err != nil {
		return l.err
	}
	l.target = target
	l.files = files
	return nil
}

func file(name, body string) File {
	return File{Name: name, Type: "text/plain", Size: int64(len(body)), Body: strings.NewReader(body)}
}

func TestScreen(t *testing.T) {
	c := NewCoordinator(newFakeStore(), &fakeLinks{}, Options{MaxFileSize: 10})

	accepted, rejected := c.Screen([]File{
		file("notes.txt", "hi"),
		file("setup.EXE", "x"),
		file("big.png", strings.Repeat("x", 11)),
		file("", "x"),
	})

	require.Len(t, accepted, 1)
	assert.Equal(t, "notes.txt", accepted[0].Name)
	require.Len(t, rejected, 3)
	assert.ErrorIs(t, rejected[0].Err, ErrDeniedExtension)
	assert.Equal(t, "setup.EXE", rejected[0].FileName)
	assert.ErrorIs(t, rejected[1].Err, ErrFileTooLarge)
	assert.Error(t, rejected[2].Err)
}

func TestSend_Success(t *testing.T) {
	store := newFakeStore()
	links := &fakeLinks{}
	c := NewCoordinator(store, links, Options{})

	id, uploaded, err := c.Send(context.Background(), DirectMessageTarget,
		[]File{file("a.txt", "aa"), file("b.txt", "bb")},
		func(context.Context) (string, error) { return "dm-1", nil },
	)
	require.NoError(t, err)
	assert.Equal(t, "dm-1", id)
	assert.Len(t, uploaded, 2)
	assert.Len(t, store.objects, 2)
	assert.Equal(t, Target{Kind: DirectMessageTarget, ID: "dm-1"}, links.target)
	assert.Equal(t, "a.txt", links.files[0].FileName)
	assert.Equal(t, int64(2), links.files[1].FileSize)
}

func TestSend_SecondUploadFails(t *testing.T) {
	store := newFakeStore()
	store.failOn = "second.txt"
	links := &fakeLinks{}
	c := NewCoordinator(store, links, Options{})

	created := false
	_, _, err := c.Send(context.Background(), MessageTarget,
		[]File{file("first.txt", "1"), file("second.txt", "2"), file("third.txt", "3")},
		func(context.Context) (string, error) {
			created = true
			return "m-1", nil
		},
	)
	require.Error(t, err)
	assert.Empty(t, store.objects, "uploaded objects must be rolled back")
	assert.Equal(t, 2, store.puts, "upload stops at the first failure")
	assert.False(t, created, "no message row when upload fails")
	assert.Nil(t, links.files)
}

func TestSend_CreateFails(t *testing.T) {
	store := newFakeStore()
	c := NewCoordinator(store, &fakeLinks{}, Options{})

	_, _, err := c.Send(context.Background(), MessageTarget,
		[]File{file("a.txt", "1")},
		func(context.Context) (string, error) { return "", errors.New("insert rejected") },
	)
	require.Error(t, err)
	assert.Empty(t, store.objects)
}

func TestSend_LinkFails(t *testing.T) {
	store := newFakeStore()
	c := NewCoordinator(store, &fakeLinks{err: errors.New("boom")}, Options{})

	id, _, err := c.Send(context.Background(), MessageTarget,
		[]File{file("a.txt", "1")},
		func(context.Context) (string, error) { return "m-9", nil },
	)
	assert.ErrorIs(t, err, ErrAttachmentLink)
	assert.Equal(t, "m-9", id)
	assert.Empty(t, store.objects)
}

func TestSend_NoFiles(t *testing.T) {
	links := &fakeLinks{}
	c := NewCoordinator(newFakeStore(), links, Options{})

	id, uploaded, err := c.Send(context.Background(), MessageTarget, nil,
		func(context.Context) (string, error) { return "m-2", nil },
	)
	require.NoError(t, err)
	assert.Equal(t, "m-2", id)
	assert.Empty(t, uploaded)
	assert.Nil(t, links.files, "no attachment insert for an empty batch")
}

func TestSend_DeniedFileNeverUploads(t *testing.T) {
	store := newFakeStore()
	c := NewCoordinator(store, &fakeLinks{}, Options{})

	_, _, err := c.Send(context.Background(), MessageTarget, []File{file("run.bat", "x")},
		func(context.Context) (string, error) { return "m", nil },
	)
	assert.ErrorIs(t, err, ErrDeniedExtension)
	assert.Equal(t, 0, store.puts)
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "my_file.txt", sanitizeName("my file.txt"))
	assert.Equal(t, "passwd", sanitizeName("../../etc/passwd"))
	assert.Equal(t, "x.png", sanitizeName(`C:\tmp\x.png`))
}
