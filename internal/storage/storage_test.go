package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/models"
)

func TestBucket(t *testing.T) {
	b, err := NewBucket(t.TempDir(), "https://cdn.example.com/")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "attachments/1/a.txt", strings.NewReader("abc"), 3, "text/plain"))
	assert.True(t, b.Exists("attachments/1/a.txt"))
	assert.Equal(t, "https://cdn.example.com/attachments/1/a.txt", b.PublicURL("attachments/1/a.txt"))

	t.Run("short write leaves nothing behind", func(t *testing.T) {
		err := b.Put(ctx, "attachments/2/b.txt", strings.NewReader("ab"), 5, "")
		require.Error(t, err)
		assert.False(t, b.Exists("attachments/2/b.txt"))
	})

	t.Run("path escape is rejected", func(t *testing.T) {
		err := b.Put(ctx, "../outside.txt", strings.NewReader("x"), 1, "")
		assert.ErrorIs(t, err, ErrInvalidObjectPath)
	})

	t.Run("delete tolerates missing objects", func(t *testing.T) {
		require.NoError(t, b.Delete(ctx, "attachments/1/a.txt", "attachments/9/missing.txt"))
		assert.False(t, b.Exists("attachments/1/a.txt"))
	})
}

func TestInitSQLite(t *testing.T) {
	db, err := InitSQLite("file:storage_test?mode=memory&cache=shared")
	require.NoError(t, err)

	ch := models.Channel{ServerID: "s1", Name: "general", AllowedWriterRoles: []string{"admin"}}
	require.NoError(t, db.Create(&ch).Error)
	assert.NotEmpty(t, ch.ID)

	var got models.Channel
	require.NoError(t, db.First(&got, "id = ?", ch.ID).Error)
	assert.Equal(t, []string{"admin"}, got.AllowedWriterRoles)
}
