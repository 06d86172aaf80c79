package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/signed-upload/pkg/signedupload/mediahost"
)

func TestNew_RequiresBaseDir(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestBackend_PutOpenDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	key := "demo/raw/scrubbed/user-42/notes.txt"
	require.NoError(t, b.Put(ctx, key, strings.NewReader("hello"), "text/plain"))

	_, err = os.Stat(filepath.Join(dir, "demo", "raw", "scrubbed", "user-42", "notes.txt"))
	require.NoError(t, err)

	rc, err := b.Open(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, b.Delete(ctx, key))
	_, err = b.Open(ctx, key)
	assert.ErrorIs(t, err, mediahost.ErrObjectNotFound)

	// Empty parents are cleaned up
	_, err = os.Stat(filepath.Join(dir, "demo"))
	assert.True(t, os.IsNotExist(err))
}

func TestBackend_RejectsEscapingKeys(t *testing.T) {
	b, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	assert.Error(t, b.Put(context.Background(), "../outside.txt", strings.NewReader("x"), ""))
	_, err = b.Open(context.Background(), "../../etc/passwd")
	assert.Error(t, err)
}
