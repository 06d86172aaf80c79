package memory

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/signed-upload/pkg/signedupload/mediahost"
)

func TestBackend_PutOpenDelete(t *testing.T) {
	ctx := context.Background()
	b := New()

	require.NoError(t, b.Put(ctx, "demo/image/scrubbed/u/a.png", strings.NewReader("png-bytes"), "image/png"))
	assert.Equal(t, 1, b.Len())

	ct, ok := b.ContentType("demo/image/scrubbed/u/a.png")
	assert.True(t, ok)
	assert.Equal(t, "image/png", ct)

	rc, err := b.Open(ctx, "demo/image/scrubbed/u/a.png")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	require.NoError(t, b.Delete(ctx, "demo/image/scrubbed/u/a.png"))
	_, err = b.Open(ctx, "demo/image/scrubbed/u/a.png")
	assert.ErrorIs(t, err, mediahost.ErrObjectNotFound)
	assert.ErrorIs(t, b.Delete(ctx, "demo/image/scrubbed/u/a.png"), mediahost.ErrObjectNotFound)
}

func TestBackend_DefaultContentType(t *testing.T) {
	b := New()
	require.NoError(t, b.Put(context.Background(), "k", strings.NewReader("x"), ""))

	ct, _ := b.ContentType("k")
	assert.Equal(t, "application/octet-stream", ct)
}
