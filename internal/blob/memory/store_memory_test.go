package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycflow/internal/blob"
)

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	data := []byte{0xff, 0xd8, 0xff}

	ref, err := store.Put(ctx, "app/documents/front_x.jpg", "image/jpeg", data)
	require.NoError(t, err)
	data[0] = 0x00

	obj, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", obj.ContentType)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, obj.Data)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestPutHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewInMemoryStore().Put(ctx, "k", "image/png", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
