package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyIsStableForSameInputs(t *testing.T) {
	m := NewMemoryManager(nil)
	k1, err := m.GenerateKey("query text", "model-a")
	require.NoError(t, err)
	k2, err := m.GenerateKey("query text", "model-a")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	k3, err := m.GenerateKey("different text", "model-a")
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestGenerateKeyRequiresInputs(t *testing.T) {
	m := NewMemoryManager(nil)
	_, err := m.GenerateKey()
	assert.Error(t, err)
}

func TestMemoryManagerSetGetRoundTrip(t *testing.T) {
	m := NewMemoryManager(nil)
	ctx := context.Background()
	key, _ := m.GenerateKey("hello")

	_, found, err := m.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, m.Set(ctx, key, map[string]string{"answer": "42"}, time.Minute))

	data, found, err := m.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"answer":"42"}`, string(data))
}

func TestMemoryManagerDeleteRemovesEntry(t *testing.T) {
	m := NewMemoryManager(nil)
	ctx := context.Background()
	key, _ := m.GenerateKey("to-delete")
	require.NoError(t, m.Set(ctx, key, "value", time.Minute))

	require.NoError(t, m.Delete(ctx, key))

	_, found, err := m.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryManagerExpiresEntries(t *testing.T) {
	m := NewMemoryManager(nil)
	ctx := context.Background()
	key, _ := m.GenerateKey("short-lived")
	require.NoError(t, m.Set(ctx, key, "value", time.Millisecond))

	time.Sleep(5 * time.Millisecond)

	_, found, err := m.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}
