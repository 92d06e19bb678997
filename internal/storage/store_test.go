// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/model"
)

func TestMessageStore_LoadEmpty(t *testing.T) {
	store := NewMessageStore()

	got := store.Load()
	require.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, 0, store.Len())
}

func TestMessageStore_InsertPreservesOrder(t *testing.T) {
	store := NewMessageStore()

	first, err := store.Insert(model.NewUserMessage(10, "Hi"))
	require.NoError(t, err)
	assert.Equal(t, "Hi", first.Text)

	_, err = store.Insert(model.NewAssistantMessage(11, "Hello!"))
	require.NoError(t, err)

	got := store.Load()
	require.Len(t, got, 2)
	assert.Equal(t, int64(10), got[0].ID)
	assert.Equal(t, int64(11), got[1].ID)
	assert.Equal(t, model.Assistant, got[1].Author)
}

func TestMessageStore_InsertDuplicate(t *testing.T) {
	store := NewMessageStore()
	_, err := store.Insert(model.NewUserMessage(1, "first"))
	require.NoError(t, err)

	_, err = store.Insert(model.NewUserMessage(1, "second"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateKey))
	assert.Contains(t, err.Error(), "1")

	got := store.Load()
	require.Len(t, got, 1, "failed insert must not mutate the store")
	assert.Equal(t, "first", got[0].Text)
}

func TestMessageStore_LoadReturnsCopy(t *testing.T) {
	store := NewMessageStore()
	_, _ = store.Insert(model.NewUserMessage(1, "original"))

	got := store.Load()
	got[0].Text = "mutated"

	msg, ok := store.Get(1)
	require.True(t, ok)
	assert.Equal(t, "original", msg.Text)
}

func TestMessageStore_Amend(t *testing.T) {
	store := NewMessageStore()
	_, _ = store.Insert(model.NewUserMessage(1, "draft"))
	_, _ = store.Insert(model.NewAssistantMessage(2, "reply"))

	text := "final"
	require.NoError(t, store.Amend(1, model.MessagePatch{Text: &text}))

	msg, ok := store.Get(1)
	require.True(t, ok)
	assert.Equal(t, "final", msg.Text)
	assert.Equal(t, model.User, msg.Author)

	got := store.Load()
	assert.Equal(t, int64(1), got[0].ID, "amend must not reorder")
}

func TestMessageStore_AmendMissing(t *testing.T) {
	store := NewMessageStore()

	text := "x"
	err := store.Amend(99, model.MessagePatch{Text: &text})
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrDuplicateKey))
}

func TestMessageStore_ConcurrentInsert(t *testing.T) {
	store := NewMessageStore()
	ids := model.NewIDSource()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Insert(model.NewUserMessage(ids.Next(), "msg"))
			assert.NoError(t, err)
			_ = store.Load()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, store.Len())
}
