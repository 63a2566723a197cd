package chat

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/rag-backend/internal/models"
	"github.com/xaenox/rag-backend/internal/storage"
	"go.uber.org/zap"
)

func newTestService(maxRequests int) *Service {
	store := storage.NewMemoryStorage(time.Hour, zap.NewNop())
	return NewService(store, maxRequests, zap.NewNop())
}

func TestCreateAndGetThread(t *testing.T) {
	svc := newTestService(30)
	ctx := context.Background()

	threadID, err := svc.CreateThread(ctx, "alice@example.com", "How does photosynthesis work?")
	require.NoError(t, err)
	require.NotEmpty(t, threadID)

	thread, err := svc.GetThread(ctx, threadID, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "How does photosynthesis work?", thread.Title)
	assert.Empty(t, thread.Messages)
	assert.Equal(t, thread.CreatedAt, thread.UpdatedAt)
}

func TestGetThreadWrongUser(t *testing.T) {
	svc := newTestService(30)
	ctx := context.Background()

	threadID, err := svc.CreateThread(ctx, "alice@example.com", "secret")
	require.NoError(t, err)

	_, err = svc.GetThread(ctx, threadID, "mallory@example.com")
	assert.ErrorIs(t, err, ErrThreadNotFound)
}

func TestAddMessageBumpsUpdatedAt(t *testing.T) {
	svc := newTestService(30)
	ctx := context.Background()

	threadID, err := svc.CreateThread(ctx, "alice@example.com", "t")
	require.NoError(t, err)
	created, err := svc.GetThread(ctx, threadID, "alice@example.com")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = svc.AddMessage(ctx, threadID, "alice@example.com", "hello", models.RoleUser)
	require.NoError(t, err)
	_, err = svc.AddMessage(ctx, threadID, "alice@example.com", "hi there", models.RoleAssistant)
	require.NoError(t, err)

	thread, err := svc.GetThread(ctx, threadID, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, thread.Messages, 2)
	assert.Equal(t, models.RoleUser, thread.Messages[0].Role)
	assert.Equal(t, models.RoleAssistant, thread.Messages[1].Role)
	assert.True(t, thread.UpdatedAt.After(created.UpdatedAt))
	assert.Equal(t, thread.Messages[1].Timestamp, thread.UpdatedAt)
}

func TestAddMessageUnknownThread(t *testing.T) {
	svc := newTestService(30)

	_, err := svc.AddMessage(context.Background(), "nope", "alice@example.com", "hello", models.RoleUser)
	assert.ErrorIs(t, err, ErrThreadNotFound)
}

func TestDeleteThread(t *testing.T) {
	svc := newTestService(30)
	ctx := context.Background()

	threadID, err := svc.CreateThread(ctx, "alice@example.com", "t")
	require.NoError(t, err)

	deleted, err := svc.DeleteThread(ctx, threadID, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, deleted)

	// Second delete reports absence rather than erroring.
	deleted, err = svc.DeleteThread(ctx, threadID, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = svc.GetThread(ctx, threadID, "alice@example.com")
	assert.ErrorIs(t, err, ErrThreadNotFound)
}

func TestQuotaLifecycle(t *testing.T) {
	svc := newTestService(3)
	ctx := context.Background()

	// A fresh user has the full quota without any stored counter.
	available, err := svc.RequestsAvailable(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 3, available)

	for want := 2; want >= 0; want-- {
		remaining, err := svc.DecrementRequests(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, want, remaining)
	}

	canSend, err := svc.CanSend(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, canSend)

	// Decrementing at zero floors instead of going negative.
	remaining, err := svc.DecrementRequests(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	limits, err := svc.Limits(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, limits.RequestsAvailable)
	assert.Equal(t, 3, limits.MaxRequests)
	assert.Equal(t, 3, limits.RequestsUsed)
}

func TestQuotaLegacyRecordMigration(t *testing.T) {
	store := storage.NewMemoryStorage(time.Hour, zap.NewNop())
	svc := NewService(store, 30, zap.NewNop())
	ctx := context.Background()

	// A record written before quota tracking has threads but no counter.
	require.NoError(t, store.Write(ctx, "old@example.com", &models.UserChatData{
		Threads: []models.Thread{{ID: "t1", Title: "old thread"}},
	}))

	available, err := svc.RequestsAvailable(ctx, "old@example.com")
	require.NoError(t, err)
	assert.Equal(t, 30, available)

	remaining, err := svc.DecrementRequests(ctx, "old@example.com")
	require.NoError(t, err)
	assert.Equal(t, 29, remaining)

	// The threads survive the migration write.
	threads, err := svc.ListThreads(ctx, "old@example.com")
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "t1", threads[0].ID)
}

func TestThreadsPagePagination(t *testing.T) {
	svc := newTestService(100)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		_, err := svc.CreateThread(ctx, "alice@example.com", fmt.Sprintf("thread %02d", i))
		require.NoError(t, err)
	}

	page, err := svc.ThreadsPage(ctx, "alice@example.com", 1, 10, "created_at", "asc")
	require.NoError(t, err)
	assert.Equal(t, 25, page.TotalCount)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasNext)
	assert.False(t, page.HasPrevious)
	require.Len(t, page.Threads, 10)
	assert.Equal(t, "thread 00", page.Threads[0].Title)

	page, err = svc.ThreadsPage(ctx, "alice@example.com", 3, 10, "created_at", "asc")
	require.NoError(t, err)
	assert.False(t, page.HasNext)
	assert.True(t, page.HasPrevious)
	require.Len(t, page.Threads, 5)
	assert.Equal(t, "thread 24", page.Threads[4].Title)

	// A page past the end is empty rather than an error.
	page, err = svc.ThreadsPage(ctx, "alice@example.com", 9, 10, "created_at", "asc")
	require.NoError(t, err)
	assert.Empty(t, page.Threads)
	assert.Equal(t, 25, page.TotalCount)
}

func TestThreadsPageSortOrder(t *testing.T) {
	svc := newTestService(100)
	ctx := context.Background()

	first, err := svc.CreateThread(ctx, "alice@example.com", "banana")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := svc.CreateThread(ctx, "alice@example.com", "apple")
	require.NoError(t, err)

	// Default ordering puts the most recently updated thread first.
	page, err := svc.ThreadsPage(ctx, "alice@example.com", 1, 10, "updated_at", "desc")
	require.NoError(t, err)
	require.Len(t, page.Threads, 2)
	assert.Equal(t, second, page.Threads[0].ID)

	// Touching the older thread moves it to the top.
	_, err = svc.AddMessage(ctx, first, "alice@example.com", "hello", models.RoleUser)
	require.NoError(t, err)
	page, err = svc.ThreadsPage(ctx, "alice@example.com", 1, 10, "updated_at", "desc")
	require.NoError(t, err)
	assert.Equal(t, first, page.Threads[0].ID)
	assert.Equal(t, 1, page.Threads[0].MessageCount)

	page, err = svc.ThreadsPage(ctx, "alice@example.com", 1, 10, "title", "asc")
	require.NoError(t, err)
	assert.Equal(t, "apple", page.Threads[0].Title)
	assert.Equal(t, "banana", page.Threads[1].Title)
}

func TestMessagesPage(t *testing.T) {
	svc := newTestService(100)
	ctx := context.Background()

	threadID, err := svc.CreateThread(ctx, "alice@example.com", "t")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := svc.AddMessage(ctx, threadID, "alice@example.com", fmt.Sprintf("msg %d", i), models.RoleUser)
		require.NoError(t, err)
	}

	page, err := svc.MessagesPage(ctx, threadID, "alice@example.com", 1, 2, "asc")
	require.NoError(t, err)
	assert.Equal(t, 5, page.TotalCount)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "msg 0", page.Messages[0].Content)

	page, err = svc.MessagesPage(ctx, threadID, "alice@example.com", 1, 2, "desc")
	require.NoError(t, err)
	assert.Equal(t, "msg 4", page.Messages[0].Content)

	_, err = svc.MessagesPage(ctx, "missing", "alice@example.com", 1, 2, "asc")
	assert.ErrorIs(t, err, ErrThreadNotFound)
}
