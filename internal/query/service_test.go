package query

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/rag-backend/internal/chat"
	"github.com/xaenox/rag-backend/internal/models"
	"github.com/xaenox/rag-backend/internal/rag"
	"github.com/xaenox/rag-backend/internal/storage"
	"go.uber.org/zap"
)

type fakeProvider struct {
	result      rag.SearchResult
	searchCalls int
}

func (f *fakeProvider) Search(ctx context.Context, query string, topK int) (*rag.SearchResult, error) {
	f.searchCalls++
	result := f.result
	return &result, nil
}

func (f *fakeProvider) Insert(ctx context.Context, doc rag.Document) error {
	return nil
}

type fakeGenerator struct {
	reply string
	calls int
}

func (f *fakeGenerator) Complete(ctx context.Context, messages []rag.ChatMessage) (string, error) {
	f.calls++
	return f.reply, nil
}

func score(v float64) *float64 { return &v }

type fixture struct {
	service  *Service
	chat     *chat.Service
	provider *fakeProvider
}

func newFixture(maxRequests int, result rag.SearchResult) *fixture {
	logger := zap.NewNop()
	store := storage.NewMemoryStorage(time.Hour, logger)
	chatService := chat.NewService(store, maxRequests, logger)
	provider := &fakeProvider{result: result}
	router := rag.NewRouter(provider, &fakeGenerator{reply: "fallback"}, 0.3, 5, logger)
	return &fixture{
		service:  NewService(chatService, router, 1000, 30*time.Second, logger),
		chat:     chatService,
		provider: provider,
	}
}

func groundedResult(answer string) rag.SearchResult {
	return rag.SearchResult{
		Answer:   answer,
		Passages: []rag.Passage{{Text: "p", Score: score(0.9)}},
	}
}

func TestSubmitQueryNewThread(t *testing.T) {
	f := newFixture(30, groundedResult("Paris."))
	ctx := context.Background()

	result, err := f.service.SubmitQuery(ctx, "alice@example.com", "What is the capital of France?", "")
	require.NoError(t, err)
	assert.Equal(t, "Paris.", result.Answer)
	require.NotEmpty(t, result.ThreadID)

	// The thread holds the user question and the assistant answer.
	thread, err := f.chat.GetThread(ctx, result.ThreadID, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "What is the capital of France?", thread.Title)
	require.Len(t, thread.Messages, 2)
	assert.Equal(t, models.RoleUser, thread.Messages[0].Role)
	assert.Equal(t, "What is the capital of France?", thread.Messages[0].Content)
	assert.Equal(t, models.RoleAssistant, thread.Messages[1].Role)
	assert.Equal(t, "Paris.", thread.Messages[1].Content)

	// Exactly one request consumed.
	available, err := f.chat.RequestsAvailable(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 29, available)
}

func TestSubmitQueryExistingThread(t *testing.T) {
	f := newFixture(30, groundedResult("Answer two."))
	ctx := context.Background()

	first, err := f.service.SubmitQuery(ctx, "alice@example.com", "first question", "")
	require.NoError(t, err)

	second, err := f.service.SubmitQuery(ctx, "alice@example.com", "second question", first.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, first.ThreadID, second.ThreadID)

	thread, err := f.chat.GetThread(ctx, first.ThreadID, "alice@example.com")
	require.NoError(t, err)
	assert.Len(t, thread.Messages, 4)
}

func TestSubmitQueryUnknownThread(t *testing.T) {
	f := newFixture(30, groundedResult("a"))

	_, err := f.service.SubmitQuery(context.Background(), "alice@example.com", "q", "no-such-thread")
	assert.ErrorIs(t, err, chat.ErrThreadNotFound)
	assert.Zero(t, f.provider.searchCalls, "provider must not run for an unknown thread")
}

func TestSubmitQueryEmptyQuestion(t *testing.T) {
	f := newFixture(1, groundedResult("a"))
	ctx := context.Background()

	_, err := f.service.SubmitQuery(ctx, "alice@example.com", "   ", "")
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	// Rejected input consumes nothing.
	assert.Zero(t, f.provider.searchCalls)
	available, err := f.chat.RequestsAvailable(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, available)
}

func TestSubmitQueryTooLong(t *testing.T) {
	f := newFixture(1, groundedResult("a"))

	_, err := f.service.SubmitQuery(context.Background(), "alice@example.com", strings.Repeat("x", 1001), "")
	assert.ErrorIs(t, err, ErrQuestionTooLong)
	assert.Zero(t, f.provider.searchCalls)
}

func TestSubmitQueryQuotaExhausted(t *testing.T) {
	f := newFixture(1, groundedResult("a"))
	ctx := context.Background()

	_, err := f.service.SubmitQuery(ctx, "alice@example.com", "first", "")
	require.NoError(t, err)

	_, err = f.service.SubmitQuery(ctx, "alice@example.com", "second", "")
	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, 0, quotaErr.Remaining)
	assert.Equal(t, 1, quotaErr.Max)

	// The exhausted attempt leaves no new thread behind.
	threads, err := f.chat.ListThreads(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Len(t, threads, 1)
}

func TestSubmitQueryBlankAnswerGuard(t *testing.T) {
	logger := zap.NewNop()
	store := storage.NewMemoryStorage(time.Hour, logger)
	chatService := chat.NewService(store, 30, logger)
	// Sentinel retrieval answer plus a blank generation: the apology
	// must reach the caller as the stored assistant message.
	provider := &fakeProvider{result: rag.SearchResult{
		Answer:   "Empty Response",
		Passages: []rag.Passage{{Text: "p", Score: score(0.9)}},
	}}
	router := rag.NewRouter(provider, &fakeGenerator{reply: ""}, 0.3, 5, logger)
	service := NewService(chatService, router, 1000, 30*time.Second, logger)

	result, err := service.SubmitQuery(context.Background(), "alice@example.com", "q", "")
	require.NoError(t, err)
	assert.Equal(t, rag.ApologyReply, result.Answer)
}

func TestThreadTitle(t *testing.T) {
	assert.Equal(t, "short question", ThreadTitle("short question"))

	long := strings.Repeat("a", 60)
	title := ThreadTitle(long)
	assert.Equal(t, strings.Repeat("a", 50)+"...", title)

	exact := strings.Repeat("b", 50)
	assert.Equal(t, exact, ThreadTitle(exact))
}
