package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xaenox/rag-backend/internal/chat"
	"github.com/xaenox/rag-backend/internal/models"
	"github.com/xaenox/rag-backend/internal/rag"
	"go.uber.org/zap"
)

const titleLimit = 50

var (
	// ErrEmptyQuestion rejects blank questions before any state
	// mutation or provider call.
	ErrEmptyQuestion = errors.New("question cannot be empty")

	// ErrQuestionTooLong rejects questions over the configured limit.
	ErrQuestionTooLong = errors.New("question too long")
)

// QuotaExceededError reports an exhausted request quota together with
// the numbers the caller needs to act on it.
type QuotaExceededError struct {
	Remaining int
	Max       int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("request limit exceeded: %d of %d requests remaining", e.Remaining, e.Max)
}

// Result is the outcome of one answered query.
type Result struct {
	Answer   string `json:"answer"`
	ThreadID string `json:"thread_id"`
}

// Service runs one query end to end: quota check, thread resolution,
// message appends around the routed answer, and the single quota
// decrement.
type Service struct {
	chat              *chat.Service
	router            *rag.Router
	maxQuestionLength int
	providerTimeout   time.Duration
	logger            *zap.Logger
}

func NewService(chatService *chat.Service, router *rag.Router, maxQuestionLength int, providerTimeout time.Duration, logger *zap.Logger) *Service {
	return &Service{
		chat:              chatService,
		router:            router,
		maxQuestionLength: maxQuestionLength,
		providerTimeout:   providerTimeout,
		logger:            logger,
	}
}

// SubmitQuery answers a question inside a thread, creating the thread
// when threadID is empty. The user message append is a hard failure;
// the assistant append is best-effort so a transient persistence error
// never swallows an answer the user already earned.
func (s *Service) SubmitQuery(ctx context.Context, userID, question, threadID string) (*Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	if utf8.RuneCountInString(question) > s.maxQuestionLength {
		return nil, ErrQuestionTooLong
	}

	canSend, err := s.chat.CanSend(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check quota: %w", err)
	}
	if !canSend {
		remaining, err := s.chat.RequestsAvailable(ctx, userID)
		if err != nil {
			remaining = 0
		}
		s.logger.Warn("Request quota exhausted",
			zap.String("user_id", userID),
			zap.Int("remaining", remaining))
		return nil, &QuotaExceededError{Remaining: remaining, Max: s.chat.MaxRequests()}
	}

	if threadID == "" {
		threadID, err = s.chat.CreateThread(ctx, userID, ThreadTitle(question))
		if err != nil {
			return nil, fmt.Errorf("failed to create thread: %w", err)
		}
	} else {
		if _, err := s.chat.GetThread(ctx, threadID, userID); err != nil {
			return nil, err
		}
	}

	if _, err := s.chat.AddMessage(ctx, threadID, userID, question, models.RoleUser); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	answerCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	answer, err := s.router.Answer(answerCtx, question)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(answer) == "" {
		answer = "I apologize, but I couldn't generate a response for your question."
	}

	if _, err := s.chat.AddMessage(ctx, threadID, userID, answer, models.RoleAssistant); err != nil {
		// The user message and the answer both survive; losing the
		// stored assistant copy is preferable to failing the request.
		s.logger.Error("Failed to save assistant message",
			zap.Error(err),
			zap.String("thread_id", threadID))
	}

	remaining, err := s.chat.DecrementRequests(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to decrement request quota",
			zap.Error(err),
			zap.String("user_id", userID))
	} else {
		s.logger.Info("Query answered",
			zap.String("user_id", userID),
			zap.String("thread_id", threadID),
			zap.Int("requests_remaining", remaining))
	}

	return &Result{Answer: answer, ThreadID: threadID}, nil
}

// ThreadTitle derives a thread title from the first question,
// truncating past 50 characters with an ellipsis.
func ThreadTitle(question string) string {
	runes := []rune(question)
	if len(runes) <= titleLimit {
		return question
	}
	return string(runes[:titleLimit]) + "..."
}
