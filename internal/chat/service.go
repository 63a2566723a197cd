package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/rag-backend/internal/models"
	"github.com/xaenox/rag-backend/internal/storage"
	"go.uber.org/zap"
)

// ErrThreadNotFound is returned when a thread does not exist for the
// given user. A thread owned by another user is indistinguishable from
// a nonexistent one; the linear scan of the owner's record is the
// ownership check.
var ErrThreadNotFound = errors.New("thread not found")

// Service manages threads, messages and the per-user request quota on
// top of the whole-record state store.
type Service struct {
	storage     storage.Storage
	maxRequests int
	logger      *zap.Logger
}

func NewService(store storage.Storage, maxRequests int, logger *zap.Logger) *Service {
	return &Service{
		storage:     store,
		maxRequests: maxRequests,
		logger:      logger,
	}
}

// available applies the lazy quota migration: records written before
// quota tracking existed carry no counter and are treated as full.
func (s *Service) available(data *models.UserChatData) int {
	if data.RequestsAvailable == nil {
		return s.maxRequests
	}
	return *data.RequestsAvailable
}

func (s *Service) CreateThread(ctx context.Context, userID, title string) (string, error) {
	data, err := s.storage.Read(ctx, userID)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	thread := models.Thread{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []models.Message{},
	}
	data.Threads = append(data.Threads, thread)

	if err := s.storage.Write(ctx, userID, data); err != nil {
		return "", err
	}

	s.logger.Info("Created thread",
		zap.String("thread_id", thread.ID),
		zap.String("user_id", userID))
	return thread.ID, nil
}

func (s *Service) GetThread(ctx context.Context, threadID, userID string) (*models.Thread, error) {
	data, err := s.storage.Read(ctx, userID)
	if err != nil {
		return nil, err
	}

	for i := range data.Threads {
		if data.Threads[i].ID == threadID {
			return &data.Threads[i], nil
		}
	}
	return nil, ErrThreadNotFound
}

// AddMessage appends a message to the thread and bumps its updated_at
// to the message timestamp.
func (s *Service) AddMessage(ctx context.Context, threadID, userID, content string, role models.MessageRole) (string, error) {
	data, err := s.storage.Read(ctx, userID)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	message := models.Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: now,
	}

	found := false
	for i := range data.Threads {
		if data.Threads[i].ID == threadID {
			data.Threads[i].Messages = append(data.Threads[i].Messages, message)
			data.Threads[i].UpdatedAt = now
			found = true
			break
		}
	}
	if !found {
		return "", ErrThreadNotFound
	}

	if err := s.storage.Write(ctx, userID, data); err != nil {
		return "", err
	}

	s.logger.Debug("Added message",
		zap.String("message_id", message.ID),
		zap.String("thread_id", threadID),
		zap.String("role", string(role)))
	return message.ID, nil
}

func (s *Service) ListThreads(ctx context.Context, userID string) ([]models.Thread, error) {
	data, err := s.storage.Read(ctx, userID)
	if err != nil {
		return nil, err
	}
	return data.Threads, nil
}

// DeleteThread removes the thread and reports whether it was present.
func (s *Service) DeleteThread(ctx context.Context, threadID, userID string) (bool, error) {
	data, err := s.storage.Read(ctx, userID)
	if err != nil {
		return false, err
	}

	kept := data.Threads[:0]
	for _, thread := range data.Threads {
		if thread.ID != threadID {
			kept = append(kept, thread)
		}
	}
	if len(kept) == len(data.Threads) {
		return false, nil
	}
	data.Threads = kept

	if err := s.storage.Write(ctx, userID, data); err != nil {
		return false, err
	}

	s.logger.Info("Deleted thread",
		zap.String("thread_id", threadID),
		zap.String("user_id", userID))
	return true, nil
}

func (s *Service) RequestsAvailable(ctx context.Context, userID string) (int, error) {
	data, err := s.storage.Read(ctx, userID)
	if err != nil {
		return 0, err
	}
	return s.available(data), nil
}

func (s *Service) CanSend(ctx context.Context, userID string) (bool, error) {
	available, err := s.RequestsAvailable(ctx, userID)
	if err != nil {
		return false, err
	}
	return available > 0, nil
}

// DecrementRequests lowers the counter by one, flooring at zero, and
// returns the post-decrement value. Callers invoke it at most once per
// successfully answered query.
func (s *Service) DecrementRequests(ctx context.Context, userID string) (int, error) {
	data, err := s.storage.Read(ctx, userID)
	if err != nil {
		return 0, err
	}

	remaining := s.available(data)
	if remaining > 0 {
		remaining--
		data.RequestsAvailable = &remaining
		if err := s.storage.Write(ctx, userID, data); err != nil {
			return 0, err
		}
		s.logger.Info("Decremented requests",
			zap.String("user_id", userID),
			zap.Int("remaining", remaining))
	}
	return remaining, nil
}

func (s *Service) Limits(ctx context.Context, userID string) (*models.UsageLimits, error) {
	available, err := s.RequestsAvailable(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.UsageLimits{
		RequestsAvailable: available,
		MaxRequests:       s.maxRequests,
		RequestsUsed:      s.maxRequests - available,
	}, nil
}

func (s *Service) MaxRequests() int {
	return s.maxRequests
}

// ThreadsPage returns one page of the user's threads sorted by the
// requested key. sortBy is one of created_at, updated_at or title;
// anything else falls back to updated_at.
func (s *Service) ThreadsPage(ctx context.Context, userID string, page, pageSize int, sortBy, sortOrder string) (*models.ThreadPage, error) {
	threads, err := s.ListThreads(ctx, userID)
	if err != nil {
		return nil, err
	}

	sorted := make([]models.Thread, len(threads))
	copy(sorted, threads)

	less := func(a, b models.Thread) bool {
		switch sortBy {
		case "created_at":
			return a.CreatedAt.Before(b.CreatedAt)
		case "title":
			return strings.ToLower(a.Title) < strings.ToLower(b.Title)
		default:
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
	}
	desc := strings.EqualFold(sortOrder, "desc")
	sort.SliceStable(sorted, func(i, j int) bool {
		if desc {
			return less(sorted[j], sorted[i])
		}
		return less(sorted[i], sorted[j])
	})

	start, end, info := models.Paginate(len(sorted), page, pageSize)

	summaries := make([]models.ThreadSummary, 0, end-start)
	for _, thread := range sorted[start:end] {
		summaries = append(summaries, models.ThreadSummary{
			ID:           thread.ID,
			Title:        thread.Title,
			CreatedAt:    thread.CreatedAt,
			UpdatedAt:    thread.UpdatedAt,
			MessageCount: len(thread.Messages),
		})
	}

	return &models.ThreadPage{PageInfo: info, Threads: summaries}, nil
}

// MessagesPage returns one page of a thread's messages sorted by
// timestamp, ascending by default.
func (s *Service) MessagesPage(ctx context.Context, threadID, userID string, page, pageSize int, sortOrder string) (*models.MessagePage, error) {
	thread, err := s.GetThread(ctx, threadID, userID)
	if err != nil {
		return nil, err
	}

	sorted := make([]models.Message, len(thread.Messages))
	copy(sorted, thread.Messages)

	desc := strings.EqualFold(sortOrder, "desc")
	sort.SliceStable(sorted, func(i, j int) bool {
		if desc {
			return sorted[j].Timestamp.Before(sorted[i].Timestamp)
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	start, end, info := models.Paginate(len(sorted), page, pageSize)

	return &models.MessagePage{
		PageInfo: info,
		ThreadID: threadID,
		Messages: sorted[start:end],
	}, nil
}
