package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/chatwidget/internal/model/chat"
)

var ErrBotRequired = errors.New("bot id is required")

// DefaultRetention bounds how many exchanges are kept per bot.
const DefaultRetention = 200

// Backend stores exchanges per bot, oldest first.
type Backend interface {
	Append(ctx context.Context, ex chat.Exchange, retention int) error
	List(ctx context.Context, botID string) ([]chat.Exchange, error)
}

// Service keeps an audit log of answered questions per bot.
type Service struct {
	backend   Backend
	retention int
}

// NewService bootstraps an in-memory log. retention <= 0 uses DefaultRetention.
func NewService(retention int) *Service {
	return NewServiceWithBackend(newMemoryBackend(), retention)
}

// NewServiceWithBackend stores exchanges in b.
func NewServiceWithBackend(b Backend, retention int) *Service {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Service{backend: b, retention: retention}
}

// Record appends an exchange to its bot's log, dropping the oldest entries
// beyond the retention limit.
func (s *Service) Record(ctx context.Context, ex chat.Exchange) (chat.Exchange, error) {
	if ex.BotID == "" {
		return chat.Exchange{}, ErrBotRequired
	}

	ex.ID = uuid.NewString()
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}

	if err := s.backend.Append(ctx, ex, s.retention); err != nil {
		return chat.Exchange{}, err
	}
	return ex, nil
}

// Transcript returns the stored exchanges for botID, oldest first.
func (s *Service) Transcript(ctx context.Context, botID string) ([]chat.Exchange, error) {
	if botID == "" {
		return nil, ErrBotRequired
	}
	return s.backend.List(ctx, botID)
}

// Recent returns at most n successful exchanges for botID, oldest first.
// They feed the prompt history.
func (s *Service) Recent(ctx context.Context, botID string, n int) ([]chat.Exchange, error) {
	all, err := s.Transcript(ctx, botID)
	if err != nil {
		return nil, err
	}

	out := make([]chat.Exchange, 0, n)
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		if !all[i].Failed {
			out = append(out, all[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
