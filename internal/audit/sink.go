package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Sink is the SecurityEventSink capability: an append-only audit log.
// Recording never fails the calling operation; sinks swallow and log their
// own storage errors.
type Sink interface {
	Record(ctx context.Context, event Event)
}

type gormSink struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewSink(db *gorm.DB, log *zap.Logger) Sink {
	return &gormSink{db: db, log: log}
}

func (s *gormSink) Record(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	s.log.Warn("security event",
		zap.String("event_type", string(event.EventType)),
		zap.Stringp("account_id", event.AccountID),
		zap.Stringp("family_id", event.FamilyID),
		zap.Stringp("ip", event.IP),
	)

	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		s.log.Error("failed to persist security event",
			zap.String("event_type", string(event.EventType)),
			zap.Error(err))
	}
}

// MemorySink buffers events for assertions in tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Record(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *MemorySink) ByType(t EventType) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}
