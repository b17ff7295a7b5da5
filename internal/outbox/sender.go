package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/matheus3301/pchat/internal/bus"
	"github.com/matheus3301/pchat/internal/restapi"
	"go.uber.org/zap"
)

// ErrFull is returned by Enqueue when the queue has no room left.
var ErrFull = errors.New("outbox full")

// Persister is the REST call that durably stores a sent message.
type Persister interface {
	AddMessage(ctx context.Context, req restapi.AddMessageRequest) error
}

// Entry is one message waiting to be persisted.
type Entry struct {
	ClientID  string
	Room      string
	User      int64
	Content   string
	Timestamp time.Time
}

// Result is the payload of send ack and send failure events.
type Result struct {
	ClientID string
	Err      string
}

// Sender persists queued messages in order, one at a time. Messages are
// already visible and broadcast when they reach the outbox, so a failure
// is reported and dropped, never retried.
type Sender struct {
	persister Persister
	bus       *bus.Bus
	logger    *zap.Logger
	timeout   time.Duration

	queue  chan Entry
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSender creates a new outbox sender.
func NewSender(persister Persister, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		persister: persister,
		bus:       b,
		logger:    logger,
		timeout:   10 * time.Second,
		queue:     make(chan Entry, 256),
	}
}

// Enqueue schedules e for persistence without blocking.
func (s *Sender) Enqueue(e Entry) error {
	select {
	case s.queue <- e:
		return nil
	default:
		return ErrFull
	}
}

// Start begins draining the queue.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
}

// Stop stops the sender loop. Entries still queued are abandoned.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sender) loop(ctx context.Context) {
	for {
		select {
		case e := <-s.queue:
			s.persist(ctx, e)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) persist(ctx context.Context, e Entry) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.persister.AddMessage(ctx, restapi.AddMessageRequest{
		Room:      e.Room,
		User:      e.User,
		Content:   e.Content,
		Timestamp: e.Timestamp,
	})
	if err != nil {
		s.logger.Error("failed to persist message", zap.Error(err), zap.String("client_id", e.ClientID), zap.String("room", e.Room))
		s.bus.Publish(bus.NewEvent(bus.KindSendFailed, e.Room, Result{ClientID: e.ClientID, Err: err.Error()}))
		return
	}

	s.logger.Debug("message persisted", zap.String("client_id", e.ClientID))
	s.bus.Publish(bus.NewEvent(bus.KindSendAck, e.Room, Result{ClientID: e.ClientID}))
}
