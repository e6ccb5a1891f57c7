package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OutboundKind string

const (
	OutboundCode           OutboundKind = "code"
	OutboundContactRequest OutboundKind = "contact_request"
	OutboundNotice         OutboundKind = "notice"
)

// OutboundMessage is one bot message queued after a state change committed.
type OutboundMessage struct {
	Kind      OutboundKind
	ChatID    int64
	Text      string
	AttemptID uuid.UUID
}

// DispatchOutcome records what happened to a queued message. Failures never
// touch attempt state.
type DispatchOutcome struct {
	Message OutboundMessage
	Err     error
	At      time.Time
}

var ErrDispatchQueueFull = errors.New("dispatch queue full")

// Notifier accepts outbound messages without blocking the caller.
type Notifier interface {
	Enqueue(msg OutboundMessage) bool
}

type MessageDispatcher struct {
	gateway     MessageGateway
	queue       chan OutboundMessage
	sendTimeout time.Duration
	logger      *zap.Logger

	mu        sync.Mutex
	observers []func(DispatchOutcome)
}

func NewMessageDispatcher(gateway MessageGateway, size int, sendTimeout time.Duration, logger *zap.Logger) *MessageDispatcher {
	if size <= 0 {
		size = 256
	}
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	return &MessageDispatcher{
		gateway:     gateway,
		queue:       make(chan OutboundMessage, size),
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// OnOutcome registers fn to be called from the worker for every outcome.
func (d *MessageDispatcher) OnOutcome(fn func(DispatchOutcome)) {
	d.mu.Lock()
	d.observers = append(d.observers, fn)
	d.mu.Unlock()
}

func (d *MessageDispatcher) Enqueue(msg OutboundMessage) bool {
	select {
	case d.queue <- msg:
		return true
	default:
		d.report(DispatchOutcome{Message: msg, Err: ErrDispatchQueueFull, At: time.Now()})
		return false
	}
}

// Run sends queued messages one by one until ctx is done.
func (d *MessageDispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if n := len(d.queue); n > 0 {
				d.logger.Warn("[dispatch][stop] dropping queued messages", zap.Int("count", n))
			}
			return
		case msg := <-d.queue:
			d.deliver(ctx, msg)
		}
	}
}

func (d *MessageDispatcher) deliver(ctx context.Context, msg OutboundMessage) {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	var err error
	if msg.Kind == OutboundContactRequest {
		err = d.gateway.SendContactRequest(sendCtx, msg.ChatID, msg.Text)
	} else {
		err = d.gateway.SendText(sendCtx, msg.ChatID, msg.Text)
	}
	d.report(DispatchOutcome{Message: msg, Err: err, At: time.Now()})
}

func (d *MessageDispatcher) report(o DispatchOutcome) {
	fields := []zap.Field{
		zap.String("kind", string(o.Message.Kind)),
		zap.Int64("chat_id", o.Message.ChatID),
	}
	if o.Message.AttemptID != uuid.Nil {
		fields = append(fields, zap.String("attempt_id", o.Message.AttemptID.String()))
	}
	if o.Err != nil {
		d.logger.Warn("[dispatch][outcome] failed", append(fields, zap.Error(o.Err))...)
	} else {
		d.logger.Info("[dispatch][outcome] delivered", fields...)
	}

	d.mu.Lock()
	observers := d.observers
	d.mu.Unlock()
	for _, fn := range observers {
		fn(o)
	}
}
