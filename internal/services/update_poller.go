package services

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// UpdateHandler consumes one update. UpdateRouter is the production one.
type UpdateHandler interface {
	Route(ctx context.Context, u tgbotapi.Update) error
}

type PollerConfig struct {
	Interval    time.Duration
	PollTimeout time.Duration
	Limit       int
}

// UpdatePoller runs getUpdates cycles on a single goroutine. The cursor lives
// in Run and is threaded through PollOnce.
type UpdatePoller struct {
	source  UpdateSource
	handler UpdateHandler
	cfg     PollerConfig
	logger  *zap.Logger
}

func NewUpdatePoller(source UpdateSource, handler UpdateHandler, cfg PollerConfig, logger *zap.Logger) *UpdatePoller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	return &UpdatePoller{source: source, handler: handler, cfg: cfg, logger: logger}
}

// PollOnce fetches one batch starting at cursor and returns the next cursor.
// The cursor passes every fetched update, including ones whose handling failed.
func (p *UpdatePoller) PollOnce(ctx context.Context, cursor int) (int, error) {
	updates, err := p.source.FetchUpdates(ctx, cursor, p.cfg.PollTimeout, p.cfg.Limit)
	if err != nil {
		return cursor, err
	}
	next := cursor
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
		if err := p.handler.Route(ctx, u); err != nil {
			p.logger.Info("[tg][poll] update not handled",
				zap.Int("update_id", u.UpdateID), zap.Error(err))
		}
	}
	return next, nil
}

// Run polls until ctx is cancelled. A cycle starts Interval after the previous
// one finished, so cycles never overlap.
func (p *UpdatePoller) Run(ctx context.Context) {
	p.logger.Info("[tg][poll] started", zap.Duration("interval", p.cfg.Interval))
	cursor := 0
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("[tg][poll] stopped")
			return
		case <-timer.C:
		}
		next, err := p.PollOnce(ctx, cursor)
		if err != nil && ctx.Err() == nil {
			p.logger.Warn("[tg][poll] fetch failed", zap.Error(err))
		}
		cursor = next
		timer.Reset(p.cfg.Interval)
	}
}
