package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGateway struct {
	mu       sync.Mutex
	texts    []int64
	contacts []int64
	fail     bool
}

func (g *fakeGateway) SendText(_ context.Context, chatID int64, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.texts = append(g.texts, chatID)
	if g.fail {
		return errors.New("telegram unavailable")
	}
	return nil
}

func (g *fakeGateway) SendContactRequest(_ context.Context, chatID int64, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.contacts = append(g.contacts, chatID)
	return nil
}

func collectOutcomes(d *MessageDispatcher) func() []DispatchOutcome {
	var mu sync.Mutex
	var out []DispatchOutcome
	d.OnOutcome(func(o DispatchOutcome) {
		mu.Lock()
		out = append(out, o)
		mu.Unlock()
	})
	return func() []DispatchOutcome {
		mu.Lock()
		defer mu.Unlock()
		return append([]DispatchOutcome(nil), out...)
	}
}

func TestDispatcherDeliversByKind(t *testing.T) {
	gw := &fakeGateway{}
	d := NewMessageDispatcher(gw, 8, time.Second, zap.NewNop())
	outcomes := collectOutcomes(d)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	require.True(t, d.Enqueue(OutboundMessage{Kind: OutboundCode, ChatID: 1, Text: "code"}))
	require.True(t, d.Enqueue(OutboundMessage{Kind: OutboundContactRequest, ChatID: 2, Text: "share"}))

	require.Eventually(t, func() bool { return len(outcomes()) == 2 }, time.Second, time.Millisecond)
	for _, o := range outcomes() {
		assert.NoError(t, o.Err)
	}
	assert.Equal(t, []int64{1}, gw.texts)
	assert.Equal(t, []int64{2}, gw.contacts)
}

func TestDispatcherRecordsFailures(t *testing.T) {
	gw := &fakeGateway{fail: true}
	d := NewMessageDispatcher(gw, 8, time.Second, zap.NewNop())
	outcomes := collectOutcomes(d)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Enqueue(OutboundMessage{Kind: OutboundCode, ChatID: 1})
	require.Eventually(t, func() bool { return len(outcomes()) == 1 }, time.Second, time.Millisecond)
	assert.Error(t, outcomes()[0].Err)
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewMessageDispatcher(&fakeGateway{}, 1, time.Second, zap.NewNop())
	outcomes := collectOutcomes(d)

	assert.True(t, d.Enqueue(OutboundMessage{ChatID: 1}))
	assert.False(t, d.Enqueue(OutboundMessage{ChatID: 2}))
	require.Len(t, outcomes(), 1)
	assert.ErrorIs(t, outcomes()[0].Err, ErrDispatchQueueFull)
}
