package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"routeopt/internal/model"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so that every API
// replica sees the progress of runs executed by any other replica.
type RedisBroker struct {
	rdb *redis.Client
	log *zap.Logger

	mu   sync.Mutex
	subs map[chan model.RunEvent]*redis.PubSub
}

func NewRedisBroker(url string, log *zap.Logger) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBroker{rdb: redis.NewClient(opt), log: log, subs: map[chan model.RunEvent]*redis.PubSub{}}, nil
}

// Ping checks the connection.
func (b *RedisBroker) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *RedisBroker) Close() error { return b.rdb.Close() }

func (b *RedisBroker) Subscribe(runID string) chan model.RunEvent {
	ch := make(chan model.RunEvent, 32)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, ChannelName(runID))
	// wait for the subscription confirmation
	if _, err := ps.Receive(ctx); err != nil {
		b.log.Warn("redis subscribe failed", zap.String("run_id", runID), zap.Error(err))
	}
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	go func() {
		defer b.drop(ch)
		for msg := range ps.Channel() {
			var evt model.RunEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.log.Debug("bad run event on redis", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}()
	return ch
}

// Unsubscribe closes the Redis subscription; the reader goroutine then
// closes ch.
func (b *RedisBroker) Unsubscribe(runID string, ch chan model.RunEvent) {
	b.mu.Lock()
	ps := b.subs[ch]
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *RedisBroker) drop(ch chan model.RunEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

func (b *RedisBroker) Publish(runID string, evt model.RunEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := b.rdb.Publish(ctx, ChannelName(runID), data).Err(); err != nil {
		b.log.Warn("redis publish failed", zap.String("run_id", runID), zap.Error(err))
	}
}

// ChannelName is the Pub/Sub channel for a run.
func ChannelName(runID string) string { return "run:" + runID }
