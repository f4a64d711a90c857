package storage

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ChangeNotifier meldet geänderte Collections an alle Instanzen.
type ChangeNotifier interface {
	Publish(ctx context.Context, collection string) error
	// Listen blockiert bis ctx beendet ist und ruft fn pro Änderung auf.
	Listen(ctx context.Context, fn func(collection string)) error
}

// LocalNotifier verteilt Änderungen nur innerhalb des Prozesses.
type LocalNotifier struct {
	mu        sync.RWMutex
	listeners []func(string)
}

// NewLocalNotifier erstellt einen prozesslokalen Notifier.
func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{}
}

func (n *LocalNotifier) Publish(_ context.Context, collection string) error {
	n.mu.RLock()
	listeners := append([]func(string){}, n.listeners...)
	n.mu.RUnlock()
	for _, fn := range listeners {
		fn(collection)
	}
	return nil
}

func (n *LocalNotifier) Listen(ctx context.Context, fn func(collection string)) error {
	n.mu.Lock()
	n.listeners = append(n.listeners, fn)
	idx := len(n.listeners) - 1
	n.mu.Unlock()

	<-ctx.Done()

	n.mu.Lock()
	n.listeners[idx] = func(string) {}
	n.mu.Unlock()
	return ctx.Err()
}

// RedisNotifier verteilt Änderungen über Redis Pub/Sub an alle Instanzen.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisNotifier erstellt einen Notifier auf dem gegebenen Redis-Server.
func NewRedisNotifier(addr, password string, db int, logger *zap.Logger) *RedisNotifier {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisNotifier{client: rdb, channel: "paper-registry:changes", logger: logger}
}

func (n *RedisNotifier) Publish(ctx context.Context, collection string) error {
	return n.client.Publish(ctx, n.channel, collection).Err()
}

func (n *RedisNotifier) Listen(ctx context.Context, fn func(collection string)) error {
	sub := n.client.Subscribe(ctx, n.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	n.logger.Info("Listening for collection changes", zap.String("channel", n.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fn(msg.Payload)
		}
	}
}

// Close schließt die Redis-Verbindung.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
