package cache

import (
	"context"
	"strings"
	"time"

	"github.com/hostops/hops/sdk"
)

// Key make a key as expected
func Key(args ...string) string {
	return strings.Join(args, ":")
}

// Store is an interface
type Store interface {
	Get(key string, value interface{}) (bool, error)
	SetWithTTL(key string, value interface{}, ttl int) error
	SetWithDuration(key string, value interface{}, duration time.Duration) error
	Delete(key string) error
	Exist(key string) (bool, error)
	Enqueue(queueName string, value interface{}) error
	QueueLen(queueName string) (int, error)
	DequeueWithContext(c context.Context, queueName string, waitDuration time.Duration, value interface{}) error
	Publish(ctx context.Context, queueName string, value interface{}) error
	Subscribe(queueName string) (PubSub, error)
	LockStore
	Ping() error
	Status(ctx context.Context) sdk.MonitoringStatusLine
}

// LockStore is the part of a Store used to share locks between instances.
type LockStore interface {
	Lock(key string, expiration time.Duration, retrywdMillisecond int, retryCount int) (bool, error)
	// Extend resets the expiration of a held lock. It returns false if the lock expired.
	Extend(key string, expiration time.Duration) (bool, error)
	Unlock(key string) error
}

// PubSub represents a subscriber
type PubSub interface {
	Unsubscribe(channels ...string) error
	GetMessage(ctx context.Context) (string, error)
}
