package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/hostops/hops/sdk"
)

// LocalStore is a single process Store, used when no redis is configured and in tests.
type LocalStore struct {
	cache  *gocache.Cache
	mutex  sync.Mutex
	queues map[string][][]byte
	subs   map[string][]*LocalPubSub
}

// NewLocalStore returns a LocalStore with the default TTL in seconds (0 for eternity).
func NewLocalStore(ttl int) *LocalStore {
	d := gocache.NoExpiration
	if ttl > 0 {
		d = time.Duration(ttl) * time.Second
	}
	return &LocalStore{
		cache:  gocache.New(d, time.Minute),
		queues: make(map[string][][]byte),
		subs:   make(map[string][]*LocalPubSub),
	}
}

func (s *LocalStore) Ping() error { return nil }

func (s *LocalStore) Status(_ context.Context) sdk.MonitoringStatusLine {
	return sdk.MonitoringStatusLine{Component: "Cache", Value: fmt.Sprintf("local: %d keys", s.cache.ItemCount()), Status: sdk.MonitoringStatusOK}
}

func (s *LocalStore) Get(key string, value interface{}) (bool, error) {
	v, has := s.cache.Get(key)
	if !has {
		return false, nil
	}
	if err := sdk.JSONUnmarshal(v.([]byte), value); err != nil {
		return false, sdk.WrapError(err, "local> cannot unmarshal %s", key)
	}
	return true, nil
}

func (s *LocalStore) SetWithTTL(key string, value interface{}, ttl int) error {
	return s.SetWithDuration(key, value, time.Duration(ttl)*time.Second)
}

func (s *LocalStore) SetWithDuration(key string, value interface{}, duration time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return sdk.WrapError(err, "local> error caching %s", key)
	}
	if duration <= 0 {
		duration = gocache.NoExpiration
	}
	s.cache.Set(key, b, duration)
	return nil
}

func (s *LocalStore) Delete(key string) error {
	s.cache.Delete(key)
	return nil
}

func (s *LocalStore) Exist(key string) (bool, error) {
	_, has := s.cache.Get(key)
	return has, nil
}

func (s *LocalStore) Enqueue(queueName string, value interface{}) error {
	b, err := json.Marshal(value)
	if err != nil {
		return sdk.WrapError(err, "error queueing %s", queueName)
	}
	s.mutex.Lock()
	s.queues[queueName] = append(s.queues[queueName], b)
	s.mutex.Unlock()
	return nil
}

func (s *LocalStore) QueueLen(queueName string) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.queues[queueName]), nil
}

func (s *LocalStore) pop(queueName string) []byte {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	q := s.queues[queueName]
	if len(q) == 0 {
		return nil
	}
	elem := q[0]
	s.queues[queueName] = q[1:]
	return elem
}

// DequeueWithContext is blocking while there is nothing in the queue, it can be cancelled with a context.Context
func (s *LocalStore) DequeueWithContext(c context.Context, queueName string, waitDuration time.Duration, value interface{}) error {
	ticker := time.NewTicker(waitDuration)
	defer ticker.Stop()
	for {
		if elem := s.pop(queueName); elem != nil {
			return sdk.WrapError(sdk.JSONUnmarshal(elem, value), "local.DequeueWithContext> error on unmarshal value on queue:%s", queueName)
		}
		select {
		case <-ticker.C:
		case <-c.Done():
			return nil
		}
	}
}

func (s *LocalStore) Publish(_ context.Context, channel string, value interface{}) error {
	b, err := json.Marshal(value)
	if err != nil {
		return sdk.WrapError(err, "local.Publish> Marshall error, cannot push in channel %s", channel)
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, sub := range s.subs[channel] {
		select {
		case sub.msgs <- string(b):
		default:
		}
	}
	return nil
}

func (s *LocalStore) Subscribe(channel string) (PubSub, error) {
	sub := &LocalPubSub{store: s, channel: channel, msgs: make(chan string, 100)}
	s.mutex.Lock()
	s.subs[channel] = append(s.subs[channel], sub)
	s.mutex.Unlock()
	return sub, nil
}

// Lock sets a key if absent. retrywdMillisecond and retryCount set to -1 use defaults values.
func (s *LocalStore) Lock(key string, expiration time.Duration, retrywdMillisecond int, retryCount int) (bool, error) {
	if retrywdMillisecond == -1 {
		retrywdMillisecond = 30
	}
	if retryCount == -1 {
		retryCount = 3
	}
	for i := 0; i < retryCount; i++ {
		if err := s.cache.Add(key, []byte("true"), expiration); err == nil {
			return true, nil
		}
		time.Sleep(time.Duration(retrywdMillisecond) * time.Millisecond)
	}
	return false, nil
}

func (s *LocalStore) Extend(key string, expiration time.Duration) (bool, error) {
	if err := s.cache.Replace(key, []byte("true"), expiration); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *LocalStore) Unlock(key string) error {
	return s.Delete(key)
}

// LocalPubSub is a subscriber on a LocalStore channel.
type LocalPubSub struct {
	store   *LocalStore
	channel string
	msgs    chan string
}

func (p *LocalPubSub) Unsubscribe(_ ...string) error {
	p.store.mutex.Lock()
	defer p.store.mutex.Unlock()
	subs := p.store.subs[p.channel]
	for i := range subs {
		if subs[i] == p {
			p.store.subs[p.channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}

func (p *LocalPubSub) GetMessage(ctx context.Context) (string, error) {
	select {
	case m := <-p.msgs:
		return m, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
