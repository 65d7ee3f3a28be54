package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"strings"
	"time"

	"github.com/go-redis/redis"
	"github.com/rockbears/log"

	"github.com/hostops/hops/sdk"
)

// RedisStore a redis client and a default ttl
type RedisStore struct {
	ttl    int
	Client *redis.Client
}

// NewRedisStore initiate a new redisStore
func NewRedisStore(host, password string, dbindex, ttl int) (*RedisStore, error) {
	var client *redis.Client

	//if host is line master@localhost:26379,localhost:26380 => it's a redis sentinel cluster
	if strings.Contains(host, "@") && strings.Contains(host, ",") {
		masterName := strings.Split(host, "@")[0]
		sentinels := strings.Split(strings.Split(host, "@")[1], ",")
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:         masterName,
			SentinelAddrs:      sentinels,
			Password:           password,
			DB:                 dbindex,
			IdleCheckFrequency: 10 * time.Second,
			IdleTimeout:        10 * time.Second,
			PoolSize:           25,
			MaxRetries:         10,
			MinRetryBackoff:    30 * time.Millisecond,
			MaxRetryBackoff:    100 * time.Millisecond,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:               host,
			Password:           password,
			DB:                 dbindex,
			IdleCheckFrequency: 30 * time.Second,
			MaxRetries:         10,
			MinRetryBackoff:    30 * time.Millisecond,
			MaxRetryBackoff:    100 * time.Millisecond,
		})
	}

	redis.SetLogger(stdlog.New(io.Discard, "", stdlog.LstdFlags|stdlog.Lshortfile))

	s := &RedisStore{ttl: ttl, Client: client}
	if err := s.Ping(); err != nil {
		return nil, sdk.WrapError(err, "cannot ping Redis on %s", host)
	}
	return s, nil
}

func (s *RedisStore) Ping() error {
	pong, err := s.Client.Ping().Result()
	if err != nil {
		return sdk.WithStack(err)
	}
	if pong != "PONG" {
		return sdk.WithStack(fmt.Errorf("cannot ping Redis"))
	}
	return nil
}

// Status returns the monitoring status of the redis connection.
func (s *RedisStore) Status(ctx context.Context) sdk.MonitoringStatusLine {
	if err := s.Ping(); err != nil {
		log.Warn(ctx, "redis> ping failed: %v", err)
		return sdk.MonitoringStatusLine{Component: "Cache", Value: "No Ping", Status: sdk.MonitoringStatusAlert}
	}
	size, err := s.Client.DBSize().Result()
	if err != nil {
		return sdk.MonitoringStatusLine{Component: "Cache", Value: "redis: no dbsize", Status: sdk.MonitoringStatusWarn}
	}
	return sdk.MonitoringStatusLine{Component: "Cache", Value: fmt.Sprintf("redis: %d keys", size), Status: sdk.MonitoringStatusOK}
}

// Get a key from redis
func (s *RedisStore) Get(key string, value interface{}) (bool, error) {
	val, errRedis := s.Client.Get(key).Result()
	if errRedis != nil && errRedis != redis.Nil {
		return false, sdk.WrapError(errRedis, "redis> get error %s", key)
	}
	if val == "" {
		return false, nil
	}
	if err := sdk.JSONUnmarshal([]byte(val), value); err != nil {
		return false, sdk.WrapError(err, "redis> cannot get unmarshal %s", key)
	}
	return true, nil
}

// SetWithTTL a value in store (0 for eternity)
func (s *RedisStore) SetWithTTL(key string, value interface{}, ttl int) error {
	return s.SetWithDuration(key, value, time.Duration(ttl)*time.Second)
}

// SetWithDuration a value in store (0 for eternity)
func (s *RedisStore) SetWithDuration(key string, value interface{}, duration time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return sdk.WrapError(err, "redis> error caching %s", key)
	}
	if err := s.Client.Set(key, string(b), duration).Err(); err != nil {
		return sdk.WrapError(err, "redis> set error %s", key)
	}
	return nil
}

// Delete a key in redis
func (s *RedisStore) Delete(key string) error {
	if err := s.Client.Del(key).Err(); err != nil {
		return sdk.WrapError(err, "redis> delete error %s", key)
	}
	return nil
}

// Exist test is key exists
func (s *RedisStore) Exist(key string) (bool, error) {
	ok, err := s.Client.Exists(key).Result()
	if err != nil {
		return false, sdk.WrapError(err, "redis> exists error %s", key)
	}
	return ok == 1, nil
}

// Enqueue pushes to queue
func (s *RedisStore) Enqueue(queueName string, value interface{}) error {
	b, err := json.Marshal(value)
	if err != nil {
		return sdk.WrapError(err, "error queueing %s", queueName)
	}
	if err := s.Client.LPush(queueName, string(b)).Err(); err != nil {
		return sdk.WrapError(err, "error while LPUSH to %s", queueName)
	}
	return nil
}

// QueueLen returns the length of a queue
func (s *RedisStore) QueueLen(queueName string) (int, error) {
	res, err := s.Client.LLen(queueName).Result()
	if err != nil {
		return 0, sdk.WrapError(err, "redis> Cannot read %s", queueName)
	}
	return int(res), nil
}

// DequeueWithContext gets from queue This is blocking while there is nothing in the queue, it can be cancelled with a context.Context
func (s *RedisStore) DequeueWithContext(c context.Context, queueName string, waitDuration time.Duration, value interface{}) error {
	var elem string
	ticker := time.NewTicker(waitDuration)
	defer ticker.Stop()
	for elem == "" {
		select {
		case <-ticker.C:
			if c.Err() != nil {
				return c.Err()
			}
			res, err := s.Client.BRPop(time.Second, queueName).Result()
			if err == redis.Nil {
				continue
			}
			if err == io.EOF {
				time.Sleep(1 * time.Second)
				continue
			}
			if err == nil && len(res) == 2 {
				elem = res[1]
			}
		case <-c.Done():
			return nil
		}
	}
	if err := sdk.JSONUnmarshal([]byte(elem), value); err != nil {
		return sdk.WrapError(err, "redis.DequeueWithContext> error on unmarshal value on queue:%s", queueName)
	}
	return nil
}

// Publish a msg in a channel
func (s *RedisStore) Publish(ctx context.Context, channel string, value interface{}) error {
	msg, err := json.Marshal(value)
	if err != nil {
		return sdk.WrapError(err, "redis.Publish> Marshall error, cannot push in channel %s", channel)
	}

	for i := 0; i < 10; i++ {
		_, errP := s.Client.Publish(channel, string(msg)).Result()
		if errP == nil {
			return nil
		}
		log.Warn(ctx, "redis.Publish> Unable to publish in channel %s: %v", channel, errP)
		time.Sleep(100 * time.Millisecond)
	}
	return sdk.WithStack(fmt.Errorf("unable to publish in channel %s", channel))
}

// Subscribe to a channel
func (s *RedisStore) Subscribe(channel string) (PubSub, error) {
	return &RedisPubSub{PubSub: s.Client.Subscribe(channel)}, nil
}

// Lock sets a key if absent. retrywdMillisecond and retryCount set to -1 use defaults values.
func (s *RedisStore) Lock(key string, expiration time.Duration, retrywdMillisecond int, retryCount int) (bool, error) {
	var errRedis error
	var res bool
	if retrywdMillisecond == -1 {
		retrywdMillisecond = 30
	}
	if retryCount == -1 {
		retryCount = 3
	}
	for i := 0; i < retryCount; i++ {
		res, errRedis = s.Client.SetNX(key, "true", expiration).Result()
		if errRedis == nil && res {
			break
		}
		time.Sleep(time.Duration(retrywdMillisecond) * time.Millisecond)
	}
	return res, sdk.WrapError(errRedis, "redis> set error %s", key)
}

// Extend resets the ttl of a lock
func (s *RedisStore) Extend(key string, expiration time.Duration) (bool, error) {
	res, err := s.Client.Expire(key, expiration).Result()
	return res, sdk.WrapError(err, "redis> expire error %s", key)
}

// Unlock deletes a key from cache
func (s *RedisStore) Unlock(key string) error {
	return s.Delete(key)
}

type RedisPubSub struct {
	*redis.PubSub
}

func (p *RedisPubSub) GetMessage(ctx context.Context) (string, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if msg, _ := p.PubSub.ReceiveTimeout(time.Second); msg != nil {
			if redisMsg, ok := msg.(*redis.Message); ok {
				return redisMsg.Payload, nil
			}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
