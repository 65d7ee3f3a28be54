package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "orchestrator:target:host:esxi-1", Key("orchestrator", "target", "host", "esxi-1"))
}

func TestLocalStoreGetSet(t *testing.T) {
	s := NewLocalStore(60)

	type facts struct {
		Name string
		VMs  int
	}
	require.NoError(t, s.SetWithTTL("facts", facts{Name: "esxi-1", VMs: 3}, 0))

	var f facts
	found, err := s.Get("facts", &f)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, facts{Name: "esxi-1", VMs: 3}, f)

	require.NoError(t, s.Delete("facts"))
	found, err = s.Get("facts", &f)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLocalStoreQueue(t *testing.T) {
	s := NewLocalStore(0)
	require.NoError(t, s.Enqueue("events", "a"))
	require.NoError(t, s.Enqueue("events", "b"))

	l, err := s.QueueLen("events")
	require.NoError(t, err)
	assert.Equal(t, 2, l)

	var res string
	require.NoError(t, s.DequeueWithContext(context.TODO(), "events", 10*time.Millisecond, &res))
	assert.Equal(t, "a", res)
	require.NoError(t, s.DequeueWithContext(context.TODO(), "events", 10*time.Millisecond, &res))
	assert.Equal(t, "b", res)

	ctx, cancel := context.WithTimeout(context.TODO(), 50*time.Millisecond)
	defer cancel()
	res = ""
	require.NoError(t, s.DequeueWithContext(ctx, "events", 10*time.Millisecond, &res))
	assert.Empty(t, res)
}

func TestLocalStoreLock(t *testing.T) {
	s := NewLocalStore(0)

	locked, err := s.Lock("lock", time.Minute, 1, 1)
	require.NoError(t, err)
	require.True(t, locked)

	locked, err = s.Lock("lock", time.Minute, 1, 2)
	require.NoError(t, err)
	require.False(t, locked)

	require.NoError(t, s.Unlock("lock"))
	locked, err = s.Lock("lock", time.Minute, 1, 1)
	require.NoError(t, err)
	require.True(t, locked)
}

func TestLocalStoreExtendLock(t *testing.T) {
	s := NewLocalStore(0)

	extended, err := s.Extend("lock", time.Minute)
	require.NoError(t, err)
	assert.False(t, extended)

	locked, err := s.Lock("lock", 50*time.Millisecond, 1, 1)
	require.NoError(t, err)
	require.True(t, locked)

	extended, err = s.Extend("lock", time.Minute)
	require.NoError(t, err)
	assert.True(t, extended)

	time.Sleep(100 * time.Millisecond)
	has, err := s.Exist("lock")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestLocalStorePubSub(t *testing.T) {
	s := NewLocalStore(0)
	sub, err := s.Subscribe("jobs")
	require.NoError(t, err)

	require.NoError(t, s.Publish(context.TODO(), "jobs", map[string]string{"id": "1"}))

	ctx, cancel := context.WithTimeout(context.TODO(), time.Second)
	defer cancel()
	msg, err := sub.GetMessage(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1"}`, msg)

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, s.Publish(context.TODO(), "jobs", "ignored"))
}
