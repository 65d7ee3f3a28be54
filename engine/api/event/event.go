// Package event pushes job events to external brokers. Events are enqueued in
// the cache by the state machine then sent by a single dequeue loop, so that a
// slow broker never delays a job transition.
package event

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rockbears/log"

	"github.com/hostops/hops/engine/cache"
	"github.com/hostops/hops/sdk"
	hopslog "github.com/hostops/hops/sdk/log"
)

const eventQueue = "events"

// Broker sends events to an external system.
type Broker interface {
	Name() string
	Send(ctx context.Context, e sdk.JobEvent) error
	Status(ctx context.Context) string
	Close() error
}

// Configuration of the event brokers.
type Configuration struct {
	Kafka KafkaConfig `toml:"kafka" json:"kafka"`
	AMQP  AMQPConfig  `toml:"amqp" json:"amqp"`
}

// Manager enqueues job events and fans them out to brokers.
type Manager struct {
	store   cache.Store
	mutex   sync.RWMutex
	brokers []Broker
}

func NewManager(store cache.Store) *Manager {
	return &Manager{store: store}
}

// Initialize connects the configured brokers.
func (m *Manager) Initialize(ctx context.Context, cfg Configuration) error {
	if cfg.Kafka.Enabled {
		k, err := NewKafkaClient(cfg.Kafka)
		if err != nil {
			return err
		}
		m.AddBroker(k)
		log.Info(ctx, "event> kafka used at %s on topic %s", cfg.Kafka.BrokerAddresses, cfg.Kafka.Topic)
	}
	if cfg.AMQP.Enabled {
		a, err := NewAMQPClient(cfg.AMQP)
		if err != nil {
			return err
		}
		m.AddBroker(a)
		log.Info(ctx, "event> amqp used on exchange %q", cfg.AMQP.Exchange)
	}
	return nil
}

func (m *Manager) AddBroker(b Broker) {
	m.mutex.Lock()
	m.brokers = append(m.brokers, b)
	m.mutex.Unlock()
}

// PublishJobEvent enqueues an event. Errors are only logged.
func (m *Manager) PublishJobEvent(ctx context.Context, e sdk.JobEvent) {
	m.mutex.RLock()
	n := len(m.brokers)
	m.mutex.RUnlock()
	if n == 0 {
		return
	}
	if err := m.store.Enqueue(eventQueue, e); err != nil {
		ctx = sdk.ContextWithStacktrace(ctx, err)
		log.Error(ctx, "event> unable to enqueue event of job %s: %v", e.JobID, err)
	}
}

// Dequeue runs until ctx is done and sends each event to every broker.
func (m *Manager) Dequeue(ctx context.Context) {
	for {
		if err := ctx.Err(); err != nil {
			log.Info(ctx, "event> exiting dequeue: %v", err)
			return
		}
		var e sdk.JobEvent
		if err := m.store.DequeueWithContext(ctx, eventQueue, 250*time.Millisecond, &e); err != nil {
			ctx := sdk.ContextWithStacktrace(ctx, err)
			log.Error(ctx, "event> dequeue error: %v", err)
			continue
		}
		if e.JobID == "" {
			continue
		}
		m.send(ctx, e)
	}
}

func (m *Manager) send(ctx context.Context, e sdk.JobEvent) {
	m.mutex.RLock()
	brokers := m.brokers
	m.mutex.RUnlock()
	ctx = context.WithValue(ctx, hopslog.JobID, e.JobID)
	for _, b := range brokers {
		if err := b.Send(ctx, e); err != nil {
			log.Warn(context.WithValue(ctx, hopslog.Broker, b.Name()), "event> unable to send event %d: %v", e.ID, err)
		}
	}
}

// Status returns the monitoring line of the brokers.
func (m *Manager) Status(ctx context.Context) sdk.MonitoringStatusLine {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if len(m.brokers) == 0 {
		return sdk.MonitoringStatusLine{Component: "Event", Value: "no broker", Status: sdk.MonitoringStatusOK}
	}
	status := sdk.MonitoringStatusOK
	values := make([]string, 0, len(m.brokers))
	for _, b := range m.brokers {
		s := b.Status(ctx)
		if !strings.HasSuffix(s, "OK") {
			status = sdk.MonitoringStatusAlert
		}
		values = append(values, s)
	}
	return sdk.MonitoringStatusLine{Component: "Event", Value: strings.Join(values, " "), Status: status}
}

// Close closes all brokers.
func (m *Manager) Close(ctx context.Context) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, b := range m.brokers {
		if err := b.Close(); err != nil {
			log.Warn(ctx, "event> error while closing %s: %v", b.Name(), err)
		}
	}
	m.brokers = nil
}
