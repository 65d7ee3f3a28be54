package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/Shopify/sarama"
	"github.com/rockbears/log"

	"github.com/hostops/hops/sdk"
)

// KafkaConfig handles all config to connect to Kafka.
type KafkaConfig struct {
	Enabled         bool   `toml:"enabled" json:"enabled"`
	BrokerAddresses string `toml:"broker" comment:"Comma separated list of brokers" json:"broker"`
	User            string `toml:"user" json:"user"`
	Password        string `toml:"password" json:"-"`
	Topic           string `toml:"topic" default:"hops-job-events" json:"topic"`
	Version         string `toml:"version" commented:"true" json:"version,omitempty"`
	DisableTLS      bool   `toml:"disableTLS" json:"disableTLS"`
}

// KafkaClient sends events on a topic, keyed by job id so that events of a
// job land in the same partition.
type KafkaClient struct {
	topic    string
	producer sarama.SyncProducer
	failures int64
}

// NewKafkaClient initializes a sync producer.
func NewKafkaClient(cfg KafkaConfig) (*KafkaClient, error) {
	if cfg.BrokerAddresses == "" || cfg.Topic == "" {
		return nil, sdk.NewErrorFrom(sdk.ErrWrongRequest, "kafka broker and topic are required")
	}
	config := sarama.NewConfig()
	config.Net.TLS.Enable = !cfg.DisableTLS
	if cfg.User != "" {
		config.Net.SASL.Enable = true
		config.Net.SASL.User = cfg.User
		config.Net.SASL.Password = cfg.Password
		config.ClientID = cfg.User
	}
	config.Producer.Return.Successes = true
	if cfg.Version != "" {
		v, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, sdk.WrapError(err, "invalid kafka version %q", cfg.Version)
		}
		config.Version = v
	}

	producer, err := sarama.NewSyncProducer(strings.Split(cfg.BrokerAddresses, ","), config)
	if err != nil {
		return nil, sdk.WrapError(err, "cannot init kafka producer on %s (user: %s)", cfg.BrokerAddresses, cfg.User)
	}
	return NewKafkaClientFromProducer(cfg.Topic, producer), nil
}

func NewKafkaClientFromProducer(topic string, p sarama.SyncProducer) *KafkaClient {
	return &KafkaClient{topic: topic, producer: p}
}

func (k *KafkaClient) Name() string { return "kafka" }

func (k *KafkaClient) Send(ctx context.Context, e sdk.JobEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return sdk.WithStack(err)
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(e.JobID),
		Value: sarama.ByteEncoder(data),
	}
	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		atomic.AddInt64(&k.failures, 1)
		return sdk.WrapError(err, "cannot send event on topic %s", k.topic)
	}
	atomic.StoreInt64(&k.failures, 0)
	log.Debug(ctx, "event> event %d sent to topic %s partition %d offset %d", e.ID, k.topic, partition, offset)
	return nil
}

func (k *KafkaClient) Status(_ context.Context) string {
	if n := atomic.LoadInt64(&k.failures); n > 0 {
		return fmt.Sprintf("Kafka: %d failure(s)", n)
	}
	return "Kafka: OK"
}

func (k *KafkaClient) Close() error {
	return k.producer.Close()
}
