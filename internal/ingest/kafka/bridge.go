// Package kafka implements the Kafka/Redpanda ingestion bridge (C14): it
// consumes a configured list of external topics and republishes each
// record's value into the graph topic named by the record's key,
// grounded in the teacher's kafka.Consumer (franz-go) shape.
package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/time/rate"

	"github.com/zazi341/dataflow-graph-server/internal/logging"
	"github.com/zazi341/dataflow-graph-server/internal/message"
	"github.com/zazi341/dataflow-graph-server/internal/metrics"
	"github.com/zazi341/dataflow-graph-server/internal/topic"
)

// bridgeName is the metrics/log label identifying this bridge.
const bridgeName = "kafka"

// Config configures the bridge.
type Config struct {
	Brokers       []string
	ConsumerGroup string
	Topics        []string
	MaxRate       int // messages/sec; 0 or less selects the default of 1000
}

// Bridge consumes Kafka records and republishes their values into the
// TopicRegistry directly, without the existence and role checks that an
// HTTP publish goes through.
type Bridge struct {
	client  *kgo.Client
	reg     *topic.Registry
	metrics *metrics.Metrics
	logger  zerolog.Logger
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Bridge bound to reg, wired to the given metrics
// collector.
func New(cfg Config, reg *topic.Registry, m *metrics.Metrics, logger zerolog.Logger) (*Bridge, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka bridge: at least one broker is required")
	}
	if cfg.ConsumerGroup == "" {
		return nil, fmt.Errorf("kafka bridge: consumer group is required")
	}
	if len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("kafka bridge: at least one topic is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.FetchMaxWait(500*time.Millisecond),
		kgo.FetchMinBytes(1),
		kgo.FetchMaxBytes(10*1024*1024),
		kgo.SessionTimeout(30*time.Second),
		kgo.RebalanceTimeout(60*time.Second),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			logger.Info().Interface("partitions", assigned).Msg("kafka bridge partitions assigned")
		}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
			logger.Info().Interface("partitions", revoked).Msg("kafka bridge partitions revoked")
		}),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("kafka bridge: failed to create client: %w", err)
	}

	maxRate := cfg.MaxRate
	if maxRate <= 0 {
		maxRate = 1000
	}

	return &Bridge{
		client:  client,
		reg:     reg,
		metrics: m,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(maxRate), maxRate),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins the consume loop in the background.
func (b *Bridge) Start() {
	b.logger.Info().Msg("starting kafka ingestion bridge")
	b.wg.Add(1)
	go b.consumeLoop()
}

// Stop cancels the consume loop, waits for it to exit, and closes the
// underlying client.
func (b *Bridge) Stop() {
	b.logger.Info().Msg("stopping kafka ingestion bridge")
	b.cancel()
	b.wg.Wait()
	b.client.Close()
}

func (b *Bridge) consumeLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		default:
			fetches := b.client.PollFetches(b.ctx)
			if b.ctx.Err() != nil {
				return
			}

			for _, err := range fetches.Errors() {
				logging.Error(b.logger, err.Err, "kafka bridge fetch error", map[string]any{
					"topic":     err.Topic,
					"partition": err.Partition,
				})
			}

			fetches.EachRecord(func(record *kgo.Record) {
				if err := b.limiter.Wait(b.ctx); err != nil {
					return
				}
				b.processRecord(record)
			})
		}
	}
}

// processRecord republishes a record's value into the graph topic named
// by the record's key. The topic is created if it does not exist yet, and
// its role is not checked.
func (b *Bridge) processRecord(record *kgo.Record) {
	b.metrics.IngestConsumedTotal.WithLabelValues(bridgeName).Inc()

	topicName := string(record.Key)
	if topicName == "" {
		b.logger.Warn().Str("kafka_topic", record.Topic).Msg("kafka bridge record missing key, skipping")
		b.metrics.IngestErrorsTotal.WithLabelValues(bridgeName).Inc()
		return
	}

	b.reg.Get(topicName).Publish(message.FromBytes(record.Value))
	b.metrics.IngestRepublishedTotal.WithLabelValues(bridgeName).Inc()

	b.logger.Debug().
		Str("graph_topic", topicName).
		Str("kafka_topic", record.Topic).
		Msg("kafka bridge republished record")
}
