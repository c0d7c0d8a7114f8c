// Package nats implements the NATS ingestion bridge (C15): it subscribes
// to a configured subject pattern and republishes each message's payload
// into the graph topic named by the subject's last token (subject
// "graph.input.A" -> topic "A"). Grounded in the teacher's pkg/nats
// Client, whose dependency the ws/ variant carries but never calls.
package nats

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/zazi341/dataflow-graph-server/internal/message"
	"github.com/zazi341/dataflow-graph-server/internal/metrics"
	"github.com/zazi341/dataflow-graph-server/internal/topic"
)

const bridgeName = "nats"

// Config configures the bridge.
type Config struct {
	URL     string
	Subject string
	MaxRate int // messages/sec; 0 or less selects the default of 1000
}

// Bridge subscribes to an external NATS subject and republishes payloads
// into the TopicRegistry.
type Bridge struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	subject string
	reg     *topic.Registry
	metrics *metrics.Metrics
	logger  zerolog.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	started bool
}

// New connects to the NATS server at cfg.URL. The subscription itself is
// created by Start, so a transient subject misconfiguration never
// prevents the connection from being established.
func New(cfg Config, reg *topic.Registry, m *metrics.Metrics, logger zerolog.Logger) (*Bridge, error) {
	if cfg.Subject == "" {
		return nil, fmt.Errorf("nats bridge: subject is required")
	}

	b := &Bridge{
		reg:     reg,
		metrics: m,
		logger:  logger,
	}

	maxRate := cfg.MaxRate
	if maxRate <= 0 {
		maxRate = 1000
	}
	b.limiter = rate.NewLimiter(rate.Limit(maxRate), maxRate)

	conn, err := nats.Connect(cfg.URL,
		nats.ConnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats bridge connected")
		}),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats bridge disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats bridge reconnected")
		}),
		nats.ErrorHandler(func(c *nats.Conn, s *nats.Subscription, err error) {
			logger.Error().Err(err).Msg("nats bridge connection error")
			b.metrics.IngestErrorsTotal.WithLabelValues(bridgeName).Inc()
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats bridge: failed to connect: %w", err)
	}
	b.conn = conn
	b.subject = cfg.Subject
	return b, nil
}

// Start subscribes to the configured subject and begins republishing.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}

	sub, err := b.conn.Subscribe(b.subject, b.handleMessage)
	if err != nil {
		return fmt.Errorf("nats bridge: failed to subscribe to %s: %w", b.subject, err)
	}
	b.sub = sub
	b.started = true
	b.logger.Info().Str("subject", b.subject).Msg("nats bridge subscribed")
	return nil
}

func (b *Bridge) handleMessage(msg *nats.Msg) {
	b.metrics.IngestConsumedTotal.WithLabelValues(bridgeName).Inc()

	if err := b.limiter.Wait(context.Background()); err != nil {
		return
	}

	topicName := lastToken(msg.Subject)
	if topicName == "" {
		b.logger.Warn().Str("subject", msg.Subject).Msg("nats bridge could not derive topic name, skipping")
		b.metrics.IngestErrorsTotal.WithLabelValues(bridgeName).Inc()
		return
	}

	b.reg.Get(topicName).Publish(message.FromBytes(msg.Data))
	b.metrics.IngestRepublishedTotal.WithLabelValues(bridgeName).Inc()

	b.logger.Debug().
		Str("graph_topic", topicName).
		Str("subject", msg.Subject).
		Msg("nats bridge republished message")
}

// lastToken returns the final "."-separated segment of a NATS subject,
// e.g. "graph.input.A" -> "A".
func lastToken(subject string) string {
	idx := strings.LastIndexByte(subject, '.')
	if idx < 0 {
		return subject
	}
	return subject[idx+1:]
}

// Stop unsubscribes and closes the connection.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			b.logger.Warn().Err(err).Msg("nats bridge unsubscribe error")
		}
	}
	if b.conn != nil {
		b.conn.Close()
	}
	b.started = false
}
