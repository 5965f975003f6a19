// Package notify announces completed aggregate snapshot swaps over NATS so
// downstream readers can drop stale copies.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectSnapshotReplaced is the default subject for snapshot swap events.
const SubjectSnapshotReplaced = "placescore.aggregates.replaced"

// SnapshotReplaced is published after the stored snapshot has been replaced.
type SnapshotReplaced struct {
	RunID       string    `json:"run_id"`
	ComputedAt  time.Time `json:"computed_at"`
	EntityCount int       `json:"entity_count"`
}

// Conn is the subset of *nats.Conn used for publishing.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// NATSPublisher publishes snapshot events as JSON.
type NATSPublisher struct {
	conn    Conn
	subject string
	logger  *slog.Logger
}

// NewNATSPublisher creates a publisher on conn. An empty subject uses
// SubjectSnapshotReplaced.
func NewNATSPublisher(conn Conn, subject string, logger *slog.Logger) *NATSPublisher {
	if subject == "" {
		subject = SubjectSnapshotReplaced
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{conn: conn, subject: subject, logger: logger}
}

// PublishReplaced publishes event and flushes so the call only returns once
// the server has the message or ctx is done.
func (p *NATSPublisher) PublishReplaced(ctx context.Context, event SnapshotReplaced) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal snapshot event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", p.subject, err)
	}

	p.logger.Debug("published snapshot event",
		"subject", p.subject,
		"run_id", event.RunID,
		"entity_count", event.EntityCount)
	return nil
}

// Config configures the NATS connection.
type Config struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

// Connect opens a NATS connection with reconnect logging.
func Connect(cfg Config) (*nats.Conn, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = 10
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("placescore"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}
