// Package health provides dependency checkers and the ops HTTP surface:
// liveness, readiness and Prometheus metrics.
package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// Checker is implemented by anything that can report its own health.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

// HealthCheck calls f.
func (f CheckerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// DBChecker pings a SQL database.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a new database health checker.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// RedisChecker sends PING to Redis.
type RedisChecker struct {
	client redis.UniversalClient
}

// NewRedisChecker creates a new Redis health checker.
func NewRedisChecker(client redis.UniversalClient) *RedisChecker {
	return &RedisChecker{client: client}
}

// HealthCheck pings Redis.
func (r *RedisChecker) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// ErrNATSDisconnected is returned when the NATS connection is not usable.
var ErrNATSDisconnected = errors.New("nats connection is not connected")

// natsConn is the subset of *nats.Conn the checker reads.
type natsConn interface {
	Status() nats.Status
}

// NATSChecker reports whether a NATS connection is currently connected.
type NATSChecker struct {
	conn natsConn
}

// NewNATSChecker creates a NATS health checker.
func NewNATSChecker(conn *nats.Conn) *NATSChecker {
	return &NATSChecker{conn: conn}
}

// HealthCheck fails unless the connection status is CONNECTED.
func (n *NATSChecker) HealthCheck(ctx context.Context) error {
	if status := n.conn.Status(); status != nats.CONNECTED {
		return fmt.Errorf("%w: %s", ErrNATSDisconnected, status)
	}
	return nil
}
