// Package gateway is the Persistence Gateway (spec.md §4.1): a typed
// connection pool, transaction scoping with serialization-failure retry, and
// an optimistic-locking helper every aggregate store builds on. Grounded on
// Tim275-oms's stock/store_postgres.go (raw database/sql + lib/pq,
// RowsAffected-as-conflict-signal) with the retry loop adapted from
// kvishalv-reliable-orders/internal/reliability/retry.go.
package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/lib/pq"

	"github.com/timour/stateset-core/internal/config"
	"github.com/timour/stateset-core/internal/core"
	"github.com/timour/stateset-core/internal/metrics"
)

// sqlStateSerializationFailure and sqlStateDeadlockDetected are the Postgres SQLSTATE codes
// the gateway treats as retryable (spec.md §4.1: "the database's
// serialization-failure signal").
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// MaxTxRetries bounds the gateway's internal retry of a transaction that
// fails with a serialization error, per spec.md §4.1 ("up to a bounded
// count (3)").
const MaxTxRetries = 3

// Outcome is the result of an optimistic compare-and-set write.
type Outcome int

const (
	Updated Outcome = iota
	Stale
)

// Gateway owns the primary (read-write) and optional read-replica
// connection pools.
type Gateway struct {
	primary *sql.DB
	replica *sql.DB
	metrics *metrics.Core
}

// Open establishes the primary pool (and, if configured, the read-replica
// pool) and applies the pool-sizing configuration from spec.md §6.
func Open(cfg *config.Config, m *metrics.Core) (*Gateway, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("gateway: failed to open primary database: %w", err)
	}
	db.SetMaxOpenConns(cfg.DatabaseMaxConnections)
	db.SetMaxIdleConns(cfg.DatabaseMinConnections)
	db.SetConnMaxIdleTime(cfg.DatabaseIdleTimeout)

	pingCtx, cancel := context.WithTimeout(context.Background(), cfg.DatabaseAcquireTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("gateway: failed to ping primary database: %w", err)
	}

	gw := &Gateway{primary: db, metrics: m}

	if cfg.ReadReplicaDatabaseURL != "" {
		replica, err := sql.Open("postgres", cfg.ReadReplicaDatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("gateway: failed to open read replica: %w", err)
		}
		replica.SetMaxOpenConns(cfg.DatabaseMaxConnections)
		gw.replica = replica
	}

	return gw, nil
}

// Close releases both pools.
func (g *Gateway) Close() error {
	if g.replica != nil {
		_ = g.replica.Close()
	}
	return g.primary.Close()
}

// ReadDB returns the read-replica pool if configured, else the primary pool.
// Only explicitly marked read queries should use it (spec.md §4.1).
func (g *Gateway) ReadDB() *sql.DB {
	if g.replica != nil {
		return g.replica
	}
	return g.primary
}

// Tx wraps a *sql.Tx with the optimistic-update helper every aggregate store
// uses to enforce its version column.
type Tx struct {
	*sql.Tx
}

// WithTx opens a serializable transaction, runs fn, commits on success, and
// rolls back on any error. Transactions that fail with a serialization or
// deadlock error are retried up to MaxTxRetries times with jittered
// exponential backoff before the error surfaces to the caller as
// Unavailable; any other error surfaces immediately.
func (g *Gateway) WithTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	var lastErr error
	for attempt := 0; attempt <= MaxTxRetries; attempt++ {
		if attempt > 0 {
			g.metrics.GatewayRetries.Inc()
			backoff := jitteredBackoff(attempt)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return core.Wrap(core.KindTimeout, "CONTEXT_CANCELLED", "transaction cancelled during retry backoff", ctx.Err())
			}
		}

		err := g.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}
	}
	return core.Wrap(core.KindUnavailable, "TX_RETRY_EXHAUSTED",
		fmt.Sprintf("transaction failed after %d attempts due to repeated serialization conflicts", MaxTxRetries+1), lastErr)
}

func (g *Gateway) runOnce(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) (err error) {
	sqlTx, err := g.primary.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("gateway: failed to begin transaction: %w", err)
	}
	tx := &Tx{Tx: sqlTx}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("gateway: failed to commit transaction: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		return code == sqlStateSerializationFailure || code == sqlStateDeadlockDetected
	}
	return false
}

func jitteredBackoff(attempt int) time.Duration {
	base := 20 * time.Millisecond
	backoff := float64(base) * math.Pow(2, float64(attempt))
	jitter := backoff * 0.3 * (rand.Float64()*2 - 1)
	d := time.Duration(backoff + jitter)
	if d < 0 {
		d = base
	}
	return d
}

// ExecOptimistic runs an UPDATE that is guarded by `WHERE id = $idArg AND
// version = $versionArg`, incrementing version by one in the SET clause the
// caller provides. setClause must already include "version = version + 1".
// It reports Updated when exactly one row matched, Stale when the expected
// version no longer matched (another writer won the race), grounded on
// stock/store_reservations.go's RowsAffected-as-conflict-signal pattern,
// generalized from a single hand-written query per call site into a shared
// helper.
func (t *Tx) ExecOptimistic(ctx context.Context, query string, args ...any) (Outcome, error) {
	result, err := t.ExecContext(ctx, query, args...)
	if err != nil {
		return Stale, fmt.Errorf("gateway: optimistic update failed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return Stale, fmt.Errorf("gateway: failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return Stale, nil
	}
	return Updated, nil
}
