package app

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/leosozza/evowhats/internal/domain"
	"github.com/leosozza/evowhats/internal/transport"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TransportLogObserver persists every outbound attempt on a bounded worker
// pool. When the pool is saturated the row is dropped.
type TransportLogObserver struct {
	db   *gorm.DB
	node *snowflake.Node
	pool *ants.Pool
}

func NewTransportLogObserver(db *gorm.DB, node *snowflake.Node, workers int) (*TransportLogObserver, error) {
	if workers <= 0 {
		workers = 2
	}
	pool, err := ants.NewPool(workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}
	return &TransportLogObserver{db: db, node: node, pool: pool}, nil
}

func (o *TransportLogObserver) OnAttempt(a transport.Attempt) {
	row := &domain.TransportLog{
		ID:         o.node.Generate().Int64(),
		Path:       a.Path,
		Method:     a.Method,
		Attempt:    a.Number,
		StatusCode: a.StatusCode,
		Retriable:  a.Retriable,
		LatencyMs:  a.Latency.Milliseconds(),
		CreatedAt:  a.At,
	}
	if a.Err != nil {
		row.Error = a.Err.Error()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	err := o.pool.Submit(func() {
		if err := o.db.Create(row).Error; err != nil {
			zap.L().Debug("transport: write attempt log", zap.Error(err))
		}
	})
	if err != nil {
		zap.L().Debug("transport: attempt log dropped", zap.String("path", a.Path), zap.Error(err))
	}
}

// Prune deletes attempt rows older than days.
func (o *TransportLogObserver) Prune(ctx context.Context, days int) (int64, error) {
	res := o.db.WithContext(ctx).
		Where("created_at < ?", time.Now().Add(-24*time.Hour*time.Duration(days))).
		Delete(&domain.TransportLog{})
	return res.RowsAffected, res.Error
}

// Close waits briefly for queued writes and releases the pool.
func (o *TransportLogObserver) Close() {
	deadline := time.Now().Add(2 * time.Second)
	for o.pool.Running() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	o.pool.Release()
}
