package pool

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	resultOK        = "ok"
	resultExhausted = "exhausted"
	resultClosed    = "closed"
	resultCanceled  = "canceled"
	resultError     = "error"
)

type metrics struct {
	acquired  *prometheus.CounterVec
	discarded prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		acquired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_pool_acquire_total",
				Help: "Connection acquisitions by outcome",
			},
			[]string{"result"},
		),
		discarded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "db_pool_discarded_total",
				Help: "Connections closed instead of returned to the pool",
			},
		),
	}
}

func resultOf(err error) string {
	switch {
	case errors.Is(err, ErrPoolExhausted):
		return resultExhausted
	case errors.Is(err, ErrPoolClosed):
		return resultClosed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resultCanceled
	default:
		return resultError
	}
}

// Collectors returns the Prometheus collectors describing the pool.
// The database/sql statistics collector is only included once initialized.
func (m *Manager) Collectors() []prometheus.Collector {
	cs := []prometheus.Collector{m.metrics.acquired, m.metrics.discarded}

	m.mu.Lock()
	db := m.db
	m.mu.Unlock()
	if db != nil {
		cs = append(cs, collectors.NewDBStatsCollector(db.DB, m.cfg.AppName))
	}
	return cs
}
