// Package metrics exposes Prometheus collectors for the fund service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"stokvel/internal/domain"
)

var (
	DepositsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stokvel_deposits_total",
			Help: "Total number of accepted deposits",
		},
	)

	WithdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stokvel_withdrawals_total",
			Help: "Total number of withdrawal operations by phase",
		},
		[]string{"phase"},
	)

	RoundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stokvel_rounds_total",
			Help: "Total number of round lifecycle transitions",
		},
		[]string{"transition"},
	)

	SettlementsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stokvel_settlements_total",
			Help: "Total number of settlement walks that paid out",
		},
	)

	SettledRewardTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stokvel_settled_reward_base_units_total",
			Help: "Total reward settled into accounts, in base units",
		},
	)

	PoolTotalStaked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stokvel_pool_total_staked_base_units",
			Help: "Sum of all participating stakes, in base units",
		},
	)

	PoolPendingWithdrawals = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stokvel_pool_pending_withdraw_base_units",
			Help: "Sum of requested but uncompleted withdrawals, in base units",
		},
	)

	PoolCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stokvel_pool_capacity_base_units",
			Help: "Configured deposit capacity, in base units",
		},
	)

	RoundsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stokvel_rounds_open",
			Help: "Number of rounds currently awaiting collection",
		},
	)

	RoundsOverdue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stokvel_rounds_overdue",
			Help: "Number of matured rounds awaiting collection",
		},
	)

	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stokvel_stream_subscribers",
			Help: "Number of connected event feed clients",
		},
	)

	CollaboratorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stokvel_collaborator_request_duration_seconds",
			Help:    "Duration of external collaborator calls",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"collaborator", "operation", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stokvel_http_request_duration_seconds",
			Help:    "Duration of handled HTTP requests",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "path", "status"},
	)
)

// UpdatePoolGauges refreshes the pool-level gauges from committed state.
func UpdatePoolGauges(pool domain.PoolState) {
	PoolTotalStaked.Set(toFloat(pool.TotalStaked))
	PoolPendingWithdrawals.Set(toFloat(pool.TotalPendingWithdraw))
	PoolCapacity.Set(toFloat(pool.Capacity))
	RoundsOpen.Set(float64(pool.OpenedRounds - pool.ClosedRounds))
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
