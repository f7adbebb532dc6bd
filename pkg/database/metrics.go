package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

type statMetric[S any] struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(S) float64
}

// StatsCollector exports connection pool statistics for one pool. The stats
// function is called on every scrape.
type StatsCollector[S any] struct {
	service string
	stats   func() S
	metrics []statMetric[S]
}

func newStatsCollector[S any](service string, stats func() S) *StatsCollector[S] {
	return &StatsCollector[S]{service: service, stats: stats}
}

func (c *StatsCollector[S]) add(name, help string, kind prometheus.ValueType, value func(S) float64) *StatsCollector[S] {
	c.metrics = append(c.metrics, statMetric[S]{
		desc:  prometheus.NewDesc(name, help, []string{"service"}, nil),
		kind:  kind,
		value: value,
	})
	return c
}

// Describe implements prometheus.Collector.
func (c *StatsCollector[S]) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

// Collect implements prometheus.Collector.
func (c *StatsCollector[S]) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(s), c.service)
	}
}

const (
	gauge   = prometheus.GaugeValue
	counter = prometheus.CounterValue
)

// NewPgxPoolCollector exports pgxpool statistics.
func NewPgxPoolCollector(stats func() *pgxpool.Stat, service string) *StatsCollector[*pgxpool.Stat] {
	return newStatsCollector(service, stats).
		add("db_pool_acquired_connections", "Number of currently acquired connections", gauge,
			func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }).
		add("db_pool_idle_connections", "Number of currently idle connections", gauge,
			func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }).
		add("db_pool_total_connections", "Total number of connections in the pool", gauge,
			func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }).
		add("db_pool_max_connections", "Maximum number of connections allowed", gauge,
			func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }).
		add("db_pool_acquire_count_total", "Total number of connection acquires", counter,
			func(s *pgxpool.Stat) float64 { return float64(s.AcquireCount()) }).
		add("db_pool_acquire_duration_seconds_total", "Total time spent acquiring connections", counter,
			func(s *pgxpool.Stat) float64 { return s.AcquireDuration().Seconds() }).
		add("db_pool_empty_acquire_count_total", "Acquires that had to wait for a connection", counter,
			func(s *pgxpool.Stat) float64 { return float64(s.EmptyAcquireCount()) }).
		add("db_pool_canceled_acquire_count_total", "Acquires canceled by their context", counter,
			func(s *pgxpool.Stat) float64 { return float64(s.CanceledAcquireCount()) })
}

// NewRedisPoolCollector exports go-redis connection pool statistics.
func NewRedisPoolCollector(stats func() *redis.PoolStats, service string) *StatsCollector[*redis.PoolStats] {
	return newStatsCollector(service, stats).
		add("redis_pool_total_connections", "Total connections in the redis pool", gauge,
			func(s *redis.PoolStats) float64 { return float64(s.TotalConns) }).
		add("redis_pool_idle_connections", "Idle connections in the redis pool", gauge,
			func(s *redis.PoolStats) float64 { return float64(s.IdleConns) }).
		add("redis_pool_hits_total", "Times a free connection was found in the pool", counter,
			func(s *redis.PoolStats) float64 { return float64(s.Hits) }).
		add("redis_pool_misses_total", "Times a free connection was not found in the pool", counter,
			func(s *redis.PoolStats) float64 { return float64(s.Misses) }).
		add("redis_pool_timeouts_total", "Times a wait for a connection timed out", counter,
			func(s *redis.PoolStats) float64 { return float64(s.Timeouts) })
}

// RegisterPoolMetrics registers collectors for the postgres pool and the
// redis client with the default registry.
func RegisterPoolMetrics(pool *pgxpool.Pool, rdb *redis.Client, service string) {
	prometheus.MustRegister(NewPgxPoolCollector(pool.Stat, service))
	prometheus.MustRegister(NewRedisPoolCollector(rdb.PoolStats, service))
}
