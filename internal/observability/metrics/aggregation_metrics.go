package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	OperationReport     = "report"
	OperationRollup     = "rollup"
	OperationPercentile = "percentile"
	OperationQuery      = "query"
)

const (
	ErrorReasonDeadlineExceeded     = "deadline_exceeded"
	ErrorReasonDBLockTimeout        = "db_lock_timeout"
	ErrorReasonSerializationFailure = "serialization_failure"
	ErrorReasonUniqueViolation      = "unique_violation"
	ErrorReasonDB                   = "db"
	ErrorReasonUnknown              = "unknown"
)

// AggregationMetrics tracks aggregation latency, percentile cohorts and
// per-key lock contention on the Prometheus registry.
type AggregationMetrics struct {
	operations     *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	errors         *prometheus.CounterVec
	cohortSize     *prometheus.HistogramVec
	lockWait       prometheus.Observer
	lastPercentile *prometheus.GaugeVec
}

var (
	aggregationMetricsOnce sync.Once
	aggregationMetrics     *AggregationMetrics
)

// Aggregation returns the process-wide aggregation metrics.
func Aggregation() *AggregationMetrics {
	return AggregationWithConfig(Config{})
}

// AggregationWithConfig returns the process-wide aggregation metrics using config labels.
func AggregationWithConfig(cfg Config) *AggregationMetrics {
	aggregationMetricsOnce.Do(func() {
		aggregationMetrics = NewAggregationMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return aggregationMetrics
}

// NewAggregationMetrics registers a fresh set of collectors on registerer.
func NewAggregationMetrics(registerer prometheus.Registerer, cfg Config) *AggregationMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "entityusage"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "entityusage_aggregation_operations_total",
		Help:        "Aggregation operations by kind and entity type.",
		ConstLabels: constLabels,
	}, []string{"operation", "entity_type"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "entityusage_aggregation_duration_seconds",
		Help:        "Aggregation operation latency.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"operation", "entity_type"})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "entityusage_aggregation_errors_total",
		Help:        "Aggregation errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"operation", "reason"})
	cohortSize := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "entityusage_percentile_cohort_size",
		Help:        "Records ranked per percentile computation.",
		Buckets:     prometheus.ExponentialBuckets(1, 4, 10),
		ConstLabels: constLabels,
	}, []string{"entity_type"})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "entityusage_key_lock_wait_seconds",
		Help:        "Time spent waiting for the per entity-date lock.",
		Buckets:     []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		ConstLabels: constLabels,
	})
	lastPercentile := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "entityusage_percentile_last_run_timestamp_seconds",
		Help:        "Unix time of the last successful percentile computation.",
		ConstLabels: constLabels,
	}, []string{"entity_type"})

	registerer.MustRegister(operations, duration, errs, cohortSize, lockWait, lastPercentile)

	return &AggregationMetrics{
		operations:     operations,
		duration:       duration,
		errors:         errs,
		cohortSize:     cohortSize,
		lockWait:       lockWait,
		lastPercentile: lastPercentile,
	}
}

// ObserveOperation records one finished operation, classifying err when set.
func (m *AggregationMetrics) ObserveOperation(operation, entityType string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	entityType = labelOrUnknown(entityType)
	m.operations.WithLabelValues(operation, entityType).Inc()
	m.duration.WithLabelValues(operation, entityType).Observe(elapsed.Seconds())
	if err != nil {
		m.errors.WithLabelValues(operation, ClassifyErrorReason(err)).Inc()
	}
}

func (m *AggregationMetrics) ObserveCohort(entityType string, size int, at time.Time) {
	if m == nil {
		return
	}
	entityType = labelOrUnknown(entityType)
	m.cohortSize.WithLabelValues(entityType).Observe(float64(size))
	m.lastPercentile.WithLabelValues(entityType).Set(float64(at.Unix()))
}

func (m *AggregationMetrics) ObserveLockWait(wait time.Duration) {
	if m == nil {
		return
	}
	if wait < 0 {
		wait = 0
	}
	m.lockWait.Observe(wait.Seconds())
}

// ClassifyErrorReason maps storage and context errors to low-cardinality reasons.
func ClassifyErrorReason(err error) string {
	switch {
	case err == nil:
		return ErrorReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorReasonDeadlineExceeded
	case hasPGCode(err, "55P03"):
		return ErrorReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return ErrorReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return ErrorReasonUniqueViolation
	case isDBError(err):
		return ErrorReasonDB
	default:
		return ErrorReasonUnknown
	}
}

// IsRetryable reports whether a failed aggregation may succeed on retry.
func IsRetryable(err error) bool {
	switch ClassifyErrorReason(err) {
	case ErrorReasonDBLockTimeout, ErrorReasonSerializationFailure:
		return true
	}
	return false
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrInvalidValue) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}

func labelOrUnknown(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
