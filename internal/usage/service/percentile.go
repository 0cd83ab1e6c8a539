package service

import (
	"context"
	"sort"
	"time"

	obsmetrics "github.com/smallbiznis/entityusage/internal/observability/metrics"
	"github.com/smallbiznis/entityusage/internal/observability/tracing"
	usagedomain "github.com/smallbiznis/entityusage/internal/usage/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ComputePercentile ranks every entity of entityType that has a record on
// date, for each of the daily, weekly and monthly counts. Ranks are written
// in one transaction; an empty cohort writes nothing.
func (s *Service) ComputePercentile(ctx context.Context, entityType, date string) (err error) {
	typ, err := s.entities.ResolveType(entityType)
	if err != nil {
		return err
	}
	day, err := usagedomain.ParseDate(date)
	if err != nil {
		return err
	}
	date = usagedomain.FormatDate(day)

	ctx, span := s.tracer.Start(ctx, "usage.compute_percentile", trace.WithAttributes(tracing.SafeAttributes(
		attribute.String("entity_type", typ),
		attribute.String("usage.date", date),
	)...))
	start := time.Now()
	defer func() {
		s.aggMetrics.ObserveOperation(obsmetrics.OperationPercentile, typ, time.Since(start), err)
		if err != nil {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "percentile failed")
		}
		span.End()
	}()

	records, err := s.repo.ListByTypeAndDate(ctx, s.db, typ, date)
	if err != nil {
		return err
	}
	span.SetAttributes(tracing.SafeAttributes(attribute.Int("usage.cohort_size", len(records)))...)
	if len(records) == 0 {
		return nil
	}

	updates := rankCohort(records)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.UpdatePercentiles(ctx, tx, updates)
	})
	if err != nil {
		return err
	}

	s.aggMetrics.ObserveCohort(typ, len(records), time.Now())
	s.metrics.RecordPercentilePass(ctx, typ)
	s.log.Debug("percentile ranks computed",
		zap.String("entity_type", typ),
		zap.String("usage_date", date),
		zap.Int("cohort_size", len(records)),
	)
	return nil
}

// rankCohort assigns each record its rank for the three metrics.
func rankCohort(records []usagedomain.UsageRecord) []usagedomain.PercentileUpdate {
	updates := make([]usagedomain.PercentileUpdate, len(records))
	for i, r := range records {
		updates[i] = usagedomain.PercentileUpdate{EntityID: r.EntityID, UsageDate: r.UsageDate}
	}

	assignRanks(records,
		func(r *usagedomain.UsageRecord) int64 { return r.DailyCount },
		func(i, rank int) { updates[i].DailyRank = rank },
	)
	assignRanks(records,
		func(r *usagedomain.UsageRecord) int64 { return r.WeeklyCount },
		func(i, rank int) { updates[i].WeeklyRank = rank },
	)
	assignRanks(records,
		func(r *usagedomain.UsageRecord) int64 { return r.MonthlyCount },
		func(i, rank int) { updates[i].MonthlyRank = rank },
	)
	return updates
}

// assignRanks orders records by count ascending, ties by entity id, and
// passes each record index its rank.
func assignRanks(records []usagedomain.UsageRecord, count func(*usagedomain.UsageRecord) int64, set func(index, rank int)) {
	order := make([]int, len(records))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := &records[order[a]], &records[order[b]]
		if ca, cb := count(ra), count(rb); ca != cb {
			return ca < cb
		}
		return ra.EntityID < rb.EntityID
	})
	for position, index := range order {
		set(index, percentileRank(position, len(order)))
	}
}

// percentileRank is the share of the cohort strictly ahead in the ordering,
// floored to a whole percent.
func percentileRank(position, size int) int {
	if size <= 0 {
		return 0
	}
	return 100 * position / size
}
