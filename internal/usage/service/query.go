package service

import (
	"context"
	"time"

	entitydomain "github.com/smallbiznis/entityusage/internal/entity/domain"
	obsmetrics "github.com/smallbiznis/entityusage/internal/observability/metrics"
	usagedomain "github.com/smallbiznis/entityusage/internal/usage/domain"
)

// usageFor returns the stored records of e in the clamped window ending on
// day, newest first. Days without a report are not filled in.
func (s *Service) usageFor(ctx context.Context, e *entitydomain.Entity, day time.Time, days *int) (_ *usagedomain.EntityUsage, err error) {
	start := time.Now()
	defer func() {
		s.aggMetrics.ObserveOperation(obsmetrics.OperationQuery, e.EntityType, time.Since(start), err)
	}()

	records, err := s.repo.RangeBeforeOrOn(ctx, s.db, e.ID, day, usagedomain.ClampDays(days))
	if err != nil {
		return nil, err
	}

	usage := make([]usagedomain.UsageDetails, 0, len(records))
	for i := range records {
		usage = append(usage, records[i].Details())
	}
	return &usagedomain.EntityUsage{
		Entity: e.Reference(),
		Usage:  usage,
	}, nil
}
