package service

import (
	"context"
	"time"

	entitydomain "github.com/smallbiznis/entityusage/internal/entity/domain"
	obsmetrics "github.com/smallbiznis/entityusage/internal/observability/metrics"
	usagedomain "github.com/smallbiznis/entityusage/internal/usage/domain"
	"github.com/smallbiznis/entityusage/internal/usage/liveevents"
	"gorm.io/gorm"
)

// rollup sets the parent's daily count on day to the sum of its children's
// daily counts, then continues up the chain.
func (s *Service) rollup(ctx context.Context, child *entitydomain.Entity, day time.Time) error {
	for current := child; ; {
		parent, err := s.entities.Parent(ctx, current)
		if err != nil {
			return err
		}
		if parent == nil {
			return nil
		}

		children, err := s.entities.ListChildIDs(ctx, parent.ID)
		if err != nil {
			return err
		}

		date := usagedomain.FormatDate(day)
		start := time.Now()
		record, err := s.aggregate(ctx, parent, day, func(ctx context.Context, tx *gorm.DB) (int64, error) {
			return s.repo.SumDailyCounts(ctx, tx, children, date)
		})
		s.aggMetrics.ObserveOperation(obsmetrics.OperationRollup, parent.EntityType, time.Since(start), err)
		if err != nil {
			return err
		}
		s.metrics.RecordRollup(ctx, parent.EntityType)
		s.publish(record, liveevents.SourceRollup)

		current = parent
	}
}
