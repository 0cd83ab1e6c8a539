package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	entitydomain "github.com/smallbiznis/entityusage/internal/entity/domain"
	usagedomain "github.com/smallbiznis/entityusage/internal/usage/domain"
	"gorm.io/gorm"
)

// dailyCountFunc yields the day's count inside the aggregation transaction.
type dailyCountFunc func(ctx context.Context, tx *gorm.DB) (int64, error)

func fixedCount(count int64) dailyCountFunc {
	return func(context.Context, *gorm.DB) (int64, error) { return count, nil }
}

// aggregate recomputes the rolling windows of e ending on day and stores the
// record. The window read and the upsert share one transaction under the
// (entity, day) lock.
func (s *Service) aggregate(ctx context.Context, e *entitydomain.Entity, day time.Time, daily dailyCountFunc) (*usagedomain.UsageRecord, error) {
	unlock, err := s.acquire(ctx, usageLockKey(e.ID, day))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var stored *usagedomain.UsageRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		count, err := daily(ctx, tx)
		if err != nil {
			return err
		}

		weekly, existing, err := s.windowSum(ctx, tx, e.ID, day, usagedomain.WeeklyWindowDays)
		if err != nil {
			return err
		}
		monthly, _, err := s.windowSum(ctx, tx, e.ID, day, usagedomain.MonthlyWindowDays)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		record := &usagedomain.UsageRecord{
			EntityID:     e.ID,
			UsageDate:    usagedomain.FormatDate(day),
			EntityType:   e.EntityType,
			DailyCount:   count,
			WeeklyCount:  weekly + count,
			MonthlyCount: monthly + count,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if existing != nil {
			record.CreatedAt = existing.CreatedAt
			record.DailyPercentileRank = existing.DailyPercentileRank
			record.WeeklyPercentileRank = existing.WeeklyPercentileRank
			record.MonthlyPercentileRank = existing.MonthlyPercentileRank
		}

		if err := s.repo.Upsert(ctx, tx, record); err != nil {
			return err
		}
		stored = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// windowSum sums the daily counts in the window ending on day, leaving out
// day itself, and returns day's current record if there is one.
func (s *Service) windowSum(ctx context.Context, tx *gorm.DB, entityID snowflake.ID, day time.Time, windowDays int) (int64, *usagedomain.UsageRecord, error) {
	records, err := s.repo.RangeBeforeOrOn(ctx, tx, entityID, day, windowDays)
	if err != nil {
		return 0, nil, err
	}

	date := usagedomain.FormatDate(day)
	var (
		sum     int64
		current *usagedomain.UsageRecord
	)
	for i := range records {
		if records[i].UsageDate == date {
			current = &records[i]
			continue
		}
		sum += records[i].DailyCount
	}
	return sum, current, nil
}
