package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/smallbiznis/entityusage/internal/usage/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const recordColumns = `entity_id, usage_date, entity_type, daily_count, weekly_count, monthly_count,
	daily_percentile_rank, weekly_percentile_rank, monthly_percentile_rank, created_at, updated_at`

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, record *usagedomain.UsageRecord) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "entity_id"}, {Name: "usage_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"entity_type",
			"daily_count",
			"weekly_count",
			"monthly_count",
			"updated_at",
		}),
	}).Create(record).Error
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, entityID snowflake.ID, date string) (*usagedomain.UsageRecord, error) {
	var record usagedomain.UsageRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+`
		 FROM usage_records WHERE entity_id = ? AND usage_date = ?`,
		entityID,
		date,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.EntityID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) RangeBeforeOrOn(ctx context.Context, db *gorm.DB, entityID snowflake.ID, date time.Time, windowDays int) ([]usagedomain.UsageRecord, error) {
	from := usagedomain.FormatDate(usagedomain.WindowStart(date, windowDays))
	to := usagedomain.FormatDate(date)

	var records []usagedomain.UsageRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+`
		 FROM usage_records
		 WHERE entity_id = ? AND usage_date >= ? AND usage_date <= ?
		 ORDER BY usage_date DESC`,
		entityID,
		from,
		to,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) ListByTypeAndDate(ctx context.Context, db *gorm.DB, entityType, date string) ([]usagedomain.UsageRecord, error) {
	var records []usagedomain.UsageRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+`
		 FROM usage_records
		 WHERE entity_type = ? AND usage_date = ?
		 ORDER BY entity_id ASC`,
		entityType,
		date,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) UpdatePercentiles(ctx context.Context, db *gorm.DB, updates []usagedomain.PercentileUpdate) error {
	now := time.Now().UTC()
	for _, u := range updates {
		err := db.WithContext(ctx).Exec(
			`UPDATE usage_records
			 SET daily_percentile_rank = ?,
			     weekly_percentile_rank = ?,
			     monthly_percentile_rank = ?,
			     updated_at = ?
			 WHERE entity_id = ? AND usage_date = ?`,
			u.DailyRank,
			u.WeeklyRank,
			u.MonthlyRank,
			now,
			u.EntityID,
			u.UsageDate,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) Latest(ctx context.Context, db *gorm.DB, entityID snowflake.ID) (*usagedomain.UsageRecord, error) {
	var record usagedomain.UsageRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+`
		 FROM usage_records WHERE entity_id = ?
		 ORDER BY usage_date DESC
		 LIMIT 1`,
		entityID,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.EntityID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) SumDailyCounts(ctx context.Context, db *gorm.DB, entityIDs []snowflake.ID, date string) (int64, error) {
	if len(entityIDs) == 0 {
		return 0, nil
	}
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(daily_count), 0)
		 FROM usage_records
		 WHERE usage_date = ? AND entity_id IN ?`,
		date,
		entityIDs,
	).Row().Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}
