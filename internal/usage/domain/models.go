// Package domain holds the per-day usage record and the rolling aggregate
// views built from it.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageRecord is one entity's usage on one calendar day. WeeklyCount and
// MonthlyCount are the trailing 7 and 30 day sums as of the last report for
// UsageDate. Percentile ranks are set only by a percentile pass.
type UsageRecord struct {
	EntityID              snowflake.ID `json:"entityId" gorm:"primaryKey;autoIncrement:false"`
	UsageDate             string       `json:"date" gorm:"primaryKey;type:varchar(10);index:ix_usage_records_type_date,priority:2"`
	EntityType            string       `json:"entityType" gorm:"type:varchar(64);not null;index:ix_usage_records_type_date,priority:1"`
	DailyCount            int64        `json:"dailyCount" gorm:"not null;default:0"`
	WeeklyCount           int64        `json:"weeklyCount" gorm:"not null;default:0"`
	MonthlyCount          int64        `json:"monthlyCount" gorm:"not null;default:0"`
	DailyPercentileRank   *int         `json:"dailyPercentileRank,omitempty"`
	WeeklyPercentileRank  *int         `json:"weeklyPercentileRank,omitempty"`
	MonthlyPercentileRank *int         `json:"monthlyPercentileRank,omitempty"`
	CreatedAt             time.Time    `json:"-" gorm:"not null"`
	UpdatedAt             time.Time    `json:"-" gorm:"not null"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }

// PercentileUpdate carries the ranks of one record from a percentile pass.
type PercentileUpdate struct {
	EntityID    snowflake.ID
	UsageDate   string
	DailyRank   int
	WeeklyRank  int
	MonthlyRank int
}

type UsageStats struct {
	Count          int64 `json:"count"`
	PercentileRank *int  `json:"percentileRank,omitempty"`
}

type UsageDetails struct {
	Date         string     `json:"date"`
	DailyStats   UsageStats `json:"dailyStats"`
	WeeklyStats  UsageStats `json:"weeklyStats"`
	MonthlyStats UsageStats `json:"monthlyStats"`
}

func (r *UsageRecord) Details() UsageDetails {
	return UsageDetails{
		Date:         r.UsageDate,
		DailyStats:   UsageStats{Count: r.DailyCount, PercentileRank: r.DailyPercentileRank},
		WeeklyStats:  UsageStats{Count: r.WeeklyCount, PercentileRank: r.WeeklyPercentileRank},
		MonthlyStats: UsageStats{Count: r.MonthlyCount, PercentileRank: r.MonthlyPercentileRank},
	}
}
