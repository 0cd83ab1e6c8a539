package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entityusage/internal/clock"
	entitydomain "github.com/smallbiznis/entityusage/internal/entity/domain"
	obsmetrics "github.com/smallbiznis/entityusage/internal/observability/metrics"
	"github.com/smallbiznis/entityusage/internal/observability/tracing"
	usagedomain "github.com/smallbiznis/entityusage/internal/usage/domain"
	"github.com/smallbiznis/entityusage/internal/usage/liveevents"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Repo            usagedomain.Repository
	Entities        usagedomain.EntityResolver
	Clock           clock.Clock
	DistributedLock usagedomain.KeyLocker        `optional:"true"`
	Metrics         *obsmetrics.Metrics            `optional:"true"`
	AggMetrics      *obsmetrics.AggregationMetrics `optional:"true"`
	LiveEvents      *liveevents.Hub                `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     usagedomain.Repository
	entities usagedomain.EntityResolver
	clock    clock.Clock
	tracer   trace.Tracer

	locks       *keyLocks
	distributed usagedomain.KeyLocker

	metrics    *obsmetrics.Metrics
	aggMetrics *obsmetrics.AggregationMetrics
	liveEvents *liveevents.Hub
}

func New(p Params) usagedomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("usage.service"),
		repo:        p.Repo,
		entities:    p.Entities,
		clock:       clk,
		tracer:      otel.Tracer("entityusage/usage"),
		locks:       newKeyLocks(),
		distributed: p.DistributedLock,
		metrics:     p.Metrics,
		aggMetrics:  p.AggMetrics,
		liveEvents:  p.LiveEvents,
	}
}

func (s *Service) ReportUsage(ctx context.Context, req usagedomain.ReportUsageRequest) (*usagedomain.UsageRecord, error) {
	day, err := validateReport(req.Count, req.Date)
	if err != nil {
		return nil, err
	}
	e, err := s.entities.GetByID(ctx, req.EntityType, req.EntityID)
	if err != nil {
		return nil, err
	}
	return s.report(ctx, e, day, req.Count)
}

func (s *Service) ReportUsageByName(ctx context.Context, req usagedomain.ReportUsageByNameRequest) (*usagedomain.UsageRecord, error) {
	day, err := validateReport(req.Count, req.Date)
	if err != nil {
		return nil, err
	}
	e, err := s.entities.GetByName(ctx, req.EntityType, req.FullyQualifiedName)
	if err != nil {
		return nil, err
	}
	return s.report(ctx, e, day, req.Count)
}

func (s *Service) GetUsage(ctx context.Context, req usagedomain.GetUsageRequest) (*usagedomain.EntityUsage, error) {
	day, err := s.queryDate(req.Date)
	if err != nil {
		return nil, err
	}
	e, err := s.entities.GetByID(ctx, req.EntityType, req.EntityID)
	if err != nil {
		return nil, err
	}
	return s.usageFor(ctx, e, day, req.Days)
}

func (s *Service) GetUsageByName(ctx context.Context, req usagedomain.GetUsageByNameRequest) (*usagedomain.EntityUsage, error) {
	day, err := s.queryDate(req.Date)
	if err != nil {
		return nil, err
	}
	e, err := s.entities.GetByName(ctx, req.EntityType, req.FullyQualifiedName)
	if err != nil {
		return nil, err
	}
	return s.usageFor(ctx, e, day, req.Days)
}

func (s *Service) LatestUsage(ctx context.Context, entityID snowflake.ID) (*usagedomain.UsageDetails, error) {
	record, err := s.repo.Latest(ctx, s.db, entityID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}
	details := record.Details()
	return &details, nil
}

// report stores the count for e on day and feeds the parent chain.
func (s *Service) report(ctx context.Context, e *entitydomain.Entity, day time.Time, count int64) (_ *usagedomain.UsageRecord, err error) {
	ctx, span := s.tracer.Start(ctx, "usage.report", trace.WithAttributes(tracing.SafeAttributes(
		attribute.String("entity_type", e.EntityType),
		attribute.String("usage.date", usagedomain.FormatDate(day)),
	)...))
	start := time.Now()
	defer func() {
		s.aggMetrics.ObserveOperation(obsmetrics.OperationReport, e.EntityType, time.Since(start), err)
		if err != nil {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "report failed")
		}
		span.End()
	}()

	record, err := s.aggregate(ctx, e, day, fixedCount(count))
	if err != nil {
		return nil, err
	}
	s.metrics.RecordUsageReport(ctx, e.EntityType, count)
	s.publish(record, liveevents.SourceReport)

	if err := s.rollup(ctx, e, day); err != nil {
		s.log.Error("parent rollup failed",
			zap.String("entity_type", e.EntityType),
			zap.String("entity_id", e.ID.String()),
			zap.String("usage_date", record.UsageDate),
			zap.Error(err),
		)
		return nil, err
	}
	return record, nil
}

func validateReport(count int64, date string) (time.Time, error) {
	if count < 0 {
		return time.Time{}, usagedomain.ErrInvalidUsageCount
	}
	return usagedomain.ParseDate(date)
}

func (s *Service) queryDate(date string) (time.Time, error) {
	if strings.TrimSpace(date) == "" {
		return clock.Today(s.clock), nil
	}
	return usagedomain.ParseDate(date)
}

func (s *Service) publish(record *usagedomain.UsageRecord, source string) {
	if s.liveEvents == nil || record == nil {
		return
	}
	s.liveEvents.Publish(liveevents.UsageEvent{
		EntityType:   record.EntityType,
		EntityID:     record.EntityID.String(),
		Date:         record.UsageDate,
		DailyCount:   record.DailyCount,
		WeeklyCount:  record.WeeklyCount,
		MonthlyCount: record.MonthlyCount,
		Source:       source,
	})
}
