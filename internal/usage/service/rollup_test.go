package service

import (
	"context"
	"sync"
	"testing"

	usagedomain "github.com/smallbiznis/entityusage/internal/usage/domain"
	"github.com/smallbiznis/entityusage/internal/usage/liveevents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseRollsUpTableCounts(t *testing.T) {
	f := newFixture(t)
	db := f.entity("database", "warehouse", "")
	orders := f.entity("table", "orders", "warehouse")
	users := f.entity("table", "users", "warehouse")

	f.report(orders, 1, 3)
	f.report(users, 1, 4)

	parent := f.stored(db, 1)
	require.NotNil(t, parent)
	assert.Equal(t, "database", parent.EntityType)
	assert.Equal(t, int64(7), parent.DailyCount)

	f.report(orders, 1, 1)
	parent = f.stored(db, 1)
	assert.Equal(t, int64(5), parent.DailyCount)

	f.report(orders, 2, 2)
	parent = f.stored(db, 2)
	require.NotNil(t, parent)
	assert.Equal(t, int64(2), parent.DailyCount)
	assert.Equal(t, int64(7), parent.WeeklyCount)
	assert.Equal(t, int64(7), parent.MonthlyCount)
}

func TestRunningDatabaseSumMatchesTables(t *testing.T) {
	f := newFixture(t)
	db := f.entity("database", "warehouse", "")
	a := f.entity("table", "a", "warehouse")
	b := f.entity("table", "b", "warehouse")

	var running int64
	for day := 1; day <= 10; day++ {
		f.report(a, day, int64(day))
		f.report(b, day, 2)
		running += int64(day) + 2

		parent := f.stored(db, day)
		require.NotNil(t, parent)
		assert.Equal(t, int64(day)+2, parent.DailyCount, "database daily on day %d", day)
		assert.Equal(t, running, parent.MonthlyCount, "database monthly on day %d", day)
	}
}

func TestTableWithoutParentDoesNotRollUp(t *testing.T) {
	f := newFixture(t)
	f.entity("database", "warehouse", "")
	orphan := f.entity("table", "scratch", "")

	f.report(orphan, 1, 9)

	assert.Equal(t, int64(1), f.rowCount())
}

func TestRollupPublishesLiveEvents(t *testing.T) {
	hub := liveevents.NewHub()
	f := newFixture(t, func(p *Params) { p.LiveEvents = hub })
	f.entity("database", "warehouse", "")
	table := f.entity("table", "orders", "warehouse")

	tables, _, err := hub.Subscribe("table")
	require.NoError(t, err)
	defer tables.Close()
	databases, _, err := hub.Subscribe("database")
	require.NoError(t, err)
	defer databases.Close()

	f.report(table, 1, 6)

	child := <-tables.Events()
	assert.Equal(t, table.ID.String(), child.EntityID)
	assert.Equal(t, liveevents.SourceReport, child.Source)

	parent := <-databases.Events()
	assert.Equal(t, int64(6), parent.DailyCount)
	assert.Equal(t, liveevents.SourceRollup, parent.Source)
}

func TestConcurrentReportsKeepRollupConsistent(t *testing.T) {
	f := newFixture(t)
	db := f.entity("database", "warehouse", "")
	tables := []string{"a", "b", "c", "d"}
	for _, name := range tables {
		f.entity("table", name, "warehouse")
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(tables)*5)
	for _, name := range tables {
		for i := 1; i <= 5; i++ {
			wg.Add(1)
			go func(name string, count int64) {
				defer wg.Done()
				_, err := f.svc.ReportUsageByName(context.Background(), usagedomain.ReportUsageByNameRequest{
					EntityType:         "table",
					FullyQualifiedName: "warehouse." + name,
					Date:               date(1),
					Count:              count,
				})
				errs <- err
			}(name, int64(i))
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	records, err := f.svc.repo.ListByTypeAndDate(context.Background(), f.db, "table", date(1))
	require.NoError(t, err)
	require.Len(t, records, len(tables))

	var sum int64
	for _, r := range records {
		assert.Equal(t, r.DailyCount, r.WeeklyCount)
		sum += r.DailyCount
	}

	parent := f.stored(db, 1)
	require.NotNil(t, parent)
	assert.Equal(t, sum, parent.DailyCount)
	assert.Equal(t, 0, f.svc.locks.size())
}
