package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/datalinker/correlation-backend/internal/data/repos/testutil"
	"github.com/datalinker/correlation-backend/internal/domain"
	"github.com/datalinker/correlation-backend/internal/pkg/dbctx"
)

func TestCorrelationRepoListPaginationIsStable(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	repo := NewCorrelationRepo(db, testutil.Logger(t))

	source := uuid.New()
	target := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 25; i++ {
		testutil.SeedCorrelation(t, ctx, tx, source, target, domain.TypeOneToMany, 0.9, base.Add(time.Duration(i)*time.Second))
	}

	filter := ListFilter{SourceDatasetID: &source}
	seen := map[uuid.UUID]bool{}
	limit := 10
	for offset := 0; ; offset += limit {
		rows, total, err := repo.List(dbc, filter, limit, offset)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if total != 25 {
			t.Fatalf("total=%d, want 25", total)
		}
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			if seen[row.ID] {
				t.Fatalf("duplicate row %s across pages", row.ID)
			}
			seen[row.ID] = true
		}
	}
	if len(seen) != 25 {
		t.Fatalf("paged union has %d rows, want 25", len(seen))
	}
}

func TestCorrelationRepoListFilters(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	repo := NewCorrelationRepo(db, testutil.Logger(t))

	source := uuid.New()
	other := uuid.New()
	target := uuid.New()
	now := time.Now().UTC()

	strong := testutil.SeedCorrelation(t, ctx, tx, source, target, domain.TypeOneToMany, 0.9, now)
	weak := testutil.SeedCorrelation(t, ctx, tx, source, target, domain.TypeTemporal, 0.4, now.Add(time.Second))
	testutil.SeedCorrelation(t, ctx, tx, other, target, domain.TypeOneToMany, 0.95, now.Add(2*time.Second))

	minConf := 0.8
	rows, total, err := repo.List(dbc, ListFilter{SourceDatasetID: &source, MinConfidence: &minConf}, 20, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(rows) != 1 || rows[0].ID != strong.ID {
		t.Fatalf("filter by source+minConfidence: got %d rows total=%d", len(rows), total)
	}

	typ := domain.TypeTemporal
	rows, total, err = repo.List(dbc, ListFilter{Type: &typ}, 20, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || rows[0].ID != weak.ID {
		t.Fatalf("filter by type: got total=%d", total)
	}
}

func TestCorrelationRepoListTagFilter(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	repo := NewCorrelationRepo(db, testutil.Logger(t))

	source := uuid.New()
	target := uuid.New()
	now := time.Now().UTC()

	tagged := testutil.SeedCorrelation(t, ctx, tx, source, target, domain.TypeSemantic, 0.8, now)
	tags, err := domain.EncodeTags([]string{"finance", "weekly"})
	if err != nil {
		t.Fatalf("EncodeTags: %v", err)
	}
	tagged.Tags = tags
	if err := repo.Save(dbc, tagged); err != nil {
		t.Fatalf("Save: %v", err)
	}
	testutil.SeedCorrelation(t, ctx, tx, source, target, domain.TypeSemantic, 0.8, now.Add(time.Second))

	rows, total, err := repo.List(dbc, ListFilter{Tag: "finance"}, 20, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(rows) != 1 || rows[0].ID != tagged.ID {
		t.Fatalf("tag filter: got %d rows total=%d", len(rows), total)
	}
}

func TestCorrelationRepoApplyValidationOutcome(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	repo := NewCorrelationRepo(db, testutil.Logger(t))

	row := testutil.SeedCorrelation(t, ctx, tx, uuid.New(), uuid.New(), domain.TypeStatistical, 0.7, time.Now().UTC())

	at := time.Now().UTC()
	n, err := repo.ApplyValidationOutcome(dbc, row.ID, domain.StatusValidated, 0.82, at)
	if err != nil {
		t.Fatalf("ApplyValidationOutcome: %v", err)
	}
	if n != 1 {
		t.Fatalf("rows affected=%d, want 1", n)
	}

	got, err := repo.GetByID(dbc, row.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.StatusValidated || got.ValidityScore != 0.82 {
		t.Fatalf("outcome not applied: status=%s score=%v", got.Status, got.ValidityScore)
	}
	if got.Version != 1 {
		t.Fatalf("validation must not bump version, got %d", got.Version)
	}
	if got.LastValidated == nil {
		t.Fatalf("last_validated not set")
	}

	// Unknown id affects nothing.
	n, err = repo.ApplyValidationOutcome(dbc, uuid.New(), domain.StatusValidated, 0.5, at)
	if err != nil {
		t.Fatalf("ApplyValidationOutcome: %v", err)
	}
	if n != 0 {
		t.Fatalf("rows affected=%d, want 0", n)
	}
}

func TestCorrelationRepoDeleteCascades(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	correlations := NewCorrelationRepo(db, testutil.Logger(t))
	validations := NewValidationRepo(db, testutil.Logger(t))

	row := testutil.SeedCorrelation(t, ctx, tx, uuid.New(), uuid.New(), domain.TypeFunctional, 0.6, time.Now().UTC())
	testutil.SeedValidation(t, ctx, tx, row.ID, 0.75)
	testutil.SeedValidation(t, ctx, tx, row.ID, 0.8)

	if _, err := validations.DeleteByCorrelationIDs(dbc, []uuid.UUID{row.ID}); err != nil {
		t.Fatalf("DeleteByCorrelationIDs: %v", err)
	}
	n, err := correlations.DeleteByIDs(dbc, []uuid.UUID{row.ID})
	if err != nil {
		t.Fatalf("DeleteByIDs: %v", err)
	}
	if n != 1 {
		t.Fatalf("rows affected=%d, want 1", n)
	}

	got, err := correlations.GetByID(dbc, row.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got != nil {
		t.Fatalf("correlation still present after delete")
	}
	history, err := validations.GetByCorrelationID(dbc, row.ID)
	if err != nil {
		t.Fatalf("GetByCorrelationID: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("validations not removed with correlation: %d left", len(history))
	}
}

func TestStatRepoIncrementalAggregates(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	stats := NewStatRepo(db, testutil.Logger(t))

	if err := stats.ApplyCorrelationCreated(dbc, domain.TypeOneToMany, 0.8); err != nil {
		t.Fatalf("ApplyCorrelationCreated: %v", err)
	}
	if err := stats.ApplyCorrelationCreated(dbc, domain.TypeTemporal, 0.6); err != nil {
		t.Fatalf("ApplyCorrelationCreated: %v", err)
	}
	if err := stats.ApplyValidationRecorded(dbc); err != nil {
		t.Fatalf("ApplyValidationRecorded: %v", err)
	}

	got, err := stats.Get(dbc)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TotalCorrelations != 2 || got.TotalValidations != 1 {
		t.Fatalf("totals: %+v", got)
	}
	if got.AverageConfidence < 0.69 || got.AverageConfidence > 0.71 {
		t.Fatalf("average confidence %v, want ~0.7", got.AverageConfidence)
	}
	if got.TypeBreakdown["one_to_many"] != 1 || got.TypeBreakdown["temporal"] != 1 {
		t.Fatalf("type breakdown: %v", got.TypeBreakdown)
	}

	if err := stats.ApplyCorrelationDeleted(dbc, domain.TypeTemporal, 0.6, 1); err != nil {
		t.Fatalf("ApplyCorrelationDeleted: %v", err)
	}
	got, err = stats.Get(dbc)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TotalCorrelations != 1 || got.TotalValidations != 0 {
		t.Fatalf("totals after delete: %+v", got)
	}
	if _, ok := got.TypeBreakdown["temporal"]; ok {
		t.Fatalf("temporal count should drop to zero and be omitted")
	}
}
