package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/datalinker/correlation-backend/internal/data/repos"
	"github.com/datalinker/correlation-backend/internal/data/repos/testutil"
	"github.com/datalinker/correlation-backend/internal/domain"
	"github.com/datalinker/correlation-backend/internal/events"
	"github.com/datalinker/correlation-backend/internal/pkg/dbctx"
	"github.com/datalinker/correlation-backend/internal/platform/apierr"
	"github.com/datalinker/correlation-backend/internal/platform/logger"
	"github.com/datalinker/correlation-backend/internal/registry"
)

// fakeCorrelations serves GetByID from a map; the pipeline's measurement
// phase needs nothing else from the repo.
type fakeCorrelations struct {
	repos.CorrelationRepo
	rows map[uuid.UUID]*domain.Correlation
}

func (f *fakeCorrelations) GetByID(_ dbctx.Context, id uuid.UUID) (*domain.Correlation, error) {
	return f.rows[id], nil
}

func newTestPipeline(tb testing.TB, cfg Config, reg registry.Registry, correlations repos.CorrelationRepo) *Pipeline {
	tb.Helper()
	p, err := NewPipeline(nil, logger.NewNop(), cfg, reg, correlations, nil, nil, nil)
	if err != nil {
		tb.Fatalf("new pipeline: %v", err)
	}
	return p
}

func jsonColumn(tb testing.TB, v interface{}) datatypes.JSON {
	tb.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		tb.Fatalf("marshal: %v", err)
	}
	return datatypes.JSON(raw)
}

func seedDatasetMeta(tb testing.TB, reg *registry.InMemory, name string, recordCount int64, fields []domain.FieldDef) *domain.Dataset {
	tb.Helper()
	d := &domain.Dataset{
		ID:          uuid.New(),
		Name:        name,
		Type:        domain.DatasetStructured,
		RecordCount: recordCount,
		Schema:      jsonColumn(tb, fields),
	}
	reg.PutDataset(d)
	return d
}

// lookupFixture seeds an aligned customers/orders pair: shared customer_id
// and region columns, a near-total key overlap with one stray order key, and
// a clean match tail.
func lookupFixture(tb testing.TB, reg *registry.InMemory) (*domain.Dataset, *domain.Dataset, *domain.Correlation) {
	tb.Helper()
	customers := seedDatasetMeta(tb, reg, "customers", 1000, []domain.FieldDef{
		{Name: "customer_id", Type: "string"},
		{Name: "region", Type: "string"},
		{Name: "signup_date", Type: "timestamp"},
	})
	orders := seedDatasetMeta(tb, reg, "orders", 15000, []domain.FieldDef{
		{Name: "customer_id", Type: "string"},
		{Name: "region", Type: "string"},
		{Name: "order_total", Type: "float"},
	})

	srcSamples := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		srcSamples = append(srcSamples, fmt.Sprintf("c%03d", i))
	}
	// one stray source key near the front, so the holdout tail stays clean
	tgtSamples := make([]string, 0, 50)
	for i := 1; i < 50; i++ {
		tgtSamples = append(tgtSamples, fmt.Sprintf("c%03d", i))
	}
	tgtSamples = append(tgtSamples, "c900")

	reg.PutColumnProfile(&domain.ColumnProfile{
		ID: uuid.New(), DatasetID: customers.ID, Column: "customer_id",
		DistinctCount: 1000, SampleValues: jsonColumn(tb, srcSamples),
	})
	reg.PutColumnProfile(&domain.ColumnProfile{
		ID: uuid.New(), DatasetID: orders.ID, Column: "customer_id",
		DistinctCount: 950, SampleValues: jsonColumn(tb, tgtSamples),
	})

	corr := &domain.Correlation{
		ID:              uuid.New(),
		SourceDatasetID: customers.ID,
		TargetDatasetID: orders.ID,
		Type:            domain.TypeOneToMany,
		Parameters:      datatypes.JSON(`{"keyColumn":"customer_id","joinType":"left"}`),
		Confidence:      0.9,
		Status:          domain.StatusProposed,
		Version:         1,
		DiscoveryMethod: domain.MethodStatistical,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	return customers, orders, corr
}

func TestMeasureCleanLookupCorrelation(t *testing.T) {
	reg := registry.NewInMemory()
	_, _, corr := lookupFixture(t, reg)
	p := newTestPipeline(t, DefaultConfig(), reg, &fakeCorrelations{rows: map[uuid.UUID]*domain.Correlation{corr.ID: corr}})

	m, err := p.measure(dbctx.New(context.Background()), corr.ID)
	if err != nil {
		t.Fatalf("measure: %v", err)
	}

	if m.conservation >= 0.05 {
		t.Fatalf("near-total key coverage should conserve mass, got error %v", m.conservation)
	}
	if m.accuracy <= 0.8 {
		t.Fatalf("clean holdout tail should test accurately, got %v", m.accuracy)
	}
	if m.pValue > 0.05 {
		t.Fatalf("near-total overlap against a chance null should be significant, p=%v", m.pValue)
	}

	validity := p.cfg.validity(1-m.pValue, m.semantic, m.structural, m.conservation)
	if validity < p.cfg.Threshold {
		t.Fatalf("clean lookup should clear the validity threshold, got %v", validity)
	}

	if m.ev.sampleSize != 50 {
		t.Fatalf("expected 50 sampled keys, got %d", m.ev.sampleSize)
	}
	if len(m.ev.counterExamples) != 1 || m.ev.counterExamples[0] != "c000" {
		t.Fatalf("expected the stray key as counterexample, got %v", m.ev.counterExamples)
	}
}

func TestMeasureWeakCorrelation(t *testing.T) {
	reg := registry.NewInMemory()
	src := seedDatasetMeta(t, reg, "left", 100, []domain.FieldDef{{Name: "alpha", Type: "string"}})
	tgt := seedDatasetMeta(t, reg, "right", 100, []domain.FieldDef{{Name: "omega", Type: "int"}})

	reg.PutColumnProfile(&domain.ColumnProfile{
		ID: uuid.New(), DatasetID: src.ID, Column: "alpha",
		DistinctCount: 100, SampleValues: jsonColumn(t, []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}),
	})
	reg.PutColumnProfile(&domain.ColumnProfile{
		ID: uuid.New(), DatasetID: tgt.ID, Column: "alpha",
		DistinctCount: 100, SampleValues: jsonColumn(t, []string{"a", "z1", "z2", "z3", "z4", "z5", "z6", "z7", "z8", "z9"}),
	})

	corr := &domain.Correlation{
		ID:              uuid.New(),
		SourceDatasetID: src.ID,
		TargetDatasetID: tgt.ID,
		Type:            domain.TypeManyToMany,
		Parameters:      datatypes.JSON(`{"keyColumn":"alpha"}`),
		Confidence:      0.4,
		Status:          domain.StatusProposed,
		Version:         1,
		DiscoveryMethod: domain.MethodStatistical,
	}
	p := newTestPipeline(t, DefaultConfig(), reg, &fakeCorrelations{rows: map[uuid.UUID]*domain.Correlation{corr.ID: corr}})

	m, err := p.measure(dbctx.New(context.Background()), corr.ID)
	if err != nil {
		t.Fatalf("measure: %v", err)
	}
	validity := p.cfg.validity(1-m.pValue, m.semantic, m.structural, m.conservation)
	if validity >= p.cfg.Threshold {
		t.Fatalf("one-in-ten overlap over disjoint schemas should not validate, got %v", validity)
	}
}

func TestValidateUnknownCorrelation(t *testing.T) {
	p := newTestPipeline(t, DefaultConfig(), registry.NewInMemory(), &fakeCorrelations{rows: map[uuid.UUID]*domain.Correlation{}})
	_, err := p.Validate(dbctx.New(context.Background()), uuid.New())
	if apierr.KindOf(err) != apierr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestValidateExpiredDeadline(t *testing.T) {
	p := newTestPipeline(t, DefaultConfig(), registry.NewInMemory(), &fakeCorrelations{rows: map[uuid.UUID]*domain.Correlation{}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Validate(dbctx.New(ctx), uuid.New())
	if apierr.KindOf(err) != apierr.KindTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestValidateRateLimitFailsFast(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ValidationsPerSecond = 0.001
	cfg.Burst = 1
	p := newTestPipeline(t, cfg, registry.NewInMemory(), &fakeCorrelations{rows: map[uuid.UUID]*domain.Correlation{}})
	dbc := dbctx.New(context.Background())

	// first call consumes the only token; its not-found outcome is beside
	// the point
	_, _ = p.Validate(dbc, uuid.New())

	_, err := p.Validate(dbc, uuid.New())
	if apierr.CodeOf(err) != "validation_rate_limited" {
		t.Fatalf("expected rate-limit rejection, got %v", err)
	}
	if apierr.KindOf(err) != apierr.KindDependency {
		t.Fatalf("rate limiting should surface as a dependency kind, got %v", apierr.KindOf(err))
	}
}

func TestValidityIntervalContainsScore(t *testing.T) {
	reg := registry.NewInMemory()
	_, _, corr := lookupFixture(t, reg)
	p := newTestPipeline(t, DefaultConfig(), reg, &fakeCorrelations{rows: map[uuid.UUID]*domain.Correlation{corr.ID: corr}})

	m, err := p.measure(dbctx.New(context.Background()), corr.ID)
	if err != nil {
		t.Fatalf("measure: %v", err)
	}
	validity := p.cfg.validity(1-m.pValue, m.semantic, m.structural, m.conservation)
	lower, upper := p.validityInterval(m, validity)

	if lower > validity || validity > upper {
		t.Fatalf("validity %v must fall inside [%v, %v]", validity, lower, upper)
	}
	if lower < 0 || upper > 1 {
		t.Fatalf("interval out of range: [%v, %v]", lower, upper)
	}
}

func TestValidateSettlesStatus(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	ctx := context.Background()

	reg := registry.NewInMemory()
	_, _, corr := lookupFixture(t, reg)
	if err := tx.WithContext(ctx).Create(corr).Error; err != nil {
		t.Fatalf("seed correlation: %v", err)
	}

	bus := events.NewMemoryBus()
	p, err := NewPipeline(tx, log, DefaultConfig(), reg,
		repos.NewCorrelationRepo(tx, log),
		repos.NewValidationRepo(tx, log),
		repos.NewStatRepo(tx, log),
		bus,
	)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	row, err := p.Validate(dbctx.New(ctx), corr.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if row.ValidityScore < 0.70 {
		t.Fatalf("clean lookup should validate, got %v", row.ValidityScore)
	}
	if row.ConfidenceLower > row.ValidityScore || row.ValidityScore > row.ConfidenceUpper {
		t.Fatalf("validity outside its own interval: %v not in [%v, %v]", row.ValidityScore, row.ConfidenceLower, row.ConfidenceUpper)
	}

	got, err := repos.NewCorrelationRepo(tx, log).GetByID(dbctx.New(ctx), corr.ID)
	if err != nil || got == nil {
		t.Fatalf("reload correlation: %v", err)
	}
	if got.Status != domain.StatusValidated {
		t.Fatalf("expected validated status, got %s", got.Status)
	}
	if got.Version != 1 {
		t.Fatalf("validation must not bump the version, got %d", got.Version)
	}
	if got.LastValidated == nil {
		t.Fatalf("last_validated should be stamped")
	}

	published := bus.Published()
	if len(published) != 1 || published[0].Type != domain.EventCorrelationValidated {
		t.Fatalf("expected one validated event, got %+v", published)
	}
}

func TestConcurrentValidatesShareOneRun(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	ctx := context.Background()

	reg := registry.NewInMemory()
	_, _, corr := lookupFixture(t, reg)
	if err := tx.WithContext(ctx).Create(corr).Error; err != nil {
		t.Fatalf("seed correlation: %v", err)
	}

	p, err := NewPipeline(tx, log, DefaultConfig(), reg,
		repos.NewCorrelationRepo(tx, log),
		repos.NewValidationRepo(tx, log),
		repos.NewStatRepo(tx, log),
		events.NewMemoryBus(),
	)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	const callers = 4
	rows := make([]*domain.Validation, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows[i], errs[i] = p.Validate(dbctx.New(ctx), corr.ID)
		}()
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if rows[i].ID != rows[0].ID {
			t.Fatalf("concurrent callers should share one validation run, got %s and %s", rows[0].ID, rows[i].ID)
		}
	}
}

func TestValidateBatchAdjustsSignificance(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	ctx := context.Background()

	reg := registry.NewInMemory()
	_, _, corr := lookupFixture(t, reg)
	if err := tx.WithContext(ctx).Create(corr).Error; err != nil {
		t.Fatalf("seed correlation: %v", err)
	}

	p, err := NewPipeline(tx, log, DefaultConfig(), reg,
		repos.NewCorrelationRepo(tx, log),
		repos.NewValidationRepo(tx, log),
		repos.NewStatRepo(tx, log),
		events.NewMemoryBus(),
	)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	missing := uuid.New()
	results, err := p.ValidateBatch(dbctx.New(ctx), []uuid.UUID{corr.ID, missing, corr.ID})
	if err != nil {
		t.Fatalf("validate batch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("duplicates should collapse, expected 2 results, got %d", len(results))
	}
	if results[0].Err != nil || results[0].Validation == nil {
		t.Fatalf("seeded correlation should settle, got %v", results[0].Err)
	}
	if apierr.KindOf(results[1].Err) != apierr.KindNotFound {
		t.Fatalf("missing correlation should fail with not found, got %v", results[1].Err)
	}
}

func TestBatchSettleJoinsInFlightRun(t *testing.T) {
	reg := registry.NewInMemory()
	_, _, corr := lookupFixture(t, reg)
	p := newTestPipeline(t, DefaultConfig(), reg, &fakeCorrelations{rows: map[uuid.UUID]*domain.Correlation{corr.ID: corr}})

	sentinel := &domain.Validation{ID: uuid.New(), CorrelationID: corr.ID}
	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _, _ = p.group.Do(corr.ID.String(), func() (interface{}, error) {
			close(entered)
			<-release
			return sentinel, nil
		})
	}()
	<-entered

	done := make(chan []BatchResult, 1)
	go func() {
		results, err := p.ValidateBatch(dbctx.New(context.Background()), []uuid.UUID{corr.ID})
		if err != nil {
			t.Errorf("batch: %v", err)
		}
		done <- results
	}()

	time.Sleep(100 * time.Millisecond)
	close(release)

	results := <-done
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	if results[0].Err != nil {
		t.Fatalf("batch entry failed: %v", results[0].Err)
	}
	if results[0].Validation != sentinel {
		t.Fatal("batch settle must share the in-flight run for the same correlation")
	}
}
