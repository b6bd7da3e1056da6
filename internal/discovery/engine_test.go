package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

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

func makeDataset(tb testing.TB, name string, recordCount int64, fields []domain.FieldDef) *domain.Dataset {
	tb.Helper()
	schema, err := json.Marshal(fields)
	if err != nil {
		tb.Fatalf("marshal schema: %v", err)
	}
	return &domain.Dataset{
		ID:          uuid.New(),
		Name:        name,
		Type:        domain.DatasetStructured,
		Format:      "parquet",
		RecordCount: recordCount,
		Schema:      datatypes.JSON(schema),
	}
}

func makeKeyProfile(tb testing.TB, datasetID uuid.UUID, column string, distinct int64, nullFrac float64, samples []string) *domain.ColumnProfile {
	tb.Helper()
	raw, err := json.Marshal(samples)
	if err != nil {
		tb.Fatalf("marshal samples: %v", err)
	}
	return &domain.ColumnProfile{
		ID:            uuid.New(),
		DatasetID:     datasetID,
		Column:        column,
		DistinctCount: distinct,
		NullFraction:  nullFrac,
		SampleValues:  datatypes.JSON(raw),
	}
}

func makeSeriesProfile(tb testing.TB, datasetID uuid.UUID, column string, series []float64) *domain.ColumnProfile {
	tb.Helper()
	raw, err := json.Marshal(series)
	if err != nil {
		tb.Fatalf("marshal series: %v", err)
	}
	return &domain.ColumnProfile{
		ID:           uuid.New(),
		DatasetID:    datasetID,
		Column:       column,
		SeriesSample: datatypes.JSON(raw),
	}
}

// customerOrders seeds a registry with the classic lookup shape: a customers
// dataset whose customer_id is fully distinct, and an orders dataset whose
// customer_id samples almost all resolve back to a customer.
func customerOrders(tb testing.TB, reg *registry.InMemory) (*domain.Dataset, *domain.Dataset) {
	tb.Helper()
	customers := makeDataset(tb, "customers", 1000, []domain.FieldDef{
		{Name: "customer_id", Type: "string"},
		{Name: "customer_name", Type: "string"},
		{Name: "signup_date", Type: "timestamp"},
	})
	orders := makeDataset(tb, "orders", 15000, []domain.FieldDef{
		{Name: "order_id", Type: "string"},
		{Name: "customer_id", Type: "string"},
		{Name: "order_total", Type: "float"},
	})

	srcSamples := make([]string, 0, 50)
	tgtSamples := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		srcSamples = append(srcSamples, fmt.Sprintf("c%03d", i))
	}
	// two of the sampled order keys point at customers outside the sample
	for i := 0; i < 48; i++ {
		tgtSamples = append(tgtSamples, fmt.Sprintf("c%03d", i))
	}
	tgtSamples = append(tgtSamples, "c900", "c901")

	reg.PutDataset(customers)
	reg.PutDataset(orders)
	reg.PutColumnProfile(makeKeyProfile(tb, customers.ID, "customer_id", 1000, 0, srcSamples))
	reg.PutColumnProfile(makeKeyProfile(tb, orders.ID, "customer_id", 950, 0.02, tgtSamples))
	return customers, orders
}

func TestDiscoverRejectsSameDataset(t *testing.T) {
	reg := registry.NewInMemory()
	e := NewEngine(nil, logger.NewNop(), reg, nil, nil, nil)
	id := uuid.New()

	for _, typ := range domain.CorrelationTypes() {
		_, err := e.Discover(dbctx.New(context.Background()), DiscoverRequest{
			SourceDatasetID: id,
			TargetDatasetID: id,
			Type:            typ,
		})
		if apierr.KindOf(err) != apierr.KindInvalidInput {
			t.Fatalf("type %s: expected invalid input, got %v", typ, err)
		}
		if apierr.CodeOf(err) != "same_dataset" {
			t.Fatalf("type %s: expected same_dataset code, got %q", typ, apierr.CodeOf(err))
		}
	}
}

func TestDiscoverUnknownTypeAndMethod(t *testing.T) {
	e := NewEngine(nil, logger.NewNop(), registry.NewInMemory(), nil, nil, nil)
	dbc := dbctx.New(context.Background())

	_, err := e.Discover(dbc, DiscoverRequest{
		SourceDatasetID: uuid.New(),
		TargetDatasetID: uuid.New(),
		Type:            "sideways",
	})
	if apierr.CodeOf(err) != "unknown_correlation_type" {
		t.Fatalf("expected unknown_correlation_type, got %v", err)
	}

	_, err = e.Discover(dbc, DiscoverRequest{
		SourceDatasetID: uuid.New(),
		TargetDatasetID: uuid.New(),
		Type:            domain.TypeOneToOne,
		Method:          "oracle",
	})
	if apierr.CodeOf(err) != "unknown_discovery_method" {
		t.Fatalf("expected unknown_discovery_method, got %v", err)
	}
}

func TestDiscoverUnknownDataset(t *testing.T) {
	reg := registry.NewInMemory()
	known := makeDataset(t, "known", 10, nil)
	reg.PutDataset(known)

	e := NewEngine(nil, logger.NewNop(), reg, nil, nil, nil)
	_, err := e.Discover(dbctx.New(context.Background()), DiscoverRequest{
		SourceDatasetID: known.ID,
		TargetDatasetID: uuid.New(),
		Type:            domain.TypeOneToOne,
		Parameters:      json.RawMessage(`{"keyColumn":"id"}`),
	})
	if apierr.KindOf(err) != apierr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDiscoverMissingParameters(t *testing.T) {
	reg := registry.NewInMemory()
	src := makeDataset(t, "src", 10, nil)
	tgt := makeDataset(t, "tgt", 10, nil)
	reg.PutDataset(src)
	reg.PutDataset(tgt)
	e := NewEngine(nil, logger.NewNop(), reg, nil, nil, nil)
	dbc := dbctx.New(context.Background())

	cases := []struct {
		typ     domain.CorrelationType
		params  string
		missing string
	}{
		{domain.TypeOneToMany, `{}`, "keyColumn"},
		{domain.TypeTemporal, `{"aggregation":"sum"}`, "lagDays"},
		{domain.TypeTemporal, `{"lagDays":3}`, "aggregation"},
		{domain.TypeSpatial, `{"distance":100}`, "spatialWeight"},
		{domain.TypeSpatial, `{"spatialWeight":0.5}`, "distance"},
		{domain.TypeSemantic, `{}`, "threshold"},
	}
	for _, tc := range cases {
		_, err := e.Discover(dbc, DiscoverRequest{
			SourceDatasetID: src.ID,
			TargetDatasetID: tgt.ID,
			Type:            tc.typ,
			Parameters:      json.RawMessage(tc.params),
		})
		if apierr.CodeOf(err) != "invalid_parameters" {
			t.Fatalf("%s with %s: expected invalid_parameters, got %v", tc.typ, tc.params, err)
		}
		if !strings.Contains(err.Error(), tc.missing) {
			t.Fatalf("%s error should name %q, got %q", tc.typ, tc.missing, err.Error())
		}
	}
}

func TestDiscoverDeadlineExpired(t *testing.T) {
	e := NewEngine(nil, logger.NewNop(), registry.NewInMemory(), nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Discover(dbctx.New(ctx), DiscoverRequest{
		SourceDatasetID: uuid.New(),
		TargetDatasetID: uuid.New(),
		Type:            domain.TypeOneToOne,
	})
	if apierr.KindOf(err) != apierr.KindTimeout {
		t.Fatalf("expected timeout kind, got %v", err)
	}
}

func TestScoreOneToManyCustomersOrders(t *testing.T) {
	reg := registry.NewInMemory()
	customers, orders := customerOrders(t, reg)
	e := NewEngine(nil, logger.NewNop(), reg, nil, nil, nil)
	dbc := dbctx.New(context.Background())

	params, err := domain.ParseParams(domain.TypeOneToMany, datatypes.JSON(`{"keyColumn":"customer_id","joinType":"left"}`))
	if err != nil {
		t.Fatalf("parse params: %v", err)
	}
	pair := &datasetPair{source: customers, target: orders}
	if pair.sourceFields, err = customers.Fields(); err != nil {
		t.Fatalf("customer fields: %v", err)
	}
	if pair.targetFields, err = orders.Fields(); err != nil {
		t.Fatalf("order fields: %v", err)
	}

	confidence, err := e.score(dbc, pair, params)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if confidence <= 0.7 {
		t.Fatalf("expected confidence above 0.7 for clean key join, got %v", confidence)
	}
	if confidence > 1 {
		t.Fatalf("confidence out of range: %v", confidence)
	}
}

func TestScoreCardinalityWithoutProfiles(t *testing.T) {
	reg := registry.NewInMemory()
	src := makeDataset(t, "src", 10, nil)
	tgt := makeDataset(t, "tgt", 10, nil)
	reg.PutDataset(src)
	reg.PutDataset(tgt)
	e := NewEngine(nil, logger.NewNop(), reg, nil, nil, nil)

	params, err := domain.ParseParams(domain.TypeManyToMany, datatypes.JSON(`{"keyColumn":"id"}`))
	if err != nil {
		t.Fatalf("parse params: %v", err)
	}
	confidence, err := e.score(dbctx.New(context.Background()), &datasetPair{source: src, target: tgt}, params)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if confidence != fallbackConfidence {
		t.Fatalf("expected fallback confidence %v, got %v", fallbackConfidence, confidence)
	}
}

func TestDiscoverPersistsProposedCorrelation(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)

	reg := registry.NewInMemory()
	customers, orders := customerOrders(t, reg)

	bus := events.NewMemoryBus()
	e := NewEngine(tx, log, reg, repos.NewCorrelationRepo(tx, log), repos.NewStatRepo(tx, log), bus)

	row, err := e.Discover(dbctx.New(context.Background()), DiscoverRequest{
		SourceDatasetID: customers.ID,
		TargetDatasetID: orders.ID,
		Type:            domain.TypeOneToMany,
		Parameters:      json.RawMessage(`{"keyColumn":"customer_id","joinType":"left"}`),
	})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if row.Status != domain.StatusProposed {
		t.Fatalf("expected proposed status, got %s", row.Status)
	}
	if row.Version != 1 {
		t.Fatalf("expected version 1, got %d", row.Version)
	}
	if row.Confidence <= 0.7 {
		t.Fatalf("expected confidence above 0.7, got %v", row.Confidence)
	}
	if row.ValidityScore != 0 {
		t.Fatalf("proposed correlation must carry zero validity score, got %v", row.ValidityScore)
	}

	crepo := repos.NewCorrelationRepo(tx, log)
	got, err := crepo.GetByID(dbctx.New(context.Background()), row.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got == nil {
		t.Fatalf("discovered correlation not persisted")
	}

	published := bus.Published()
	if len(published) != 1 || published[0].Type != domain.EventCorrelationDiscovered {
		t.Fatalf("expected one discovered event, got %+v", published)
	}
}
