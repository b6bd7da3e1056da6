package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/datalinker/correlation-backend/internal/data/repos"
	"github.com/datalinker/correlation-backend/internal/discovery"
	"github.com/datalinker/correlation-backend/internal/domain"
	"github.com/datalinker/correlation-backend/internal/events"
	"github.com/datalinker/correlation-backend/internal/pkg/dbctx"
	"github.com/datalinker/correlation-backend/internal/platform/apierr"
	"github.com/datalinker/correlation-backend/internal/platform/logger"
	"github.com/datalinker/correlation-backend/internal/registry"
)

// batchMeasureConcurrency bounds how many correlations a batch measures at
// once.
const batchMeasureConcurrency = 4

type Pipeline struct {
	db           *gorm.DB
	log          *logger.Logger
	cfg          Config
	registry     registry.Registry
	correlations repos.CorrelationRepo
	validations  repos.ValidationRepo
	stats        repos.StatRepo
	bus          events.Bus

	// group collapses concurrent validations of the same correlation into
	// one run whose result every caller shares.
	group   singleflight.Group
	limiter *rate.Limiter
}

func NewPipeline(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg Config,
	reg registry.Registry,
	correlations repos.CorrelationRepo,
	validations repos.ValidationRepo,
	stats repos.StatRepo,
	bus events.Bus,
) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation config: %w", err)
	}
	return &Pipeline{
		db:           db,
		log:          baseLog.With("service", "ValidationPipeline"),
		cfg:          cfg,
		registry:     reg,
		correlations: correlations,
		validations:  validations,
		stats:        stats,
		bus:          bus,
		limiter:      cfg.limiter(),
	}, nil
}

// Validate runs one validation over the correlation and settles its status.
// Concurrent calls for the same correlation share a single run. When intake
// is saturated the call fails fast with a dependency error rather than
// queueing.
func (p *Pipeline) Validate(dbc dbctx.Context, id uuid.UUID) (*domain.Validation, error) {
	if err := deadlineErr(dbc.Ctx); err != nil {
		return nil, err
	}
	if p.limiter != nil && !p.limiter.Allow() {
		return nil, apierr.Dependency("validation_rate_limited", fmt.Errorf("validation intake saturated"))
	}

	v, err, _ := p.group.Do(id.String(), func() (interface{}, error) {
		m, err := p.measure(dbc, id)
		if err != nil {
			return nil, err
		}
		return p.settle(dbc, m, m.pValue)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Validation), nil
}

// BatchResult is one correlation's outcome within a batch validation.
type BatchResult struct {
	CorrelationID uuid.UUID          `json:"correlation_id"`
	Validation    *domain.Validation `json:"validation,omitempty"`
	Err           error              `json:"-"`
}

// ValidateBatch validates several correlations under a shared false-discovery
// budget: raw significance p-values are Benjamini-Hochberg adjusted across
// the batch before any status is settled. Per-correlation failures land in
// the result rather than aborting the batch.
func (p *Pipeline) ValidateBatch(dbc dbctx.Context, ids []uuid.UUID) ([]BatchResult, error) {
	if err := deadlineErr(dbc.Ctx); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []BatchResult{}, nil
	}
	ids = dedupe(ids)
	if p.limiter != nil && !p.limiter.AllowN(time.Now(), len(ids)) {
		return nil, apierr.Dependency("validation_rate_limited", fmt.Errorf("validation intake saturated"))
	}

	results := make([]BatchResult, len(ids))
	measurements := make([]*measurement, len(ids))

	g, gctx := errgroup.WithContext(dbc.Ctx)
	g.SetLimit(batchMeasureConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			m, err := p.measure(dbctx.New(gctx).WithTx(dbc.Tx), id)
			if err != nil {
				results[i] = BatchResult{CorrelationID: id, Err: err}
				return nil
			}
			measurements[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var raw []float64
	var idx []int
	for i, m := range measurements {
		if m != nil {
			raw = append(raw, m.pValue)
			idx = append(idx, i)
		}
	}
	adjusted := benjaminiHochberg(raw)

	for k, i := range idx {
		m := measurements[i]
		adj := adjusted[k]
		// Same singleflight key as Validate, so a singleton run racing the
		// batch settles this correlation exactly once.
		v, err, _ := p.group.Do(m.corr.ID.String(), func() (interface{}, error) {
			return p.settle(dbc, m, adj)
		})
		row, _ := v.(*domain.Validation)
		results[i] = BatchResult{CorrelationID: m.corr.ID, Validation: row, Err: err}
	}
	return results, nil
}

// measurement is everything a run derives before touching the database
// again: evidence, component scores, and the raw significance p-value.
type measurement struct {
	corr         *domain.Correlation
	sourceFields []domain.FieldDef
	targetFields []domain.FieldDef
	ev           *evidence

	pValue       float64
	semantic     float64
	structural   float64
	conservation float64
	accuracy     float64

	startedAt time.Time
}

func (p *Pipeline) measure(dbc dbctx.Context, id uuid.UUID) (*measurement, error) {
	start := time.Now()

	corr, err := p.correlations.GetByID(dbc, id)
	if err != nil {
		return nil, apierr.Dependency("load_correlation_failed", err)
	}
	if corr == nil {
		return nil, apierr.NotFound("correlation_not_found", fmt.Errorf("correlation %s", id))
	}

	source, err := p.registry.GetDataset(dbc, corr.SourceDatasetID)
	if err != nil {
		return nil, err
	}
	target, err := p.registry.GetDataset(dbc, corr.TargetDatasetID)
	if err != nil {
		return nil, err
	}

	params, err := domain.ParseParams(corr.Type, corr.Parameters)
	if err != nil {
		return nil, apierr.Dependency("corrupt_parameters", err)
	}

	m := &measurement{corr: corr, startedAt: start}
	if m.sourceFields, err = source.Fields(); err != nil {
		return nil, apierr.Dependency("registry_corrupt_metadata", err)
	}
	if m.targetFields, err = target.Fields(); err != nil {
		return nil, apierr.Dependency("registry_corrupt_metadata", err)
	}

	if m.ev, err = p.gatherEvidence(dbc, corr, source, target, params); err != nil {
		return nil, err
	}
	if err := deadlineErr(dbc.Ctx); err != nil {
		return nil, err
	}

	m.pValue = p.pValue(corr, m.ev)
	m.semantic = discovery.SchemaAlignment(m.sourceFields, m.targetFields, p.cfg.SemanticThreshold)
	m.structural = discovery.SchemaIsomorphism(m.sourceFields, m.targetFields, false)
	m.conservation = conservationError(m.ev)
	m.accuracy = p.testAccuracy(m.ev)
	return m, nil
}

// settle turns a measurement into a persisted validation and the
// correlation's new status. The validation row, the status flip, and the
// aggregate counters commit in one transaction.
func (p *Pipeline) settle(dbc dbctx.Context, m *measurement, pValue float64) (*domain.Validation, error) {
	statistical := clamp01(1 - pValue)
	validity := p.cfg.validity(statistical, m.semantic, m.structural, m.conservation)

	status := domain.StatusInvalidated
	if validity >= p.cfg.Threshold {
		status = domain.StatusValidated
	}
	if !domain.CanTransition(m.corr.Status, status) {
		return nil, apierr.Conflict("invalid_status_transition",
			fmt.Errorf("correlation %s: %s -> %s", m.corr.ID, m.corr.Status, status))
	}

	lower, upper := p.validityInterval(m, validity)
	counterExamples, err := json.Marshal(m.ev.counterExamples)
	if err != nil {
		return nil, apierr.Dependency("encode_counter_examples_failed", err)
	}

	now := time.Now().UTC()
	row := &domain.Validation{
		ID:            uuid.New(),
		CorrelationID: m.corr.ID,

		StatisticalScore:  statistical,
		SemanticScore:     m.semantic,
		StructuralScore:   m.structural,
		ConservationError: m.conservation,
		TestAccuracy:      m.accuracy,
		ValidityScore:     validity,

		ConfidenceLower: lower,
		ConfidenceUpper: upper,

		ValidationMethod: m.ev.method(),
		ValidationTimeMs: time.Since(m.startedAt).Milliseconds(),
		DataSize:         m.ev.dataSize,
		SampleSize:       m.ev.sampleSize,
		CounterExamples:  datatypes.JSON(counterExamples),
		ValidatedAt:      now,
	}
	if err := row.Validate(); err != nil {
		return nil, apierr.Dependency("invalid_validation_result", err)
	}

	err = p.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbc.WithTx(tx)
		if _, err := p.validations.Create(txc, []*domain.Validation{row}); err != nil {
			return err
		}
		affected, err := p.correlations.ApplyValidationOutcome(txc, m.corr.ID, status, validity, now)
		if err != nil {
			return err
		}
		if affected == 0 {
			return apierr.NotFound("correlation_not_found", fmt.Errorf("correlation %s vanished mid-validation", m.corr.ID))
		}
		return p.stats.ApplyValidationRecorded(txc)
	})
	if err != nil {
		if ctxErr := deadlineErr(dbc.Ctx); ctxErr != nil {
			return nil, ctxErr
		}
		if apierr.KindOf(err) != "" {
			return nil, err
		}
		return nil, apierr.Dependency("persist_validation_failed", err)
	}

	eventType := domain.EventCorrelationValidated
	if status == domain.StatusInvalidated {
		eventType = domain.EventCorrelationInvalidated
	}
	ev := domain.NewEvent(eventType, m.corr)
	ev.ValidityScore = validity
	p.publish(dbc.Ctx, ev)

	p.log.Info("correlation validation settled",
		"correlation_id", m.corr.ID,
		"status", status,
		"validity_score", validity,
		"method", row.ValidationMethod,
		"validation_time_ms", row.ValidationTimeMs,
	)
	return row, nil
}

// validityInterval maps the bootstrap interval of the evidence statistic
// onto the validity scale through the weights that statistic drives.
func (p *Pipeline) validityInterval(m *measurement, validity float64) (float64, float64) {
	values := m.ev.bootstrapValues()
	if len(values) == 0 {
		return validity, validity
	}

	statLo, statHi := bootstrapCI(values, p.cfg.BootstrapSamples, seedFrom(m.corr.ID)+1, 0.95)
	sensitivity := p.cfg.WeightStatistical
	if m.ev.kind == kindKeyOverlap {
		sensitivity += p.cfg.WeightConservation
	}
	half := sensitivity * (statHi - statLo) / 2

	lower, upper := clamp01(validity-half), clamp01(validity+half)
	if lower > upper {
		lower, upper = upper, lower
	}
	return lower, upper
}

func (p *Pipeline) publish(ctx context.Context, ev domain.Event) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(ctx, ev); err != nil {
		p.log.Warn("event publish failed", "event", ev.Type, "correlation_id", ev.CorrelationID, "error", err)
	}
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func deadlineErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return apierr.Timeout("deadline_exceeded", ctx.Err())
	default:
		return nil
	}
}
