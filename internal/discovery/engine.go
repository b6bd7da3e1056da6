// Package discovery proposes scored correlations between dataset pairs. All
// scoring works from registry metadata and column profiles, never raw rows,
// so discovery cost tracks profile size rather than dataset record count.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/datalinker/correlation-backend/internal/data/repos"
	"github.com/datalinker/correlation-backend/internal/domain"
	"github.com/datalinker/correlation-backend/internal/events"
	"github.com/datalinker/correlation-backend/internal/pkg/dbctx"
	"github.com/datalinker/correlation-backend/internal/platform/apierr"
	"github.com/datalinker/correlation-backend/internal/platform/logger"
	"github.com/datalinker/correlation-backend/internal/registry"
)

type DiscoverRequest struct {
	SourceDatasetID uuid.UUID              `json:"source_dataset_id"`
	TargetDatasetID uuid.UUID              `json:"target_dataset_id"`
	Type            domain.CorrelationType `json:"type"`
	Parameters      json.RawMessage        `json:"parameters"`
	Method          domain.DiscoveryMethod `json:"discovery_method,omitempty"`
	ParentID        *uuid.UUID             `json:"parent_correlation_id,omitempty"`
}

type Engine struct {
	db           *gorm.DB
	log          *logger.Logger
	registry     registry.Registry
	correlations repos.CorrelationRepo
	stats        repos.StatRepo
	bus          events.Bus
}

func NewEngine(
	db *gorm.DB,
	baseLog *logger.Logger,
	reg registry.Registry,
	correlations repos.CorrelationRepo,
	stats repos.StatRepo,
	bus events.Bus,
) *Engine {
	return &Engine{
		db:           db,
		log:          baseLog.With("service", "DiscoveryEngine"),
		registry:     reg,
		correlations: correlations,
		stats:        stats,
		bus:          bus,
	}
}

// Discover scores a candidate correlation and persists it as proposed. The
// write is all-or-nothing: on any failure, including a deadline expiry, no
// partial correlation row is left behind.
func (e *Engine) Discover(dbc dbctx.Context, req DiscoverRequest) (*domain.Correlation, error) {
	if err := deadlineErr(dbc.Ctx); err != nil {
		return nil, err
	}

	if !req.Type.Valid() {
		return nil, apierr.InvalidInput("unknown_correlation_type", fmt.Errorf("correlation type %q", req.Type))
	}
	method := req.Method
	if method == "" {
		method = domain.MethodStatistical
	}
	if !method.Valid() {
		return nil, apierr.InvalidInput("unknown_discovery_method", fmt.Errorf("discovery method %q", method))
	}
	if req.SourceDatasetID == req.TargetDatasetID {
		return nil, apierr.InvalidInput("same_dataset", fmt.Errorf("dataset %s cannot correlate with itself", req.SourceDatasetID))
	}

	source, err := e.registry.GetDataset(dbc, req.SourceDatasetID)
	if err != nil {
		return nil, err
	}
	target, err := e.registry.GetDataset(dbc, req.TargetDatasetID)
	if err != nil {
		return nil, err
	}

	params, err := domain.ParseParams(req.Type, datatypes.JSON(req.Parameters))
	if err != nil {
		return nil, apierr.InvalidInput("invalid_parameters", err)
	}

	pair := &datasetPair{source: source, target: target}
	if pair.sourceFields, err = source.Fields(); err != nil {
		return nil, apierr.Dependency("registry_corrupt_metadata", err)
	}
	if pair.targetFields, err = target.Fields(); err != nil {
		return nil, apierr.Dependency("registry_corrupt_metadata", err)
	}

	confidence, err := e.score(dbc, pair, params)
	if err != nil {
		return nil, err
	}
	if err := deadlineErr(dbc.Ctx); err != nil {
		return nil, err
	}

	encoded, err := domain.EncodeParams(params)
	if err != nil {
		return nil, apierr.InvalidInput("invalid_parameters", err)
	}

	now := time.Now().UTC()
	row := &domain.Correlation{
		ID:                  uuid.New(),
		SourceDatasetID:     source.ID,
		TargetDatasetID:     target.ID,
		Type:                req.Type,
		Parameters:          encoded,
		Confidence:          confidence,
		ValidityScore:       0,
		Status:              domain.StatusProposed,
		ParentCorrelationID: req.ParentID,
		Version:             1,
		DiscoveryMethod:     method,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := row.Validate(); err != nil {
		return nil, apierr.InvalidInput("invalid_correlation", err)
	}

	err = e.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbc.WithTx(tx)
		if _, err := e.correlations.Create(txc, []*domain.Correlation{row}); err != nil {
			return err
		}
		return e.stats.ApplyCorrelationCreated(txc, row.Type, row.Confidence)
	})
	if err != nil {
		if ctxErr := deadlineErr(dbc.Ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apierr.Dependency("persist_correlation_failed", err)
	}

	e.publish(dbc.Ctx, domain.NewEvent(domain.EventCorrelationDiscovered, row))

	e.log.Info("correlation discovered",
		"correlation_id", row.ID,
		"type", row.Type,
		"confidence", row.Confidence,
	)
	return row, nil
}

type datasetPair struct {
	source       *domain.Dataset
	target       *domain.Dataset
	sourceFields []domain.FieldDef
	targetFields []domain.FieldDef
}

func (e *Engine) score(dbc dbctx.Context, pair *datasetPair, params domain.Params) (float64, error) {
	switch p := params.(type) {
	case *domain.CardinalityParams:
		return e.scoreCardinality(dbc, pair, p)
	case *domain.TemporalParams:
		return e.scoreTemporal(dbc, pair, p)
	case *domain.SpatialParams:
		return e.scoreSpatial(dbc, pair, p)
	case *domain.SemanticParams:
		return e.scoreSemantic(pair, p), nil
	case *domain.StatisticalParams:
		return e.scoreStatistical(dbc, pair, p)
	case *domain.StructuralParams:
		return e.scoreStructural(pair, p), nil
	case *domain.FunctionalParams:
		return e.scoreFunctional(dbc, pair, p)
	case *domain.CausalParams:
		return e.scoreCausal(dbc, pair, p)
	default:
		return 0, apierr.InvalidInput("invalid_parameters", fmt.Errorf("unsupported parameter variant %T", params))
	}
}

func (e *Engine) publish(ctx context.Context, ev domain.Event) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, ev); err != nil {
		e.log.Warn("event publish failed", "event", ev.Type, "correlation_id", ev.CorrelationID, "error", err)
	}
}

// deadlineErr distinguishes a deadline expiry from computation failures.
func deadlineErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return apierr.Timeout("deadline_exceeded", ctx.Err())
	default:
		return nil
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
