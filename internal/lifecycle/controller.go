// Package lifecycle owns every mutation of an existing correlation: tagging,
// parameter edits, and deletion. Structural edits bump the version; status
// and validity are written only by the validation pipeline.
package lifecycle

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
)

type Controller struct {
	db           *gorm.DB
	log          *logger.Logger
	correlations repos.CorrelationRepo
	validations  repos.ValidationRepo
	stats        repos.StatRepo
	bus          events.Bus
}

func NewController(
	db *gorm.DB,
	baseLog *logger.Logger,
	correlations repos.CorrelationRepo,
	validations repos.ValidationRepo,
	stats repos.StatRepo,
	bus events.Bus,
) *Controller {
	return &Controller{
		db:           db,
		log:          baseLog.With("service", "LifecycleController"),
		correlations: correlations,
		validations:  validations,
		stats:        stats,
		bus:          bus,
	}
}

func (c *Controller) Get(dbc dbctx.Context, id uuid.UUID) (*domain.Correlation, error) {
	row, err := c.correlations.GetByID(dbc, id)
	if err != nil {
		return nil, apierr.Dependency("load_correlation_failed", err)
	}
	if row == nil {
		return nil, apierr.NotFound("correlation_not_found", fmt.Errorf("correlation %s", id))
	}
	return row, nil
}

// History returns the correlation's validation runs, newest first.
func (c *Controller) History(dbc dbctx.Context, id uuid.UUID) ([]*domain.Validation, error) {
	if _, err := c.Get(dbc, id); err != nil {
		return nil, err
	}
	rows, err := c.validations.GetByCorrelationID(dbc, id)
	if err != nil {
		return nil, apierr.Dependency("load_validations_failed", err)
	}
	return rows, nil
}

// AddTags unions the given tags into the correlation's tag set. Adding tags
// that are already present changes nothing and does not bump the version.
func (c *Controller) AddTags(dbc dbctx.Context, id uuid.UUID, tags []string) (*domain.Correlation, error) {
	return c.retag(dbc, id, func(current []string) []string {
		return append(current, tags...)
	})
}

// RemoveTags drops the given tags from the set. Removing absent tags changes
// nothing and does not bump the version.
func (c *Controller) RemoveTags(dbc dbctx.Context, id uuid.UUID, tags []string) (*domain.Correlation, error) {
	drop := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		drop[t] = struct{}{}
	}
	return c.retag(dbc, id, func(current []string) []string {
		kept := make([]string, 0, len(current))
		for _, t := range current {
			if _, ok := drop[t]; !ok {
				kept = append(kept, t)
			}
		}
		return kept
	})
}

func (c *Controller) retag(dbc dbctx.Context, id uuid.UUID, apply func(current []string) []string) (*domain.Correlation, error) {
	row, err := c.Get(dbc, id)
	if err != nil {
		return nil, err
	}

	before := row.TagSet()
	encoded, err := domain.EncodeTags(apply(before))
	if err != nil {
		return nil, apierr.InvalidInput("invalid_tags", err)
	}

	row.Tags = encoded
	after := row.TagSet()
	if equalTags(before, after) {
		return row, nil
	}

	row.Version++
	row.UpdatedAt = time.Now().UTC()
	if err := c.correlations.Save(dbc, row); err != nil {
		return nil, apierr.Dependency("persist_correlation_failed", err)
	}

	c.log.Info("correlation retagged", "correlation_id", row.ID, "version", row.Version, "tags", after)
	return row, nil
}

// UpdateParameters replaces the correlation's parameters after validating
// them against its type, and bumps the version.
func (c *Controller) UpdateParameters(dbc dbctx.Context, id uuid.UUID, raw json.RawMessage) (*domain.Correlation, error) {
	row, err := c.Get(dbc, id)
	if err != nil {
		return nil, err
	}

	params, err := domain.ParseParams(row.Type, datatypes.JSON(raw))
	if err != nil {
		return nil, apierr.InvalidInput("invalid_parameters", err)
	}
	encoded, err := domain.EncodeParams(params)
	if err != nil {
		return nil, apierr.InvalidInput("invalid_parameters", err)
	}

	row.Parameters = encoded
	row.Version++
	row.UpdatedAt = time.Now().UTC()
	if err := c.correlations.Save(dbc, row); err != nil {
		return nil, apierr.Dependency("persist_correlation_failed", err)
	}

	c.log.Info("correlation parameters updated", "correlation_id", row.ID, "version", row.Version)
	return row, nil
}

// Delete hard-deletes the correlation and its validation history in one
// transaction, keeping the aggregate counters consistent with the removal.
func (c *Controller) Delete(dbc dbctx.Context, id uuid.UUID) error {
	row, err := c.Get(dbc, id)
	if err != nil {
		return err
	}

	err = c.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbc.WithTx(tx)
		removed, err := c.validations.DeleteByCorrelationIDs(txc, []uuid.UUID{id})
		if err != nil {
			return err
		}
		affected, err := c.correlations.DeleteByIDs(txc, []uuid.UUID{id})
		if err != nil {
			return err
		}
		if affected == 0 {
			return apierr.NotFound("correlation_not_found", fmt.Errorf("correlation %s vanished mid-delete", id))
		}
		return c.stats.ApplyCorrelationDeleted(txc, row.Type, row.Confidence, removed)
	})
	if err != nil {
		if apierr.KindOf(err) != "" {
			return err
		}
		return apierr.Dependency("delete_correlation_failed", err)
	}

	c.publish(dbc.Ctx, domain.NewEvent(domain.EventCorrelationDeleted, row))

	c.log.Info("correlation deleted", "correlation_id", row.ID, "type", row.Type)
	return nil
}

func (c *Controller) publish(ctx context.Context, ev domain.Event) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(ctx, ev); err != nil {
		c.log.Warn("event publish failed", "event", ev.Type, "correlation_id", ev.CorrelationID, "error", err)
	}
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
