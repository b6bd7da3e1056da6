// Package query is the read-only surface over correlations: filtered stable
// listings and the O(1) aggregate statistics.
package query

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/datalinker/correlation-backend/internal/data/repos"
	"github.com/datalinker/correlation-backend/internal/domain"
	"github.com/datalinker/correlation-backend/internal/pkg/dbctx"
	"github.com/datalinker/correlation-backend/internal/platform/apierr"
	"github.com/datalinker/correlation-backend/internal/platform/logger"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

type Service struct {
	log          *logger.Logger
	correlations repos.CorrelationRepo
	stats        repos.StatRepo
}

func NewService(baseLog *logger.Logger, correlations repos.CorrelationRepo, stats repos.StatRepo) *Service {
	return &Service{
		log:          baseLog.With("service", "QueryService"),
		correlations: correlations,
		stats:        stats,
	}
}

type ListRequest struct {
	SourceDatasetID *uuid.UUID              `json:"source_dataset_id,omitempty"`
	TargetDatasetID *uuid.UUID              `json:"target_dataset_id,omitempty"`
	Type            *domain.CorrelationType `json:"type,omitempty"`
	MinConfidence   *float64                `json:"min_confidence,omitempty"`
	Tag             string                  `json:"tag,omitempty"`
	Limit           int                     `json:"limit,omitempty"`
	Offset          int                     `json:"offset,omitempty"`
}

type ListResult struct {
	Items  []*domain.Correlation `json:"items"`
	Total  int64                 `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// List returns one stable page of correlations matching the filter. Ordering
// is fixed so pages never overlap or skip under an unchanged dataset.
func (s *Service) List(dbc dbctx.Context, req ListRequest) (*ListResult, error) {
	limit, offset, err := normalizePage(req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	if req.Type != nil && !req.Type.Valid() {
		return nil, apierr.InvalidInput("invalid_filter", fmt.Errorf("unknown correlation type %q", *req.Type))
	}
	if req.MinConfidence != nil {
		if err := domain.CheckScore("min_confidence", *req.MinConfidence); err != nil {
			return nil, apierr.InvalidInput("invalid_filter", err)
		}
	}

	items, total, err := s.correlations.List(dbc, repos.ListFilter{
		SourceDatasetID: req.SourceDatasetID,
		TargetDatasetID: req.TargetDatasetID,
		Type:            req.Type,
		MinConfidence:   req.MinConfidence,
		Tag:             req.Tag,
	}, limit, offset)
	if err != nil {
		return nil, apierr.Dependency("list_correlations_failed", err)
	}

	return &ListResult{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// Statistics reads the incrementally maintained aggregates. Cost does not
// depend on how many correlations exist.
func (s *Service) Statistics(dbc dbctx.Context) (*domain.CorrelationStats, error) {
	stats, err := s.stats.Get(dbc)
	if err != nil {
		return nil, apierr.Dependency("load_statistics_failed", err)
	}
	return stats, nil
}

func normalizePage(limit, offset int) (int, int, error) {
	if limit < 0 {
		return 0, 0, apierr.InvalidInput("invalid_filter", fmt.Errorf("limit must be non-negative, got %d", limit))
	}
	if offset < 0 {
		return 0, 0, apierr.InvalidInput("invalid_filter", fmt.Errorf("offset must be non-negative, got %d", offset))
	}
	if limit == 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, offset, nil
}
