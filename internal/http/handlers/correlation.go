package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/datalinker/correlation-backend/internal/discovery"
	"github.com/datalinker/correlation-backend/internal/domain"
	"github.com/datalinker/correlation-backend/internal/http/response"
	"github.com/datalinker/correlation-backend/internal/lifecycle"
	"github.com/datalinker/correlation-backend/internal/pkg/dbctx"
	"github.com/datalinker/correlation-backend/internal/platform/apierr"
	"github.com/datalinker/correlation-backend/internal/query"
	"github.com/datalinker/correlation-backend/internal/validation"
)

type CorrelationHandler struct {
	engine    *discovery.Engine
	pipeline  *validation.Pipeline
	lifecycle *lifecycle.Controller
	queries   *query.Service
}

func NewCorrelationHandler(
	engine *discovery.Engine,
	pipeline *validation.Pipeline,
	lc *lifecycle.Controller,
	queries *query.Service,
) *CorrelationHandler {
	return &CorrelationHandler{engine: engine, pipeline: pipeline, lifecycle: lc, queries: queries}
}

// POST /api/correlations/discover
func (h *CorrelationHandler) Discover(c *gin.Context) {
	var req discovery.DiscoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	row, err := h.engine.Discover(dbctx.New(c.Request.Context()), req)
	if err != nil {
		response.RespondTypedError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"correlation": row})
}

// POST /api/correlations/:id/validate
func (h *CorrelationHandler) Validate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_correlation_id", err)
		return
	}
	row, err := h.pipeline.Validate(dbctx.New(c.Request.Context()), id)
	if err != nil {
		response.RespondTypedError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"validation": row})
}

type validateBatchRequest struct {
	CorrelationIDs []uuid.UUID `json:"correlation_ids"`
}

type batchEntry struct {
	CorrelationID uuid.UUID          `json:"correlation_id"`
	Validation    *domain.Validation `json:"validation,omitempty"`
	Error         *response.APIError `json:"error,omitempty"`
}

// POST /api/correlations/validate-batch
func (h *CorrelationHandler) ValidateBatch(c *gin.Context) {
	var req validateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	results, err := h.pipeline.ValidateBatch(dbctx.New(c.Request.Context()), req.CorrelationIDs)
	if err != nil {
		response.RespondTypedError(c, err)
		return
	}

	entries := make([]batchEntry, 0, len(results))
	for _, r := range results {
		e := batchEntry{CorrelationID: r.CorrelationID, Validation: r.Validation}
		if r.Err != nil {
			e.Error = &response.APIError{Message: r.Err.Error(), Code: apiCode(r.Err)}
		}
		entries = append(entries, e)
	}
	response.RespondOK(c, gin.H{"results": entries})
}

// GET /api/correlations/:id
func (h *CorrelationHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_correlation_id", err)
		return
	}
	row, err := h.lifecycle.Get(dbctx.New(c.Request.Context()), id)
	if err != nil {
		response.RespondTypedError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"correlation": row})
}

// GET /api/correlations/:id/validations
func (h *CorrelationHandler) History(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_correlation_id", err)
		return
	}
	rows, err := h.lifecycle.History(dbctx.New(c.Request.Context()), id)
	if err != nil {
		response.RespondTypedError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"validations": rows})
}

// GET /api/correlations
func (h *CorrelationHandler) List(c *gin.Context) {
	req, err := parseListRequest(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_filter", err)
		return
	}
	res, err := h.queries.List(dbctx.New(c.Request.Context()), req)
	if err != nil {
		response.RespondTypedError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /api/statistics
func (h *CorrelationHandler) Statistics(c *gin.Context) {
	stats, err := h.queries.Statistics(dbctx.New(c.Request.Context()))
	if err != nil {
		response.RespondTypedError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"statistics": stats})
}

type tagsRequest struct {
	Tags []string `json:"tags"`
}

// POST /api/correlations/:id/tags
func (h *CorrelationHandler) AddTags(c *gin.Context) {
	h.retag(c, h.lifecycle.AddTags)
}

// DELETE /api/correlations/:id/tags
func (h *CorrelationHandler) RemoveTags(c *gin.Context) {
	h.retag(c, h.lifecycle.RemoveTags)
}

func (h *CorrelationHandler) retag(c *gin.Context, apply func(dbctx.Context, uuid.UUID, []string) (*domain.Correlation, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_correlation_id", err)
		return
	}
	var req tagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	row, err := apply(dbctx.New(c.Request.Context()), id, req.Tags)
	if err != nil {
		response.RespondTypedError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"correlation": row})
}

type parametersRequest struct {
	Parameters json.RawMessage `json:"parameters"`
}

// PUT /api/correlations/:id/parameters
func (h *CorrelationHandler) UpdateParameters(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_correlation_id", err)
		return
	}
	var req parametersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	row, err := h.lifecycle.UpdateParameters(dbctx.New(c.Request.Context()), id, req.Parameters)
	if err != nil {
		response.RespondTypedError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"correlation": row})
}

// DELETE /api/correlations/:id
func (h *CorrelationHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_correlation_id", err)
		return
	}
	if err := h.lifecycle.Delete(dbctx.New(c.Request.Context()), id); err != nil {
		response.RespondTypedError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseListRequest(c *gin.Context) (query.ListRequest, error) {
	var req query.ListRequest

	if raw := c.Query("source_dataset_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return req, fmt.Errorf("source_dataset_id: %w", err)
		}
		req.SourceDatasetID = &id
	}
	if raw := c.Query("target_dataset_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return req, fmt.Errorf("target_dataset_id: %w", err)
		}
		req.TargetDatasetID = &id
	}
	if raw := c.Query("type"); raw != "" {
		typ := domain.CorrelationType(raw)
		req.Type = &typ
	}
	if raw := c.Query("min_confidence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return req, fmt.Errorf("min_confidence: %w", err)
		}
		req.MinConfidence = &v
	}
	req.Tag = c.Query("tag")

	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return req, fmt.Errorf("limit: %w", err)
		}
		req.Limit = v
	}
	if raw := c.Query("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return req, fmt.Errorf("offset: %w", err)
		}
		req.Offset = v
	}
	return req, nil
}

func apiCode(err error) string {
	return apierr.CodeOf(err)
}
