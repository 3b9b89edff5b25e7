package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/daginfo"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/scheduler"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/storage"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/api/dto"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/api/middleware"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/models"
)

// DagInfoService is the part of daginfo.Service the handlers use
type DagInfoService interface {
	SelectAllDagInfo(ctx context.Context) ([]*models.DagInfo, error)
	SelectDagInfo(ctx context.Context, cond storage.Values, fields ...string) ([]*models.DagInfo, error)
	SelectNeedStartDag(ctx context.Context, now time.Time) ([]*models.DagInfo, error)
	GetDagInfo(ctx context.Context, id int64) (*models.DagInfo, error)
	AddDagInfo(ctx context.Context, rec *models.DagInfo, match storage.Values) error
	UpdateDagInfo(ctx context.Context, newValues, match storage.Values) (int64, error)
	DeleteDagInfo(ctx context.Context, match storage.Values) (int64, error)
	MarkTerminated(ctx context.Context, id int64) error
	MarkSucceeded(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64) error
	ResetFailed(ctx context.Context, id int64) error
}

// Triggerer starts runs outside the poll schedule
type Triggerer interface {
	Trigger(ctx context.Context, id int64) (*daginfo.Trigger, error)
	PollOnce(ctx context.Context) (*scheduler.PollResult, error)
}

// DagInfoHandler handles DAG info HTTP requests
type DagInfoHandler struct {
	svc     DagInfoService
	trigger Triggerer
	now     func() time.Time
}

// NewDagInfoHandler creates a new DAG info handler. trigger may be nil, in
// which case the trigger and poll routes answer 503
func NewDagInfoHandler(svc DagInfoService, trigger Triggerer) *DagInfoHandler {
	return &DagInfoHandler{
		svc:     svc,
		trigger: trigger,
		now:     time.Now,
	}
}

// WithClock replaces the clock used for the due flag and the due listing
func (h *DagInfoHandler) WithClock(now func() time.Time) *DagInfoHandler {
	h.now = now
	return h
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.AbortWithError(c, http.StatusBadRequest, "INVALID_ID", fmt.Sprintf("invalid id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

func (h *DagInfoHandler) toResponses(rows []*models.DagInfo) []dto.DagInfoResponse {
	now := h.now()
	out := make([]dto.DagInfoResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, dto.ToDagInfoResponse(r, now))
	}
	return out
}

// CreateDagInfo handles POST /api/v1/dag-infos
// @Summary Register a scheduled DAG
// @Description Insert a DAG info record. Re-registering an existing dag_id returns the stored record.
// @Tags dag-infos
// @Accept json
// @Produce json
// @Param dag_info body dto.CreateDagInfoRequest true "DAG info"
// @Success 201 {object} dto.DagInfoResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/v1/dag-infos [post]
func (h *DagInfoHandler) CreateDagInfo(c *gin.Context) {
	var req dto.CreateDagInfoRequest
	if !middleware.BindAndValidate(c, &req) {
		return
	}

	rec, err := req.ToDagInfo(h.now())
	if err != nil {
		middleware.AbortWithDomainError(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := h.svc.AddDagInfo(ctx, rec, nil); err != nil {
		middleware.AbortWithDomainError(c, err)
		return
	}

	stored, err := h.svc.GetDagInfo(ctx, rec.ID)
	if err != nil {
		middleware.AbortWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToDagInfoResponse(stored, h.now()))
}

// ListDagInfos handles GET /api/v1/dag-infos
// @Summary List DAG info records
// @Tags dag-infos
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(20)
// @Param dag_status query string false "Filter by status"
// @Param valid query bool false "Filter by valid flag"
// @Param dag_id query string false "Filter by dag_id"
// @Success 200 {object} dto.DagInfoListResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/v1/dag-infos [get]
func (h *DagInfoHandler) ListDagInfos(c *gin.Context) {
	params := dto.ListQueryParams{Page: 1, PageSize: 20}
	if !middleware.BindQueryAndValidate(c, &params) {
		return
	}

	cond := storage.Values{}
	if params.DagStatus != "" {
		cond[storage.ColDagStatus] = models.DagStatus(params.DagStatus)
	}
	if params.Valid != "" {
		cond[storage.ColValid] = params.Valid == "true"
	}
	if params.DagID != "" {
		cond[storage.ColDagID] = params.DagID
	}

	var (
		rows []*models.DagInfo
		err  error
	)
	if len(cond) == 0 {
		rows, err = h.svc.SelectAllDagInfo(c.Request.Context())
	} else {
		rows, err = h.svc.SelectDagInfo(c.Request.Context(), cond)
	}
	if err != nil {
		middleware.AbortWithDomainError(c, err)
		return
	}

	start, end := dto.Paginate(params.Page, params.PageSize, len(rows))
	c.JSON(http.StatusOK, dto.DagInfoListResponse{
		DagInfos:   h.toResponses(rows[start:end]),
		Pagination: dto.NewPaginationMeta(params.Page, params.PageSize, int64(len(rows))),
	})
}

// ListDueDagInfos handles GET /api/v1/dag-infos/due
// @Summary List the records a poll would start now
// @Tags dag-infos
// @Produce json
// @Success 200 {array} dto.DagInfoResponse
// @Router /api/v1/dag-infos/due [get]
func (h *DagInfoHandler) ListDueDagInfos(c *gin.Context) {
	rows, err := h.svc.SelectNeedStartDag(c.Request.Context(), h.now())
	if err != nil {
		middleware.AbortWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.toResponses(rows))
}

// GetDagInfo handles GET /api/v1/dag-infos/:id
// @Summary Get a DAG info record
// @Tags dag-infos
// @Produce json
// @Param id path int true "Record id"
// @Success 200 {object} dto.DagInfoResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/dag-infos/{id} [get]
func (h *DagInfoHandler) GetDagInfo(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	rec, err := h.svc.GetDagInfo(c.Request.Context(), id)
	if err != nil {
		middleware.AbortWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToDagInfoResponse(rec, h.now()))
}

// UpdateDagInfo handles PATCH /api/v1/dag-infos/:id
// @Summary Update schedule fields of a DAG info record
// @Tags dag-infos
// @Accept json
// @Produce json
// @Param id path int true "Record id"
// @Param dag_info body dto.UpdateDagInfoRequest true "Fields to change"
// @Success 200 {object} dto.DagInfoResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/dag-infos/{id} [patch]
func (h *DagInfoHandler) UpdateDagInfo(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req dto.UpdateDagInfoRequest
	if !middleware.BindAndValidate(c, &req) {
		return
	}

	values, err := req.ToValues()
	if err != nil {
		middleware.AbortWithDomainError(c, err)
		return
	}

	ctx := c.Request.Context()
	n, err := h.svc.UpdateDagInfo(ctx, values, storage.Values{storage.ColID: id})
	if err != nil {
		middleware.AbortWithDomainError(c, err)
		return
	}
	if n == 0 {
		middleware.AbortWithDomainError(c, fmt.Errorf("%w: dag info %d", storage.ErrNotFound, id))
		return
	}

	rec, err := h.svc.GetDagInfo(ctx, id)
	if err != nil {
		middleware.AbortWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToDagInfoResponse(rec, h.now()))
}

// DeleteDagInfo handles DELETE /api/v1/dag-infos/:id
// @Summary Delete a DAG info record
// @Tags dag-infos
// @Param id path int true "Record id"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/dag-infos/{id} [delete]
func (h *DagInfoHandler) DeleteDagInfo(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	n, err := h.svc.DeleteDagInfo(c.Request.Context(), storage.Values{storage.ColID: id})
	if err != nil {
		middleware.AbortWithDomainError(c, err)
		return
	}
	if n == 0 {
		middleware.AbortWithDomainError(c, fmt.Errorf("%w: dag info %d", storage.ErrNotFound, id))
		return
	}
	c.Status(http.StatusNoContent)
}

// TriggerDagInfo handles POST /api/v1/dag-infos/:id/trigger
// @Summary Start a run now
// @Description Starts a run regardless of next_start_time. The record must be valid, unexpired and not running.
// @Tags dag-infos
// @Produce json
// @Param id path int true "Record id"
// @Success 202 {object} dto.TriggerResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /api/v1/dag-infos/{id}/trigger [post]
func (h *DagInfoHandler) TriggerDagInfo(c *gin.Context) {
	if h.trigger == nil {
		middleware.AbortWithError(c, http.StatusServiceUnavailable, "SCHEDULER_DISABLED", "scheduler is not running in this process")
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	t, err := h.trigger.Trigger(c.Request.Context(), id)
	if err != nil {
		middleware.AbortWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.ToTriggerResponse(t, h.now()))
}

// Poll handles POST /api/v1/poll
// @Summary Run one poll immediately
// @Tags scheduler
// @Produce json
// @Success 200 {object} scheduler.PollResult
// @Failure 503 {object} dto.ErrorResponse
// @Router /api/v1/poll [post]
func (h *DagInfoHandler) Poll(c *gin.Context) {
	if h.trigger == nil {
		middleware.AbortWithError(c, http.StatusServiceUnavailable, "SCHEDULER_DISABLED", "scheduler is not running in this process")
		return
	}

	result, err := h.trigger.PollOnce(c.Request.Context())
	if err != nil {
		middleware.AbortWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// TerminateDagInfo handles POST /api/v1/dag-infos/:id/terminate
// @Summary Terminate a DAG permanently
// @Tags dag-infos
// @Param id path int true "Record id"
// @Success 200 {object} dto.DagInfoResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/dag-infos/{id}/terminate [post]
func (h *DagInfoHandler) TerminateDagInfo(c *gin.Context) {
	h.lifecycle(c, h.svc.MarkTerminated)
}

// SucceedDagInfo handles POST /api/v1/dag-infos/:id/succeed
// @Summary Report a run as succeeded
// @Tags dag-infos
// @Param id path int true "Record id"
// @Success 200 {object} dto.DagInfoResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/dag-infos/{id}/succeed [post]
func (h *DagInfoHandler) SucceedDagInfo(c *gin.Context) {
	h.lifecycle(c, h.svc.MarkSucceeded)
}

// FailDagInfo handles POST /api/v1/dag-infos/:id/fail
// @Summary Report a run as failed
// @Tags dag-infos
// @Param id path int true "Record id"
// @Success 200 {object} dto.DagInfoResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/dag-infos/{id}/fail [post]
func (h *DagInfoHandler) FailDagInfo(c *gin.Context) {
	h.lifecycle(c, h.svc.MarkFailed)
}

// ResetDagInfo handles POST /api/v1/dag-infos/:id/reset
// @Summary Return a failed DAG to idle
// @Tags dag-infos
// @Param id path int true "Record id"
// @Success 200 {object} dto.DagInfoResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/dag-infos/{id}/reset [post]
func (h *DagInfoHandler) ResetDagInfo(c *gin.Context) {
	h.lifecycle(c, h.svc.ResetFailed)
}

func (h *DagInfoHandler) lifecycle(c *gin.Context, apply func(context.Context, int64) error) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := apply(ctx, id); err != nil {
		middleware.AbortWithDomainError(c, err)
		return
	}

	rec, err := h.svc.GetDagInfo(ctx, id)
	if err != nil {
		middleware.AbortWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToDagInfoResponse(rec, h.now()))
}
