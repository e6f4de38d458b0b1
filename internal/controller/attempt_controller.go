package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/service"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/util"
)

type AttemptController struct {
	Service *service.AttemptService
}

func NewAttemptController(svc *service.AttemptService) *AttemptController {
	return &AttemptController{Service: svc}
}

// writeAttemptError maps domain errors onto the HTTP envelope. Unrecognized
// errors are logged and surface as 500.
func writeAttemptError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrSubjectNotFound),
		errors.Is(err, util.ErrBlockNotFound),
		errors.Is(err, util.ErrAttemptNotFound):
		util.Error(ctx, http.StatusNotFound, err.Error())
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx)
	case errors.Is(err, util.ErrInsufficientQuestions),
		errors.Is(err, util.ErrEmptyBlock),
		errors.Is(err, util.ErrUnknownQuestion):
		util.Error(ctx, http.StatusUnprocessableEntity, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

// @Summary Start a quiz attempt
// @Tags Attempts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.StartAttemptRequest true "Attempt mode and target"
// @Success 201 {object} util.Response
// @Router /api/attempts [post]
func (c *AttemptController) StartAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.StartAttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	resp, err := c.Service.StartAttempt(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		writeAttemptError(ctx, err)
		return
	}

	util.Created(ctx, resp)
}

// @Summary Get an attempt for answering or review
// @Tags Attempts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Attempt ID"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id} [get]
func (c *AttemptController) GetAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	detail, err := c.Service.GetAttempt(ctx.Request.Context(), user.UserID, ctx.Param("id"))
	if err != nil {
		writeAttemptError(ctx, err)
		return
	}

	util.Success(ctx, detail)
}

// @Summary Submit an attempt for grading
// @Tags Attempts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Attempt ID"
// @Param body body service.SubmitRequest true "Answers"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/submit [post]
func (c *AttemptController) Submit(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	summary, err := c.Service.Submit(ctx.Request.Context(), user.UserID, ctx.Param("id"), req)
	if err != nil {
		writeAttemptError(ctx, err)
		return
	}

	util.Success(ctx, summary)
}

// @Summary Save in-progress answers for client resync
// @Tags Attempts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Attempt ID"
// @Param body body service.SaveProgressRequest true "Draft answers"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/progress [put]
func (c *AttemptController) SaveProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.SaveProgressRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.Service.SaveProgress(ctx.Request.Context(), user.UserID, ctx.Param("id"), req); err != nil {
		writeAttemptError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"saved": true})
}

// @Summary Get the caller's attempt statistics
// @Tags Attempts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/stats [get]
func (c *AttemptController) GetStats(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	stats, err := c.Service.GetStats(ctx.Request.Context(), user.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, stats)
}
