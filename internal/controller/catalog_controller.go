package controller

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/service"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/util"
)

type CatalogController struct {
	Service *service.CatalogService
}

func NewCatalogController(svc *service.CatalogService) *CatalogController {
	return &CatalogController{Service: svc}
}

// @Summary List subjects
// @Tags Catalog
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/subjects [get]
func (c *CatalogController) ListSubjects(ctx *gin.Context) {
	subjects, err := c.Service.ListSubjects(ctx.Request.Context())
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, subjects)
}

// @Summary List quiz blocks of a subject
// @Tags Catalog
// @Produce json
// @Security BearerAuth
// @Param id path int true "Subject ID"
// @Success 200 {object} util.Response
// @Router /api/subjects/{id}/blocks [get]
func (c *CatalogController) ListBlocks(ctx *gin.Context) {
	subjectID, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid subject id")
		return
	}

	blocks, err := c.Service.ListBlocks(ctx.Request.Context(), uint(subjectID))
	if err != nil {
		writeAttemptError(ctx, err)
		return
	}

	util.Success(ctx, blocks)
}

// @Summary List per-question usage counters of a subject
// @Tags Catalog
// @Produce json
// @Security BearerAuth
// @Param id path int true "Subject ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/subjects/{id}/question-usage [get]
func (c *CatalogController) ListQuestionUsage(ctx *gin.Context) {
	subjectID, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid subject id")
		return
	}

	questions, err := c.Service.ListQuestionUsage(ctx.Request.Context(), uint(subjectID))
	if err != nil {
		writeAttemptError(ctx, err)
		return
	}

	util.Success(ctx, questions)
}
