package controller

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"teacherdev_backend/internal/model"
	"teacherdev_backend/internal/service"
	"teacherdev_backend/internal/util"
)

type CatalogAPI interface {
	CreateAssessment(ctx context.Context, req service.AssessmentRequest) (*model.Assessment, error)
	ListAssessments(ctx context.Context, page, limit int) ([]model.Assessment, int64, error)
	ListQuestions(ctx context.Context, assessmentID uint) ([]model.AssessmentQuestion, error)
	CreateQuestion(ctx context.Context, assessmentID uint, req service.QuestionRequest) (*model.AssessmentQuestion, error)
	ImportYAML(ctx context.Context, assessmentID uint, r io.Reader) ([]model.AssessmentQuestion, error)
}

type EvaluationAPI interface {
	EvaluateAndSave(ctx context.Context, attemptID string) (*model.AssessmentResult, error)
	ProcessPending(ctx context.Context, limit int) (service.SweepSummary, error)
}

// AdminController serves catalog administration and manual evaluation.
type AdminController struct {
	Catalog    CatalogAPI
	Evaluation EvaluationAPI
	SweepBatch func() int
}

func NewAdminController(catalog CatalogAPI, evaluation EvaluationAPI, sweepBatch func() int) *AdminController {
	return &AdminController{Catalog: catalog, Evaluation: evaluation, SweepBatch: sweepBatch}
}

// @Summary 创建评估
// @Tags 评估管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.AssessmentRequest true "评估信息"
// @Success 201 {object} util.Response
// @Router /api/admin/assessments [post]
func (c *AdminController) CreateAssessment(ctx *gin.Context) {
	var req service.AssessmentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	assessment, err := c.Catalog.CreateAssessment(ctx.Request.Context(), req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Created(ctx, assessment)
}

// @Summary 评估列表
// @Tags 评估管理
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response
// @Router /api/admin/assessments [get]
func (c *AdminController) ListAssessments(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", strconv.Itoa(util.DefaultPage)))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", strconv.Itoa(util.DefaultLimit)))

	list, total, err := c.Catalog.ListAssessments(ctx.Request.Context(), page, limit)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: list, Total: total, Page: page, Limit: limit})
}

// @Summary 添加题目
// @Tags 评估管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param assessmentId path int true "评估ID"
// @Param body body service.QuestionRequest true "题目信息"
// @Success 201 {object} util.Response
// @Router /api/admin/assessments/{assessmentId}/questions [post]
func (c *AdminController) CreateQuestion(ctx *gin.Context) {
	assessmentID, ok := pathID(ctx, "assessmentId")
	if !ok {
		return
	}
	var req service.QuestionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	q, err := c.Catalog.CreateQuestion(ctx.Request.Context(), assessmentID, req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Created(ctx, q)
}

// @Summary 题目列表
// @Tags 评估管理
// @Produce json
// @Security BearerAuth
// @Param assessmentId path int true "评估ID"
// @Success 200 {object} util.Response
// @Router /api/admin/assessments/{assessmentId}/questions [get]
func (c *AdminController) ListQuestions(ctx *gin.Context) {
	assessmentID, ok := pathID(ctx, "assessmentId")
	if !ok {
		return
	}

	qs, err := c.Catalog.ListQuestions(ctx.Request.Context(), assessmentID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, qs)
}

// @Summary 批量导入题目
// @Description 接受 multipart 字段 file 或请求体中的 YAML 文档
// @Tags 评估管理
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param assessmentId path int true "评估ID"
// @Param file formData file false "YAML 文件"
// @Success 201 {object} util.Response
// @Router /api/admin/assessments/{assessmentId}/questions/import [post]
func (c *AdminController) ImportQuestions(ctx *gin.Context) {
	assessmentID, ok := pathID(ctx, "assessmentId")
	if !ok {
		return
	}

	var body io.Reader
	file, err := ctx.FormFile("file")
	switch {
	case err == nil:
		if file.Size > util.MaxImportSize {
			util.Error(ctx, http.StatusRequestEntityTooLarge, "import file too large")
			return
		}
		f, err := file.Open()
		if err != nil {
			util.LogInternalError(ctx, err)
			return
		}
		defer f.Close()
		body = f
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, util.MaxImportSize)
	default:
		util.BadRequest(ctx, err.Error())
		return
	}

	_, replay, err := util.ValidateMimeType(body, []string{"text/"})
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	qs, err := c.Catalog.ImportYAML(ctx.Request.Context(), assessmentID, replay)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Created(ctx, gin.H{"imported": len(qs), "questions": qs})
}

// @Summary 手动触发评分
// @Tags 评估管理
// @Produce json
// @Security BearerAuth
// @Param id path string true "作答ID"
// @Success 200 {object} util.Response
// @Router /api/admin/attempts/{id}/evaluate [post]
func (c *AdminController) Evaluate(ctx *gin.Context) {
	result, err := c.Evaluation.EvaluateAndSave(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 处理待评分作答
// @Tags 评估管理
// @Produce json
// @Security BearerAuth
// @Param limit query int false "本次最多处理数量"
// @Success 200 {object} util.Response
// @Router /api/admin/evaluations/sweep [post]
func (c *AdminController) Sweep(ctx *gin.Context) {
	limit := c.SweepBatch()
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			util.BadRequest(ctx, "limit must be a positive integer")
			return
		}
		limit = n
	}

	summary, err := c.Evaluation.ProcessPending(ctx.Request.Context(), limit)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, summary)
}
