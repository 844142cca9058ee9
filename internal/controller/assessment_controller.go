package controller

import (
	"context"
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"teacherdev_backend/internal/model"
	"teacherdev_backend/internal/service"
	"teacherdev_backend/internal/util"
)

// AttemptAPI is the attempt lifecycle as used by the teacher-facing routes.
type AttemptAPI interface {
	Start(ctx context.Context, teacherID, assessmentID uint) (*model.AssessmentAttempt, error)
	Get(ctx context.Context, teacherID uint, attemptID string) (*model.AssessmentAttempt, error)
	SaveProgress(ctx context.Context, teacherID uint, attemptID string, answers []model.QuestionAnswer) (*model.AssessmentAttempt, error)
	Submit(ctx context.Context, teacherID uint, attemptID string, answers []model.QuestionAnswer) (*service.SubmitOutcome, error)
	Result(ctx context.Context, teacherID uint, attemptID string) (*model.AssessmentResult, error)
	View(ctx context.Context, a *model.AssessmentAttempt) (*service.AttemptView, error)
}

type AssessmentController struct {
	Attempts AttemptAPI
}

func NewAssessmentController(attempts AttemptAPI) *AssessmentController {
	return &AssessmentController{Attempts: attempts}
}

type AnswersRequest struct {
	Answers []model.QuestionAnswer `json:"answers" binding:"dive"`
}

// @Summary 开始或继续评估
// @Tags 能力评估
// @Produce json
// @Security BearerAuth
// @Param assessmentId path int true "评估ID"
// @Success 200 {object} util.Response
// @Router /api/assessments/{assessmentId}/attempts [post]
func (c *AssessmentController) StartAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	assessmentID, ok := pathID(ctx, "assessmentId")
	if !ok {
		return
	}

	attempt, err := c.Attempts.Start(ctx.Request.Context(), user.UserID, assessmentID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	c.renderView(ctx, attempt)
}

// @Summary 获取评估作答详情
// @Tags 能力评估
// @Produce json
// @Security BearerAuth
// @Param id path string true "作答ID"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id} [get]
func (c *AssessmentController) GetAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	attempt, err := c.Attempts.Get(ctx.Request.Context(), user.UserID, ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	c.renderView(ctx, attempt)
}

// @Summary 保存作答进度
// @Tags 能力评估
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "作答ID"
// @Param body body AnswersRequest true "答案"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/progress [put]
func (c *AssessmentController) SaveProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	var req AnswersRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if req.Answers == nil {
		req.Answers = []model.QuestionAnswer{}
	}

	attempt, err := c.Attempts.SaveProgress(ctx.Request.Context(), user.UserID, ctx.Param("id"), req.Answers)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}

// @Summary 提交评估
// @Description 提交后立即评分；评分未完成时返回 202，由后台任务继续处理
// @Tags 能力评估
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "作答ID"
// @Param body body AnswersRequest false "最终答案，省略时提交已保存的进度"
// @Success 200 {object} util.Response
// @Success 202 {object} util.Response
// @Router /api/attempts/{id}/submit [post]
func (c *AssessmentController) Submit(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	var req AnswersRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		util.BadRequest(ctx, err.Error())
		return
	}

	out, err := c.Attempts.Submit(ctx.Request.Context(), user.UserID, ctx.Param("id"), req.Answers)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if out.Result == nil {
		util.Accepted(ctx, out)
		return
	}
	util.Success(ctx, out)
}

// @Summary 获取评估结果
// @Tags 能力评估
// @Produce json
// @Security BearerAuth
// @Param id path string true "作答ID"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/result [get]
func (c *AssessmentController) GetResult(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	result, err := c.Attempts.Result(ctx.Request.Context(), user.UserID, ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

func (c *AssessmentController) renderView(ctx *gin.Context, attempt *model.AssessmentAttempt) {
	view, err := c.Attempts.View(ctx.Request.Context(), attempt)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}
