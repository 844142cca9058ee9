package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"teacherdev_backend/internal/service"
	"teacherdev_backend/internal/util"
)

// respondError maps service errors onto HTTP statuses. Unknown errors are
// logged and reported as 500.
func respondError(ctx *gin.Context, err error) {
	var (
		missing  *service.MissingAnswersError
		invalid  *service.InvalidAnswersError
		conflict *service.AttemptConflictError
		pool     *service.InsufficientQuestionPoolError
		question *service.QuestionValidationError
	)

	switch {
	case errors.As(err, &missing):
		util.ErrorWithData(ctx, http.StatusUnprocessableEntity, err.Error(), gin.H{"questionIds": missing.QuestionIDs})
	case errors.As(err, &invalid):
		util.ErrorWithData(ctx, http.StatusUnprocessableEntity, err.Error(), gin.H{"questionIds": invalid.QuestionIDs})
	case errors.As(err, &conflict):
		util.ErrorWithData(ctx, http.StatusConflict, conflict.Reason, gin.H{
			"attemptId": conflict.AttemptID,
			"status":    conflict.Status,
		})
	case errors.As(err, &pool):
		util.ErrorWithData(ctx, http.StatusUnprocessableEntity, err.Error(), gin.H{
			"type":      pool.Type,
			"available": pool.Available,
			"required":  pool.Required,
		})
	case errors.As(err, &question):
		data := gin.H{}
		if question.Index >= 0 {
			data["index"] = question.Index
		}
		util.ErrorWithData(ctx, http.StatusBadRequest, err.Error(), data)
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx)
	case errors.Is(err, util.ErrAttemptNotFound),
		errors.Is(err, util.ErrAssessmentNotFound),
		errors.Is(err, util.ErrResultNotFound),
		errors.Is(err, util.ErrQuestionNotFound):
		util.Error(ctx, http.StatusNotFound, err.Error())
	case errors.Is(err, util.ErrInvalidState),
		errors.Is(err, util.ErrEvaluationInProgress):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, util.ErrInvalidInput),
		errors.Is(err, util.ErrInvalidQuestion):
		util.BadRequest(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

// pathID parses a numeric path parameter, answering 400 on failure.
func pathID(ctx *gin.Context, name string) (uint, bool) {
	id, err := util.ParseID(ctx.Param(name))
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return 0, false
	}
	return id, true
}
