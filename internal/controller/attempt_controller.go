package controller

import (
	"strings"

	"edu_portal_backend/internal/service"
	"edu_portal_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AttemptController struct {
	Service *service.AttemptService
}

func NewAttemptController(svc *service.AttemptService) *AttemptController {
	return &AttemptController{Service: svc}
}

// @Summary 开始测试
// @Description 在测试开放时间内创建作答记录；重复请求返回同一记录
// @Tags 测试作答
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.StartAttemptRequest true "测试与学生信息"
// @Success 200 {object} util.Response
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 422 {object} util.Response
// @Router /attempts/start [post]
func (c *AttemptController) Start(ctx *gin.Context) {
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

	// 请求体未提供身份时使用令牌中的学生信息
	if (req.StudentID == nil || *req.StudentID == 0) && strings.TrimSpace(req.StudentEmail) == "" {
		identity := identityFromClaims(user)
		req.StudentID = identity.StudentID
		req.StudentEmail = identity.Email
	}
	if !isStaff(user) && !sameStudent(user, &req) {
		util.Forbidden(ctx)
		return
	}

	attempt, err := c.Service.StartAttempt(ctx.Request.Context(), req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"attempt": attempt})
}

func sameStudent(user *util.Claims, req *service.StartAttemptRequest) bool {
	if req.StudentID != nil && *req.StudentID != 0 && *req.StudentID != user.StudentID {
		return false
	}
	if req.StudentEmail != "" && !strings.EqualFold(strings.TrimSpace(req.StudentEmail), user.Email) {
		return false
	}
	return true
}

// @Summary 提交测试
// @Description 评分并完成作答；已提交的记录返回 409
// @Tags 测试作答
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Param body body service.CompleteAttemptRequest true "答案"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /attempts/{id}/complete [put]
func (c *AttemptController) Complete(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var req service.CompleteAttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	attempt, err := c.Service.GetAttempt(ctx.Request.Context(), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	if !ownsAttempt(user, attempt) {
		util.Forbidden(ctx)
		return
	}

	result, err := c.Service.CompleteAttempt(ctx.Request.Context(), id, req.Answers)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, result)
}

// @Summary 获取作答详情
// @Tags 测试作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response
// @Router /attempts/{id} [get]
func (c *AttemptController) Get(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	attempt, err := c.Service.GetAttempt(ctx.Request.Context(), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	if !ownsAttempt(user, attempt) {
		util.Forbidden(ctx)
		return
	}

	util.Success(ctx, attempt)
}

// @Summary 获取作答题目
// @Description 返回不含答案的题目列表
// @Tags 测试作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response
// @Router /attempts/{id}/questions [get]
func (c *AttemptController) Questions(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	attempt, err := c.Service.GetAttempt(ctx.Request.Context(), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	if !ownsAttempt(user, attempt) {
		util.Forbidden(ctx)
		return
	}

	questions, err := c.Service.AttemptQuestions(ctx.Request.Context(), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, questions)
}

// @Summary 作废作答
// @Tags 测试管理
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /admin/attempts/{id}/abandon [post]
func (c *AttemptController) Abandon(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	attempt, err := c.Service.AbandonAttempt(ctx.Request.Context(), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, attempt)
}
