package controller

import (
	"edu_portal_backend/internal/service"
	"edu_portal_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type MarksController struct {
	Service *service.MarksService
}

func NewMarksController(svc *service.MarksService) *MarksController {
	return &MarksController{Service: svc}
}

// @Summary 成绩汇总
// @Description 手动评分测试与 AI 测试分别汇总，并排返回
// @Tags 成绩
// @Produce json
// @Security BearerAuth
// @Param search query string false "按学生标识模糊搜索"
// @Param manualSort query string false "手动测试排序列"
// @Param manualDir query string false "asc 或 desc"
// @Param aiSort query string false "AI 测试排序列"
// @Param aiDir query string false "asc 或 desc"
// @Success 200 {object} util.Response
// @Router /admin/marks [get]
func (c *MarksController) Report(ctx *gin.Context) {
	var q service.MarksQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	report, err := c.Service.Report(ctx.Request.Context(), q)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, report)
}

// @Summary 我的成绩
// @Tags 成绩
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /students/marks [get]
func (c *MarksController) StudentMarks(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	marks, err := c.Service.StudentMarks(ctx.Request.Context(), identityFromClaims(user))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, marks)
}
