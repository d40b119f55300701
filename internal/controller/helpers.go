package controller

import (
	"strconv"
	"strings"

	"edu_portal_backend/internal/model"
	"edu_portal_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// pathID reads a positive numeric path parameter.
func pathID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	if err != nil || id == 0 {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func identityFromClaims(claims *util.Claims) model.StudentIdentity {
	var identity model.StudentIdentity
	if claims == nil {
		return identity
	}
	if claims.StudentID != 0 {
		identity.StudentID = util.UintPtr(claims.StudentID)
	}
	identity.Email = strings.TrimSpace(claims.Email)
	identity.UserID = claims.UserID
	return identity
}

func isStaff(claims *util.Claims) bool {
	return claims != nil && (claims.Role == model.RoleAdmin || claims.Role == model.RoleTeacher)
}

// ownsAttempt reports whether a student token belongs to the attempt's student.
func ownsAttempt(claims *util.Claims, a *model.Attempt) bool {
	if isStaff(claims) {
		return true
	}
	if claims == nil {
		return false
	}
	if claims.StudentID != 0 && a.StudentID != nil && *a.StudentID == claims.StudentID {
		return true
	}
	return claims.Email != "" && strings.EqualFold(claims.Email, a.StudentEmail)
}
