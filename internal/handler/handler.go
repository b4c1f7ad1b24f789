package handler

import (
	"strconv"

	"github.com/examlock/examlock-backend/internal/middleware"
	"github.com/examlock/examlock-backend/internal/model"
	"github.com/gin-gonic/gin"
)

// auditEvent builds an audit event from the request context. Actor resolution
// falls back to anonymous inside the recorder when no claims exist.
func auditEvent(c *gin.Context, action model.ActionCode, resourceType, resourceID string, detail map[string]any) model.AuditEvent {
	e := model.AuditEvent{
		Action:       action,
		ResourceType: resourceType,
		Detail:       detail,
		ClientIP:     c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	}
	if resourceID != "" {
		e.ResourceID = &resourceID
	}
	if claims := middleware.GetClaims(c); claims != nil {
		e.ActorID = claims.UserID.String()
	}
	return e
}

// userPayload shapes an identity for API responses. Clients that render a
// single badge use primary_role; the full role set stays authoritative.
func userPayload(u *model.User) gin.H {
	return gin.H{
		"user":         u,
		"primary_role": model.PrimaryRole(u.Roles),
	}
}

// parsePagination reads page/per_page query params with sane bounds.
func parsePagination(c *gin.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}

func totalPages(total int64, perPage int) int {
	pages := int(total) / perPage
	if int(total)%perPage != 0 {
		pages++
	}
	return pages
}
