// Package conversations mounts the conversation, membership and message
// history routes.
package conversations

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/TruongKhoiNguyen/Agora-api/internal/messaging"
	registryroute "github.com/TruongKhoiNguyen/Agora-api/internal/registry/route"
	registrymedia "github.com/TruongKhoiNguyen/Agora-api/internal/registry/media"
	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
	"github.com/TruongKhoiNguyen/Agora-api/internal/security"
	"github.com/gin-gonic/gin"
)

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:  "conversations",
		Order: 10,
		Type:  registryroute.RouteTypeMain,
		Loader: func(m registryroute.Mount) error {
			MountRoutes(m.Router, m.Messaging, m.Auth)
			return nil
		},
	})
}

// MountRoutes mounts conversation routes on the given router.
func MountRoutes(r *gin.Engine, svc *messaging.Service, auth gin.HandlerFunc) {
	g := r.Group("/v1/conversations", auth)

	g.POST("", func(c *gin.Context) { createConversation(c, svc) })
	g.GET("", func(c *gin.Context) { listConversations(c, svc) })
	g.GET("/:conversationId", func(c *gin.Context) { getConversation(c, svc) })
	g.POST("/:conversationId/seen", func(c *gin.Context) { markSeen(c, svc) })
	g.PATCH("/:conversationId/thumb", func(c *gin.Context) { updateThumb(c, svc) })
	g.PATCH("/:conversationId/info", func(c *gin.Context) { updateInfo(c, svc) })
	g.PATCH("/:conversationId/members", func(c *gin.Context) { addMembers(c, svc) })
	g.DELETE("/:conversationId/members/:memberId", func(c *gin.Context) { removeMember(c, svc) })
	g.POST("/:conversationId/leave", func(c *gin.Context) { leaveConversation(c, svc) })
	g.POST("/:conversationId/admins", func(c *gin.Context) { addAdmin(c, svc) })
	g.GET("/:conversationId/images", func(c *gin.Context) { listImages(c, svc) })
	g.GET("/:conversationId/links", func(c *gin.Context) { listLinks(c, svc) })
	g.GET("/:conversationId/messages", func(c *gin.Context) { getMessages(c, svc) })
	g.GET("/:conversationId/messages/around/:messageId", func(c *gin.Context) { getMessagesAround(c, svc) })
	g.GET("/:conversationId/messages/search", func(c *gin.Context) { searchMessages(c, svc) })
}

func createConversation(c *gin.Context, svc *messaging.Service) {
	var req messaging.CreateConversationInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	conv, err := svc.CreateConversation(c.Request.Context(), security.GetUserID(c), req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func listConversations(c *gin.Context, svc *messaging.Service) {
	userID := security.GetUserID(c)
	if q, ok := c.GetQuery("q"); ok {
		convs, err := svc.SearchConversations(c.Request.Context(), userID, q, queryInt(c, "limit", 0))
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": convs})
		return
	}
	// Full history is returned unless the client passes includeMessages=false
	// and pages through /messages instead.
	convs, err := svc.ListConversations(c.Request.Context(), userID, messaging.ListOptions{
		IncludeMessages: queryBool(c, "includeMessages", true),
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": convs})
}

func getConversation(c *gin.Context, svc *messaging.Service) {
	conv, err := svc.GetConversation(c.Request.Context(), security.GetUserID(c), c.Param("conversationId"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func markSeen(c *gin.Context, svc *messaging.Service) {
	if err := svc.MarkSeen(c.Request.Context(), security.GetUserID(c), c.Param("conversationId")); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func updateThumb(c *gin.Context, svc *messaging.Service) {
	header, err := c.FormFile("thumb")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "thumb file is required", "field": "thumb"})
		return
	}
	f, err := header.Open()
	if err != nil {
		handleError(c, err)
		return
	}
	defer f.Close()

	conv, err := svc.UpdateThumb(c.Request.Context(), security.GetUserID(c), c.Param("conversationId"), registrymedia.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Data:        f,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func updateInfo(c *gin.Context, svc *messaging.Service) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	conv, err := svc.UpdateInfo(c.Request.Context(), security.GetUserID(c), c.Param("conversationId"), req.Name)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func addMembers(c *gin.Context, svc *messaging.Service) {
	var req struct {
		Members []string `json:"members"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	added, conv, err := svc.AddMembers(c.Request.Context(), security.GetUserID(c), c.Param("conversationId"), req.Members)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added, "conversation": conv})
}

func removeMember(c *gin.Context, svc *messaging.Service) {
	if err := svc.RemoveMember(c.Request.Context(), security.GetUserID(c), c.Param("conversationId"), c.Param("memberId")); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func leaveConversation(c *gin.Context, svc *messaging.Service) {
	if err := svc.LeaveConversation(c.Request.Context(), security.GetUserID(c), c.Param("conversationId")); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func addAdmin(c *gin.Context, svc *messaging.Service) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	conv, err := svc.AddAdmin(c.Request.Context(), security.GetUserID(c), c.Param("conversationId"), req.UserID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func listImages(c *gin.Context, svc *messaging.Service) {
	items, err := svc.ListImages(c.Request.Context(), security.GetUserID(c), c.Param("conversationId"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func listLinks(c *gin.Context, svc *messaging.Service) {
	items, err := svc.ListLinks(c.Request.Context(), security.GetUserID(c), c.Param("conversationId"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func getMessages(c *gin.Context, svc *messaging.Service) {
	page, err := svc.GetMessages(c.Request.Context(), security.GetUserID(c), c.Param("conversationId"), c.Query("cursor"), queryInt(c, "limit", 0))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func getMessagesAround(c *gin.Context, svc *messaging.Service) {
	msgs, err := svc.GetMessagesAroundID(c.Request.Context(), security.GetUserID(c), c.Param("conversationId"), c.Param("messageId"), queryInt(c, "range", 0))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": msgs})
}

func searchMessages(c *gin.Context, svc *messaging.Service) {
	res, err := svc.SearchMessages(c.Request.Context(), security.GetUserID(c), c.Param("conversationId"), c.Query("q"), c.Query("cursor"), queryInt(c, "range", 0))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var forbidden *registrystore.ForbiddenError
	var precondition *registrystore.PreconditionError
	var upstream *registrystore.UpstreamError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"code": conflict.Code, "error": err.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	case errors.As(err, &precondition):
		c.JSON(http.StatusPreconditionFailed, gin.H{"code": "precondition_failed", "error": err.Error()})
	case errors.As(err, &upstream):
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"code": "upstream_error", "error": upstream.Op + " failed"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func queryBool(c *gin.Context, key string, def bool) bool {
	b, err := strconv.ParseBool(c.Query(key))
	if err != nil {
		return def
	}
	return b
}
