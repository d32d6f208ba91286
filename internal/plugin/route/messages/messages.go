// Package messages mounts the send and typing routes.
package messages

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

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
		Name:  "messages",
		Order: 20,
		Type:  registryroute.RouteTypeMain,
		Loader: func(m registryroute.Mount) error {
			MountRoutes(m.Router, m.Messaging, m.Auth)
			return nil
		},
	})
}

// MountRoutes mounts message routes on the given router.
func MountRoutes(r *gin.Engine, svc *messaging.Service, auth gin.HandlerFunc) {
	g := r.Group("/v1/messages", auth)
	g.POST("", func(c *gin.Context) { sendMessage(c, svc) })
	g.POST("/typing", func(c *gin.Context) { typing(c, svc) })
}

type sendRequest struct {
	ConversationID string `json:"conversationId" form:"conversationId"`
	Content        string `json:"content"        form:"content"`
}

func sendMessage(c *gin.Context, svc *messaging.Service) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		sendMultipart(c, svc)
		return
	}
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	msg, err := svc.SendMessage(c.Request.Context(), security.GetUserID(c), req.ConversationID, req.Content, nil)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func sendMultipart(c *gin.Context, svc *messaging.Service) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	headers := form.File["chats"]
	if len(headers) > messaging.MaxMessageImages {
		handleError(c, &registrystore.ValidationError{Field: "chats", Message: "at most 5 images per message"})
		return
	}
	files, closeAll, err := openAll(headers)
	defer closeAll()
	if err != nil {
		handleError(c, err)
		return
	}
	msg, err := svc.SendMessageWithImages(c.Request.Context(), security.GetUserID(c), first(form.Value["conversationId"]), first(form.Value["content"]), files)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func openAll(headers []*multipart.FileHeader) ([]registrymedia.File, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	files := make([]registrymedia.File, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			return nil, closeAll, err
		}
		opened = append(opened, f)
		files = append(files, registrymedia.File{
			Name:        h.Filename,
			ContentType: h.Header.Get("Content-Type"),
			Size:        h.Size,
			Data:        f,
		})
	}
	return files, closeAll, nil
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func typing(c *gin.Context, svc *messaging.Service) {
	var req struct {
		ConversationID string `json:"conversationId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	if err := svc.NotifyTyping(c.Request.Context(), security.GetUserID(c), req.ConversationID); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
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
