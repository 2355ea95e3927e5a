package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"homework-helper/backend/internal/conversation"
	"homework-helper/backend/ocr"
	"homework-helper/backend/pkg/errors"
	"homework-helper/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// SourceExtractor recognizes text in a data URI or base64 image
type SourceExtractor interface {
	ExtractText(ctx context.Context, source string) (string, error)
}

// ConversationController runs conversations on the server, one controller per id
type ConversationController struct {
	registry  *conversation.Registry
	extractor SourceExtractor
}

// NewConversationController creates a new conversation controller. extractor
// fills in the question for image submissions sent without text; it may be nil.
func NewConversationController(registry *conversation.Registry, extractor SourceExtractor) *ConversationController {
	return &ConversationController{registry: registry, extractor: extractor}
}

// SubmitTextRequest is the body of POST /api/conversations/:id/text
type SubmitTextRequest struct {
	Text string `json:"text"`
}

// SubmitImageRequest is the body of POST /api/conversations/:id/image
type SubmitImageRequest struct {
	ImageBase64 string `json:"imageBase64" binding:"required"`
	Text        string `json:"text"`
}

// RegisterRoutes registers the routes for the conversation controller
func (c *ConversationController) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/conversations/:id")
	{
		group.GET("", c.GetConversation)
		group.POST("/text", c.SubmitText)
		group.POST("/image", c.SubmitImage)
		group.DELETE("", c.ClearConversation)
	}
}

// GetConversation returns the messages and busy flag
func (c *ConversationController) GetConversation(ctx *gin.Context) {
	controller := c.registry.Peek(ctx.Param("id"))

	messages, err := controller.Messages(ctx.Request.Context())
	if err != nil {
		ctx.Error(err)
		return
	}
	if messages == nil {
		messages = []conversation.Message{}
	}

	ctx.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"busy":     controller.Busy(),
	})
}

// SubmitText asks a typed question
func (c *ConversationController) SubmitText(ctx *gin.Context) {
	var req SubmitTextRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.Error(errors.ValidationError("Request body must be a JSON object", nil))
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		ctx.Status(http.StatusNoContent)
		return
	}

	exchange, err := c.registry.Get(ctx.Param("id")).SubmitText(ctx.Request.Context(), req.Text)
	c.respond(ctx, exchange, err)
}

// SubmitImage asks about an image. Without text, the image's extracted text is
// the question, or the extraction failure notice when OCR fails.
func (c *ConversationController) SubmitImage(ctx *gin.Context) {
	var req SubmitImageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.Error(errors.ValidationError("imageBase64 is required", []errors.FieldError{
			{Field: "imageBase64", Message: "imageBase64 is required"},
		}))
		return
	}

	text := req.Text
	if strings.TrimSpace(text) == "" && c.extractor != nil {
		extracted, err := c.extractor.ExtractText(ctx.Request.Context(), req.ImageBase64)
		if err != nil {
			logger.FromContext(ctx.Request.Context(), logger.Discard()).Warn("Text extraction failed", "error", err.Error())
			extracted = ocr.FailureNotice
		}
		text = extracted
	}

	if strings.TrimSpace(text) == "" {
		ctx.Status(http.StatusNoContent)
		return
	}

	exchange, err := c.registry.Get(ctx.Param("id")).SubmitImageText(ctx.Request.Context(), req.ImageBase64, text)
	c.respond(ctx, exchange, err)
}

// ClearConversation empties the conversation
func (c *ConversationController) ClearConversation(ctx *gin.Context) {
	controller := c.registry.Peek(ctx.Param("id"))
	if err := controller.ClearConversation(ctx.Request.Context()); err != nil {
		ctx.Error(err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *ConversationController) respond(ctx *gin.Context, exchange *conversation.Exchange, err error) {
	switch {
	case stderrors.Is(err, conversation.ErrBusy):
		ctx.Error(errors.NewConflictError("BUSY", "A question is already being answered"))
	case err != nil:
		ctx.Error(err)
	case exchange == nil:
		ctx.Status(http.StatusNoContent)
	default:
		ctx.JSON(http.StatusOK, exchange)
	}
}
