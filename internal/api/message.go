package api

import (
	"net/http"

	"homework-helper/backend/internal/models"
	"homework-helper/backend/internal/service"
	"homework-helper/backend/pkg/errors"
	"homework-helper/backend/pkg/validator"

	"github.com/gin-gonic/gin"
)

// MessageController handles message-related API endpoints
type MessageController struct {
	messageService *service.MessageService
}

// NewMessageController creates a new message controller
func NewMessageController(messageService *service.MessageService) *MessageController {
	return &MessageController{messageService: messageService}
}

// RegisterRoutes registers the routes for the message controller
func (c *MessageController) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/messages", c.GetUserMessages)
	router.POST("/messages", c.CreateMessage)
}

// GetUserMessages lists ?userId= messages oldest first
func (c *MessageController) GetUserMessages(ctx *gin.Context) {
	userID := ctx.Query("userId")
	if userID == "" {
		ctx.Error(errors.ValidationError("userId is required", []errors.FieldError{
			{Field: "userId", Message: "userId is required"},
		}))
		return
	}

	messages, err := c.messageService.GetUserMessages(ctx.Request.Context(), userID)
	if err != nil {
		ctx.Error(err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	ctx.JSON(http.StatusOK, messages)
}

// CreateMessage stores a message; id and timestamp are assigned here
func (c *MessageController) CreateMessage(ctx *gin.Context) {
	var req models.CreateMessageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.Error(errors.ValidationError("Invalid data", validator.FieldErrors(err)))
		return
	}

	message, err := c.messageService.CreateMessage(ctx.Request.Context(), &req)
	if err != nil {
		ctx.Error(err)
		return
	}

	ctx.JSON(http.StatusCreated, message)
}
