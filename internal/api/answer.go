package api

import (
	"context"
	"net/http"
	"strings"

	"homework-helper/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Generator answers a question with an optional base64 image
type Generator interface {
	GenerateAnswer(ctx context.Context, content, imageBase64 string) (string, error)
}

// AnswerController relays questions to the configured model
type AnswerController struct {
	generator Generator
}

// NewAnswerController creates a new answer controller
func NewAnswerController(generator Generator) *AnswerController {
	return &AnswerController{generator: generator}
}

// GenerateAnswerRequest is the body of POST /api/generate-answer
type GenerateAnswerRequest struct {
	Content     string `json:"content"`
	ImageBase64 string `json:"imageBase64"`
}

// RegisterRoutes registers the routes for the answer controller
func (c *AnswerController) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/generate-answer", c.GenerateAnswer)
}

// GenerateAnswer answers {content, imageBase64}
func (c *AnswerController) GenerateAnswer(ctx *gin.Context) {
	var req GenerateAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.Error(errors.ValidationError("Request body must be a JSON object", nil))
		return
	}

	if strings.TrimSpace(req.Content) == "" && req.ImageBase64 == "" {
		ctx.Error(errors.ValidationError("Content or image is required", []errors.FieldError{
			{Field: "content", Message: "content or imageBase64 is required"},
		}))
		return
	}

	answer, err := c.generator.GenerateAnswer(ctx.Request.Context(), req.Content, req.ImageBase64)
	if err != nil {
		ctx.Error(err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"answer": answer})
}
