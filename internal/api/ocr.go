package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"

	"homework-helper/backend/pkg/errors"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

// DefaultMaxUploadBytes caps OCR uploads
const DefaultMaxUploadBytes = 5 << 20

// multipartOverhead allows for boundaries and part headers around the file
const multipartOverhead = 64 << 10

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// ImageExtractor recognizes text in an encoded image
type ImageExtractor interface {
	ExtractBytes(ctx context.Context, image []byte) (string, error)
}

// OCRController runs server-side text extraction on uploaded images
type OCRController struct {
	extractor ImageExtractor
	maxBytes  int64
}

// NewOCRController creates a new OCR controller; maxBytes <= 0 selects the default
func NewOCRController(extractor ImageExtractor, maxBytes int64) *OCRController {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &OCRController{extractor: extractor, maxBytes: maxBytes}
}

// RegisterRoutes registers the routes for the OCR controller
func (c *OCRController) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/ocr", c.ExtractText)
}

// ExtractText handles a multipart upload with a single "image" file
func (c *OCRController) ExtractText(ctx *gin.Context) {
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, c.maxBytes+multipartOverhead)

	file, err := ctx.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			ctx.Error(c.tooLarge())
			return
		}
		ctx.Error(errors.UploadRejected("No image file provided"))
		return
	}

	if file.Size > c.maxBytes {
		ctx.Error(c.tooLarge())
		return
	}
	if !allowedImageTypes[file.Header.Get("Content-Type")] {
		ctx.Error(errors.UploadRejected("Only JPEG and PNG images are allowed"))
		return
	}

	src, err := file.Open()
	if err != nil {
		ctx.Error(fmt.Errorf("error opening upload: %w", err))
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, c.maxBytes+1))
	if err != nil {
		ctx.Error(fmt.Errorf("error reading upload: %w", err))
		return
	}

	// The declared type is client-supplied; the bytes must agree
	if detected := mimetype.Detect(data); !allowedImageTypes[detected.String()] {
		ctx.Error(errors.UploadRejected("Only JPEG and PNG images are allowed"))
		return
	}

	text, err := c.extractor.ExtractBytes(ctx.Request.Context(), data)
	if err != nil {
		ctx.Error(err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"text": text})
}

func (c *OCRController) tooLarge() *errors.AppError {
	return errors.UploadRejected(fmt.Sprintf("Image exceeds the %d MB limit", c.maxBytes>>20))
}
