package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docchat/internal/app"
	"docchat/internal/logger"
	"docchat/internal/model"
	"docchat/internal/repository"
	"docchat/internal/transport/http/response"
)

type DocumentService interface {
	Upload(ctx context.Context, in app.UploadInput) (*app.UploadResult, error)
	List(ctx context.Context) ([]model.Document, error)
	Get(ctx context.Context, id string) (*model.Document, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*repository.DocumentStats, error)
}

type DocumentHandler struct {
	documents      DocumentService
	maxUploadBytes int64
}

func NewDocumentHandler(documents DocumentService, maxUploadBytes int64) *DocumentHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = app.DefaultMaxUploadBytes
	}
	return &DocumentHandler{documents: documents, maxUploadBytes: maxUploadBytes}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "no file uploaded")
		return
	}
	if header.Size > h.maxUploadBytes {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeTooLarge, app.ErrDocumentTooLarge.Error())
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read upload failed")
		return
	}
	defer file.Close()

	// One byte over the limit is enough for the service to reject it.
	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read upload failed")
		return
	}

	result, err := h.documents.Upload(c.Request.Context(), app.UploadInput{
		FileName: header.Filename,
		Title:    strings.TrimSpace(c.PostForm("title")),
		Data:     data,
	})
	if err != nil {
		writeDocumentError(c, err, "upload failed")
		return
	}

	response.OK(c, result)
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.documents.List(c.Request.Context())
	if err != nil {
		writeDocumentError(c, err, "list documents failed")
		return
	}
	response.OK(c, gin.H{"documents": docs, "count": len(docs)})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDocumentError(c, err, "get document failed")
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.documents.Delete(c.Request.Context(), id); err != nil {
		writeDocumentError(c, err, "delete document failed")
		return
	}
	response.OK(c, gin.H{"deletedDocumentId": id})
}

func (h *DocumentHandler) Stats(c *gin.Context) {
	stats, err := h.documents.Stats(c.Request.Context())
	if err != nil {
		writeDocumentError(c, err, "document stats failed")
		return
	}
	response.OK(c, stats)
}

func writeDocumentError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrUnsupportedFormat):
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedFormat, err.Error())
	case errors.Is(err, app.ErrDocumentEmpty):
		response.Error(c, http.StatusBadRequest, response.CodeDocumentEmpty, err.Error())
	case errors.Is(err, app.ErrDocumentTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeTooLarge, err.Error())
	case errors.Is(err, app.ErrDocumentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
	case errors.Is(err, app.ErrIngestionFailed):
		logger.Error("document request failed", "error", err)
		response.Error(c, http.StatusBadGateway, response.CodeIngestionFailed, ingestionMessage(err))
	default:
		logger.Error("document request failed", "error", err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func ingestionMessage(err error) string {
	var ie *app.IngestionError
	if errors.As(err, &ie) {
		return fmt.Sprintf("%s at batch %d", app.ErrIngestionFailed, ie.Batch+1)
	}
	return app.ErrIngestionFailed.Error()
}
