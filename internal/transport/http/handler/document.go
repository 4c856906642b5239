package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"gopherai-docqa/internal/app"
	"gopherai-docqa/internal/archive"
	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/transport/http/response"
)

// Uploader ingests a batch of files.
type Uploader interface {
	Upload(ctx context.Context, files []app.UploadFile) *app.UploadResult
}

// DocumentCatalog is the read and delete side of the document registry.
type DocumentCatalog interface {
	List() []model.Document
	Delete(ctx context.Context, id string) error
	OpenFile(ctx context.Context, id string) (io.ReadCloser, int64, model.Document, error)
}

type DocumentHandler struct {
	uploader Uploader
	catalog  DocumentCatalog
}

func NewDocumentHandler(uploader Uploader, catalog DocumentCatalog) *DocumentHandler {
	return &DocumentHandler{uploader: uploader, catalog: catalog}
}

// Upload accepts a multipart form with one or more "files" parts. The batch
// succeeds when at least one file is ingested.
func (h *DocumentHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid multipart form")
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		headers = form.File["file"]
	}
	if len(headers) == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "no files uploaded")
		return
	}

	files := make([]app.UploadFile, 0, len(headers))
	for _, fh := range headers {
		data, err := readFormFile(fh)
		if err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
			return
		}
		files = append(files, app.UploadFile{Filename: filepath.Base(fh.Filename), Data: data})
	}

	result := h.uploader.Upload(c.Request.Context(), files)
	if result.Uploaded == 0 && result.Failed > 0 {
		response.ErrorWithData(c, http.StatusBadRequest, response.CodeUploadRejected, "all files failed to upload", result)
		return
	}
	response.OK(c, result)
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s failed: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s failed: %w", fh.Filename, err)
	}
	return data, nil
}

func (h *DocumentHandler) List(c *gin.Context) {
	response.OK(c, h.catalog.List())
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}
	if err := h.catalog.Delete(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, app.ErrNotFound):
			response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, "document not found")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete document failed")
		}
		return
	}
	response.OK(c, gin.H{"deleted_document_id": id})
}

// Download streams the archived original file.
func (h *DocumentHandler) Download(c *gin.Context) {
	rc, size, doc, err := h.catalog.OpenFile(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, app.ErrNotFound), errors.Is(err, archive.ErrNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, "file not found")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "open file failed")
		}
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, size, "application/pdf", rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", doc.Filename),
	})
}
