package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopherai-docqa/internal/app"
	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/transport/http/response"
)

type fakeUploader struct {
	got    []app.UploadFile
	result *app.UploadResult
}

func (f *fakeUploader) Upload(_ context.Context, files []app.UploadFile) *app.UploadResult {
	f.got = files
	return f.result
}

type fakeCatalog struct {
	docs      []model.Document
	deleted   []string
	deleteErr error
	file      string
	openErr   error
}

func (f *fakeCatalog) List() []model.Document { return f.docs }

func (f *fakeCatalog) Delete(_ context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeCatalog) OpenFile(_ context.Context, id string) (io.ReadCloser, int64, model.Document, error) {
	if f.openErr != nil {
		return nil, 0, model.Document{}, f.openErr
	}
	return io.NopCloser(strings.NewReader(f.file)), int64(len(f.file)), model.Document{ID: id, Filename: "report.pdf"}, nil
}

type fakeAsker struct {
	result *app.AskResult
	err    error
}

func (f *fakeAsker) Ask(context.Context, string) (*app.AskResult, error) {
	return f.result, f.err
}

type fakeHistory struct {
	records   []model.ChatRecord
	gotLimit  int
	returnErr error
}

func (f *fakeHistory) List(_ context.Context, limit int) ([]model.ChatRecord, error) {
	f.gotLimit = limit
	return f.records, f.returnErr
}

func newRouter(docs *DocumentHandler, chat *ChatHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/", Banner)
	r.POST("/api/documents/upload", docs.Upload)
	r.GET("/api/documents", docs.List)
	r.DELETE("/api/documents/:id", docs.Delete)
	r.GET("/api/documents/:id/file", docs.Download)
	r.POST("/api/chat", chat.Ask)
	r.GET("/api/chat/history", chat.GetHistory)
	return r
}

func multipartBody(t *testing.T, field string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for name, content := range files {
		part, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response.APIResponse {
	t.Helper()
	var resp response.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestUpload_PartialSuccess(t *testing.T) {
	uploader := &fakeUploader{result: &app.UploadResult{
		Uploaded:    1,
		Failed:      1,
		FailedFiles: []app.FailedFile{{Filename: "notes.txt", Error: "only PDF files are supported"}},
	}}
	r := newRouter(NewDocumentHandler(uploader, &fakeCatalog{}), NewChatHandler(&fakeAsker{}, &fakeHistory{}))

	body, contentType := multipartBody(t, "files", map[string]string{"a.pdf": "%PDF-1.4", "notes.txt": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, response.CodeOK, decode(t, rec).Code)
	require.Len(t, uploader.got, 2)
	names := []string{uploader.got[0].Filename, uploader.got[1].Filename}
	assert.ElementsMatch(t, []string{"a.pdf", "notes.txt"}, names)
}

func TestUpload_AllFailedIsBadRequest(t *testing.T) {
	uploader := &fakeUploader{result: &app.UploadResult{
		Failed:      1,
		FailedFiles: []app.FailedFile{{Filename: "notes.txt", Error: "only PDF files are supported"}},
	}}
	r := newRouter(NewDocumentHandler(uploader, &fakeCatalog{}), NewChatHandler(&fakeAsker{}, &fakeHistory{}))

	body, contentType := multipartBody(t, "files", map[string]string{"notes.txt": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, response.CodeUploadRejected, resp.Code)
	assert.Contains(t, rec.Body.String(), "only PDF files are supported")
}

func TestUpload_NoFiles(t *testing.T) {
	uploader := &fakeUploader{}
	r := newRouter(NewDocumentHandler(uploader, &fakeCatalog{}), NewChatHandler(&fakeAsker{}, &fakeHistory{}))

	body, contentType := multipartBody(t, "other", map[string]string{"a.pdf": "x"})
	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, uploader.got)
}

func TestListDocuments(t *testing.T) {
	catalog := &fakeCatalog{docs: []model.Document{{ID: "d1", Filename: "a.pdf", NumChunks: 3}}}
	r := newRouter(NewDocumentHandler(&fakeUploader{}, catalog), NewChatHandler(&fakeAsker{}, &fakeHistory{}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data []struct {
			ID        string `json:"id"`
			Filename  string `json:"filename"`
			NumChunks int    `json:"num_chunks"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "d1", resp.Data[0].ID)
	assert.Equal(t, 3, resp.Data[0].NumChunks)
}

func TestDeleteDocument(t *testing.T) {
	catalog := &fakeCatalog{}
	r := newRouter(NewDocumentHandler(&fakeUploader{}, catalog), NewChatHandler(&fakeAsker{}, &fakeHistory{}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/documents/d1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"d1"}, catalog.deleted)
}

func TestDeleteDocument_NotFound(t *testing.T) {
	catalog := &fakeCatalog{deleteErr: fmt.Errorf("%w: document d1", app.ErrNotFound)}
	r := newRouter(NewDocumentHandler(&fakeUploader{}, catalog), NewChatHandler(&fakeAsker{}, &fakeHistory{}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/documents/d1", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, response.CodeDocumentNotFound, decode(t, rec).Code)
}

func TestDownload(t *testing.T) {
	catalog := &fakeCatalog{file: "%PDF-1.4 body"}
	r := newRouter(NewDocumentHandler(&fakeUploader{}, catalog), NewChatHandler(&fakeAsker{}, &fakeHistory{}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents/d1/file", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "report.pdf")
	assert.Equal(t, "%PDF-1.4 body", rec.Body.String())
}

func TestDownload_NoArchive(t *testing.T) {
	catalog := &fakeCatalog{openErr: fmt.Errorf("%w: no archived file", app.ErrNotFound)}
	r := newRouter(NewDocumentHandler(&fakeUploader{}, catalog), NewChatHandler(&fakeAsker{}, &fakeHistory{}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents/d1/file", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAsk(t *testing.T) {
	asker := &fakeAsker{result: &app.AskResult{
		Answer:  "Revenue grew 12%.",
		Sources: []model.Citation{{Filename: "q3.pdf", Page: 2, Text: "Revenue grew..."}},
	}}
	r := newRouter(NewDocumentHandler(&fakeUploader{}, &fakeCatalog{}), NewChatHandler(asker, &fakeHistory{}))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"question":"How did revenue change?"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data app.AskResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Revenue grew 12%.", resp.Data.Answer)
	require.Len(t, resp.Data.Sources, 1)
	assert.Equal(t, 2, resp.Data.Sources[0].Page)
}

func TestAsk_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   int
	}{
		{"missing question", nil, http.StatusBadRequest, response.CodeBadRequest},
		{"validation", &app.AskError{State: app.StateReceived, Err: app.ErrValidation}, http.StatusBadRequest, response.CodeBadRequest},
		{"embedding", &app.AskError{State: app.StateReceived, Err: app.ErrEmbedding}, http.StatusBadGateway, response.CodeEmbeddingFailed},
		{"generation", &app.AskError{State: app.StateRetrieved, Err: app.ErrGeneration}, http.StatusBadGateway, response.CodeGenerationFailed},
		{"other", errors.New("boom"), http.StatusInternalServerError, response.CodeInternalServer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(NewDocumentHandler(&fakeUploader{}, &fakeCatalog{}), NewChatHandler(&fakeAsker{err: tc.err}, &fakeHistory{}))
			payload := `{"question":"q"}`
			if tc.err == nil {
				payload = `{}`
			}
			req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(payload))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decode(t, rec).Code)
		})
	}
}

func TestGetHistory(t *testing.T) {
	asked := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	history := &fakeHistory{records: []model.ChatRecord{
		{ID: "c1", Question: "q", Answer: "a", Sources: model.StringList{"a.pdf"}, Timestamp: asked},
		{ID: "c2", Question: "q2", Answer: "a2", Timestamp: asked},
	}}
	r := newRouter(NewDocumentHandler(&fakeUploader{}, &fakeCatalog{}), NewChatHandler(&fakeAsker{}, history))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/history?limit=10", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, history.gotLimit)
	var resp struct {
		Data []historyItem `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "2026-03-01T09:30:00Z", resp.Data[0].Timestamp)
	assert.Equal(t, model.StringList{"a.pdf"}, resp.Data[0].Sources)
	assert.NotNil(t, resp.Data[1].Sources)
	assert.Empty(t, resp.Data[1].Sources)
}

func TestGetHistory_InvalidLimit(t *testing.T) {
	r := newRouter(NewDocumentHandler(&fakeUploader{}, &fakeCatalog{}), NewChatHandler(&fakeAsker{}, &fakeHistory{}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/history?limit=abc", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler("docqa", "test", time.Now(), map[string]DependencyCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}, func() int { return 42 })
	r := gin.New()
	r.GET("/healthz", h.Check)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		IndexedChunks int                         `json:"indexed_chunks"`
		Dependencies  map[string]dependencyStatus `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 42, body.IndexedChunks)
	assert.True(t, body.Dependencies["database"].OK)
	assert.False(t, body.Dependencies["redis"].OK)
	assert.Equal(t, "connection refused", body.Dependencies["redis"].Message)
}

func TestBanner(t *testing.T) {
	r := newRouter(NewDocumentHandler(&fakeUploader{}, &fakeCatalog{}), NewChatHandler(&fakeAsker{}, &fakeHistory{}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Enterprise Document Q&A API", body["message"])
}
