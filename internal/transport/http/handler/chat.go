package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"gopherai-docqa/internal/app"
	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/transport/http/response"
)

type Asker interface {
	Ask(ctx context.Context, question string) (*app.AskResult, error)
}

type HistoryLister interface {
	List(ctx context.Context, limit int) ([]model.ChatRecord, error)
}

type ChatHandler struct {
	asker   Asker
	history HistoryLister
}

type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

type historyItem struct {
	ID        string           `json:"id"`
	Question  string           `json:"question"`
	Answer    string           `json:"answer"`
	Sources   model.StringList `json:"sources"`
	Timestamp string           `json:"timestamp"`
}

func NewChatHandler(asker Asker, history HistoryLister) *ChatHandler {
	return &ChatHandler{asker: asker, history: history}
}

func (h *ChatHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.asker.Ask(c.Request.Context(), req.Question)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrValidation):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrEmbedding):
			response.Error(c, http.StatusBadGateway, response.CodeEmbeddingFailed, "embedding service unavailable")
		case errors.Is(err, app.ErrGeneration):
			response.Error(c, http.StatusBadGateway, response.CodeGenerationFailed, "answer generation failed")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "ask failed")
		}
		return
	}

	response.OK(c, result)
}

func (h *ChatHandler) GetHistory(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get history failed")
		return
	}

	items := make([]historyItem, 0, len(records))
	for _, r := range records {
		sources := r.Sources
		if sources == nil {
			sources = model.StringList{}
		}
		items = append(items, historyItem{
			ID:        r.ID,
			Question:  r.Question,
			Answer:    r.Answer,
			Sources:   sources,
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	response.OK(c, items)
}
