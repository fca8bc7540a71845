// Package handler serves the document API: ingestion, lookup by id and the
// administrative recompute.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/logger"
)

// maxBodyBytes leaves room for JSON escaping around the largest document.
const maxBodyBytes = 4 * validator.MaxContentLength

// Indexer is the subset of *indexer.Engine the document API needs.
type Indexer interface {
	AddDocument(ctx context.Context, content string) (int64, error)
	GetDocument(ctx context.Context, id int64) (corpus.Document, error)
	Recompute(ctx context.Context) (indexer.RecomputeStats, error)
}

type Handler struct {
	indexer Indexer
	logger  *slog.Logger
}

func New(idx Indexer) *Handler {
	return &Handler{
		indexer: idx,
		logger:  slog.Default().With("component", "document-handler"),
	}
}

// AddDocument handles POST /api/documents.
func (h *Handler) AddDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req ingestion.DocumentRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateDocumentRequest(&req); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	docID, err := h.indexer.AddDocument(ctx, req.Content)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed",
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, apperrors.PublicMessage(err))
		return
	}
	h.writeJSON(w, http.StatusCreated, ingestion.DocumentResponse{DocID: docID})
}

// GetDocument handles GET /api/documents/{id}.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		h.writeError(w, http.StatusBadRequest, "document id must be a positive integer")
		return
	}
	doc, err := h.indexer.GetDocument(r.Context(), id)
	if err != nil {
		h.fail(r, w, "document lookup failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, ingestion.DocumentView{
		DocID:     doc.ID,
		Content:   doc.Content,
		CreatedAt: doc.CreatedAt,
	})
}

type recomputeResponse struct {
	Documents  int64 `json:"documents"`
	Terms      int   `json:"terms"`
	Vectors    int   `json:"vectors"`
	Dropped    int   `json:"dropped"`
	DurationMs int64 `json:"durationMs"`
}

// Recompute handles POST /api/admin/recompute.
func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	stats, err := h.indexer.Recompute(r.Context())
	if err != nil {
		h.fail(r, w, "recompute failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, recomputeResponse{
		Documents:  stats.Documents,
		Terms:      stats.Terms,
		Vectors:    stats.Vectors,
		Dropped:    stats.Dropped,
		DurationMs: stats.Duration.Milliseconds(),
	})
}

func (h *Handler) fail(r *http.Request, w http.ResponseWriter, msg string, err error) {
	statusCode := apperrors.HTTPStatusCode(err)
	if statusCode >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error(msg, "error", err, "status_code", statusCode)
	}
	h.writeError(w, statusCode, apperrors.PublicMessage(err))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
