package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lectern-ai/lectern/internal/docstore"
)

const uploadFormLimit = 20 << 20

type documentSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TextBytes int       `json:"text_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

func summarize(doc docstore.Document) documentSummary {
	return documentSummary{
		ID:        doc.ID,
		Name:      doc.Name,
		TextBytes: len(doc.Text),
		CreatedAt: doc.CreatedAt,
	}
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(uploadFormLimit); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_upload", err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing_file", "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	text, err := s.extractor.ExtractText(r.Context(), header.Filename, file)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "extract_failed", err.Error())
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = header.Filename
	}
	if name == "" {
		name = "untitled"
	}

	doc := docstore.Document{
		ID:        uuid.NewString(),
		Name:      name,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveDocument(r.Context(), doc); err != nil {
		respondError(w, http.StatusInternalServerError, "store_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, summarize(doc))
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	docs, err := s.store.ListDocuments(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_failed", err.Error())
		return
	}
	out := make([]documentSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, summarize(d))
	}
	respondJSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.store.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, docstore.ErrDocumentNotFound) {
			respondError(w, http.StatusNotFound, "document_not_found", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "store_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, doc)
}
