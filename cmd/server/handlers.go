package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/avelis/ragchat"
)

const (
	maxUploadFiles    = 10
	maxUploadBytes    = 50 << 20 // per file
	maxMultipartBytes = 512 << 20
)

type handler struct {
	engine ragchat.Engine
}

func newHandler(e ragchat.Engine) *handler {
	return &handler{engine: e}
}

// GET /api/health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.engine.Stats()
	models, _ := h.engine.Models(r.Context())
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.Model
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"documentsLoaded": stats.Documents,
		"totalChunks":     stats.Chunks,
		"availableModels": names,
	})
}

// GET /api/models
func (h *handler) handleModels(w http.ResponseWriter, r *http.Request) {
	models, current := h.engine.Models(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"models":       models,
		"currentModel": current,
	})
}

// POST /api/models/set
func (h *handler) handleSetModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Model == "" {
		writeError(w, http.StatusBadRequest, "model is required")
		return
	}

	if err := h.engine.SetModel(req.Model); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, current := h.engine.Models(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"currentModel": current,
	})
}

// uploadResult is the per-file status in an upload batch.
type uploadResult struct {
	Filename string `json:"filename"`
	Success  bool   `json:"success"`
	DocID    string `json:"docId,omitempty"`
	Chunks   int    `json:"chunks,omitempty"`
	Error    string `json:"error,omitempty"`
}

// POST /api/documents/upload
// Multipart upload, field "files". Per-file failures don't abort the
// batch; each file gets its own status in results.
func (h *handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files provided (use multipart field 'files')")
		return
	}
	if len(files) > maxUploadFiles {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("too many files: %d (max %d)", len(files), maxUploadFiles))
		return
	}

	results := make([]uploadResult, 0, len(files))
	processed, failed := 0, 0
	for _, fh := range files {
		res := h.ingestUpload(r, fh)
		if res.Success {
			processed++
		} else {
			failed++
		}
		results = append(results, res)
	}

	stats := h.engine.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"processed":      processed,
		"failed":         failed,
		"results":        results,
		"totalDocuments": stats.Documents,
		"totalChunks":    stats.Chunks,
	})
}

// ingestUpload stages one uploaded file on disk and runs it through the
// engine. All failure paths return a per-file result, never an HTTP error.
func (h *handler) ingestUpload(r *http.Request, fh *multipart.FileHeader) uploadResult {
	name := filepath.Base(fh.Filename)
	res := uploadResult{Filename: name}

	if fh.Size > maxUploadBytes {
		res.Error = fmt.Sprintf("file exceeds %d MB limit", maxUploadBytes>>20)
		return res
	}

	src, err := fh.Open()
	if err != nil {
		res.Error = "failed to read upload"
		return res
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "ragchat-upload-*"+filepath.Ext(name))
	if err != nil {
		res.Error = "failed to stage upload"
		return res
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		res.Error = "failed to save upload"
		return res
	}
	tmp.Close()

	ingested, err := h.engine.IngestFile(r.Context(), tmp.Name(), name)
	if err != nil {
		slog.Warn("upload ingest failed", "file", name, "error", err)
		res.Error = err.Error()
		return res
	}

	res.Success = true
	res.DocID = ingested.DocID
	res.Chunks = ingested.Chunks
	return res
}

// POST /api/documents/url
func (h *handler) handleIngestURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		writeError(w, http.StatusBadRequest, "url must start with http:// or https://")
		return
	}

	res, err := h.engine.IngestURL(r.Context(), req.URL)
	if err != nil {
		if errors.Is(err, ragchat.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("url ingest failed", "url", req.URL, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "failed to ingest url",
			"details": err.Error(),
		})
		return
	}

	stats := h.engine.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"docId":          res.DocID,
		"chunks":         res.Chunks,
		"totalDocuments": stats.Documents,
		"totalChunks":    stats.Chunks,
	})
}

// GET /api/documents
func (h *handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs := h.engine.ListDocuments()
	writeJSON(w, http.StatusOK, map[string]any{
		"documents":   docs,
		"totalChunks": h.engine.Stats().Chunks,
	})
}

// DELETE /api/documents/{id}
func (h *handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.engine.DeleteDocument(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// POST /api/documents/clear
func (h *handler) handleClearDocuments(w http.ResponseWriter, r *http.Request) {
	h.engine.ClearDocuments()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// POST /api/chat
func (h *handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message        string `json:"message"`
		ConversationID string `json:"conversationId,omitempty"`
		Mode           string `json:"mode,omitempty"`
		Streaming      bool   `json:"streaming,omitempty"` // accepted, not implemented
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	result, err := h.engine.Chat(r.Context(), ragchat.ChatRequest{
		Message:        req.Message,
		ConversationID: req.ConversationID,
		Mode:           req.Mode,
	})
	if err != nil {
		if errors.Is(err, ragchat.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("chat failed", "error", err)
		writeError(w, http.StatusInternalServerError, "chat failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// POST /api/search
func (h *handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"topK,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	results, err := h.engine.Search(r.Context(), req.Query, req.TopK)
	if err != nil {
		slog.Error("search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// GET /api/stats
func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Stats())
}

// GET /api/conversations/{id}
func (h *handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.engine.Conversation(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// DELETE /api/conversations/{id}
func (h *handler) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if !h.engine.DeleteConversation(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
