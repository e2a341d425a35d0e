package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MrWong99/privanote/internal/analysis"
	"github.com/MrWong99/privanote/internal/export"
	"github.com/MrWong99/privanote/internal/meeting"
	"github.com/MrWong99/privanote/internal/pipeline"
	"github.com/MrWong99/privanote/pkg/types"
)

// multipartMemory is the part of an upload kept in memory before spilling
// to disk.
const multipartMemory = 32 << 20

// handleUpload handles POST /api/meetings. The multipart form carries the
// recording in "file" and the metadata in "title", "date", "notes",
// "provider" and "language".
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, r, fmt.Errorf("api: parse form: %w", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	var provider types.ProviderID
	if raw := r.FormValue("provider"); raw != "" {
		p, err := types.ParseProviderID(raw)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		provider = p
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "file is required")
		return
	}
	defer file.Close()

	path, err := s.spool(file, hdr.Filename)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer os.Remove(path)

	m, err := s.app.Process(r.Context(), pipeline.Request{
		Path:     path,
		Title:    r.FormValue("title"),
		Date:     r.FormValue("date"),
		Notes:    r.FormValue("notes"),
		Provider: provider,
		Language: r.FormValue("language"),
		Source:   types.SourceUploaded,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// spool copies an upload to a temporary file that keeps the original
// extension, which the ingestor uses to pick a decoder.
func (s *Server) spool(src io.Reader, name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	f, err := os.CreateTemp(s.app.Config().Audio.TempDir, "privanote-upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("api: spool upload: %w", err)
	}
	_, err = io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("api: spool upload: %w", err)
	}
	return f.Name(), nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ms, err := s.app.Store().List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	m, err := s.app.Store().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Summary length bounds for GET /api/meetings/{id}/summary.
const (
	defaultSummaryWords = 150
	maxSummaryWords     = 1000
)

// summaryResponse is the body of GET /api/meetings/{id}/summary.
type summaryResponse struct {
	ID          string           `json:"id"`
	Provider    types.ProviderID `json:"provider"`
	Words       int              `json:"words"`
	Summary     string           `json:"summary"`
	ActionItems []string         `json:"action_items"`
}

// handleSummary handles GET /api/meetings/{id}/summary?words=&provider=. It
// writes a fresh summary of the stored transcript and lists the sentences
// that read like action items. Nothing is persisted.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	words := defaultSummaryWords
	if raw := q.Get("words"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxSummaryWords {
			badRequest(w, fmt.Sprintf("words must be between 1 and %d", maxSummaryWords))
			return
		}
		words = n
	}
	provider := s.app.Provider()
	if raw := q.Get("provider"); raw != "" {
		p, err := types.ParseProviderID(raw)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		provider = p
	}

	m, err := s.app.Store().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		ID:          m.ID,
		Provider:    provider,
		Words:       words,
		Summary:     s.app.Router().Summarize(r.Context(), m.Transcript, words, provider),
		ActionItems: analysis.ExtractActionItems(m.Transcript),
	})
}

// handleUpdate handles PATCH /api/meetings/{id} and returns the updated
// meeting.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var p meeting.Patch
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	id := r.PathValue("id")
	ok, err := s.app.Store().Update(r.Context(), id, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, meeting.ErrNotFound)
		return
	}
	m, err := s.app.Store().Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ok, err := s.app.Store().Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, meeting.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Store().ClearAll(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSearch handles GET /api/search?q=...&fields=title,notes.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		badRequest(w, "q is required")
		return
	}
	var names []string
	if raw := r.URL.Query().Get("fields"); raw != "" {
		names = strings.Split(raw, ",")
	}
	fields, err := meeting.ParseFields(names)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ms, err := s.app.Store().Search(r.Context(), q, fields...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.app.Store().Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleExport handles GET /api/meetings/{id}/export?format=markdown|json.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	f, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	m, err := s.app.Store().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := export.Render(m, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(m, f)))
	_, _ = io.WriteString(w, doc)
}

func (s *Server) handleExportAll(w http.ResponseWriter, r *http.Request) {
	a, err := s.app.Store().ExportAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := export.ArchiveJSON(a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="privanote_export.json"`)
	_, _ = io.WriteString(w, doc)
}

type importResponse struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// handleImport handles POST /api/import with an archive produced by
// GET /api/export.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	a, err := export.ReadArchive(r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.app.Store().Import(r.Context(), a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{Imported: n, Skipped: len(a.Meetings) - n})
}
