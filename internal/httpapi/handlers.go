package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spal-labs/transcriberd/internal/jobs"
	"github.com/spal-labs/transcriberd/pkg/slug"
)

// handleJobs serves the creation-ordered snapshot the polling frontend
// consumes. Each request gets its own consistent read.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.store.List())
}

// handleJobByID routes /api/jobs/{id} and /api/jobs/{id}/{action}.
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	rest = strings.TrimSuffix(rest, "/")
	id, action, _ := strings.Cut(rest, "/")
	if decoded, err := url.PathUnescape(id); err == nil {
		id = decoded
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}

	switch action {
	case "":
		s.handleGetJob(w, r, id)
	case "cancel":
		s.handleCancelJob(w, r, id)
	case "sendmail":
		s.handleSendMail(w, r, id)
	case "log":
		s.handleJobLog(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	job, err := s.store.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleJobLog serves the per-job event history appended by the worker.
func (s *Server) handleJobLog(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	job, err := s.store.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	lines := job.Log
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, lines)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	err := s.store.Cancel(id)
	switch {
	case err == nil:
	case errors.Is(err, jobs.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	default:
		// Already claimed or terminal.
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	job, err := s.store.Get(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleSendMail is the manual re-dispatch hook for done jobs whose automatic
// notification failed or was disabled.
func (s *Server) handleSendMail(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.dispatcher == nil {
		writeError(w, http.StatusNotImplemented, "mail dispatch is not configured")
		return
	}
	job, err := s.store.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if job.Status != jobs.StatusDone {
		writeError(w, http.StatusConflict, "job is not done")
		return
	}
	if err := s.dispatcher.Notify(job); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	job, _ = s.store.Get(id)
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.dataDir == "" {
		writeError(w, http.StatusNotImplemented, "upload is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed")
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	file, header, err := r.FormFile("file")
	if name == "" || err != nil {
		writeError(w, http.StatusBadRequest, "file and name are required")
		return
	}
	defer file.Close()

	group := strings.TrimSpace(r.FormValue("group"))
	if group != "" && (s.resolver == nil || !s.resolver.Known(group)) {
		writeError(w, http.StatusBadRequest, "unknown recipient group")
		return
	}

	jobSlug := s.uniqueSlug(slug.Make(name))
	sourcePath, err := s.saveUpload(jobSlug, header.Filename, file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	job, err := s.store.Create(jobs.CreateRequest{
		Name:       name,
		Slug:       jobSlug,
		SourcePath: sourcePath,
		Group:      group,
	})
	if err != nil {
		// Durable write failed; the job is not visible. Drop the orphan file.
		_ = os.Remove(sourcePath)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.queue.Enqueue(job.ID)
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) uniqueSlug(base string) string {
	taken := make(map[string]struct{})
	for _, job := range s.store.List() {
		taken[job.Slug] = struct{}{}
	}
	return slug.Unique(base, func(candidate string) bool {
		if _, ok := taken[candidate]; ok {
			return true
		}
		_, err := os.Stat(filepath.Join(s.dataDir, candidate))
		return err == nil
	})
}

func (s *Server) saveUpload(jobSlug, filename string, src io.Reader) (string, error) {
	dir := filepath.Join(s.dataDir, jobSlug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	base := filepath.Base(filename)
	if base == "." || base == "/" || base == "" {
		base = "media.bin"
	}
	path := filepath.Join(dir, base)
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.resolver == nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	groups := s.resolver.Groups()
	if groups == nil {
		groups = []string{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleSMTPTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.tester == nil {
		writeError(w, http.StatusNotImplemented, "mail dispatch is not configured")
		return
	}
	if err := s.tester.SmokeTest(); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleDownload serves job files (transcript, source) as attachments.
// Paths are /files/{slug}/{filename}; traversal outside dataDir is rejected.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.dataDir == "" {
		writeError(w, http.StatusNotImplemented, "file serving is not configured")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/files/")
	jobSlug, filename, ok := strings.Cut(rest, "/")
	if !ok || jobSlug == "" || filename == "" {
		writeError(w, http.StatusBadRequest, "expected /files/{slug}/{filename}")
		return
	}
	if jobSlug != filepath.Base(jobSlug) || filename != filepath.Base(filename) {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}

	path := filepath.Join(s.dataDir, jobSlug, filename)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	http.ServeFile(w, r, path)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
