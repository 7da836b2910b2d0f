package httpapi

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quickcall/quickcall/internal/uploads"
)

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	items, err := s.files.List(r.Context())
	if err != nil {
		s.logger.Error("Failed to list uploads.", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	// Cap the whole request body; the store enforces the per-file limit.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart form must contain a 'file' part")
		return
	}
	defer file.Close()

	item, err := s.files.Save(r.Context(), header.Filename, file)
	switch {
	case errors.Is(err, uploads.ErrBadName):
		writeError(w, http.StatusBadRequest, "invalid file name")
	case errors.Is(err, uploads.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the size limit")
	case err != nil:
		s.logger.Error("Upload failed.", "name", header.Filename, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusCreated, item)
	}
}

// handleAttachFiles exposes the upload source to an agent so the platform
// can ground the agent's answers on the uploaded files.
func (s *Server) handleAttachFiles(w http.ResponseWriter, r *http.Request) {
	if err := s.files.Attach(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.logger.Error("Attach failed.", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	err := s.files.Delete(r.Context(), mux.Vars(r)["id"])
	switch {
	case errors.Is(err, uploads.ErrNotFound):
		writeError(w, http.StatusNotFound, "file not found")
	case err != nil:
		s.logger.Error("Delete failed.", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
