package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/keeper-notes-be/internal/apperr"
	"github.com/isdelr/keeper-notes-be/internal/auth"
	"github.com/isdelr/keeper-notes-be/internal/models"
	"github.com/isdelr/keeper-notes-be/internal/services"
)

const msgNoteNotFound = "Note not found"

// NoteHandler handles HTTP requests for the caller's notes.
type NoteHandler struct {
	service services.NoteServiceProvider
}

// NewNoteHandler creates a new NoteHandler.
func NewNoteHandler(service services.NoteServiceProvider) *NoteHandler {
	return &NoteHandler{service: service}
}

// GetAll lists the caller's notes, newest first.
func (h *NoteHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	notes, err := h.service.ListNotes(r.Context(), accountID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, notes)
}

// Create adds a note for the caller.
func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var payload models.NoteInput
	if !decodeJSON(w, r, &payload) {
		return
	}

	note, err := h.service.CreateNote(r.Context(), accountID, payload)
	if err != nil {
		respondError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, note)
}

// Update applies the provided fields to one of the caller's notes.
func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	noteID, ok := noteIDParam(r)
	if !ok {
		WriteError(w, http.StatusNotFound, msgNoteNotFound)
		return
	}

	var payload models.NoteInput
	if !decodeJSON(w, r, &payload) {
		return
	}

	note, err := h.service.UpdateNote(r.Context(), accountID, noteID, payload)
	if err != nil {
		respondError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, note)
}

// Delete removes one of the caller's notes.
func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	noteID, ok := noteIDParam(r)
	if !ok {
		WriteError(w, http.StatusNotFound, msgNoteNotFound)
		return
	}

	if err := h.service.DeleteNote(r.Context(), accountID, noteID); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// accountID returns the caller set by auth.Middleware. A miss means the
// route was mounted without the middleware.
func (h *NoteHandler) accountID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, r, apperr.Unauthorized(auth.InvalidTokenMessage))
		return "", false
	}
	return id, true
}

// noteIDParam parses the {id} path segment. Ids that are not positive
// integers cannot name a stored note.
func noteIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
