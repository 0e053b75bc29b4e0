package handlers

import (
	"net/http"

	"github.com/kimhsiao/promptdeck/internal/errors"
	"github.com/kimhsiao/promptdeck/internal/mode"
)

// SessionSource turns HTTP login/logout calls into the session stream
// the mode controller consumes.
type SessionSource struct {
	ch chan *mode.Session
}

// NewSessionSource creates a SessionSource.
func NewSessionSource() *SessionSource {
	return &SessionSource{ch: make(chan *mode.Session, 8)}
}

// Sessions implements mode.AuthService.
func (s *SessionSource) Sessions() <-chan *mode.Session {
	return s.ch
}

// AuthHandler serves /api/auth.
type AuthHandler struct {
	source *SessionSource
	ctrl   *mode.Controller
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(source *SessionSource, ctrl *mode.Controller) *AuthHandler {
	return &AuthHandler{source: source, ctrl: ctrl}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
		Email  string `json:"email"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.UserID == "" {
		writeError(w, errors.New(errors.ErrInvalid, "userId is required"))
		return
	}

	select {
	case h.source.ch <- &mode.Session{UserID: body.UserID, Email: body.Email}:
		writeJSON(w, http.StatusAccepted, map[string]string{"userId": body.UserID})
	default:
		writeError(w, errors.New(errors.ErrInternal, "session change already pending"))
	}
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	select {
	case h.source.ch <- nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "logging out"})
	default:
		writeError(w, errors.New(errors.ErrInternal, "session change already pending"))
	}
}

// Session handles GET /api/auth/session.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mode":   string(h.ctrl.Mode()),
		"userId": h.ctrl.UserID(),
	})
}
