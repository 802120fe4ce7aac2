package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/peerplay/internal/directory"
)

// IdentityHandler issues a token for a player. A caller without a player id
// gets a fresh one; the token is also set as the auth cookie.
func (s *APIServer) IdentityHandler(w http.ResponseWriter, r *http.Request) {
	var req directory.IdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad identity payload", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > directory.MaxHostNameLen {
		http.Error(w, "name must be 1-64 characters", http.StatusBadRequest)
		return
	}
	if req.PlayerID == "" {
		req.PlayerID = uuid.NewString()
	} else if _, err := uuid.Parse(req.PlayerID); err != nil {
		http.Error(w, "invalid player id", http.StatusBadRequest)
		return
	}

	token, err := s.signer.CreateJWT(req.PlayerID, req.Name)
	if err != nil {
		s.logger.WithError(err).Error("failed to sign identity token")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookie,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	s.logger.WithField("player", req.PlayerID).Debug("issued identity token")
	writeJSON(w, http.StatusOK, directory.IdentityResponse{PlayerID: req.PlayerID, Name: req.Name, Token: token})
}
