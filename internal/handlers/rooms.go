package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/peerplay/internal/directory"
	"github.com/jason-s-yu/peerplay/internal/rules"
	"github.com/sirupsen/logrus"
)

func roomID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// gameFilter parses the optional ?game= query parameter.
func gameFilter(r *http.Request) (rules.GameType, error) {
	q := r.URL.Query().Get("game")
	if q == "" {
		return "", nil
	}
	return rules.ParseGameType(q)
}

func (s *APIServer) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req directory.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad room request payload", http.StatusBadRequest)
		return
	}
	if req.HostName == "" {
		req.HostName = claims.Name
	}
	room, err := s.dir.CreateRoom(r.Context(), req.HostName, req.HostID, req.GameType, req.IsPrivate)
	if err != nil {
		s.writeDirectoryError(w, r, err)
		return
	}
	s.logger.WithFields(logrus.Fields{
		"room":    room.ID,
		"game":    room.GameType,
		"player":  claims.PlayerID(),
		"private": room.IsPrivate,
	}).Info("room created")
	writeJSON(w, http.StatusCreated, room)
}

func (s *APIServer) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	game, err := gameFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rooms, err := s.dir.ListWaiting(r.Context(), game)
	if err != nil {
		s.writeDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (s *APIServer) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := roomID(w, r)
	if !ok {
		return
	}
	room, err := s.dir.GetRoom(r.Context(), id)
	if err != nil {
		s.writeDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// JoinRoomHandler answers 200 to the single winner and 409 to everyone else.
func (s *APIServer) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	id, ok := roomID(w, r)
	if !ok {
		return
	}
	joined, err := s.dir.TryJoinRoom(r.Context(), id)
	if err != nil {
		s.writeDirectoryError(w, r, err)
		return
	}
	log := s.logger.WithFields(logrus.Fields{"room": id, "player": claims.PlayerID()})
	if !joined {
		log.Debug("join lost")
		writeJSON(w, http.StatusConflict, directory.JoinResponse{Joined: false})
		return
	}
	log.Info("room joined")
	writeJSON(w, http.StatusOK, directory.JoinResponse{Joined: true})
}

func (s *APIServer) CloseRoomHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	id, ok := roomID(w, r)
	if !ok {
		return
	}
	closed, err := s.dir.CloseRoom(r.Context(), id)
	if err != nil {
		s.writeDirectoryError(w, r, err)
		return
	}
	if closed {
		s.logger.WithFields(logrus.Fields{"room": id, "player": claims.PlayerID()}).Info("room closed")
	}
	writeJSON(w, http.StatusOK, directory.CloseResponse{Closed: closed})
}
