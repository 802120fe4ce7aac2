package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jason-s-yu/peerplay/internal/auth"
	"github.com/jason-s-yu/peerplay/internal/directory"
	"github.com/jason-s-yu/peerplay/internal/middleware"
	"github.com/sirupsen/logrus"
)

// APIServer exposes a Directory over HTTP and a websocket room feed.
type APIServer struct {
	dir    directory.Directory
	signer *auth.Signer
	logger logrus.FieldLogger
}

func NewAPIServer(dir directory.Directory, signer *auth.Signer, logger logrus.FieldLogger) *APIServer {
	return &APIServer{dir: dir, signer: signer, logger: logger}
}

// Routes returns the service mux wrapped in request logging.
func (s *APIServer) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /identity", s.IdentityHandler)
	mux.HandleFunc("POST /rooms", s.CreateRoomHandler)
	mux.HandleFunc("GET /rooms", s.ListRoomsHandler)
	mux.HandleFunc("GET /rooms/ws", s.RoomFeedHandler)
	mux.HandleFunc("GET /rooms/{id}", s.GetRoomHandler)
	mux.HandleFunc("POST /rooms/{id}/join", s.JoinRoomHandler)
	mux.HandleFunc("POST /rooms/{id}/close", s.CloseRoomHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return middleware.LogMiddleware(s.logger)(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeDirectoryError maps directory errors onto status codes.
func (s *APIServer) writeDirectoryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, directory.ErrRoomNotFound):
		http.Error(w, "room not found", http.StatusNotFound)
	case errors.Is(err, directory.ErrInvalidRoom):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("directory request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
