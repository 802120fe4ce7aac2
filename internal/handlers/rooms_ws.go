package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/peerplay/internal/directory"
	"github.com/jason-s-yu/peerplay/internal/middleware"
	"github.com/jason-s-yu/peerplay/internal/models"
)

const feedWriteTimeout = 5 * time.Second

// RoomFeedHandler streams {event, room} frames for one game type, or all of
// them without ?game=. The first frame is a FeedReady marker; clients take
// their listing snapshot after it. Anything the client sends is discarded.
func (s *APIServer) RoomFeedHandler(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{directory.FeedSubprotocol},
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.WithError(err).Warn("room feed accept failed")
		return
	}
	defer c.CloseNow()

	if c.Subprotocol() != directory.FeedSubprotocol {
		c.Close(BadSubprotocolError, "client must speak the "+directory.FeedSubprotocol+" subprotocol")
		return
	}
	game, err := gameFilter(r)
	if err != nil {
		c.Close(InvalidGameTypeError, err.Error())
		return
	}

	ctx := c.CloseRead(r.Context())
	events := make(chan models.RoomEvent)
	forward := func(kind models.RoomEventKind) func(models.Room) {
		return func(room models.Room) {
			select {
			case events <- models.RoomEvent{Event: kind, Room: room}:
			case <-ctx.Done():
			}
		}
	}
	sub, err := s.dir.Subscribe(ctx, game, directory.RoomHandlers{
		OnInsert: forward(models.RoomInserted),
		OnUpdate: forward(models.RoomUpdated),
		OnDelete: forward(models.RoomDeleted),
	})
	if err != nil {
		s.logger.WithError(err).Warn("room feed subscribe failed")
		c.Close(FeedUnavailableError, "room feed unavailable")
		return
	}
	defer sub.Close()

	middleware.LogWebSocketConnect(s.logger, r.RemoteAddr, r.URL.Path)
	err = writeFeedEvent(ctx, c, models.RoomEvent{Event: directory.FeedReady})
	for err == nil {
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case ev := <-events:
			err = writeFeedEvent(ctx, c, ev)
		}
	}
	middleware.LogWebSocketDisconnect(s.logger, r.RemoteAddr, r.URL.Path, err)
	c.Close(websocket.StatusNormalClosure, "")
}

func writeFeedEvent(ctx context.Context, c *websocket.Conn, ev models.RoomEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, feedWriteTimeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageText, data)
}
