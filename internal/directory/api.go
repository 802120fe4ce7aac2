package directory

import (
	"github.com/jason-s-yu/peerplay/internal/models"
	"github.com/jason-s-yu/peerplay/internal/rules"
)

// Wire types shared by the directory service and Client.

// FeedSubprotocol is the websocket subprotocol of the room feed.
const FeedSubprotocol = "peerplay.rooms"

// FeedReady is the event kind the service sends once a feed subscription is
// live. Events after it are not missed by a listing taken after it.
const FeedReady models.RoomEventKind = "subscribed"

type IdentityRequest struct {
	PlayerID string `json:"player_id,omitempty"`
	Name     string `json:"name"`
}

type IdentityResponse struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Token    string `json:"token"`
}

type CreateRoomRequest struct {
	HostName  string         `json:"host_name,omitempty"`
	HostID    string         `json:"host_id"`
	GameType  rules.GameType `json:"game_type"`
	IsPrivate bool           `json:"is_private"`
}

type JoinResponse struct {
	Joined bool `json:"joined"`
}

type CloseResponse struct {
	Closed bool `json:"closed"`
}
