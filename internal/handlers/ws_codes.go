package handlers

// Custom WebSocket close codes used by the room feed.
const (
	BadSubprotocolError  = 3000 // Client connected with an unsupported subprotocol.
	InvalidGameTypeError = 3001 // The game query parameter names no known game.
	FeedUnavailableError = 3002 // The directory could not open a feed subscription.
)
