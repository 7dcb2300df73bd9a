// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the event feed.
// These provide more specific reasons for closure than standard codes.
const (
	BadSubprotocolError = 3000 // Client offered subprotocols, none of which is "blackjack".
	SessionExpiredError = 3001 // The session token expired while the feed was open.
)
