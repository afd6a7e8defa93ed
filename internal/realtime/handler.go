package realtime

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handler upgrades authenticated requests to match connections
type Handler struct {
	hub      *Hub
	service  MatchService
	tokens   *TokenValidator
	upgrader websocket.Upgrader
}

// NewHandler creates the /ws handler
func NewHandler(hub *Hub, service MatchService, tokens *TokenValidator) *Handler {
	return &Handler{
		hub:     hub,
		service: service,
		tokens:  tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// mobile clients do not send an Origin we could check
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS rejects requests without a valid token before upgrading
func (h *Handler) ServeWS(c *gin.Context) {
	identity, err := h.tokens.Validate(TokenFromRequest(c.Request))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WS: upgrade failed: %v", err)
		return
	}

	client := NewClient(h.hub, h.service, conn)
	if err := client.Authenticate(identity); err != nil {
		conn.Close()
		return
	}
	log.Printf("WS: user %s connected from %s", identity.UserID, c.ClientIP())

	go client.WritePump()
	client.ReadPump()
}
