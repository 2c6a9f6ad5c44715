package api

import (
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"mattermore-backend/internal/protocol"
	"mattermore-backend/internal/relay"
)

const maxDoorkeeperBody = 4096

// Doorkeeper receives events pushed by the lock controller, signed with the up key.
func (h *Handler) Doorkeeper(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxDoorkeeperBody))
	if err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	if !protocol.Verify(h.upKey, body, c.GetHeader(protocol.HeaderName)) {
		log.Printf("Rejected doorkeeper event with missing or wrong HMAC from %s", c.ClientIP())
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	ev, err := relay.ParseEvent(body)
	if err != nil {
		log.Printf("Rejected doorkeeper event: %v", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.relay.Handle(peripheralContext(c), ev)
	c.String(http.StatusOK, "OK")
}
