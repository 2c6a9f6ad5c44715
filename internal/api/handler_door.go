package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mattermore-backend/internal/door"
	"mattermore-backend/internal/mw"
	"mattermore-backend/internal/notification"
	"mattermore-backend/internal/store"
)

const doorUsage = "Only [open|lock|status|getkey] subcommands supported"

// DoorCommand handles the /door slash command.
func (h *Handler) DoorCommand(c *gin.Context) {
	user := mw.CurrentUser(c)
	ctx := peripheralContext(c)

	fields := strings.Fields(c.PostForm("text"))
	if len(fields) == 0 {
		mattermostReply(c, doorUsage, true)
		return
	}

	command := strings.ToLower(fields[0])
	switch command {
	case "getkey":
		key := h.newDoorkey()
		user.Doorkey = &key
		if err := h.store.SaveUser(ctx, user); err != nil {
			log.Printf("Error saving doorkey for %s: %v", user.Username, err)
			mattermostReply(c, "Failed to generate a door key", true)
			return
		}
		mattermostReply(c, fmt.Sprintf(
			"WARNING: door should only be operated when you are physically at the door. "+
				"Your key is %s, the URLs you can POST to are %s and %s",
			key, h.doorAPIURL(key, door.CommandOpen), h.doorAPIURL(key, door.CommandLock)), true)
		return
	case "close":
		command = string(door.CommandLock)
	}

	cmd, err := door.ParseCommand(command)
	if err != nil {
		mattermostReply(c, doorUsage, true)
		return
	}

	before, _ := h.door.Query(ctx, cmd, false)
	if cmd != door.CommandStatus {
		h.notifier.Notify(ctx, notification.ChannelDoorkeeper,
			fmt.Sprintf("door was %s, %s tried to %s door", before, user.Username, cmd))
	}
	mattermostReply(c, string(before), true)
}

// DoorAPI handles POST /api/door/:doorkey/:command for scripts holding a doorkey.
func (h *Handler) DoorAPI(c *gin.Context) {
	ctx := peripheralContext(c)

	doorkey := c.Param("doorkey")
	if doorkey == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	user, err := h.store.FindAuthorizedUserByDoorkey(ctx, doorkey)
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	if err != nil {
		log.Printf("Error looking up doorkey: %v", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up door key"})
		return
	}

	cmd, err := door.ParseCommand(c.Param("command"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Command not in (open,lock,status)"})
		return
	}

	before, _ := h.door.Query(ctx, cmd, false)
	if cmd != door.CommandStatus {
		h.notifier.Notify(ctx, notification.ChannelDoorkeeper,
			fmt.Sprintf("door was %s, %s tried to %s door via the API", before, user.Username, cmd))
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "before": before})
}

func (h *Handler) doorAPIURL(key string, cmd door.Command) string {
	return fmt.Sprintf("%s/api/door/%s/%s", strings.TrimRight(h.publicURL, "/"), key, cmd)
}
