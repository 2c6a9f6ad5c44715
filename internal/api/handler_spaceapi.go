package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mattermore-backend/internal/door"
)

// SpaceAPI serves /spaceapi.json. The state is read from the cached door status;
// state.open is left out while the door is neither open nor locked.
func (h *Handler) SpaceAPI(c *gin.Context) {
	state := gin.H{
		"icon": gin.H{
			"open":   "https://zinc.zeus.gent/zeus",
			"closed": "https://zinc.zeus.gent/black",
		},
	}

	status, _ := h.door.Query(peripheralContext(c), door.CommandStatus, true)
	switch status {
	case door.StateOpen:
		state["open"] = true
	case door.StateLocked:
		state["open"] = false
	}

	c.Header("Access-Control-Allow-Origin", "*")
	c.JSON(http.StatusOK, gin.H{
		"api":   "0.13",
		"space": "Zeus WPI",
		"logo":  "https://zinc.zeus.gent",
		"url":   "https://zeus.ugent.be",
		"location": gin.H{
			"address": "Zeuskelder, gebouw S9, Krijgslaan 281, Ghent, Belgium",
			"lon":     3.7102741,
			"lat":     51.0231119,
		},
		"contact":               gin.H{"email": "bestuur@zeus.ugent.be"},
		"issue_report_channels": []string{"email"},
		"state":                 state,
		"projects":              []string{"https://github.com/zeuswpi", "https://git.zeus.gent"},
	})
}
