package api

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"mattermore-backend/internal/fingerprint"
	"mattermore-backend/internal/mw"
	"mattermore-backend/internal/protocol"
)

const (
	fingerprintUsage  = "Only [enroll|delete|list] subcommands supported"
	noteSyntax        = "Missing or invalid fingerprint note, syntax: /fingerprint %s {note}\n{note} must not contain spaces"
	noFingerprints    = "No fingerprints found"
	maxCallbackLength = 1024
)

// FingerprintCommand handles the /fingerprint slash command.
func (h *Handler) FingerprintCommand(c *gin.Context) {
	user := mw.CurrentUser(c)
	ctx := peripheralContext(c)

	fields := strings.Fields(c.PostForm("text"))
	if len(fields) == 0 {
		mattermostReply(c, fingerprintUsage, true)
		return
	}

	switch command := strings.ToLower(fields[0]); command {
	case "enroll":
		if len(fields) < 2 {
			mattermostReply(c, fmt.Sprintf(noteSyntax, command), true)
			return
		}
		fp, err := h.fingerprints.Enroll(ctx, user, fields[1])
		if err != nil {
			mattermostReply(c, fingerprintError(err, command, fields[1], user.Username), true)
			return
		}
		mattermostReply(c, fmt.Sprintf("Started enrolling fingerprint #%d for user '%s'", fp.ID, user.Username), true)

	case "delete":
		if len(fields) < 2 {
			mattermostReply(c, fmt.Sprintf(noteSyntax, command), true)
			return
		}
		owner := user.Username
		var target string
		if len(fields) > 2 {
			target = fields[2]
			if user.Admin {
				owner = strings.TrimPrefix(target, "@")
			}
		}
		fp, err := h.fingerprints.Delete(ctx, user, fields[1], target)
		if err != nil {
			mattermostReply(c, fingerprintError(err, command, fields[1], owner), true)
			return
		}
		mattermostReply(c, fmt.Sprintf("Deleted fingerprint '%s' for user '%s'", fp.Note, owner), true)

	case "list":
		notes, err := h.fingerprints.List(ctx, user)
		if err != nil {
			log.Printf("Error listing fingerprints: %v", err)
			mattermostReply(c, "Failed to list fingerprints", true)
			return
		}
		mattermostReply(c, formatFingerprints(notes), true)

	default:
		mattermostReply(c, fingerprintUsage, true)
	}
}

func fingerprintError(err error, command, note, owner string) string {
	var transportErr *protocol.TransportError
	switch {
	case errors.Is(err, fingerprint.ErrInvalidNote):
		return fmt.Sprintf(noteSyntax, command)
	case errors.Is(err, fingerprint.ErrPendingNote):
		return fmt.Sprintf("User '%s' already has a pending enrollment with note '%s'; "+
			"finish it on the sensor, or retry after the next enrollment clears it", owner, strings.ToLower(note))
	case errors.Is(err, fingerprint.ErrDuplicateNote):
		return fmt.Sprintf("User '%s' already has a fingerprint with note '%s'", owner, strings.ToLower(note))
	case errors.Is(err, fingerprint.ErrNoFreeSlots):
		return "Cannot enroll fingerprint, no free slots left"
	case errors.Is(err, fingerprint.ErrNotFound):
		return fmt.Sprintf("No fingerprint with note '%s' found for user '%s'", strings.ToLower(note), owner)
	case errors.As(err, &transportErr):
		return "The fingerprint sensor could not be reached, try again later"
	default:
		log.Printf("Error handling fingerprint %s: %v", command, err)
		return fmt.Sprintf("Failed to %s fingerprint", command)
	}
}

// formatFingerprints prints one username per line followed by its notes, indented.
func formatFingerprints(notes map[string][]string) string {
	if len(notes) == 0 {
		return noFingerprints
	}
	users := make([]string, 0, len(notes))
	for u := range notes {
		users = append(users, u)
	}
	sort.Strings(users)

	var b strings.Builder
	for _, u := range users {
		b.WriteString(u + "\n")
		for _, note := range notes[u] {
			b.WriteString("\t" + note + "\n")
		}
	}
	return b.String()
}

// FingerprintCallback receives events from the sensor. It always acknowledges:
// the sensor has no use for an error.
func (h *Handler) FingerprintCallback(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackLength))
	if err != nil {
		log.Printf("Error reading fingerprint callback: %v", err)
	}

	kind, value, ok := fingerprint.ParseEvent(string(body))
	if !ok {
		kind, value = "", string(body)
	}
	h.fingerprints.HandleEvent(peripheralContext(c), kind, value)
	c.Status(http.StatusOK)
}
