package mw

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"mattermore-backend/internal/model"
	"mattermore-backend/internal/store"
)

const userKey = "mattermore.user"

// UserStore looks up and updates chat users.
type UserStore interface {
	FindUserByMattermostID(ctx context.Context, mattermostID string) (*model.User, error)
	SaveUser(ctx context.Context, user *model.User) error
}

// RequireToken rejects slash command requests that do not carry the expected token.
func RequireToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.PostForm("token")
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

// RequireUser identifies the caller by the Mattermost user_id form field and only lets
// authorized users through. With admin set the user must also be an admin.
// A changed user_name is written back to the store.
func RequireUser(users UserStore, admin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		user, err := users.FindUserByMattermostID(ctx, c.PostForm("user_id"))
		if errors.Is(err, store.ErrNotFound) {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		if err != nil {
			log.Printf("Error looking up user: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up user"})
			return
		}

		if name := c.PostForm("user_name"); name != "" && name != user.Username {
			log.Printf("Renaming user %s to %s", user.Username, name)
			user.Username = name
			if err := users.SaveUser(ctx, user); err != nil {
				log.Printf("Error saving renamed user: %v", err)
			}
		}

		if !user.Authorized || (admin && !user.Admin) {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// CurrentUser returns the user stored by RequireUser.
func CurrentUser(c *gin.Context) *model.User {
	if v, ok := c.Get(userKey); ok {
		if user, ok := v.(*model.User); ok {
			return user
		}
	}
	return nil
}
