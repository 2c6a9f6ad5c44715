package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"mattermore-backend/config"
	"mattermore-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg *config.Config) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)

	spaceAPITTL := time.Duration(cfg.Server.SpaceAPICacheSeconds) * time.Second
	caching := mw.Cache(cache.New(spaceAPITTL, 10*time.Minute), spaceAPITTL)

	regular := mw.RequireUser(h.store, false)

	// Mattermost slash commands
	r.POST("/door", mw.RequireToken(cfg.Tokens.Door), regular, h.DoorCommand)
	r.POST("/fingerprint", mw.RequireToken(cfg.Tokens.Fingerprint), regular, h.FingerprintCommand)

	// Peripheral callbacks
	r.POST("/doorkeeper", rateLimiter, h.Doorkeeper)
	r.POST("/fingerprint_cb", h.FingerprintCallback)

	r.GET("/spaceapi.json", caching, h.SpaceAPI)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/door/:doorkey/:command", h.DoorAPI)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
