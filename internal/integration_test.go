package internal

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"mattermore-backend/config"
	"mattermore-backend/internal/alert"
	"mattermore-backend/internal/api"
	"mattermore-backend/internal/db"
	"mattermore-backend/internal/door"
	"mattermore-backend/internal/fingerprint"
	"mattermore-backend/internal/kv"
	"mattermore-backend/internal/model"
	"mattermore-backend/internal/notification"
	"mattermore-backend/internal/protocol"
	"mattermore-backend/internal/relay"
	"mattermore-backend/internal/store"
)

const (
	downKey = "down-secret"
	upKey   = "up-secret"
)

// peripheral is a fake lock controller or sensor that checks signatures and records frames.
type peripheral struct {
	t      *testing.T
	mu     sync.Mutex
	frames []string
	reply  func(frame string) string
}

func (p *peripheral) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !protocol.Verify(downKey, body, r.Header.Get(protocol.HeaderName)) {
		p.t.Errorf("peripheral received badly signed frame %q", body)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	p.mu.Lock()
	p.frames = append(p.frames, string(body))
	p.mu.Unlock()
	_, _ = w.Write([]byte(p.reply(string(body))))
}

// commands strips the timestamps off the recorded frames.
func (p *peripheral) commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.frames))
	for _, f := range p.frames {
		_, rest, _ := strings.Cut(f, ";")
		out = append(out, rest)
	}
	return out
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notification.Message
}

func (n *recordingNotifier) Notify(_ context.Context, channel notification.Channel, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, notification.Message{Channel: channel, Text: text})
}

func (n *recordingNotifier) texts(channel notification.Channel) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.messages {
		if m.Channel == channel {
			out = append(out, m.Text)
		}
	}
	return out
}

// TestFingerprintLifecycle enrolls a fingerprint through the slash command, confirms it
// through the sensor callback, opens the door with it and finally removes it again.
func TestFingerprintLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// --- Test Setup ---
	testDB, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	require.NoError(t, db.Migrate(testDB))

	appStore := store.NewGormStore(testDB)
	require.NoError(t, appStore.SaveUser(context.Background(),
		&model.User{MattermostID: "mm-alice", Username: "alice", Authorized: true}))

	lockState := "0"
	lockbot := &peripheral{t: t, reply: func(frame string) string {
		if strings.HasSuffix(frame, ";open") {
			defer func() { lockState = "1" }()
		}
		return lockState
	}}
	// Character i reports slot i; slot 1 is taken.
	bitmap := []byte("01" + strings.Repeat("0", fingerprint.MaxSlot-1))
	sensor := &peripheral{t: t, reply: func(frame string) string {
		if strings.Contains(frame, ";list;") {
			return string(bitmap)
		}
		return "ok"
	}}
	lockServer := httptest.NewServer(lockbot)
	defer lockServer.Close()
	sensorServer := httptest.NewServer(sensor)
	defer sensorServer.Close()

	notifier := &recordingNotifier{}
	kvStore := kv.NewGormStore(testDB)
	tracker := door.NewTracker(protocol.NewChannel(protocol.Peripheral{
		Name: "lockbot", URL: lockServer.URL, Secret: downKey, Timeout: time.Second,
	}), kvStore)
	service := fingerprint.NewService(protocol.NewChannel(protocol.Peripheral{
		Name: "fingerprint", URL: sensorServer.URL, Secret: downKey, Timeout: time.Second, Terminated: true,
	}), appStore, tracker, notifier)
	throttler := alert.NewThrottler(kvStore, notifier, time.Hour)

	handler := api.NewHandler(api.Deps{
		Store:        appStore,
		Door:         tracker,
		Fingerprints: service,
		Relay:        relay.New(nil, tracker, throttler, notifier),
		Notifier:     notifier,
		UpKey:        upKey,
	})
	router := api.NewRouter(handler, &config.Config{
		Server: config.ServerConfig{RateLimitPerSec: 100, RateLimitBurst: 100, SpaceAPICacheSeconds: 1},
		Tokens: config.TokensConfig{Door: "door-token", Fingerprint: "fp-token"},
	})

	post := func(path, body string, header map[string]string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, path, strings.NewReader(body))
		for k, v := range header {
			req.Header.Set(k, v)
		}
		router.ServeHTTP(w, req)
		return w
	}
	slash := func(text string) *httptest.ResponseRecorder {
		form := url.Values{"token": {"fp-token"}, "user_id": {"mm-alice"}, "user_name": {"alice"}, "text": {text}}
		return post("/fingerprint", form.Encode(), map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	}

	// --- Step 1: enroll claims the lowest free slot ---
	w := slash("enroll Thumb")
	assert.Contains(t, w.Body.String(), "Started enrolling fingerprint #2 for user 'alice'")
	assert.Equal(t, []string{"list;", "enroll;2;"}, sensor.commands())

	fp, err := appStore.FindFingerprint(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, fp.Active)
	assert.Equal(t, "thumb", fp.Note)

	// A pending fingerprint does not open the door.
	assert.Equal(t, http.StatusOK, post("/fingerprint_cb", "detected\n2", nil).Code)
	assert.Empty(t, lockbot.commands())

	// --- Step 2: the sensor confirms the enrollment ---
	bitmap[2] = '1'
	assert.Equal(t, http.StatusOK, post("/fingerprint_cb", "enrolled\n2", nil).Code)
	_, err = appStore.FindActiveFingerprint(context.Background(), 2)
	require.NoError(t, err)
	assert.Contains(t, notifier.texts(notification.ChannelDebug), "Activated fingerprint thumb for user alice")

	// --- Step 3: a detection opens the door ---
	assert.Equal(t, http.StatusOK, post("/fingerprint_cb", "detected\n2", nil).Code)
	assert.Equal(t, []string{"open"}, lockbot.commands())
	assert.Equal(t, []string{"door was locked, alice tried to open the door with the fingerprint sensor"},
		notifier.texts(notification.ChannelDoorkeeper))
	assert.True(t, tracker.InElectronicActionPeriod(context.Background()))

	// The controller reports the state change it just made; this is not escalated.
	event := "cmd=state&why=state&val=1"
	w = post("/doorkeeper", event, map[string]string{protocol.HeaderName: protocol.Sign(upKey, []byte(event))})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, notifier.texts(notification.ChannelDebug), "The door is now open")
	assert.Len(t, notifier.texts(notification.ChannelDoorkeeper), 1)

	// --- Step 4: delete and confirm ---
	w = slash("delete thumb")
	assert.Contains(t, w.Body.String(), "Deleted fingerprint 'thumb' for user 'alice'")
	assert.Equal(t, "delete;2;", sensor.commands()[len(sensor.commands())-1])

	assert.Equal(t, http.StatusOK, post("/fingerprint_cb", "deleted\n2", nil).Code)
	_, err = appStore.FindFingerprint(context.Background(), 2)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// --- Step 5: the spaceapi reflects the cached status ---
	w = httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/spaceapi.json", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"open":false`, "the last observation before the open was 'locked'")
	assert.Equal(t, []string{"open"}, lockbot.commands(), "the cached status answers without a round trip")
}
