package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dispatchdesk/internal/models"
	"dispatchdesk/internal/services"
)

type fakeEngine struct {
	requestRes *services.RequestResult
	requestErr error
	user       *models.User
	verifyErr  error
	status     *services.AttemptStatusView
	statusErr  error
}

func (f *fakeEngine) RequestVerification(context.Context, string) (*services.RequestResult, error) {
	return f.requestRes, f.requestErr
}

func (f *fakeEngine) VerifyCode(context.Context, uuid.UUID, string) (*models.User, error) {
	return f.user, f.verifyErr
}

func (f *fakeEngine) AttemptStatus(context.Context, uuid.UUID) (*services.AttemptStatusView, error) {
	return f.status, f.statusErr
}

type fakeIssuer struct{}

func (fakeIssuer) IssueAccessToken(*models.User) (string, time.Time, error) {
	return "signed.jwt.token", time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC), nil
}

func newVerificationRouter(engine *fakeEngine) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewVerificationHandler(engine, fakeIssuer{}, zap.NewNop())
	r := gin.New()
	r.POST("/auth/phone/request", h.RequestVerification)
	r.POST("/auth/phone/verify", h.VerifyCode)
	r.GET("/auth/phone/attempts/:id", h.AttemptStatus)
	return r
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestVerificationResponses(t *testing.T) {
	id := uuid.New()
	engine := &fakeEngine{requestRes: &services.RequestResult{AttemptID: id, DeepLink: "https://t.me/bot?start=link_x"}}
	r := newVerificationRouter(engine)

	w := doJSON(r, http.MethodPost, "/auth/phone/request", gin.H{"phone": "+85512345678"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.PhoneVerificationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, id.String(), resp.AttemptID)
	require.NotNil(t, resp.DeepLink)
	assert.False(t, resp.SentDirectly)

	engine.requestRes = &services.RequestResult{AttemptID: id, SentDirectly: true}
	w = doJSON(r, http.MethodPost, "/auth/phone/request", gin.H{"phone": "+85512345678"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"deep_link":null`)

	engine.requestErr = services.ErrThrottled
	w = doJSON(r, http.MethodPost, "/auth/phone/request", gin.H{"phone": "+85512345678"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	engine.requestErr = services.ErrInvalidPhone
	w = doJSON(r, http.MethodPost, "/auth/phone/request", gin.H{"phone": "abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/auth/phone/request", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyCodeResponses(t *testing.T) {
	engine := &fakeEngine{user: &models.User{ID: 3, Phone: "+85512345678"}}
	r := newVerificationRouter(engine)
	body := gin.H{"attempt_id": uuid.New().String(), "code": "123456"}

	w := doJSON(r, http.MethodPost, "/auth/phone/verify", body)
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.VerifyCodeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "signed.jwt.token", resp.AccessToken)
	assert.Equal(t, int64(3), resp.User.ID)

	engine.verifyErr = services.ErrInvalidOrExpired
	invalid := doJSON(r, http.MethodPost, "/auth/phone/verify", body)
	assert.Equal(t, http.StatusBadRequest, invalid.Code)

	// malformed attempt ids look exactly like any other rejection
	malformed := doJSON(r, http.MethodPost, "/auth/phone/verify", gin.H{"attempt_id": "nope", "code": "1"})
	assert.Equal(t, http.StatusBadRequest, malformed.Code)
	assert.JSONEq(t, invalid.Body.String(), malformed.Body.String())

	engine.verifyErr = services.ErrConflict
	w = doJSON(r, http.MethodPost, "/auth/phone/verify", body)
	assert.Equal(t, http.StatusConflict, w.Code)

	engine.verifyErr = errors.New("db down")
	w = doJSON(r, http.MethodPost, "/auth/phone/verify", body)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAttemptStatusResponses(t *testing.T) {
	engine := &fakeEngine{status: &services.AttemptStatusView{Status: models.StatusWaitingForContact}}
	r := newVerificationRouter(engine)

	w := doJSON(r, http.MethodGet, "/auth/phone/attempts/"+uuid.New().String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"WAITING_FOR_CONTACT"`)
	assert.NotContains(t, w.Body.String(), "code")

	engine.statusErr = services.ErrInvalidOrExpired
	w = doJSON(r, http.MethodGet, "/auth/phone/attempts/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type recordingRouter struct {
	updates []tgbotapi.Update
}

func (r *recordingRouter) Route(_ context.Context, u tgbotapi.Update) error {
	r.updates = append(r.updates, u)
	return nil
}

func TestWebhookChecksSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rr := &recordingRouter{}
	h := NewIntegrationsHandler(rr, "hook-secret", zap.NewNop())
	r := gin.New()
	r.POST("/integrations/telegram/webhook", h.Webhook)

	update := `{"update_id":12,"message":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"},"text":"/start"}}`

	req := httptest.NewRequest(http.MethodPost, "/integrations/telegram/webhook", bytes.NewBufferString(update))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, rr.updates)

	req = httptest.NewRequest(http.MethodPost, "/integrations/telegram/webhook", bytes.NewBufferString(update))
	req.Header.Set(telegramSecretHeader, "hook-secret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, rr.updates, 1)
	assert.Equal(t, 12, rr.updates[0].UpdateID)
	assert.Equal(t, int64(42), rr.updates[0].Message.Chat.ID)
}

func TestWebhookWithoutSecretRejectsEverything(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rr := &recordingRouter{}
	h := NewIntegrationsHandler(rr, "", zap.NewNop())
	r := gin.New()
	r.POST("/integrations/telegram/webhook", h.Webhook)

	// a forged contact that would pass the own-contact check
	update := `{"update_id":13,"message":{"message_id":2,"date":0,` +
		`"chat":{"id":777,"type":"private"},"from":{"id":777,"is_bot":false,"first_name":"x"},` +
		`"contact":{"phone_number":"+85512345678","first_name":"x","user_id":777}}}`

	for _, header := range []string{"", "anything"} {
		req := httptest.NewRequest(http.MethodPost, "/integrations/telegram/webhook", bytes.NewBufferString(update))
		if header != "" {
			req.Header.Set(telegramSecretHeader, header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	assert.Empty(t, rr.updates)
}
