package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"dispatchdesk/internal/models"
	"dispatchdesk/internal/services"
)

type VerificationEngine interface {
	RequestVerification(ctx context.Context, phone string) (*services.RequestResult, error)
	VerifyCode(ctx context.Context, attemptID uuid.UUID, code string) (*models.User, error)
	AttemptStatus(ctx context.Context, attemptID uuid.UUID) (*services.AttemptStatusView, error)
}

type TokenIssuer interface {
	IssueAccessToken(user *models.User) (string, time.Time, error)
}

type VerificationHandler struct {
	Engine VerificationEngine
	Tokens TokenIssuer
	Logger *zap.Logger
}

func NewVerificationHandler(engine VerificationEngine, tokens TokenIssuer, logger *zap.Logger) *VerificationHandler {
	return &VerificationHandler{Engine: engine, Tokens: tokens, Logger: logger}
}

const errInvalidOrExpired = "invalid or expired code"

// RequestVerification godoc
// @Summary      Start phone verification
// @Description  Creates a verification attempt. Returns a Telegram deep link, or sends the code right away when the phone is already linked.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        request  body      models.PhoneVerificationRequest  true  "Phone"
// @Success      200      {object}  models.PhoneVerificationResponse
// @Failure      400      {object}  map[string]string
// @Failure      429      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /auth/phone/request [post]
func (h *VerificationHandler) RequestVerification(c *gin.Context) {
	var req models.PhoneVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phone is required"})
		return
	}

	res, err := h.Engine.RequestVerification(c.Request.Context(), req.Phone)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidPhone):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid phone number"})
		case errors.Is(err, services.ErrThrottled):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, try later"})
		default:
			h.Logger.Error("[auth][request] failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "verification request failed"})
		}
		return
	}

	resp := models.PhoneVerificationResponse{
		AttemptID:    res.AttemptID.String(),
		ExpiresAt:    res.ExpiresAt,
		SentDirectly: res.SentDirectly,
	}
	if res.DeepLink != "" {
		link := res.DeepLink
		resp.DeepLink = &link
	}
	c.JSON(http.StatusOK, resp)
}

// VerifyCode godoc
// @Summary      Verify code
// @Description  Checks the code delivered by the Telegram bot and issues an access token.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        request  body      models.VerifyCodeRequest  true  "Attempt and code"
// @Success      200      {object}  models.VerifyCodeResponse
// @Failure      400      {object}  map[string]string
// @Failure      409      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /auth/phone/verify [post]
func (h *VerificationHandler) VerifyCode(c *gin.Context) {
	var req models.VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidOrExpired})
		return
	}
	attemptID, err := uuid.Parse(req.AttemptID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidOrExpired})
		return
	}

	user, err := h.Engine.VerifyCode(c.Request.Context(), attemptID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidOrExpired):
			c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidOrExpired})
		case errors.Is(err, services.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "account already linked to another user"})
		default:
			h.Logger.Error("[auth][verify] failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		}
		return
	}

	token, exp, err := h.Tokens.IssueAccessToken(user)
	if err != nil {
		h.Logger.Error("[auth][verify] token issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}
	c.JSON(http.StatusOK, models.VerifyCodeResponse{AccessToken: token, ExpiresAt: exp, User: user})
}

// AttemptStatus godoc
// @Summary      Verification attempt status
// @Description  Lets the app poll while the user is in the bot. Returns status and expiry only.
// @Tags         Auth
// @Produce      json
// @Param        id   path      string  true  "Attempt ID"
// @Success      200  {object}  models.AttemptStatusResponse
// @Failure      404  {object}  map[string]string
// @Router       /auth/phone/attempts/{id} [get]
func (h *VerificationHandler) AttemptStatus(c *gin.Context) {
	attemptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "attempt not found"})
		return
	}
	view, err := h.Engine.AttemptStatus(c.Request.Context(), attemptID)
	if err != nil {
		if errors.Is(err, services.ErrInvalidOrExpired) {
			c.JSON(http.StatusNotFound, gin.H{"error": "attempt not found"})
			return
		}
		h.Logger.Error("[auth][status] failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status lookup failed"})
		return
	}
	c.JSON(http.StatusOK, models.AttemptStatusResponse{Status: view.Status, ExpiresAt: view.ExpiresAt})
}
