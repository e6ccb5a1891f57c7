package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

type UpdateRouter interface {
	Route(ctx context.Context, u tgbotapi.Update) error
}

// IntegrationsHandler receives Telegram updates when the bot runs in webhook
// mode. Updates go through the same router as long polling.
type IntegrationsHandler struct {
	Router UpdateRouter
	Secret string
	Logger *zap.Logger
}

func NewIntegrationsHandler(router UpdateRouter, secret string, logger *zap.Logger) *IntegrationsHandler {
	return &IntegrationsHandler{Router: router, Secret: secret, Logger: logger}
}

// Webhook godoc
// @Summary      Telegram webhook
// @Tags         Integrations
// @Accept       json
// @Success      200
// @Failure      401
// @Router       /integrations/telegram/webhook [post]
func (h *IntegrationsHandler) Webhook(c *gin.Context) {
	// an unset secret never authenticates anything
	got := c.GetHeader(telegramSecretHeader)
	if h.Secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) != 1 {
		h.Logger.Warn("[tg][webhook] bad secret token")
		c.Status(http.StatusUnauthorized)
		return
	}

	var up tgbotapi.Update
	if err := c.ShouldBindJSON(&up); err != nil {
		// Telegram retries non-2xx responses; a malformed update never gets better
		h.Logger.Warn("[tg][webhook] bind json error", zap.Error(err))
		c.Status(http.StatusOK)
		return
	}

	if err := h.Router.Route(c.Request.Context(), up); err != nil {
		h.Logger.Info("[tg][webhook] update not handled", zap.Int("update_id", up.UpdateID), zap.Error(err))
	}
	c.Status(http.StatusOK)
}
