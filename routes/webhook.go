package routes

import (
	"io"
	"net/http"

	"freelancer-bot/internal/config"
	"freelancer-bot/internal/logger"
	"freelancer-bot/internal/whatsapp"
	"freelancer-bot/middleware"
	"freelancer-bot/utils"

	"github.com/gin-gonic/gin"
)

const eventReceived = "EVENT_RECEIVED"

func SetupWebhookRoutes(router *gin.Engine, cfg *config.Config, dispatcher Dispatcher) {
	webhook := router.Group("/webhook")
	webhook.GET("", handleVerifyWebhook(cfg.WhatsAppVerifyToken))
	webhook.POST("", middleware.RequestSizeLimit(cfg.MaxWebhookBodySize), handleWebhookEvent(cfg.WhatsAppAppSecret, dispatcher))
}

// handleVerifyWebhook answers the Meta subscription handshake.
func handleVerifyWebhook(verifyToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		challenge, ok := whatsapp.VerifyWebhook(
			verifyToken,
			c.Query("hub.mode"),
			c.Query("hub.verify_token"),
			c.Query("hub.challenge"),
		)
		if !ok {
			logger.Warn("webhook verification failed", "mode", c.Query("hub.mode"))
			c.String(http.StatusForbidden, "Forbidden")
			return
		}
		logger.Info("webhook verified")
		c.String(http.StatusOK, challenge)
	}
}

// handleWebhookEvent acknowledges every delivery with 200 so Meta does not
// redeliver; only a bad signature is refused.
func handleWebhookEvent(appSecret string, dispatcher Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			logger.Error("failed to read webhook body", "error", err, "request_id", middleware.GetRequestID(c))
			c.String(http.StatusOK, eventReceived)
			return
		}

		if appSecret != "" && !whatsapp.ValidSignature(appSecret, body, c.GetHeader(whatsapp.SignatureHeader)) {
			logger.Warn("webhook signature mismatch", "ip", c.ClientIP())
			utils.AbortWithError(c, http.StatusUnauthorized, "invalid_signature", "Signature verification failed")
			return
		}

		payload, err := whatsapp.ParsePayload(body)
		if err != nil {
			logger.Warn("unparseable webhook payload", "error", err)
			c.String(http.StatusOK, eventReceived)
			return
		}

		for _, msg := range whatsapp.ExtractMessages(payload) {
			if err := dispatcher.Dispatch(c.Request.Context(), msg); err != nil {
				logger.Error("failed to dispatch message",
					"message_id", msg.ID,
					"from", utils.MaskPhone(msg.From),
					"error", err,
				)
			}
		}

		c.String(http.StatusOK, eventReceived)
	}
}
