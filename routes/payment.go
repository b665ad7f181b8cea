package routes

import (
	"context"
	"io"
	"net/http"
	"strings"

	"freelancer-bot/internal/bot"
	"freelancer-bot/internal/config"
	"freelancer-bot/internal/logger"
	"freelancer-bot/internal/payment"
	"freelancer-bot/middleware"
	"freelancer-bot/utils"

	"github.com/gin-gonic/gin"
)

// ConfirmationQueue defers gateway confirmations to the workers.
type ConfirmationQueue interface {
	EnqueueConfirmation(ctx context.Context, invoiceID, paymentID string) error
}

// SetupPaymentRoutes registers the gateway webhook, the checkout redirects and,
// outside production with mock payments on, the mock checkout page. queue may
// be nil, in which case webhooks are confirmed inline.
func SetupPaymentRoutes(router *gin.Engine, cfg *config.Config, confirmer PaymentConfirmer, queue ConfirmationQueue) {
	pay := router.Group("/payment")
	pay.POST("/webhook", middleware.RequestSizeLimit(cfg.MaxWebhookBodySize), handlePaymentWebhook(confirmer, queue))
	pay.GET("/callback", handlePaymentCallback(confirmer))
	pay.GET("/error", handlePaymentError())

	if cfg.EnableMockPayments && !cfg.IsProduction() {
		router.GET("/mock-pay/:invoiceId", handleMockCheckout(confirmer))
	}
}

// handlePaymentWebhook always answers 200; an unconfirmed invoice is picked up
// again by the gateway's retry or the callback.
func handlePaymentWebhook(confirmer PaymentConfirmer, queue ConfirmationQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			logger.Error("failed to read payment webhook", "error", err)
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}

		invoiceID, err := payment.ParseWebhook(body)
		if err != nil {
			logger.Warn("payment webhook without invoice id", "error", err, "request_id", middleware.GetRequestID(c))
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}

		if queue != nil {
			queueErr := queue.EnqueueConfirmation(c.Request.Context(), invoiceID, "")
			if queueErr != nil {
				logger.Error("failed to enqueue payment confirmation", "invoice_id", invoiceID, "error", queueErr)
			}
			c.JSON(http.StatusOK, gin.H{"received": true, "invoice_id": invoiceID, "queued": queueErr == nil})
			return
		}

		ctx, cancel := utils.DetachedMessageContext(c.Request.Context())
		defer cancel()

		res, err := confirmer.Confirm(ctx, invoiceID)
		if err != nil {
			logger.Error("payment confirmation failed", "invoice_id", invoiceID, "error", err)
			c.JSON(http.StatusOK, gin.H{"received": true, "invoice_id": invoiceID, "confirmed": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true, "result": res})
	}
}

// handlePaymentCallback serves the gateway's success redirect.
func handlePaymentCallback(confirmer PaymentConfirmer) gin.HandlerFunc {
	return func(c *gin.Context) {
		paymentID := strings.TrimSpace(c.Query("paymentId"))
		if paymentID == "" {
			utils.RespondWithBadRequest(c, "paymentId is required", nil)
			return
		}

		ctx, cancel := utils.DetachedMessageContext(c.Request.Context())
		defer cancel()

		res, err := confirmer.ConfirmByPaymentID(ctx, paymentID)
		if err != nil {
			logger.Error("payment callback verification failed", "payment_id", paymentID, "error", err)
			utils.RespondWithBadGateway(c, "Could not verify payment yet, you will be notified on WhatsApp", nil)
			return
		}
		c.JSON(http.StatusOK, callbackBody(res))
	}
}

func handlePaymentError() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger.Info("checkout failed or cancelled", "payment_id", c.Query("paymentId"))
		c.JSON(http.StatusOK, gin.H{
			"status":  "failed",
			"message": "Payment was not completed. You can retry from the link sent on WhatsApp.",
		})
	}
}

// handleMockCheckout completes a mock invoice as if the client had paid.
func handleMockCheckout(confirmer PaymentConfirmer) gin.HandlerFunc {
	return func(c *gin.Context) {
		invoiceID := c.Param("invoiceId")
		if !payment.IsMockInvoice(invoiceID) {
			utils.RespondWithNotFound(c, "Unknown mock invoice")
			return
		}

		res, err := confirmer.Confirm(c.Request.Context(), invoiceID)
		if err != nil {
			utils.RespondWithInternalError(c, "Mock confirmation failed", gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, callbackBody(res))
	}
}

func callbackBody(res *bot.ConfirmResult) gin.H {
	status := "pending"
	switch {
	case res.Paid && res.AlreadyProcessed:
		status = "already_processed"
	case res.Paid:
		status = "paid"
	}
	return gin.H{"status": status, "invoice_id": res.InvoiceID, "result": res}
}
