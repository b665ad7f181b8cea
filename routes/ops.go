package routes

import (
	"context"
	"errors"
	"net/http"
	"time"

	"freelancer-bot/internal/auth"
	"freelancer-bot/internal/bot"
	"freelancer-bot/internal/config"
	"freelancer-bot/internal/logger"
	"freelancer-bot/internal/payment"
	"freelancer-bot/middleware"
	"freelancer-bot/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type Sweeper interface {
	Sweep(ctx context.Context) (bot.SweepResult, error)
	Status() bot.SweeperStatus
}

// SetupOpsRoutes registers the operator endpoints. Nothing is mounted when
// no credential is configured.
func SetupOpsRoutes(router *gin.Engine, cfg *config.Config, rdb *redis.Client, opsAuth *middleware.OpsAuth, confirmer PaymentConfirmer, sweeper Sweeper) {
	if !opsAuth.Enabled() {
		logger.Warn("ops routes disabled: set OPS_JWT_SECRET or OPS_API_KEY_HASH")
		return
	}

	ops := router.Group("/ops")
	ops.Use(
		middleware.RateLimitMiddleware(rdb, cfg.RateLimitReqs, time.Duration(cfg.RateLimitWindow)*time.Second),
		opsAuth.RequireAuth(),
		middleware.RequireRole(auth.RoleOps, auth.RoleAdmin),
		middleware.AuditMiddleware(),
	)

	payments := ops.Group("/payments")
	payments.GET("/verify/:invoiceId", handleOpsVerify(confirmer))
	payments.POST("/verify/:invoiceId", handleOpsVerify(confirmer))
	payments.POST("/sweep", handleOpsSweep(sweeper))
	payments.GET("/sweeper/status", handleSweeperStatus(sweeper))
}

// handleOpsVerify re-checks an invoice with the gateway and completes it if
// it was paid but never confirmed.
func handleOpsVerify(confirmer PaymentConfirmer) gin.HandlerFunc {
	return func(c *gin.Context) {
		invoiceID := c.Param("invoiceId")

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		res, err := confirmer.Confirm(ctx, invoiceID)
		switch {
		case errors.Is(err, payment.ErrPaymentNotFound):
			utils.RespondWithNotFound(c, "Invoice not found at the gateway")
			return
		case errors.Is(err, payment.ErrGatewayUnavailable):
			utils.RespondWithServiceUnavailable(c, "Payment gateway unavailable", nil)
			return
		case err != nil:
			utils.RespondWithBadGateway(c, "Payment verification failed", gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func handleOpsSweep(sweeper Sweeper) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := utils.DetachedMessageContext(c.Request.Context())
		defer cancel()

		res, err := sweeper.Sweep(ctx)
		if err != nil {
			utils.RespondWithInternalError(c, "Sweep finished with errors", gin.H{"result": res, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func handleSweeperStatus(sweeper Sweeper) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, sweeper.Status())
	}
}
