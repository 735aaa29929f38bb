package server

import (
	"context"
	"io"
	"net/http"
	"time"

	apperrors "github.com/ZanzyTHEbar/review-relay/internal/errors"
	"github.com/ZanzyTHEbar/review-relay/internal/payload"
	"github.com/ZanzyTHEbar/review-relay/internal/signature"
	"github.com/ZanzyTHEbar/review-relay/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Delivery headers. GitHub sends the first of each pair; the second is
// accepted for senders that relay deliveries under generic names.
var (
	eventTypeHeaders  = []string{"X-GitHub-Event", "X-Event-Type"}
	deliveryIDHeaders = []string{"X-GitHub-Delivery", "X-Delivery-Id"}
	signatureHeaders  = []string{"X-Hub-Signature-256", "X-Signature-256"}
)

// ReasonNoRepository is returned for payloads without repository context
const ReasonNoRepository = "no repository"

func header(c *gin.Context, names []string) string {
	for _, name := range names {
		if v := c.GetHeader(name); v != "" {
			return v
		}
	}
	return ""
}

// handleWebhook godoc
// @Summary Receive a webhook delivery
// @Tags webhook
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /github-webhook [post]
func (s *Server) handleWebhook(c *gin.Context) {
	eventType := header(c, eventTypeHeaders)
	if eventType == "" {
		apperrors.Abort(c, apperrors.NewValidationError(apperrors.MsgMissingEventType, nil), "")
		return
	}
	deliveryID := header(c, deliveryIDHeaders)

	// The signature covers the exact bytes sent, so nothing may parse the body first.
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		apperrors.Abort(c, apperrors.NewValidationError(apperrors.MsgMalformedPayload, err), "")
		return
	}

	if !signature.Verify(raw, header(c, signatureHeaders), s.secret, s.cfg.Features.SignatureValidation) {
		s.logger.SecurityLogger("invalid_signature", c.ClientIP(), c.GetHeader("User-Agent"), map[string]interface{}{
			"event_type":  eventType,
			"delivery_id": deliveryID,
		})
		apperrors.Abort(c, apperrors.NewAuthenticationError(apperrors.MsgInvalidSignature), "")
		return
	}

	tree, err := payload.Decode(raw)
	if err != nil {
		apperrors.Abort(c, apperrors.NewValidationError(apperrors.MsgMalformedPayload, err), "")
		return
	}

	if s.cfg.Features.PayloadLogging {
		s.logger.Debug("Webhook payload", "event_type", eventType, "delivery_id", deliveryID, "payload", string(raw))
	}

	repo := tree.String("", "repository", "full_name")
	if repo == "" {
		c.JSON(http.StatusOK, gin.H{"status": types.KindIgnored, "reason": ReasonNoRepository})
		return
	}
	if ok, reason := s.policy.Check(repo, eventType); !ok {
		s.logger.Info("Webhook ignored", "event_type", eventType, "repository", repo, "reason", reason)
		c.JSON(http.StatusOK, gin.H{"status": types.KindIgnored, "reason": reason})
		return
	}

	correlationID := uuid.NewString()
	c.Set(apperrors.CorrelationKey, correlationID)

	ev := types.InboundEvent{
		EventType:  eventType,
		Action:     tree.String("", "action"),
		DeliveryID: deliveryID,
		Repository: repo,
		Payload:    tree,
		ReceivedAt: time.Now(),
	}
	s.logger.Info("Webhook accepted",
		"correlation_id", correlationID,
		"delivery_id", deliveryID,
		"event_type", eventType,
		"action", ev.Action,
		"repository", repo,
	)

	if s.cfg.Features.AsyncProcessing {
		accepted := s.runner.Submit(correlationID, func(ctx context.Context) {
			s.engine.Dispatch(ctx, ev, correlationID)
		})
		if !accepted {
			apperrors.Abort(c, apperrors.NewInternalError("background runner is shutting down", nil), correlationID)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":         "queued",
			"correlation_id": correlationID,
			"event_type":     eventType,
			"repository":     repo,
		})
		return
	}

	// A dispatch runs to completion even if the sender disconnects.
	result := s.engine.Dispatch(context.WithoutCancel(c.Request.Context()), ev, correlationID)
	c.JSON(http.StatusOK, gin.H{
		"status":         "processed",
		"correlation_id": correlationID,
		"result":         result,
	})
}

// ErrorResponse is the body of every 4xx and 5xx response
type ErrorResponse struct {
	Error string `json:"error"`
}
