package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/cryptopay/internal/config"
	obsmiddleware "github.com/smallbiznis/cryptopay/internal/observability/logger"
	obstracing "github.com/smallbiznis/cryptopay/internal/observability/tracing"
	webhookdomain "github.com/smallbiznis/cryptopay/internal/webhook/domain"
	"go.uber.org/zap"
)

const (
	msgWebhookProcessed = "Webhook processed"
	msgWebhookReceived  = "Webhook received"

	errInvalidSignature = "Invalid signature"
	errInvalidJSON      = "Invalid JSON payload"
	errInternal         = "Internal server error"
)

type webhookResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Processed *bool  `json:"processed,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) HandleNowPaymentsWebhook(c *gin.Context) {
	start := time.Now()

	body, tooLarge, err := readLimited(c.Request.Body, s.maxBodyBytes())
	if err != nil {
		// Whatever was read still goes through ingestion so the attempt is logged.
		s.log.Warn("webhook body read failed", zap.Error(err))
	}

	header := s.cfg.Webhook.SignatureHeader
	if header == "" {
		header = config.DefaultSignatureHeader
	}

	result := s.webhookSvc.Ingest(c.Request.Context(), webhookdomain.IngestRequest{
		Body:         body,
		Signature:    strings.TrimSpace(c.GetHeader(header)),
		SourceIP:     obsmiddleware.SourceIP(c.Request),
		BodyTooLarge: tooLarge,
	})
	c.Set(obstracing.WebhookEventTypeKey, string(result.EventType))
	c.Set(obstracing.WebhookOutcomeKey, string(result.Outcome))

	status, resp := renderIngestResult(result)
	s.webhookMetrics.ObserveRequest(string(result.EventType), strconv.Itoa(status), time.Since(start))
	c.JSON(status, resp)
}

func renderIngestResult(result webhookdomain.IngestResult) (int, webhookResponse) {
	switch result.Outcome {
	case webhookdomain.OutcomeProcessed:
		processed := true
		return http.StatusOK, webhookResponse{Success: true, Message: msgWebhookProcessed, Processed: &processed}
	case webhookdomain.OutcomeProcessingFailed:
		processed := false
		return http.StatusOK, webhookResponse{Success: true, Message: msgWebhookReceived, Processed: &processed}
	case webhookdomain.OutcomeInvalidSignature:
		return http.StatusUnauthorized, webhookResponse{Error: errInvalidSignature}
	case webhookdomain.OutcomeInvalidPayload:
		return http.StatusBadRequest, webhookResponse{Error: errInvalidJSON}
	default:
		return http.StatusInternalServerError, webhookResponse{Error: errInternal}
	}
}

func (s *Server) maxBodyBytes() int64 {
	if s.cfg.Webhook.MaxBodyBytes > 0 {
		return s.cfg.Webhook.MaxBodyBytes
	}
	return config.DefaultMaxBodyBytes
}

// readLimited reads at most limit bytes and reports whether more were sent.
func readLimited(r io.Reader, limit int64) ([]byte, bool, error) {
	if r == nil {
		return nil, false, nil
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if int64(len(body)) > limit {
		return body[:limit], true, err
	}
	return body, false, err
}

// webhookRecovery answers panics with the webhook error contract.
func webhookRecovery(log *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("webhook handler panicked", zap.Any("panic", recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, webhookResponse{Error: errInternal})
	})
}

// GetWebhookEvent returns one stored audit row.
func (s *Server) GetWebhookEvent(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	event, err := s.eventRepo.FindByID(c.Request.Context(), s.db, id)
	if err != nil {
		if !errors.Is(err, webhookdomain.ErrEventNotFound) {
			s.log.Error("load webhook event failed", zap.Error(err))
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": event})
}
