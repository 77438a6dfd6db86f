package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/shineum/maildispatch/internal/composer"
	"github.com/shineum/maildispatch/internal/email"
	"github.com/shineum/maildispatch/internal/provider"
	"github.com/shineum/maildispatch/internal/storage"
)

// MaxBatchSize bounds the number of messages in one batch request.
const MaxBatchSize = 100

type handler struct {
	dispatcher  *provider.Dispatcher
	attachments AttachmentSource
	logger      *slog.Logger
}

type providerInfo struct {
	Name                  string `json:"name"`
	Default               bool   `json:"default"`
	SupportsAttachments   bool   `json:"supports_attachments"`
	SupportsTrackingLinks bool   `json:"supports_tracking_links"`
}

type sendResult struct {
	Index      int    `json:"index"`
	Success    bool   `json:"success"`
	Provider   string `json:"provider,omitempty"`
	MessageID  string `json:"message_id,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
	Message    string `json:"message,omitempty"`
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"default_provider": h.dispatcher.Default(),
	})
}

func (h *handler) providers(c *gin.Context) {
	def := h.dispatcher.Default()
	infos := lo.Map(h.dispatcher.Registry().Providers(), func(p provider.Provider, _ int) providerInfo {
		return providerInfo{
			Name:                  p.Name(),
			Default:               p.Name() == def,
			SupportsAttachments:   p.SupportsAttachments(),
			SupportsTrackingLinks: p.SupportsTrackingLinks(),
		}
	})
	c.JSON(http.StatusOK, gin.H{"providers": infos})
}

func (h *handler) send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	ctx := c.Request.Context()
	msg, err := toEmail(ctx, &req, h.attachments)
	if err != nil {
		status, code := classify(err)
		abort(c, status, code, err.Error())
		return
	}

	resp, err := h.dispatcher.Send(ctx, req.Provider, msg)
	if err != nil {
		status, code := classify(err)
		abort(c, status, code, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"provider":    resp.Provider,
		"message_id":  resp.MessageID,
		"status_code": resp.StatusCode,
	})
}

func (h *handler) sendBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if len(req.Messages) == 0 {
		abort(c, http.StatusBadRequest, "empty_batch", "messages must not be empty")
		return
	}
	if len(req.Messages) > MaxBatchSize {
		abort(c, http.StatusBadRequest, "batch_too_large", "too many messages in batch")
		return
	}
	if req.Provider != "" {
		if _, err := h.dispatcher.Registry().Get(req.Provider); err != nil {
			status, code := classify(err)
			abort(c, status, code, err.Error())
			return
		}
	}

	ctx := c.Request.Context()
	results := make([]sendResult, len(req.Messages))

	// Messages that fail to build are reported without being sent; the rest
	// go out as one batch.
	var (
		emails  []*email.Email
		indexes []int
	)
	for i := range req.Messages {
		results[i].Index = i
		msg, err := toEmail(ctx, &req.Messages[i], h.attachments)
		if err != nil {
			_, code := classify(err)
			results[i].Error, results[i].Message = code, err.Error()
			continue
		}
		emails = append(emails, msg)
		indexes = append(indexes, i)
	}

	for j, r := range h.dispatcher.SendBatch(ctx, req.Provider, emails) {
		res := &results[indexes[j]]
		if r.Err != nil {
			_, code := classify(r.Err)
			res.Error, res.Message = code, r.Err.Error()
			continue
		}
		res.Success = true
		res.Provider = r.Response.Provider
		res.MessageID = r.Response.MessageID
		res.StatusCode = r.Response.StatusCode
	}

	sent := lo.CountBy(results, func(r sendResult) bool { return r.Success })
	h.logger.Info("batch processed", "total", len(results), "sent", sent)

	c.JSON(http.StatusOK, gin.H{
		"success": sent == len(results),
		"sent":    sent,
		"failed":  len(results) - sent,
		"results": results,
	})
}

// classify maps an error onto an HTTP status and a stable error code.
func classify(err error) (int, string) {
	var validation *email.ValidationError
	var compose *composer.ComposeError
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, email.ErrInvalidAttachment),
		errors.Is(err, storage.ErrInvalidKey),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrTooLarge):
		return http.StatusBadRequest, "invalid_attachment"
	case errors.Is(err, provider.ErrProviderNotFound):
		return http.StatusNotFound, "provider_not_found"
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity, "validation_error"
	case errors.As(err, &compose):
		return http.StatusUnprocessableEntity, "invalid_message"
	case errors.Is(err, provider.ErrAttachmentsUnsupported),
		errors.Is(err, provider.ErrTrackingUnsupported):
		return http.StatusUnprocessableEntity, "unsupported_capability"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusBadGateway, "send_failed"
	}
}
