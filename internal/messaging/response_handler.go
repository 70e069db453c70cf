package messaging

import (
	"context"
	"log/slog"
)

// RouterFunc turns one inbound message into a reply. The user ID is the
// canonicalized sender phone number. An empty reply suppresses the response.
type RouterFunc func(ctx context.Context, userID, message string) string

// ResponseHandler consumes inbound messages from a Service and replies
// through the same service using a router callback.
type ResponseHandler struct {
	service Service
	router  RouterFunc
}

// NewResponseHandler creates a handler routing messages through router.
func NewResponseHandler(service Service, router RouterFunc) *ResponseHandler {
	slog.Debug("Creating messaging ResponseHandler")
	return &ResponseHandler{service: service, router: router}
}

// Start consumes the service's response channel until the context is
// cancelled or the channel closes. Run it in its own goroutine.
func (h *ResponseHandler) Start(ctx context.Context) {
	slog.Info("ResponseHandler started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("ResponseHandler stopping", "reason", ctx.Err())
			return
		case response, ok := <-h.service.Responses():
			if !ok {
				slog.Info("ResponseHandler stopping, response channel closed")
				return
			}
			h.handle(ctx, response.From, response.Body)
		}
	}
}

func (h *ResponseHandler) handle(ctx context.Context, from, body string) {
	userID, err := h.service.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		slog.Warn("ResponseHandler dropping message with invalid sender", "error", err, "from", from)
		return
	}

	reply := h.router(ctx, userID, body)
	if reply == "" {
		slog.Debug("ResponseHandler suppressed empty reply", "userID", userID)
		return
	}
	if err := h.service.SendMessage(ctx, userID, reply); err != nil {
		slog.Error("ResponseHandler failed to send reply", "error", err, "userID", userID)
	}
}
