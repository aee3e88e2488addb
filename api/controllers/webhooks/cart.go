package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/bundleworks-backend/api/responses"
	shopifywebhook "github.com/angelmondragon/bundleworks-backend/internal/webhooks/shopify"
	"github.com/angelmondragon/bundleworks-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/bundleworks-backend/pkg/errors"
	"github.com/angelmondragon/bundleworks-backend/pkg/logger"
)

const (
	hmacHeader      = "X-Shopify-Hmac-Sha256"
	webhookIDHeader = "X-Shopify-Webhook-Id"
)

// ShopifyCartUpdate verifies, deduplicates and evaluates carts/update
// deliveries. Shopify retries on non-2xx, so evaluation failures unmark the
// event before surfacing the error.
func ShopifyCartUpdate(
	svc *shopifywebhook.Service,
	cfg config.WebhookConfig,
	guard *shopifywebhook.IdempotencyGuard,
	logg *logger.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook handler not configured"))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read webhook body"))
			return
		}

		signature := strings.TrimSpace(r.Header.Get(hmacHeader))
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing webhook signature"))
			return
		}
		if !verifySignature(cfg.SharedSecret, body, signature) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		var event shopifywebhook.CartUpdateEvent
		if err := json.Unmarshal(body, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload"))
			return
		}

		eventID := strings.TrimSpace(r.Header.Get(webhookIDHeader))
		if eventID == "" {
			eventID = event.Token
		}

		if eventID != "" {
			seen, guardErr := guard.CheckAndMark(ctx, eventID)
			if guardErr != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, guardErr, "webhook dedup check"))
				return
			}
			if seen {
				logg.Debug(logg.WithField(ctx, "event_id", eventID), "duplicate cart webhook skipped")
				responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
				return
			}
		}

		match, err := svc.HandleCartUpdate(ctx, &event)
		if err != nil {
			if eventID != "" {
				if delErr := guard.Delete(ctx, eventID); delErr != nil {
					logg.Warn(logg.WithField(ctx, "error", delErr.Error()), "failed to unmark webhook event")
				}
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if match == nil {
			responses.WriteSuccess(w, map[string]any{"matched": false})
			return
		}
		responses.WriteSuccess(w, map[string]any{"matched": true, "match": match})
	}
}

func verifySignature(secret string, body []byte, signature string) bool {
	if secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
