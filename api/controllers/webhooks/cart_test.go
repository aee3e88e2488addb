package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	shopifywebhook "github.com/angelmondragon/bundleworks-backend/internal/webhooks/shopify"
	"github.com/angelmondragon/bundleworks-backend/pkg/config"
	"github.com/angelmondragon/bundleworks-backend/pkg/db/models"
	"github.com/angelmondragon/bundleworks-backend/pkg/logger"
	"github.com/angelmondragon/bundleworks-backend/pkg/types"
)

const testSecret = "cart-webhook-secret"

type stubLister struct {
	calls   int
	bundles []models.Bundle
	err     error
}

func (s *stubLister) List(ctx context.Context) ([]models.Bundle, error) {
	s.calls++
	return s.bundles, s.err
}

type stubStore struct {
	seen map[string]string
}

func newStubStore() *stubStore {
	return &stubStore{seen: map[string]string{}}
}

func (s *stubStore) Get(ctx context.Context, key string) (string, error) {
	return s.seen[key], nil
}

func (s *stubStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = "1"
	return true, nil
}

func (s *stubStore) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

func (s *stubStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.seen, key)
	}
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "webhook-test", Level: logger.ParseLevel("debug"), Output: io.Discard})
}

func newHandler(t *testing.T, lister *stubLister, store *stubStore) http.HandlerFunc {
	t.Helper()
	logg := testLogger()
	svc, err := shopifywebhook.NewService(lister, logg, nil)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	guard, err := shopifywebhook.NewIdempotencyGuard(store, time.Hour, "cart-update")
	if err != nil {
		t.Fatalf("build guard: %v", err)
	}
	return ShopifyCartUpdate(svc, config.WebhookConfig{SharedSecret: testSecret, DedupTTL: time.Hour}, guard, logg)
}

func sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func deliver(handler http.HandlerFunc, payload, signature, eventID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/cart-update", strings.NewReader(payload))
	if signature != "" {
		req.Header.Set("X-Shopify-Hmac-Sha256", signature)
	}
	if eventID != "" {
		req.Header.Set("X-Shopify-Webhook-Id", eventID)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func TestCartWebhookRejectsMissingSignature(t *testing.T) {
	lister := &stubLister{}
	handler := newHandler(t, lister, newStubStore())

	resp := deliver(handler, `{"line_items":[]}`, "", "evt-1")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if lister.calls != 0 {
		t.Fatalf("bundles must not be loaded for unsigned deliveries")
	}
}

func TestCartWebhookRejectsForgedSignature(t *testing.T) {
	handler := newHandler(t, &stubLister{}, newStubStore())

	resp := deliver(handler, `{"line_items":[]}`, base64.StdEncoding.EncodeToString([]byte("forged")), "evt-1")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCartWebhookMatchesBestTier(t *testing.T) {
	lister := &stubLister{
		bundles: []models.Bundle{{
			Name: "Summer Pack",
			Rules: types.BundleRules{
				{Tier: "Gold", TotalProducts: 5, DiscountPercentage: 10},
			},
		}},
	}
	handler := newHandler(t, lister, newStubStore())

	payload := `{"id":"1","token":"cart-1","line_items":[{"quantity":3},{"quantity":4}]}`
	resp := deliver(handler, payload, sign(payload), "evt-1")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"matched":true`) {
		t.Fatalf("expected a matched response, got %s", resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "Gold") {
		t.Fatalf("expected matched tier in response, got %s", resp.Body.String())
	}
}

func TestCartWebhookNoMatch(t *testing.T) {
	lister := &stubLister{}
	handler := newHandler(t, lister, newStubStore())

	payload := `{"id":"1","token":"cart-2","line_items":[{"quantity":1}]}`
	resp := deliver(handler, payload, sign(payload), "evt-2")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"matched":false`) {
		t.Fatalf("expected no-match response, got %s", resp.Body.String())
	}
}

func TestCartWebhookSkipsDuplicateDeliveries(t *testing.T) {
	lister := &stubLister{}
	handler := newHandler(t, lister, newStubStore())

	payload := `{"id":"1","token":"cart-3","line_items":[]}`
	signature := sign(payload)

	if resp := deliver(handler, payload, signature, "evt-3"); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for first delivery got %d", resp.Code)
	}
	resp := deliver(handler, payload, signature, "evt-3")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate delivery got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "duplicate") {
		t.Fatalf("expected duplicate marker, got %s", resp.Body.String())
	}
	if lister.calls != 1 {
		t.Fatalf("duplicate delivery must not re-evaluate, got %d evaluations", lister.calls)
	}
}

func TestCartWebhookUnmarksEventOnFailure(t *testing.T) {
	lister := &stubLister{err: fmt.Errorf("db down")}
	store := newStubStore()
	handler := newHandler(t, lister, store)

	payload := `{"id":"1","token":"cart-4","line_items":[{"quantity":9}]}`
	resp := deliver(handler, payload, sign(payload), "evt-4")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
	if len(store.seen) != 0 {
		t.Fatalf("failed delivery must be unmarked for retry, store=%v", store.seen)
	}

	lister.err = nil
	if retry := deliver(handler, payload, sign(payload), "evt-4"); retry.Code != http.StatusOK {
		t.Fatalf("expected retry to succeed got %d", retry.Code)
	}
}
