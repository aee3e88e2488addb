package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/bundleworks-backend/pkg/errors"
)

const (
	defaultAPIVersion             = "2024-10"
	collectionGIDPrefix           = "gid://shopify/Collection/"
	responseBodyReadLimit   int64 = 2048
	accessTokenHeader             = "X-Shopify-Access-Token"
)

var (
	errShopDomainRequired  = errors.New("shopify shop domain is required")
	errAccessTokenRequired = errors.New("shopify access token is required")
)

// Client talks to the Shopify Admin GraphQL API for one shop.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the admin API endpoint, mostly for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds an admin API client for the given shop.
func NewClient(shopDomain, accessToken, apiVersion string, opts ...Option) (*Client, error) {
	domain := strings.TrimSpace(shopDomain)
	if domain == "" {
		return nil, errShopDomainRequired
	}
	token := strings.TrimSpace(accessToken)
	if token == "" {
		return nil, errAccessTokenRequired
	}
	version := strings.TrimSpace(apiVersion)
	if version == "" {
		version = defaultAPIVersion
	}

	client := &Client{
		token:      token,
		baseURL:    fmt.Sprintf("https://%s/admin/api/%s/graphql.json", domain, version),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return client, nil
}

// DiscountCodeParams describes one basic code discount to create remotely.
type DiscountCodeParams struct {
	Code               string
	Title              string
	DiscountPercentage float64
	CollectionID       string
	MinimumQuantity    int
	StartsAt           time.Time
}

type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// CreateDiscountCode creates a single-use percentage code scoped to a
// collection and returns the discount node GID.
func (c *Client) CreateDiscountCode(ctx context.Context, params DiscountCodeParams) (string, error) {
	if c == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "shopify client not configured")
	}
	if strings.TrimSpace(params.Code) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "discount code is required")
	}
	if strings.TrimSpace(params.CollectionID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "collection id is required")
	}

	const mutation = `mutation discountCodeBasicCreate($basicCodeDiscount: DiscountCodeBasicInput!) {
  discountCodeBasicCreate(basicCodeDiscount: $basicCodeDiscount) {
    codeDiscountNode { id }
    userErrors { field message }
  }
}`

	startsAt := params.StartsAt
	if startsAt.IsZero() {
		startsAt = time.Now()
	}

	variables := map[string]any{
		"basicCodeDiscount": map[string]any{
			"title":    params.Title,
			"code":     params.Code,
			"startsAt": startsAt.UTC().Format(time.RFC3339),
			"customerSelection": map[string]any{
				"all": true,
			},
			"customerGets": map[string]any{
				"value": map[string]any{
					"percentage": params.DiscountPercentage / 100,
				},
				"items": map[string]any{
					"collections": map[string]any{
						"add": []string{CollectionGID(params.CollectionID)},
					},
				},
			},
			"minimumRequirement": map[string]any{
				"quantity": map[string]any{
					"greaterThanOrEqualToQuantity": fmt.Sprintf("%d", params.MinimumQuantity),
				},
			},
			"usageLimit": 1,
		},
	}

	var result struct {
		DiscountCodeBasicCreate struct {
			CodeDiscountNode *struct {
				ID string `json:"id"`
			} `json:"codeDiscountNode"`
			UserErrors []userError `json:"userErrors"`
		} `json:"discountCodeBasicCreate"`
	}
	if err := c.execute(ctx, mutation, variables, &result); err != nil {
		return "", err
	}
	if len(result.DiscountCodeBasicCreate.UserErrors) > 0 {
		return "", rejectedError("discount create rejected", result.DiscountCodeBasicCreate.UserErrors)
	}
	if result.DiscountCodeBasicCreate.CodeDiscountNode == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "discount create returned no node id")
	}
	return result.DiscountCodeBasicCreate.CodeDiscountNode.ID, nil
}

// DeleteDiscountCode removes a code discount by its node GID.
func (c *Client) DeleteDiscountCode(ctx context.Context, discountNodeID string) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "shopify client not configured")
	}
	if strings.TrimSpace(discountNodeID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount node id is required")
	}

	const mutation = `mutation discountCodeBasicDelete($id: ID!) {
  discountCodeDelete(id: $id) {
    deletedCodeDiscountId
    userErrors { field message }
  }
}`

	var result struct {
		DiscountCodeDelete struct {
			DeletedCodeDiscountID string      `json:"deletedCodeDiscountId"`
			UserErrors            []userError `json:"userErrors"`
		} `json:"discountCodeDelete"`
	}
	if err := c.execute(ctx, mutation, map[string]any{"id": discountNodeID}, &result); err != nil {
		return err
	}
	if len(result.DiscountCodeDelete.UserErrors) > 0 {
		return rejectedError("discount delete rejected", result.DiscountCodeDelete.UserErrors)
	}
	return nil
}

// ShopID returns the shop owner GID used as the metafield owner.
func (c *Client) ShopID(ctx context.Context) (string, error) {
	if c == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "shopify client not configured")
	}

	const query = `query shopId { shop { id } }`

	var result struct {
		Shop struct {
			ID string `json:"id"`
		} `json:"shop"`
	}
	if err := c.execute(ctx, query, nil, &result); err != nil {
		return "", err
	}
	if result.Shop.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "shop query returned no id")
	}
	return result.Shop.ID, nil
}

// SetMetafield writes a json metafield on the given owner.
func (c *Client) SetMetafield(ctx context.Context, ownerID, namespace, key string, value any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "shopify client not configured")
	}
	if strings.TrimSpace(ownerID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "metafield owner id is required")
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal metafield value")
	}

	const mutation = `mutation metafieldsSet($metafields: [MetafieldsSetInput!]!) {
  metafieldsSet(metafields: $metafields) {
    metafields { id }
    userErrors { field message }
  }
}`

	variables := map[string]any{
		"metafields": []map[string]any{{
			"ownerId":   ownerID,
			"namespace": namespace,
			"key":       key,
			"type":      "json",
			"value":     string(encoded),
		}},
	}

	var result struct {
		MetafieldsSet struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"metafieldsSet"`
	}
	if err := c.execute(ctx, mutation, variables, &result); err != nil {
		return err
	}
	if len(result.MetafieldsSet.UserErrors) > 0 {
		return rejectedError("metafield set rejected", result.MetafieldsSet.UserErrors)
	}
	return nil
}

// CollectionGID normalizes a bare numeric collection id to its admin GID.
func CollectionGID(collectionID string) string {
	trimmed := strings.TrimSpace(collectionID)
	if strings.HasPrefix(trimmed, "gid://") {
		return trimmed
	}
	return collectionGIDPrefix + trimmed
}

func (c *Client) execute(ctx context.Context, query string, variables map[string]any, out any) error {
	payload, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal graphql request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build graphql request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(accessTokenHeader, c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute graphql request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "graphql request failed")
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode graphql response")
	}
	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			messages = append(messages, e.Message)
		}
		return pkgerrors.New(pkgerrors.CodeDependency, "graphql errors: "+strings.Join(messages, "; "))
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode graphql data")
		}
	}
	return nil
}

func rejectedError(msg string, userErrors []userError) error {
	details := make([]map[string]any, 0, len(userErrors))
	for _, ue := range userErrors {
		details = append(details, map[string]any{
			"field":   strings.Join(ue.Field, "."),
			"message": ue.Message,
		})
	}
	return pkgerrors.New(pkgerrors.CodeRemoteRejected, msg).WithDetails(map[string]any{"userErrors": details})
}
