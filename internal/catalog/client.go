package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"ordena/internal"
	"ordena/internal/config"
)

// Client pulls the tenant's product catalog from the back-office API.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

type pagePayload struct {
	Products []map[string]any `json:"products"`
	Cursor   *string          `json:"cursor"`
	Total    *int             `json:"total"`
}

func NewClient(cfg config.Config) *Client {
	rps := cfg.CatalogRateLimitRPS
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.CatalogTimeoutMs) * time.Millisecond},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// GetProductsAll walks the paginated product listing until the cursor
// stops advancing.
func (c *Client) GetProductsAll(ctx context.Context) ([]internal.CatalogProduct, error) {
	all := make([]internal.CatalogProduct, 0)
	seen := map[string]struct{}{}
	var cursor string

	for {
		query := map[string]string{}
		if cursor != "" {
			query["cursor"] = cursor
		}

		body, err := c.fetchJSON(ctx, "products", query)
		if err != nil {
			return nil, err
		}

		var payload pagePayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, err
		}

		for _, raw := range payload.Products {
			product, err := toCatalogProduct(raw)
			if err != nil {
				continue
			}
			all = append(all, product)
		}

		if payload.Cursor == nil || *payload.Cursor == "" || len(payload.Products) == 0 {
			break
		}
		if _, ok := seen[*payload.Cursor]; ok {
			break
		}
		seen[*payload.Cursor] = struct{}{}
		cursor = *payload.Cursor
	}

	return all, nil
}

// GetBranches fetches the client's delivery branches.
func (c *Client) GetBranches(ctx context.Context, clientID string) ([]internal.Branch, error) {
	body, err := c.fetchJSON(ctx, "branches", map[string]string{"clientId": clientID})
	if err != nil {
		return nil, err
	}
	var out []internal.Branch
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) fetchJSON(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	if strings.TrimSpace(c.cfg.CatalogAPIToken) == "" {
		return nil, errors.New("missing CATALOG_API_TOKEN")
	}

	baseURL := strings.TrimRight(c.cfg.CatalogAPIBaseURL, "/") + "/"
	u, err := url.Parse(baseURL + endpoint)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.CatalogAPIToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < 5 {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				time.Sleep(backoff)
				lastErr = fmt.Errorf("catalog api status %d", resp.StatusCode)
				continue
			}
			return nil, fmt.Errorf("catalog api error: status=%d body=%s", resp.StatusCode, string(body))
		}

		var apiResp apiResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return nil, err
		}
		if !apiResp.Success {
			return nil, fmt.Errorf("catalog api unsuccessful: %s", string(apiResp.Errors))
		}
		return apiResp.Data, nil
	}

	if lastErr == nil {
		lastErr = errors.New("catalog request failed")
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func toCatalogProduct(raw map[string]any) (internal.CatalogProduct, error) {
	name, _ := raw["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return internal.CatalogProduct{}, errors.New("empty name")
	}

	id, ok := toInt(raw["id"])
	if !ok {
		return internal.CatalogProduct{}, errors.New("missing id")
	}

	product := internal.CatalogProduct{
		ID:   id,
		Name: name,
	}
	if unit, ok := raw["saleUnit"].(string); ok {
		product.SaleUnit = strings.TrimSpace(unit)
	}
	if v, ok := raw["pricedByWeight"].(bool); ok {
		product.PricedByWeight = v
	}
	product.WeightPerUnit = toFloatPtr(raw["weightPerUnit"])
	if v, ok := raw["appliesTaxA"].(bool); ok {
		product.AppliesTaxA = v
	}
	if v, ok := raw["appliesTaxB"].(bool); ok {
		product.AppliesTaxB = v
	}
	if price := toDecimalPtr(raw["quotedPrice"]); price != nil {
		product.QuotedPrice = price
	}

	return product, nil
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}

func toFloatPtr(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case int:
		f := float64(t)
		return &f
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return &f
		}
	}
	return nil
}

func toDecimalPtr(v any) *decimal.Decimal {
	switch t := v.(type) {
	case string:
		if dec, err := decimal.NewFromString(strings.TrimSpace(t)); err == nil {
			return &dec
		}
	case float64:
		dec := decimal.NewFromFloat(t)
		return &dec
	case json.Number:
		if dec, err := decimal.NewFromString(t.String()); err == nil {
			return &dec
		}
	}
	return nil
}
