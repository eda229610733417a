package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/marketchart/internal/domain"
)

// HistoryClient reads price history from the CLOB prices-history endpoint.
type HistoryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHistoryClient creates a client for the CLOB API at baseURL, e.g.
// "https://clob.polymarket.com".
func NewHistoryClient(baseURL string) *HistoryClient {
	return &HistoryClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// GetPriceHistory returns the samples of the market's first outcome token
// between from and to, one per fidelity. Samples are ordered by time.
func (h *HistoryClient) GetPriceHistory(ctx context.Context, m domain.Market, from, to time.Time, fidelity time.Duration) ([]domain.PricePoint, error) {
	token := m.TokenIDs[0]
	if token == "" {
		return nil, fmt.Errorf("polymarket/clob: market %s has no token id", m.ID)
	}

	minutes := int(fidelity / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	params := url.Values{}
	params.Set("market", token)
	params.Set("startTs", strconv.FormatInt(from.Unix(), 10))
	params.Set("endTs", strconv.FormatInt(to.Unix(), 10))
	params.Set("fidelity", strconv.Itoa(minutes))

	body, err := getJSON(ctx, h.httpClient, h.baseURL+"/prices-history?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: price history %s: %w", m.ID, err)
	}

	var resp APIPriceHistory
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode price history %s: %w", m.ID, err)
	}
	return resp.ToDomainPoints(m.ID), nil
}
