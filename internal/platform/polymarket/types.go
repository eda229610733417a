package polymarket

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/marketchart/internal/domain"
)

// flexBool unmarshals from a JSON bool or a "true"/"false" string; Gamma
// sends both.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// APIMarket is a market as returned by the Gamma API.
type APIMarket struct {
	ID               string   `json:"id"`
	Question         string   `json:"question"`
	ConditionID      string   `json:"conditionId"`
	Slug             string   `json:"slug"`
	Active           flexBool `json:"active"`
	Closed           flexBool `json:"closed"`
	Outcomes         string   `json:"outcomes"`     // JSON-encoded, e.g. "[\"Yes\",\"No\"]"
	ClobTokenIDs     string   `json:"clobTokenIds"` // JSON-encoded, e.g. "[\"123\",\"456\"]"
	CreatedAt        string   `json:"createdAt"`
	StartDate        string   `json:"startDate"`
	EndDate          string   `json:"endDate"`
	ClosedTime       string   `json:"closedTime"`
	UpdatedAt        string   `json:"updatedAt"`
	ResolutionStatus string   `json:"umaResolutionStatus"`
}

// gammaTimeLayouts are the timestamp shapes Gamma uses across fields.
var gammaTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseGammaTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range gammaTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseGammaTimePtr(s string) *time.Time {
	t, ok := parseGammaTime(s)
	if !ok {
		return nil
	}
	return &t
}

// decodeStringList decodes Gamma's JSON-in-a-string arrays.
func decodeStringList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// ToDomainMarket converts a Gamma market. Outcomes default to Yes/No, the
// creation time falls back to the start date, and a closed market counts
// as resolved once the oracle reports it so, at its closed time.
func (m *APIMarket) ToDomainMarket() domain.Market {
	dm := domain.Market{
		ID:       m.ID,
		Question: m.Question,
		Slug:     m.Slug,
		Outcomes: [2]string{"Yes", "No"},
		Status:   domain.MarketStatusActive,
	}

	for i, o := range decodeStringList(m.Outcomes) {
		if i >= 2 {
			break
		}
		if o != "" {
			dm.Outcomes[i] = o
		}
	}
	for i, tok := range decodeStringList(m.ClobTokenIDs) {
		if i >= 2 {
			break
		}
		dm.TokenIDs[i] = tok
	}

	if t, ok := parseGammaTime(m.CreatedAt); ok {
		dm.CreatedAt = t
	} else if t, ok := parseGammaTime(m.StartDate); ok {
		dm.CreatedAt = t
	}
	if t, ok := parseGammaTime(m.UpdatedAt); ok {
		dm.UpdatedAt = t
	}
	dm.CloseTime = parseGammaTimePtr(m.EndDate)

	if bool(m.Closed) {
		dm.Status = domain.MarketStatusClosed
		closedAt := parseGammaTimePtr(m.ClosedTime)
		if closedAt != nil {
			dm.CloseTime = closedAt
		}
		if strings.EqualFold(m.ResolutionStatus, "resolved") {
			dm.Status = domain.MarketStatusResolved
			dm.ResolutionTime = closedAt
			if dm.ResolutionTime == nil {
				dm.ResolutionTime = dm.CloseTime
			}
		}
	}
	return dm
}

// APIPriceHistory is the prices-history response body.
type APIPriceHistory struct {
	History []APIPricePoint `json:"history"`
}

// APIPricePoint is one sample; T is in unix seconds.
type APIPricePoint struct {
	T int64   `json:"t"`
	P float64 `json:"p"`
}

// ToDomainPoints converts the samples for marketID, sorted by time.
func (h APIPriceHistory) ToDomainPoints(marketID string) []domain.PricePoint {
	points := make([]domain.PricePoint, 0, len(h.History))
	for _, s := range h.History {
		points = append(points, domain.PricePoint{
			MarketID:  marketID,
			Timestamp: time.Unix(s.T, 0).UTC(),
			Price:     s.P,
		})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return points
}
