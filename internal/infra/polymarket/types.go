package polymarket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hollowc2/polymarket-auto-trader/internal/domain"
)

// Gamma wire types. The events endpoint nests markets inside an event
// wrapper; token ids and outcome prices arrive as JSON-encoded string
// arrays inside the market object.

type gammaEvent struct {
	Title   string        `json:"title"`
	Closed  bool          `json:"closed"`
	Volume  float64       `json:"volume"`
	Markets []gammaMarket `json:"markets"`
}

type gammaMarket struct {
	Question            string      `json:"question"`
	ConditionID         string      `json:"conditionId"`
	ClobTokenIds        string      `json:"clobTokenIds"`  // JSON array: [up, down]
	OutcomePrices       string      `json:"outcomePrices"` // JSON array: [up, down]
	Closed              bool        `json:"closed"`
	AcceptingOrders     bool        `json:"acceptingOrders"`
	UmaResolutionStatus string      `json:"umaResolutionStatus"`
	TakerBaseFee        json.Number `json:"takerBaseFee"`
	EndDateISO          string      `json:"endDateIso"`
}

// toDomain flattens the nested gamma payload into a domain.Market.
func (m *gammaMarket) toDomain(windowStart int64, slug string) (*domain.Market, error) {
	var tokenIDs []string
	if m.ClobTokenIds != "" {
		if err := json.Unmarshal([]byte(m.ClobTokenIds), &tokenIDs); err != nil {
			return nil, domain.NewValidationError("get_market", "clobTokenIds", err)
		}
	}
	if len(tokenIDs) < 2 {
		return nil, domain.NewValidationError("get_market", "clobTokenIds",
			fmt.Errorf("expected 2 token ids, got %d", len(tokenIDs)))
	}

	upPrice, downPrice := decimal.NewFromFloat(0.5), decimal.NewFromFloat(0.5)
	if m.OutcomePrices != "" {
		var prices []string
		if err := json.Unmarshal([]byte(m.OutcomePrices), &prices); err != nil {
			return nil, domain.NewValidationError("get_market", "outcomePrices", err)
		}
		if len(prices) > 0 {
			if p, err := decimal.NewFromString(prices[0]); err == nil {
				upPrice = p
			}
		}
		if len(prices) > 1 {
			if p, err := decimal.NewFromString(prices[1]); err == nil {
				downPrice = p
			}
		}
	}

	feeBps := defaultFeeBps
	if m.TakerBaseFee != "" {
		if v, err := m.TakerBaseFee.Int64(); err == nil && v > 0 {
			feeBps = v
		}
	}

	var endDate time.Time
	if m.EndDateISO != "" {
		if t, err := time.Parse(time.RFC3339, m.EndDateISO); err == nil {
			endDate = t
		}
	}
	if endDate.IsZero() {
		endDate = time.Unix(windowStart, 0).Add(5 * time.Minute)
	}

	return &domain.Market{
		Slug:             slug,
		ConditionID:      m.ConditionID,
		Question:         m.Question,
		UpTokenID:        tokenIDs[0],
		DownTokenID:      tokenIDs[1],
		UpPrice:          upPrice,
		DownPrice:        downPrice,
		Closed:           m.Closed,
		AcceptingOrders:  m.AcceptingOrders,
		ResolutionStatus: m.UmaResolutionStatus,
		TakerFeeBps:      feeBps,
		WindowStart:      windowStart,
		EndDate:          endDate,
	}, nil
}

// CLOB wire types: the book endpoint and the streaming feed both speak
// price/size string pairs.

type wireLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type clobBook struct {
	AssetID string      `json:"asset_id"`
	Bids    []wireLevel `json:"bids"`
	Asks    []wireLevel `json:"asks"`
}

// parseLevels converts wire levels, dropping malformed entries whole
// rather than half-applying them.
func parseLevels(in []wireLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(in))
	for _, l := range in {
		price, err := decimal.NewFromString(l.Price)
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(l.Size)
		if err != nil {
			continue
		}
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	return out
}

// feedMessage is one streaming message. The feed discriminates on
// event_type (older payloads use type); unknown types are ignored.
// Messages may arrive as a single object or a JSON array of objects.
type feedMessage struct {
	EventType string `json:"event_type"`
	Type      string `json:"type"`
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`

	// book snapshot
	Bids []wireLevel `json:"bids"`
	Asks []wireLevel `json:"asks"`

	// price_change deltas
	Changes []wireChange `json:"changes"`

	// last_trade_price tick
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	Timestamp string `json:"timestamp"`
}

type wireChange struct {
	Side  string `json:"side"`
	Price string `json:"price"`
	Size  string `json:"size"`
}

func (m *feedMessage) kind() string {
	if m.EventType != "" {
		return m.EventType
	}
	return m.Type
}

// subscribeMessage opens the market channel for a set of tokens.
type subscribeMessage struct {
	AssetIDs []string `json:"assets_ids"`
	Type     string   `json:"type"`
}
