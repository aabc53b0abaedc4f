package kalshi

// API DTOs for the Kalshi trade API v2. Prices are in cents (1-99).

type kalshiMarket struct {
	Ticker        string `json:"ticker"`
	EventTicker   string `json:"event_ticker"`
	Title         string `json:"title"`
	Subtitle      string `json:"subtitle"`
	Status        string `json:"status"` // "open", "closed", "finalized", "settled"
	YesBid        int    `json:"yes_bid"`
	YesAsk        int    `json:"yes_ask"`
	NoBid         int    `json:"no_bid"`
	NoAsk         int    `json:"no_ask"`
	LastPrice     int    `json:"last_price"`
	Volume        int64  `json:"volume"`
	Result        string `json:"result"` // "yes", "no", "" while unsettled
	CloseTime     string `json:"close_time"`
	CanCloseEarly bool   `json:"can_close_early"`
}

type kalshiPriceLevel [2]int // [price_cents, count]

type kalshiOrderbook struct {
	Yes []kalshiPriceLevel `json:"yes"`
	No  []kalshiPriceLevel `json:"no"`
}

type kalshiOrder struct {
	Ticker        string `json:"ticker"`
	Action        string `json:"action"` // "buy" or "sell"
	Side          string `json:"side"`   // "yes" or "no"
	Type          string `json:"type"`   // "limit"
	Count         int    `json:"count"`
	YesPrice      *int   `json:"yes_price,omitempty"`
	NoPrice       *int   `json:"no_price,omitempty"`
	ClientOrderID string `json:"client_order_id"`
}

type kalshiOrderResponse struct {
	Order struct {
		OrderID string `json:"order_id"`
		Ticker  string `json:"ticker"`
		Status  string `json:"status"` // "resting", "canceled", "executed", "pending"
	} `json:"order"`
}

type kalshiPosition struct {
	Ticker         string `json:"ticker"`
	Position       int    `json:"position"` // signed: positive YES, negative NO
	MarketExposure int    `json:"market_exposure"`
}

type kalshiBalance struct {
	Balance int64 `json:"balance"` // cents
}

type kalshiErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
