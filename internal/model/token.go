package model

import (
	"encoding/json"
	"time"
)

// LifecycleState is the classifier's verdict for a token.
type LifecycleState string

const (
	StatePrelaunchBonding   LifecycleState = "PRELAUNCH_BONDING"
	StateGraduatedOrRegular LifecycleState = "GRADUATED_OR_REGULAR"
	StateUnknown            LifecycleState = "UNKNOWN"
)

// Windows holds a metric sampled over the usual DEX windows. A nil entry
// means the provider did not report it.
type Windows struct {
	H24 *float64 `json:"h24,omitempty"`
	H6  *float64 `json:"h6,omitempty"`
	H1  *float64 `json:"h1,omitempty"`
	M5  *float64 `json:"m5,omitempty"`
}

type TxnCount struct {
	Buys  *int64 `json:"buys,omitempty"`
	Sells *int64 `json:"sells,omitempty"`
}

// Total is buys+sells, or nil when neither side was reported.
func (t TxnCount) Total() *int64 {
	if t.Buys == nil && t.Sells == nil {
		return nil
	}
	var sum int64
	if t.Buys != nil {
		sum += *t.Buys
	}
	if t.Sells != nil {
		sum += *t.Sells
	}
	return &sum
}

type TxnWindows struct {
	H24 TxnCount `json:"h24"`
	H6  TxnCount `json:"h6"`
	H1  TxnCount `json:"h1"`
}

type SocialLinks struct {
	X        string `json:"x,omitempty"`
	Telegram string `json:"telegram,omitempty"`
	Website  string `json:"website,omitempty"`
}

func (s SocialLinks) Any() bool {
	return s.X != "" || s.Telegram != "" || s.Website != ""
}

// Or fills every empty link from fallback.
func (s SocialLinks) Or(fallback SocialLinks) SocialLinks {
	if s.X == "" {
		s.X = fallback.X
	}
	if s.Telegram == "" {
		s.Telegram = fallback.Telegram
	}
	if s.Website == "" {
		s.Website = fallback.Website
	}
	return s
}

// ProviderRecord is one adapter's normalized view of a token. Every numeric
// field is optional: nil means the provider did not report it.
type ProviderRecord struct {
	Source  string `json:"source"`
	Chain   string `json:"chain,omitempty"`
	Name    string `json:"name,omitempty"`
	Symbol  string `json:"symbol,omitempty"`
	Address string `json:"address,omitempty"`

	PriceUSD  *float64 `json:"price_usd,omitempty"`
	MarketCap *float64 `json:"market_cap,omitempty"`
	FDV       *float64 `json:"fdv,omitempty"`
	Liquidity *float64 `json:"liquidity,omitempty"`

	Volume      Windows    `json:"volume"`
	PriceChange Windows    `json:"price_change"`
	Txns        TxnWindows `json:"txns"`
	Trades24h   *int64     `json:"trades_24h,omitempty"`
	Buyers24h   *int64     `json:"buyers_24h,omitempty"`
	Sellers24h  *int64     `json:"sellers_24h,omitempty"`

	PairAddress   string     `json:"pair_address,omitempty"`
	DexID         string     `json:"dex_id,omitempty"`
	PairCreatedAt *time.Time `json:"pair_created_at,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`

	// Bonding-curve fields. Progress is 0..100.
	Progress      *float64   `json:"progress,omitempty"`
	Completed     bool       `json:"completed"`
	LiquidityHint *float64   `json:"liquidity_hint,omitempty"`
	LastEventTime *time.Time `json:"last_event_time,omitempty"`

	Social   SocialLinks `json:"social"`
	ImageURL string      `json:"image_url,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// ReportedLiquidity prefers pool liquidity and falls back to the bonding
// curve's liquidity hint.
func (r *ProviderRecord) ReportedLiquidity() *float64 {
	if r == nil {
		return nil
	}
	if r.Liquidity != nil {
		return r.Liquidity
	}
	return r.LiquidityHint
}

// CanonicalTokenRecord is the merged, precedence-resolved view of a token.
type CanonicalTokenRecord struct {
	Contract string `json:"contract"`
	Chain    string `json:"chain"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`

	State           LifecycleState `json:"state"`
	Ecosystem       string         `json:"ecosystem,omitempty"`
	BondingProgress *float64       `json:"bonding_progress,omitempty"`
	Completed       bool           `json:"completed"`
	OverrideApplied bool           `json:"override_applied"`

	PriceUSD    *float64   `json:"price_usd,omitempty"`
	MarketCap   *float64   `json:"market_cap,omitempty"`
	FDV         *float64   `json:"fdv,omitempty"`
	Liquidity   *float64   `json:"liquidity,omitempty"`
	Volume      Windows    `json:"volume"`
	PriceChange Windows    `json:"price_change"`
	Trades24h   *int64     `json:"trades_24h,omitempty"`
	Txns24h     *int64     `json:"txns_24h,omitempty"`
	Buyers24h   *int64     `json:"buyers_24h,omitempty"`
	Sellers24h  *int64     `json:"sellers_24h,omitempty"`
	PairCreated *time.Time `json:"pair_created_at,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	AgeMinutes  *int64     `json:"age_minutes,omitempty"`

	Social SocialLinks `json:"social"`

	Primary   string   `json:"primary"`
	Secondary string   `json:"secondary,omitempty"`
	Available []string `json:"available"`
}

// Migrated reports whether a bonding-curve token has graduated to a DEX.
func (c CanonicalTokenRecord) Migrated() bool {
	return c.Ecosystem != "" && c.State == StateGraduatedOrRegular && c.Completed
}

type DataQuality string

const (
	QualityHigh    DataQuality = "High"
	QualityPartial DataQuality = "Partial"
	QualityLimited DataQuality = "Limited"
	QualityError   DataQuality = "Error"
)

type Holder struct {
	Address     string  `json:"address"`
	Balance     string  `json:"balance"`
	Percentage  float64 `json:"percentage"`
	IsContract  bool    `json:"isContract"`
	IsEstimated bool    `json:"isEstimated,omitempty"`
}

// HolderAnalysis is the provider-agnostic holder view.
type HolderAnalysis struct {
	Source      string      `json:"source"`
	Total       int64       `json:"total"`
	IsEstimated bool        `json:"is_estimated"`
	TopHolders  []Holder    `json:"top_holders"`
	Top3Pct     float64     `json:"top3_pct"`
	Top10Pct    float64     `json:"top10_pct"`
	Top20Pct    float64     `json:"top20_pct"`
	DevWallets  int         `json:"dev_wallets"`
	DataQuality DataQuality `json:"data_quality"`
	Note        string      `json:"note,omitempty"`
}

// Usable reports whether holder-derived metrics may be computed.
func (h *HolderAnalysis) Usable() bool {
	if h == nil {
		return false
	}
	if h.DataQuality == QualityError || h.DataQuality == "" {
		return false
	}
	return h.Total > 0
}

// ConcentrationKnown is false when every listed holder balance is an
// estimate, in which case the combined percentages carry no signal.
func (h *HolderAnalysis) ConcentrationKnown() bool {
	if h == nil {
		return false
	}
	if len(h.TopHolders) == 0 {
		return true
	}
	for _, holder := range h.TopHolders {
		if !holder.IsEstimated {
			return true
		}
	}
	return false
}

type RiskAssessment struct {
	SafetyScore  int    `json:"safety_score"`
	RugRiskPct   *int   `json:"rug_risk_pct,omitempty"`
	BundlersPct  *int   `json:"bundlers_pct,omitempty"`
	Distribution string `json:"distribution"`
	RiskLevel    string `json:"risk_level"`
}

// Analysis is the orchestrator's output, consumed by the formatter.
type Analysis struct {
	Contract  string               `json:"contract"`
	Chain     string               `json:"chain"`
	NotFound  bool                 `json:"not_found"`
	Record    CanonicalTokenRecord `json:"record"`
	Holders   *HolderAnalysis      `json:"holders,omitempty"`
	HolderErr error                `json:"-"`
	Providers []ProviderStatus     `json:"providers"`
	Warnings  []string             `json:"warnings,omitempty"`
}

// Partial reports whether any branch degraded.
func (a Analysis) Partial() bool {
	if a.HolderErr != nil || a.Holders == nil {
		return true
	}
	return a.Holders.DataQuality != QualityHigh || len(a.Warnings) > 0
}

// FloatPtr and IntPtr build optional values.
func FloatPtr(v float64) *float64 { return &v }

func IntPtr(v int64) *int64 { return &v }

// FirstFloat returns the first non-nil value.
func FirstFloat(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func FirstInt(values ...*int64) *int64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func FirstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func FirstTime(values ...*time.Time) *time.Time {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
