package model

import (
	"encoding/json"
	"errors"
)

// Token type values exposed to clients.
const (
	TokenTypePrelaunchBonding = "prelaunch-bonding"
	TokenTypeGraduated        = "graduated"
	TokenTypeRegular          = "regular"
	TokenTypeUnknown          = "unknown"
)

const (
	MigrationPre       = "Pre-migration"
	MigrationCompleted = "Completed"
	MigrationNA        = "N/A"
)

const (
	UnknownTokenName   = "Unknown Token"
	UnknownTokenSymbol = "UNKNOWN"
	NotFoundMessage    = "Token not found on supported platforms"
	PrebondReason      = "No liquidity/market data (likely pre-bonded)."
)

type HolderReport struct {
	Total          *int64      `json:"total"`
	TopHolders     []Holder    `json:"topHolders"`
	Top3Pct        *float64    `json:"top3Pct"`
	Top10Pct       *float64    `json:"top10Pct"`
	DevWalletCount *int        `json:"devWalletCount"`
	Distribution   string      `json:"distribution"`
	RiskLevel      string      `json:"riskLevel"`
	DataQuality    DataQuality `json:"dataQuality"`
	IsEstimated    bool        `json:"isEstimated"`
	DataSource     string      `json:"dataSource"`
}

type DataSources struct {
	Primary   string   `json:"primary"`
	Secondary *string  `json:"secondary"`
	Available []string `json:"available"`
}

// TokenReport is the success variant of the analyze response.
type TokenReport struct {
	TokenName            string       `json:"tokenName"`
	Symbol               string       `json:"symbol"`
	Contract             string       `json:"contract"`
	Chain                string       `json:"chain"`
	TokenType            string       `json:"tokenType"`
	MigrationStatus      string       `json:"migrationStatus"`
	BondingCurveProgress *float64     `json:"bondingCurveProgress"`
	MarketCap            *float64     `json:"marketCap"`
	Liquidity            *float64     `json:"liquidity"`
	Volume24h            *float64     `json:"volume24h"`
	Price                *float64     `json:"price"`
	PriceChange24h       *float64     `json:"priceChange24h"`
	PriceChange6h        *float64     `json:"priceChange6h,omitempty"`
	PriceChange1h        *float64     `json:"priceChange1h,omitempty"`
	Trades24h            *int64       `json:"trades24h"`
	Txns24h              *int64       `json:"txns24h"`
	Buyers24h            *int64       `json:"buyers24h"`
	Sellers24h           *int64       `json:"sellers24h"`
	VolLiqRatio          *int64       `json:"volLiqRatio"`
	TokenAgeMinutes      *int64       `json:"tokenAgeMinutes"`
	Social               SocialLinks  `json:"social"`
	Holders              HolderReport `json:"holders"`
	SafetyScore          int          `json:"safetyScore"`
	BundlersPct          *int         `json:"bundlersPct"`
	Honeypot             bool         `json:"honeypot"`
	RugRiskPct           *int         `json:"rugRiskPct"`
	DataSources          DataSources  `json:"dataSources"`
	AnalyzedAt           string       `json:"analyzedAt"`
}

type NotFoundReport struct {
	Error     string `json:"error"`
	TokenName string `json:"tokenName"`
	Symbol    string `json:"symbol"`
	Contract  string `json:"contract"`
	Chain     string `json:"chain"`
}

type PrebondReport struct {
	IsPrebond     bool   `json:"isPrebond"`
	PrebondReason string `json:"prebondReason"`
	TokenName     string `json:"tokenName"`
	Symbol        string `json:"symbol"`
	Contract      string `json:"contract"`
	Chain         string `json:"chain"`
	AnalyzedAt    string `json:"analyzedAt"`
}

// Response holds exactly one of the three analyze variants.
type Response struct {
	Success  *TokenReport
	NotFound *NotFoundReport
	Prebond  *PrebondReport
}

const (
	KindSuccess  = "success"
	KindNotFound = "not_found"
	KindPrebond  = "prebond"
)

func (r Response) Kind() string {
	switch {
	case r.NotFound != nil:
		return KindNotFound
	case r.Prebond != nil:
		return KindPrebond
	default:
		return KindSuccess
	}
}

func (r Response) MarshalJSON() ([]byte, error) {
	switch {
	case r.Success != nil:
		return json.Marshal(r.Success)
	case r.NotFound != nil:
		return json.Marshal(r.NotFound)
	case r.Prebond != nil:
		return json.Marshal(r.Prebond)
	default:
		return nil, errors.New("empty token response")
	}
}

// UnmarshalJSON picks the variant from its discriminating keys.
func (r *Response) UnmarshalJSON(data []byte) error {
	var probe struct {
		Error     *string `json:"error"`
		IsPrebond bool    `json:"isPrebond"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	*r = Response{}
	switch {
	case probe.Error != nil:
		r.NotFound = &NotFoundReport{}
		return json.Unmarshal(data, r.NotFound)
	case probe.IsPrebond:
		r.Prebond = &PrebondReport{}
		return json.Unmarshal(data, r.Prebond)
	default:
		r.Success = &TokenReport{}
		return json.Unmarshal(data, r.Success)
	}
}
