package types

import (
	"encoding/json"
	"strings"
)

// OrderSubmissionResponse is the CLOB response to POST /order.
type OrderSubmissionResponse struct {
	Success      bool     `json:"success"`
	ErrorMsg     string   `json:"errorMsg"`
	OrderID      string   `json:"orderId"`
	Status       string   `json:"status"` // matched, live, delayed, unmatched
	TakingAmount string   `json:"takingAmount"`
	MakingAmount string   `json:"makingAmount"`
	TransactionHashes []string `json:"transactionsHashes"`
}

// OrderQueryResponse is the CLOB response to GET /data/order/{id}.
type OrderQueryResponse struct {
	ID           string  `json:"id"`
	Status       string  `json:"status"`
	Market       string  `json:"market"`
	AssetID      string  `json:"asset_id"`
	Side         string  `json:"side"`
	Price        float64 `json:"price,string"`
	OriginalSize float64 `json:"original_size,string"`
	SizeMatched  float64 `json:"size_matched,string"`
}

// IsFilled reports whether the queried order fully matched.
func (r *OrderQueryResponse) IsFilled() bool {
	return strings.EqualFold(r.Status, "matched")
}

// SignedOrderJSON is the EIP-712-signed order payload the CLOB expects.
// Amount fields are base-unit strings (6 decimals).
type SignedOrderJSON struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// OrderSubmissionRequest wraps a signed order for POST /order.
type OrderSubmissionRequest struct {
	Order     SignedOrderJSON `json:"order"`
	Owner     string          `json:"owner"` // API key
	OrderType string          `json:"orderType"`
}

// RestBookLevel is one level from GET /book.
type RestBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// RestBook is the CLOB REST book snapshot for one token.
type RestBook struct {
	Market  string          `json:"market"`
	AssetID string          `json:"asset_id"`
	Bids    []RestBookLevel `json:"bids"`
	Asks    []RestBookLevel `json:"asks"`
}

// Marshal returns the canonical JSON body for HMAC signing.
func (r OrderSubmissionRequest) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
