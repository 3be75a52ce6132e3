package models

import (
	"encoding/json"
	"fmt"
)

// ActivityKind classifies a single on-chain activity row.
type ActivityKind string

const (
	KindSend    ActivityKind = "send"
	KindReceive ActivityKind = "receive"
	KindMint    ActivityKind = "mint"
	KindBurn    ActivityKind = "burn"
	KindSwap    ActivityKind = "swap"
	KindApprove ActivityKind = "approve"
	KindUnknown ActivityKind = "unknown"
)

// NormalizeKind maps an arbitrary type string onto a known ActivityKind.
// Anything unrecognized becomes KindUnknown rather than flowing through
// as an untyped string.
func NormalizeKind(s string) ActivityKind {
	switch ActivityKind(s) {
	case KindSend, KindReceive, KindMint, KindBurn, KindSwap, KindApprove:
		return ActivityKind(s)
	default:
		return KindUnknown
	}
}

// AssetERC20 is the only asset class eligible for whale alerts.
const AssetERC20 = "erc20"

// Activity is one classified activity row from an activities webhook.
type Activity struct {
	Type         string `json:"type"`
	ChainID      int64  `json:"chain_id"`
	TxHash       string `json:"tx_hash"`
	From         string `json:"from"`
	To           string `json:"to"`
	Value        string `json:"value"` // decimal string in base units
	TokenAddress string `json:"token_address,omitempty"`
	AssetType    string `json:"asset_type,omitempty"`
	BlockNumber  uint64 `json:"block_number,omitempty"`
}

// Kind returns the normalized activity kind.
func (a *Activity) Kind() ActivityKind {
	return NormalizeKind(a.Type)
}

// Transaction is one row from a transactions webhook. These are recorded
// and counted but do not drive whale alerts.
type Transaction struct {
	Hash    string          `json:"hash"`
	Chain   string          `json:"chain"`
	Success bool            `json:"success"`
	Decoded json.RawMessage `json:"decoded,omitempty"`
	Logs    json.RawMessage `json:"logs,omitempty"`
}

// BalanceChange is one row from a balance-changes webhook.
type BalanceChange struct {
	Direction    string `json:"direction"` // "in" or "out"
	Amount       string `json:"amount"`    // decimal string in base units
	Asset        string `json:"asset"`
	Address      string `json:"address"`
	TokenAddress string `json:"token_address,omitempty"`
	ChainID      int64  `json:"chain_id,omitempty"`
	TxHash       string `json:"tx_hash,omitempty"`
}

// ActivitiesPayload is the body of an activities webhook call.
type ActivitiesPayload struct {
	Activities []Activity `json:"activities"`
}

// TransactionsPayload is the body of a transactions webhook call.
type TransactionsPayload struct {
	Transactions []Transaction `json:"transactions"`
}

// BalanceChangesPayload is the body of a balance-changes webhook call.
type BalanceChangesPayload struct {
	BalanceChanges []BalanceChange `json:"balance_changes"`
}

// ErrMalformedPayload marks client errors: unparsable JSON or a
// missing/wrong-typed required array field.
type ErrMalformedPayload struct {
	Field  string
	Reason string
}

func (e *ErrMalformedPayload) Error() string {
	return fmt.Sprintf("malformed payload: %s (%s)", e.Field, e.Reason)
}

// requireArray checks that the named field exists and is a JSON array
// before the typed unmarshal, so a wrong-typed field is reported as a
// client error instead of a silent zero value.
func requireArray(body []byte, field string) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return &ErrMalformedPayload{Field: field, Reason: "body is not a JSON object"}
	}
	raw, ok := probe[field]
	if !ok {
		return &ErrMalformedPayload{Field: field, Reason: "missing required array"}
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return &ErrMalformedPayload{Field: field, Reason: "field is not an array"}
	}
	return nil
}

// ParseActivities parses and validates an activities webhook body.
func ParseActivities(body []byte) (*ActivitiesPayload, error) {
	if err := requireArray(body, "activities"); err != nil {
		return nil, err
	}
	var p ActivitiesPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &ErrMalformedPayload{Field: "activities", Reason: err.Error()}
	}
	return &p, nil
}

// ParseTransactions parses and validates a transactions webhook body.
func ParseTransactions(body []byte) (*TransactionsPayload, error) {
	if err := requireArray(body, "transactions"); err != nil {
		return nil, err
	}
	var p TransactionsPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &ErrMalformedPayload{Field: "transactions", Reason: err.Error()}
	}
	return &p, nil
}

// ParseBalanceChanges parses and validates a balance-changes webhook body.
func ParseBalanceChanges(body []byte) (*BalanceChangesPayload, error) {
	if err := requireArray(body, "balance_changes"); err != nil {
		return nil, err
	}
	var p BalanceChangesPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &ErrMalformedPayload{Field: "balance_changes", Reason: err.Error()}
	}
	return &p, nil
}

// TokenMetadata is the resolved symbol/name/decimals/price for a token.
type TokenMetadata struct {
	Symbol   string   `json:"symbol"`
	Name     string   `json:"name"`
	Decimals int      `json:"decimals"`
	PriceUSD *float64 `json:"price_usd,omitempty"`
	ChainID  int64    `json:"chain_id"`
}

// IsValid reports whether a lookup result is usable. A result missing
// either symbol or name is treated as not-found and must not be cached.
func (m *TokenMetadata) IsValid() bool {
	return m != nil && m.Symbol != "" && m.Name != ""
}
