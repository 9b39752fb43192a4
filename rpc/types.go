package rpc

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nengajo/indexer"
	"nengajo/native/nengajo"
)

// DesignResult is the RPC view of a registered design.
type DesignResult struct {
	ID        uint64 `json:"id"`
	Creator   string `json:"creator"`
	URI       string `json:"uri"`
	MaxSupply uint64 `json:"maxSupply"`
	Minted    uint64 `json:"minted"`
	Remaining uint64 `json:"remaining"`
}

func formatDesign(d *nengajo.Design) DesignResult {
	return DesignResult{
		ID:        d.ID,
		Creator:   common.Address(d.Creator).Hex(),
		URI:       d.URI,
		MaxSupply: d.MaxSupply,
		Minted:    d.Minted,
		Remaining: d.Remaining(),
	}
}

// RemainingResult reports a countdown both as whole seconds and as a
// human-readable duration.
type RemainingResult struct {
	Seconds  int64  `json:"seconds"`
	Duration string `json:"duration"`
}

func formatRemaining(d time.Duration) RemainingResult {
	return RemainingResult{Seconds: int64(d / time.Second), Duration: d.String()}
}

// BalanceResult reports the copies of a design held by an address.
type BalanceResult struct {
	Address  string `json:"address"`
	DesignID uint64 `json:"designId"`
	Balance  uint64 `json:"balance"`
	Claimed  bool   `json:"claimed"`
}

// HoldingsResult lists the designs held by an address.
type HoldingsResult struct {
	Address string   `json:"address"`
	Designs []uint64 `json:"designs"`
}

// AmountResult carries a gating token amount as a decimal string.
type AmountResult struct {
	Address string `json:"address,omitempty"`
	Spender string `json:"spender,omitempty"`
	Amount  string `json:"amount"`
}

// ActivityResult is one indexed event.
type ActivityResult struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Height     uint64            `json:"height"`
	Type       string            `json:"type"`
	DesignID   *uint64           `json:"designId,omitempty"`
	Address    string            `json:"address,omitempty"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  int64             `json:"createdAt"`
}

func formatActivity(row indexer.Activity) ActivityResult {
	attrs := map[string]string{}
	if row.Attributes != "" {
		_ = json.Unmarshal([]byte(row.Attributes), &attrs)
	}
	return ActivityResult{
		ID:         row.ID.String(),
		Sequence:   row.Sequence,
		Height:     row.Height,
		Type:       row.Type,
		DesignID:   row.DesignID,
		Address:    row.Address,
		Attributes: attrs,
		CreatedAt:  row.CreatedAt.Unix(),
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
