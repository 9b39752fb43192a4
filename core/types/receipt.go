package types

// Receipt describes a committed transaction.
type Receipt struct {
	TxHash string   `json:"txHash"`
	Type   string   `json:"type"`
	Sender string   `json:"sender"`
	Nonce  uint64   `json:"nonce"`
	Height uint64   `json:"height"`
	Events []*Event `json:"events"`
}
