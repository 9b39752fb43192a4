package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"nengajo/core"
	"nengajo/core/types"
	"nengajo/crypto"
)

// buildAndSend fetches the chain id and the signer's nonce, signs a
// transaction of typ and submits it.
func buildAndSend(keyFile string, typ types.TxType, payload interface{}) (*types.Receipt, error) {
	key, err := loadPrivateKey(keyFile)
	if err != nil {
		return nil, err
	}
	chainID, err := fetchChainID()
	if err != nil {
		return nil, err
	}
	addr := key.Address()
	nonceRaw, err := callRPC("nengajo_nonce", false, addr.Hex())
	if err != nil {
		return nil, err
	}
	var nonce uint64
	if err := json.Unmarshal(nonceRaw, &nonce); err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}

	tx, err := types.NewTransaction(chainID, typ, nonce, payload)
	if err != nil {
		return nil, err
	}
	if err := tx.Sign(key.PrivateKey); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	result, err := callRPC("nengajo_sendTransaction", true, tx)
	if err != nil {
		return nil, err
	}
	var receipt types.Receipt
	if err := json.Unmarshal(result, &receipt); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	return &receipt, nil
}

func fetchChainID() (uint64, error) {
	raw, err := callRPC("nengajo_info", false)
	if err != nil {
		return 0, err
	}
	var info struct {
		ChainID uint64 `json:"chainId"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return 0, fmt.Errorf("decode info: %w", err)
	}
	return info.ChainID, nil
}

func printReceipt(receipt *types.Receipt) {
	fmt.Printf("Committed %s at height %d\n", receipt.Type, receipt.Height)
	fmt.Printf("  Hash:  %s\n", receipt.TxHash)
	fmt.Printf("  Nonce: %d\n", receipt.Nonce)
	for _, evt := range receipt.Events {
		fmt.Printf("  Event %s\n", evt.Type)
		for k, v := range evt.Attributes {
			fmt.Printf("    %s: %s\n", k, v)
		}
	}
}

func approve(amountStr, keyFile string) error {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(amountStr), 10)
	if !ok || amount.Sign() < 0 {
		return fmt.Errorf("invalid amount %q", amountStr)
	}
	receipt, err := buildAndSend(keyFile, types.TxTypeApprove, types.ApprovePayload{Spender: core.DropAddress, Amount: amount})
	if err != nil {
		return err
	}
	printReceipt(receipt)
	return nil
}

func register(maxSupplyStr, uri, keyFile string) error {
	maxSupply, err := strconv.ParseUint(strings.TrimSpace(maxSupplyStr), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid max supply %q", maxSupplyStr)
	}
	receipt, err := buildAndSend(keyFile, types.TxTypeRegisterCreative, types.RegisterCreativePayload{MaxSupply: maxSupply, URI: uri})
	if err != nil {
		return err
	}
	printReceipt(receipt)
	return nil
}

func mint(designIDStr, keyFile string) error {
	id, err := strconv.ParseUint(strings.TrimSpace(designIDStr), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid design id %q", designIDStr)
	}
	receipt, err := buildAndSend(keyFile, types.TxTypeMint, types.MintPayload{DesignID: id})
	if err != nil {
		return err
	}
	printReceipt(receipt)
	return nil
}

func addAdmins(keyFile string, rawAddrs []string) error {
	admins := make([][20]byte, 0, len(rawAddrs))
	for _, raw := range rawAddrs {
		addr, err := crypto.ParseAddress(raw)
		if err != nil {
			return err
		}
		admins = append(admins, [20]byte(addr))
	}
	receipt, err := buildAndSend(keyFile, types.TxTypeAddAdmins, types.AddAdminsPayload{Admins: admins})
	if err != nil {
		return err
	}
	printReceipt(receipt)
	return nil
}

func switchMintable(keyFile string) error {
	receipt, err := buildAndSend(keyFile, types.TxTypeSwitchMintable, nil)
	if err != nil {
		return err
	}
	printReceipt(receipt)
	return nil
}
