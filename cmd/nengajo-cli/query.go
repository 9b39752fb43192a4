package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"nengajo/crypto"
)

func showInfo() error {
	result, err := callRPC("nengajo_info", false)
	if err != nil {
		return err
	}
	printJSONResult(result)
	return nil
}

func listDesigns() error {
	result, err := callRPC("nengajo_listDesigns", false)
	if err != nil {
		return err
	}
	var designs []struct {
		ID        uint64 `json:"id"`
		Creator   string `json:"creator"`
		URI       string `json:"uri"`
		MaxSupply uint64 `json:"maxSupply"`
		Minted    uint64 `json:"minted"`
	}
	if err := json.Unmarshal(result, &designs); err != nil {
		return fmt.Errorf("decode designs: %w", err)
	}
	if len(designs) == 0 {
		fmt.Println("No designs registered.")
		return nil
	}
	for _, d := range designs {
		fmt.Printf("#%d  %d/%d minted  %s  (creator %s)\n", d.ID, d.Minted, d.MaxSupply, d.URI, d.Creator)
	}
	return nil
}

func showDesign(idStr string) error {
	id, err := strconv.ParseUint(strings.TrimSpace(idStr), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid design id %q", idStr)
	}
	result, err := callRPC("nengajo_getDesign", false, id)
	if err != nil {
		return err
	}
	printJSONResult(result)
	return nil
}

type remaining struct {
	Seconds  int64  `json:"seconds"`
	Duration string `json:"duration"`
}

func fetchRemaining(method string) (remaining, error) {
	var out remaining
	result, err := callRPC(method, false)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", method, err)
	}
	return out, nil
}

func showWindow() error {
	open, err := fetchRemaining("nengajo_remainingOpen")
	if err != nil {
		return err
	}
	closing, err := fetchRemaining("nengajo_remainingClose")
	if err != nil {
		return err
	}
	mintableRaw, err := callRPC("nengajo_mintable", false)
	if err != nil {
		return err
	}
	var override bool
	if err := json.Unmarshal(mintableRaw, &override); err != nil {
		return fmt.Errorf("decode mintable: %w", err)
	}
	fmt.Printf("Opens in:  %s\n", open.Duration)
	fmt.Printf("Closes in: %s\n", closing.Duration)
	fmt.Printf("Override:  %t\n", override)
	return nil
}

func showBalance(rawAddr string) error {
	addr, err := crypto.ParseAddress(rawAddr)
	if err != nil {
		return err
	}
	var gating, allowance struct {
		Amount string `json:"amount"`
	}
	result, err := callRPC("nengajo_gatingBalance", false, addr.Hex())
	if err != nil {
		return err
	}
	if err := json.Unmarshal(result, &gating); err != nil {
		return fmt.Errorf("decode balance: %w", err)
	}
	result, err = callRPC("nengajo_allowance", false, addr.Hex())
	if err != nil {
		return err
	}
	if err := json.Unmarshal(result, &allowance); err != nil {
		return fmt.Errorf("decode allowance: %w", err)
	}
	result, err = callRPC("nengajo_holdings", false, addr.Hex())
	if err != nil {
		return err
	}
	var holdings struct {
		Designs []uint64 `json:"designs"`
	}
	if err := json.Unmarshal(result, &holdings); err != nil {
		return fmt.Errorf("decode holdings: %w", err)
	}

	fmt.Printf("State for: %s\n", addr.String())
	fmt.Printf("  Gating balance: %s\n", gating.Amount)
	fmt.Printf("  Drop allowance: %s\n", allowance.Amount)
	fmt.Printf("  Designs held:   %v\n", holdings.Designs)
	return nil
}

// showActivity treats a numeric filter as a design id and anything else as
// an address.
func showActivity(filter string) error {
	params := map[string]interface{}{}
	filter = strings.TrimSpace(filter)
	if filter != "" {
		if id, err := strconv.ParseUint(filter, 10, 64); err == nil {
			params["designId"] = id
		} else {
			params["address"] = filter
		}
	}
	result, err := callRPC("nengajo_activity", false, params)
	if err != nil {
		return err
	}
	printJSONResult(result)
	return nil
}
