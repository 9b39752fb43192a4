package crypto

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestAddressRoundTripFormats(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	addr := key.Address()
	if !strings.HasPrefix(addr.String(), AddressPrefix+"1") {
		t.Fatalf("unexpected bech32 form %s", addr)
	}
	for _, form := range []string{addr.String(), addr.Hex(), strings.ToLower(addr.Hex())} {
		parsed, err := ParseAddress(form)
		if err != nil {
			t.Fatalf("parse %s: %v", form, err)
		}
		if parsed != addr {
			t.Fatalf("parse %s = %x, want %x", form, parsed, addr)
		}
	}
	if _, err := ParseAddress("bogus"); err == nil {
		t.Fatalf("expected parse failure")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "admin.json")
	if err := SaveToKeystore(path, key, "correct horse"); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "correct horse")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Address() != key.Address() {
		t.Fatalf("loaded key controls a different address")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}
