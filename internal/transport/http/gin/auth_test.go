package httpgin

import (
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func signBody(t *testing.T, body []byte) (string, string) {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	msg := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(body), body)
	digest := crypto.Keccak256([]byte(msg))

	sig, err := crypto.Sign(digest, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	// wallets emit V as 27/28
	sig[crypto.RecoveryIDOffset] += 27

	signer := crypto.PubkeyToAddress(key.PublicKey)
	return "0x" + hex.EncodeToString(sig), signer.Hex()
}

func TestRecoverSigner(t *testing.T) {
	body := []byte(`{"payment":100}`)
	sigHex, wantSigner := signBody(t, body)

	got, err := RecoverSigner(body, sigHex)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got.Hex() != wantSigner {
		t.Fatalf("signer = %s, want %s", got.Hex(), wantSigner)
	}
}

func TestRecoverSigner_TamperedBody(t *testing.T) {
	body := []byte(`{"payment":100}`)
	sigHex, wantSigner := signBody(t, body)

	got, err := RecoverSigner([]byte(`{"payment":1}`), sigHex)
	if err == nil && got.Hex() == wantSigner {
		t.Fatalf("tampered body recovered the original signer")
	}
}

func TestRecoverSigner_BadSignature(t *testing.T) {
	tests := []struct {
		name string
		sig  string
	}{
		{"empty", ""},
		{"not hex", "0xzz"},
		{"wrong length", "0xdeadbeef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := RecoverSigner([]byte("body"), tt.sig); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParseAddr(t *testing.T) {
	if _, ok := parseAddr("not-an-address"); ok {
		t.Fatalf("accepted invalid address")
	}
	addr, ok := parseAddr("0x000000000000000000000000000000000000000a")
	if !ok {
		t.Fatalf("rejected valid address")
	}
	if addrHex(addr) != "0x000000000000000000000000000000000000000a" {
		t.Fatalf("roundtrip = %s", addrHex(addr))
	}
}
