package httpgin

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/tixledger/tixledger/internal/domain"
)

const callerCtxKey = "caller_address"

var errBadSignature = errors.New("invalid caller signature")

// CallerMiddleware extracts the caller identity from X-Caller-Address.
// When requireSignature is set, state-changing requests must also carry
// X-Caller-Signature, an EIP-191 personal-sign signature over the raw request
// body; the recovered signer must match the declared address. View requests
// stay anonymous when no address is sent.
func CallerMiddleware(requireSignature bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("X-Caller-Address"))
		if raw == "" {
			c.Next()
			return
		}

		if !common.IsHexAddress(raw) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid caller address"})
			return
		}
		addr := common.HexToAddress(raw)

		if requireSignature && c.Request.Method != http.MethodGet {
			body, err := io.ReadAll(c.Request.Body)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "cannot read body"})
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(body))

			signer, err := RecoverSigner(body, c.GetHeader("X-Caller-Signature"))
			if err != nil || signer != addr {
				c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: errBadSignature.Error()})
				return
			}
		}

		c.Set(callerCtxKey, addr)
		c.Next()
	}
}

// RecoverSigner recovers the address that personal-signed body (EIP-191:
// keccak256("\x19Ethereum Signed Message:\n" + len(body) + body)).
func RecoverSigner(body []byte, sigHex string) (common.Address, error) {
	sigHex = strings.TrimPrefix(strings.TrimSpace(sigHex), "0x")

	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return common.Address{}, errBadSignature
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, errBadSignature
	}

	// wallets return V as 27/28, go-ethereum expects 0/1
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig = bytes.Clone(sig)
		sig[crypto.RecoveryIDOffset] -= 27
	}

	msg := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(body), body)
	hash := crypto.Keccak256([]byte(msg))

	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, errBadSignature
	}

	return crypto.PubkeyToAddress(*pub), nil
}

func caller(c *gin.Context) (domain.Address, bool) {
	v, ok := c.Get(callerCtxKey)
	if !ok {
		return domain.Address{}, false
	}

	addr, ok := v.(common.Address)
	return addr, ok
}

// requireCaller is used by every endpoint whose semantics depend on who is
// asking; it rejects anonymous requests with 401.
func requireCaller(c *gin.Context) (domain.Address, bool) {
	addr, ok := caller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "caller address required"})
		return domain.Address{}, false
	}
	return addr, true
}

func addrHex(a domain.Address) string {
	return strings.ToLower(a.Hex())
}

func parseAddr(s string) (domain.Address, bool) {
	if !common.IsHexAddress(s) {
		return domain.Address{}, false
	}
	return common.HexToAddress(s), true
}
