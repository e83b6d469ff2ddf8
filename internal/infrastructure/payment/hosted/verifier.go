package hosted

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	dompay "github.com/Zhima-Mochi/freshcut/internal/domain/payment"
)

// SignatureVerifier accepts a response only when Signature is the hex
// HMAC-SHA256 of "orderID|paymentRef" under the provider secret.
type SignatureVerifier struct {
	secret []byte
}

func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret)}
}

func (v *SignatureVerifier) Verify(_ context.Context, orderID string, resp dompay.Response) error {
	if len(v.secret) == 0 {
		return fmt.Errorf("%w: no signing secret configured", dompay.ErrUnverified)
	}
	if resp.PaymentRef == "" || resp.Signature == "" {
		return fmt.Errorf("%w: payment ref and signature are required", dompay.ErrUnverified)
	}
	got, err := hex.DecodeString(resp.Signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature", dompay.ErrUnverified)
	}
	if !hmac.Equal(got, v.mac(orderID, resp.PaymentRef)) {
		return fmt.Errorf("%w: signature mismatch", dompay.ErrUnverified)
	}
	return nil
}

// Sign returns the signature the provider attaches for orderID and paymentRef.
func (v *SignatureVerifier) Sign(orderID, paymentRef string) string {
	return hex.EncodeToString(v.mac(orderID, paymentRef))
}

func (v *SignatureVerifier) mac(orderID, paymentRef string) []byte {
	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(orderID + "|" + paymentRef))
	return h.Sum(nil)
}
