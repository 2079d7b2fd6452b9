// Package payment verifies gateway-reported payments and talks to the
// payment gateway.
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var ErrSignatureMismatch = errors.New("payment signature mismatch")

// Claim is a caller-asserted payment completion as reported by the gateway
// checkout.
type Claim struct {
	GatewayOrderID string `json:"razorpay_order_id"`
	PaymentID      string `json:"razorpay_payment_id"`
	Signature      string `json:"razorpay_signature"`
}

func (c Claim) Complete() bool {
	return strings.TrimSpace(c.GatewayOrderID) != "" &&
		strings.TrimSpace(c.PaymentID) != "" &&
		strings.TrimSpace(c.Signature) != ""
}

// Verifier recomputes HMAC-SHA256(secret, gatewayOrderID + "|" + paymentID)
// and compares it with the claimed hex signature.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Sign(gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (v *Verifier) Verify(c Claim) error {
	if !c.Complete() {
		return ErrSignatureMismatch
	}
	expected := v.Sign(c.GatewayOrderID, c.PaymentID)
	if !hmac.Equal([]byte(expected), []byte(c.Signature)) {
		return ErrSignatureMismatch
	}
	return nil
}
