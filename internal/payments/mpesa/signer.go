package mpesa

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
)

const (
	refParam = "ref"
	sigParam = "sig"
)

// Signer binds callback URLs to an order so the callback endpoint can tell
// a genuine gateway delivery for that order from a forged one.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

func (s *Signer) Sign(ref string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(ref))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Signer) Verify(ref, sig string) bool {
	if ref == "" || sig == "" {
		return false
	}
	expected, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(ref))
	return hmac.Equal(mac.Sum(nil), expected)
}

// CallbackURL appends ref and its signature to base.
func (s *Signer) CallbackURL(base, ref string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse callback url: %w", err)
	}
	q := u.Query()
	q.Set(refParam, ref)
	q.Set(sigParam, s.Sign(ref))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// VerifyQuery checks the ref and sig parameters of a callback request and
// returns the ref when they match.
func (s *Signer) VerifyQuery(query url.Values) (string, bool) {
	ref := query.Get(refParam)
	if !s.Verify(ref, query.Get(sigParam)) {
		return "", false
	}
	return ref, true
}
