package reset

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/big"
)

const otpDigits = 6

// NewOTP generates a numeric one-time code of otpDigits characters with a
// crypto/rand source. Leading zeros are preserved.
func NewOTP() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < otpDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	code := n.String()
	for len(code) < otpDigits {
		code = "0" + code
	}
	return code, nil
}

// NewResetToken generates the single-use reset credential returned to the
// caller after OTP verification. Only its hash is ever persisted.
func NewResetToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashResetToken produces the deterministic digest stored (and looked up)
// in place of the plaintext token.
func HashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func validateOTPFormat(otp string) error {
	if len(otp) != otpDigits {
		return errors.New("invalid otp length")
	}
	for i := 0; i < len(otp); i++ {
		if otp[i] < '0' || otp[i] > '9' {
			return errors.New("invalid otp format")
		}
	}
	return nil
}
