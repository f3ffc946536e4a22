package sso

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	verificationCodeMin   = 100000
	verificationCodeRange = 900000
)

// CodeGenerator produces email verification codes
type CodeGenerator func() (string, error)

// NewVerificationCode returns a uniformly random six digit code
// in the range 100000-999999
func NewVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(verificationCodeRange))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+verificationCodeMin), nil
}
