package sso

import (
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeDuplicateIdentity   = "DUPLICATE_IDENTITY"
	TextCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	TextCodeIncompleteAccount   = "INCOMPLETE_ACCOUNT"
	TextCodeCodeMismatch        = "CODE_MISMATCH"
	TextCodeBirthDateMismatch   = "BIRTH_DATE_MISMATCH"
	TextCodePasswordMismatch    = "PASSWORD_MISMATCH"
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeTokenInvalid        = "TOKEN_INVALID"
	TextCodeEmailDeliveryFailed = "EMAIL_DELIVERY_FAILED"
	TextCodeUserNotFound        = "USER_NOT_FOUND"
	TextCodeInvalidTransition   = "INVALID_REGISTRATION_TRANSITION"
	TextCodeEmptyString         = "EMPTY_VALUE"
	TextCodeRedirectNotAllowed  = "REDIRECT_NOT_ALLOWED"
	TextCodeInvalidImage        = "INVALID_IMAGE"
	TextCodePasswordTooLong     = "PASSWORD_TOO_LONG"
)

// ErrDuplicateIdentity is returned when the national id, email or phone
// number is already registered
var ErrDuplicateIdentity = goerrors.New("national id, email or phone number already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateIdentity).
	WithCode(goerrors.CodeConflict)

// ErrInvalidCredentials covers unknown national ids and wrong passwords alike
var ErrInvalidCredentials = goerrors.New("invalid national id or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrIncompleteAccount the user exists but never finished password creation
var ErrIncompleteAccount = goerrors.New("account has not completed password creation", goerrors.CategoryAuth).
	WithTextCode(TextCodeIncompleteAccount).
	WithCode(goerrors.CodeUnauthorized)

var ErrCodeMismatch = goerrors.New("verification code does not match", goerrors.CategoryValidation).
	WithTextCode(TextCodeCodeMismatch).
	WithCode(goerrors.CodeBadRequest)

var ErrBirthDateMismatch = goerrors.New("birth date does not match our records", goerrors.CategoryValidation).
	WithTextCode(TextCodeBirthDateMismatch).
	WithCode(goerrors.CodeBadRequest)

var ErrPasswordMismatch = goerrors.New("passwords do not match", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordMismatch).
	WithCode(goerrors.CodeBadRequest)

var ErrPasswordTooLong = goerrors.New("password must be at most 72 bytes long", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordTooLong).
	WithCode(goerrors.CodeBadRequest)

var ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

var ErrTokenInvalid = goerrors.New("token is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrEmailDeliveryFailed is never fatal, registration keeps the record
var ErrEmailDeliveryFailed = goerrors.New("unable to deliver verification email", goerrors.CategoryOperation).
	WithTextCode(TextCodeEmailDeliveryFailed).
	WithCode(http.StatusBadGateway)

var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidTransition registration step requested out of order
var ErrInvalidTransition = goerrors.New("invalid registration state transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeConflict)

// ErrNoEmptyString empty values are not allowed
var ErrNoEmptyString = goerrors.New("empty value not allowed", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyString).
	WithCode(goerrors.CodeBadRequest)

var ErrRedirectNotAllowed = goerrors.New("redirect target is not allowed", goerrors.CategoryBadInput).
	WithTextCode(TextCodeRedirectNotAllowed).
	WithCode(goerrors.CodeBadRequest)

var ErrInvalidImage = goerrors.New("uploaded file is not a supported image", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidImage).
	WithCode(goerrors.CodeBadRequest)

// IsError reports whether any error in the chain is target or
// carries the same text code.
func IsError(err error, target *goerrors.Error) bool {
	if err == nil || target == nil {
		return false
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		if e == error(target) {
			return true
		}
		if rich, ok := e.(*goerrors.Error); ok && target.TextCode != "" && rich.TextCode == target.TextCode {
			return true
		}
	}
	return false
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return IsError(err, ErrTokenExpired) || errors.Is(err, jwt.ErrTokenExpired)
}

// HTTPStatus returns the status code carried by a structured error,
// defaults to 500
func HTTPStatus(err error) int {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code >= 400 && richErr.Code < 600 {
		return richErr.Code
	}
	return http.StatusInternalServerError
}

// TextCode returns the text code of the first structured error in the chain
func TextCode(err error) string {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if rich, ok := e.(*goerrors.Error); ok && rich.TextCode != "" {
			return rich.TextCode
		}
	}
	return ""
}

// PublicMessage returns a message safe to show end users
func PublicMessage(err error) string {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if rich, ok := e.(*goerrors.Error); ok && rich.TextCode != "" {
			return rich.Message
		}
	}
	return "something went wrong, please try again"
}
