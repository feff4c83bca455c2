package auth

import (
	stderrors "errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeAlreadyConfirmed = "ALREADY_CONFIRMED"
	TextCodeTokenExpired     = "TOKEN_EXPIRED"
	TextCodeUnconfirmed      = "UNCONFIRMED"
	TextCodePersistence      = "PERSISTENCE_ERROR"
	TextCodeConfiguration    = "CONFIGURATION_ERROR"
	TextCodeUniqueViolation  = "UNIQUE_VIOLATION"
	TextCodeAccountNotFound  = "ACCOUNT_NOT_FOUND"
	TextCodeTokenNotFound    = "TOKEN_NOT_FOUND"
	TextCodeEmptyPassword    = "EMPTY_PASSWORD"
	TextCodeInvalidCreds     = "INVALID_CREDENTIALS"
	TextCodeMailQueueFull    = "MAIL_QUEUE_FULL"
	TextCodeInvalidEmail     = "INVALID_EMAIL"
)

// metadataField is the metadata key holding the field an error is attached to.
const metadataField = "field"

// ErrAlreadyConfirmed is returned when confirming an account that has no
// pending email change and is already confirmed.
var ErrAlreadyConfirmed = goerrors.New("was already confirmed, please try signing in", goerrors.CategoryValidation).
	WithTextCode(TextCodeAlreadyConfirmed).
	WithCode(goerrors.CodeConflict)

// ErrTokenExpired is returned when a confirmation or reset token outlived its window.
var ErrTokenExpired = goerrors.New("token has expired, please request a new one", goerrors.CategoryValidation).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrUnconfirmed is returned when a password reset is requested for an
// account that still has to confirm its email.
var ErrUnconfirmed = goerrors.New("you have to confirm your email address before continuing", goerrors.CategoryValidation).
	WithTextCode(TextCodeUnconfirmed).
	WithCode(goerrors.CodeBadRequest)

// ErrPersistence wraps any save rejected by the storage layer.
var ErrPersistence = goerrors.New("account could not be saved", goerrors.CategoryInternal).
	WithTextCode(TextCodePersistence)

// ErrConfiguration is returned at setup when the configuration cannot be honored.
var ErrConfiguration = goerrors.New("invalid lifecycle configuration", goerrors.CategoryInternal).
	WithTextCode(TextCodeConfiguration)

// ErrUniqueViolation is reported by storage when a unique column collides.
var ErrUniqueViolation = goerrors.New("value has already been taken", goerrors.CategoryConflict).
	WithTextCode(TextCodeUniqueViolation).
	WithCode(goerrors.CodeConflict)

// ErrAccountNotFound is returned by lookups that match no account.
var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrTokenNotFound is returned when a confirmation or reset token matches no account.
var ErrTokenNotFound = goerrors.New("invalid or expired token", goerrors.CategoryNotFound).
	WithTextCode(TextCodeTokenNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = goerrors.New("password can not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword)

// ErrMismatchedHashAndPassword is returned when a password does not match its digest.
var ErrMismatchedHashAndPassword = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrMailQueueFull is returned when deferred delivery cannot accept more messages.
var ErrMailQueueFull = goerrors.New("mail delivery queue is full", goerrors.CategoryOperation).
	WithTextCode(TextCodeMailQueueFull)

// ErrInvalidEmail is returned when registering a malformed address.
var ErrInvalidEmail = goerrors.New("email is not a valid address", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidEmail).
	WithCode(goerrors.CodeBadRequest)

// fieldError clones base and attaches it to field.
func fieldError(base *goerrors.Error, field string) error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	return clone.WithMetadata(map[string]any{metadataField: field})
}

func newAlreadyConfirmed(field string) error { return fieldError(ErrAlreadyConfirmed, field) }
func newTokenExpired(field string) error     { return fieldError(ErrTokenExpired, field) }
func newUnconfirmed(field string) error      { return fieldError(ErrUnconfirmed, field) }

func newUniqueViolation(field string, source error) error {
	clone := ErrUniqueViolation.Clone()
	if clone == nil {
		return ErrUniqueViolation
	}
	clone.Source = source
	return clone.WithMetadata(map[string]any{metadataField: field})
}

func newConfigurationError(message string, meta map[string]any) error {
	clone := ErrConfiguration.Clone()
	if clone == nil {
		return ErrConfiguration
	}
	clone.Message = message
	if len(meta) > 0 {
		return clone.WithMetadata(meta)
	}
	return clone
}

func newNotFound(base *goerrors.Error, meta map[string]any) error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	if len(meta) > 0 {
		return clone.WithMetadata(meta)
	}
	return clone
}

// wrapPersistence reports a rejected save. The field of the underlying
// error, if any, is carried over.
func wrapPersistence(err error) error {
	if err == nil {
		return nil
	}
	if IsPersistenceError(err) {
		return err
	}
	clone := ErrPersistence.Clone()
	if clone == nil {
		return err
	}
	clone.Source = err
	if field := ErrorField(err); field != "" {
		return clone.WithMetadata(map[string]any{metadataField: field})
	}
	return clone
}

// richChain returns every *goerrors.Error reachable from err, outermost first.
func richChain(err error) []*goerrors.Error {
	var chain []*goerrors.Error
	for err != nil && len(chain) < 16 {
		var rich *goerrors.Error
		if !stderrors.As(err, &rich) || rich == nil {
			break
		}
		chain = append(chain, rich)
		err = rich.Source
	}
	return chain
}

func hasTextCode(err error, code string) bool {
	for _, rich := range richChain(err) {
		if rich.TextCode == code {
			return true
		}
	}
	return false
}

// IsAlreadyConfirmed reports whether err carries ErrAlreadyConfirmed.
func IsAlreadyConfirmed(err error) bool { return hasTextCode(err, TextCodeAlreadyConfirmed) }

// IsTokenExpired reports whether err carries ErrTokenExpired.
func IsTokenExpired(err error) bool { return hasTextCode(err, TextCodeTokenExpired) }

// IsUnconfirmed reports whether err carries ErrUnconfirmed.
func IsUnconfirmed(err error) bool { return hasTextCode(err, TextCodeUnconfirmed) }

// IsPersistenceError reports whether err is a rejected save.
func IsPersistenceError(err error) bool { return hasTextCode(err, TextCodePersistence) }

// IsConfigurationError reports whether err is a setup failure.
func IsConfigurationError(err error) bool { return hasTextCode(err, TextCodeConfiguration) }

// IsUniqueViolation reports whether err is a unique constraint collision.
func IsUniqueViolation(err error) bool { return hasTextCode(err, TextCodeUniqueViolation) }

// IsNotFound reports whether err is an account or token lookup miss.
func IsNotFound(err error) bool {
	return hasTextCode(err, TextCodeAccountNotFound) || hasTextCode(err, TextCodeTokenNotFound)
}

// ErrorField returns the field err is attached to, or an empty string.
func ErrorField(err error) string {
	for _, rich := range richChain(err) {
		if rich.Metadata == nil {
			continue
		}
		if field, ok := rich.Metadata[metadataField].(string); ok && field != "" {
			return field
		}
	}
	return ""
}

// uniqueViolationField returns the column of a unique collision.
func uniqueViolationField(err error) (string, bool) {
	for _, rich := range richChain(err) {
		if rich.TextCode != TextCodeUniqueViolation {
			continue
		}
		field, _ := rich.Metadata[metadataField].(string)
		return field, true
	}
	return "", false
}
