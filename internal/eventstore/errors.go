package eventstore

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/roach88/rootstore/internal/aggregate"
	"github.com/roach88/rootstore/internal/block"
	"github.com/roach88/rootstore/internal/schema"
	"github.com/roach88/rootstore/internal/store"
)

const (
	TextCodeConcurrencyConflict = "EVENT_STORE_CONCURRENCY_CONFLICT"
	TextCodeDomainMismatch      = "EVENT_STORE_DOMAIN_MISMATCH"
	TextCodeUnknownAction       = "EVENT_STORE_UNKNOWN_ACTION"
	TextCodeInvalidPayload      = "EVENT_STORE_INVALID_PAYLOAD"
	TextCodeInvalidQuery        = "EVENT_STORE_INVALID_QUERY"
	TextCodeNotFound            = "EVENT_STORE_NOT_FOUND"
	TextCodeStorageFailure      = "EVENT_STORE_STORAGE_FAILURE"
	TextCodeChainBroken         = "EVENT_STORE_CHAIN_BROKEN"
)

func storeError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func storeWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return storeError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func concurrencyConflict(source error, message string, metadata map[string]any) error {
	return storeWrapError(source, goerrors.CategoryConflict, message,
		http.StatusPreconditionFailed, TextCodeConcurrencyConflict, metadata)
}

func domainMismatch(message string, metadata map[string]any) error {
	return storeError(message, goerrors.CategoryBadInput,
		http.StatusBadRequest, TextCodeDomainMismatch, metadata)
}

func unknownAction(source error, message string, metadata map[string]any) error {
	return storeWrapError(source, goerrors.CategoryValidation, message,
		http.StatusBadRequest, TextCodeUnknownAction, metadata)
}

func invalidPayload(source error, message string, metadata map[string]any) error {
	return storeWrapError(source, goerrors.CategoryValidation, message,
		http.StatusBadRequest, TextCodeInvalidPayload, metadata)
}

func invalidQuery(source error, message string, metadata map[string]any) error {
	return storeWrapError(source, goerrors.CategoryBadInput, message,
		http.StatusBadRequest, TextCodeInvalidQuery, metadata)
}

func notFound(message string, metadata map[string]any) error {
	return storeError(message, goerrors.CategoryNotFound,
		http.StatusNotFound, TextCodeNotFound, metadata)
}

func storageFailure(source error, message string, metadata map[string]any) error {
	return storeWrapError(source, goerrors.CategoryInternal, message,
		http.StatusServiceUnavailable, TextCodeStorageFailure, metadata)
}

func chainBroken(source error, message string, metadata map[string]any) error {
	return storeWrapError(source, goerrors.CategoryInternal, message,
		http.StatusInternalServerError, TextCodeChainBroken, metadata)
}

// classify maps an error from a lower layer onto the taxonomy. Errors that
// already carry a text code pass through unchanged.
func classify(err error, message string, metadata map[string]any) error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.TextCode != "" {
		return err
	}

	var invalid *schema.ValidationError
	var broken *block.ChainError
	switch {
	case errors.Is(err, store.ErrConflict):
		return concurrencyConflict(err, message, metadata)
	case errors.Is(err, store.ErrNotFound):
		return storeWrapError(err, goerrors.CategoryNotFound, message,
			http.StatusNotFound, TextCodeNotFound, metadata)
	case errors.Is(err, aggregate.ErrUnknownAction):
		return unknownAction(err, message, metadata)
	case errors.As(err, &invalid):
		return invalidPayload(err, message, metadata)
	case errors.As(err, &broken):
		return chainBroken(err, message, metadata)
	default:
		return storageFailure(err, message, metadata)
	}
}

func hasTextCode(err error, textCode string) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == textCode
}

// IsConcurrencyConflict reports a numbering or uniqueness conflict. Callers
// retry by re-reading the aggregate and resubmitting.
func IsConcurrencyConflict(err error) bool {
	return hasTextCode(err, TextCodeConcurrencyConflict)
}

func IsDomainMismatch(err error) bool { return hasTextCode(err, TextCodeDomainMismatch) }

func IsUnknownAction(err error) bool { return hasTextCode(err, TextCodeUnknownAction) }

func IsInvalidPayload(err error) bool { return hasTextCode(err, TextCodeInvalidPayload) }

func IsInvalidQuery(err error) bool { return hasTextCode(err, TextCodeInvalidQuery) }

func IsNotFound(err error) bool { return hasTextCode(err, TextCodeNotFound) }

func IsStorageFailure(err error) bool { return hasTextCode(err, TextCodeStorageFailure) }

func IsChainBroken(err error) bool { return hasTextCode(err, TextCodeChainBroken) }
