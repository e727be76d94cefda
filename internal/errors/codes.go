// Package errors provides structured error handling for searchfuse.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors (fatal, raised at construction/build)
//   - 3XX: Network / external backend errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryBackend indicates external backend availability errors.
	CategoryBackend Category = "BACKEND"
	// CategoryNetwork indicates transient network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199). These fail fast at construction, never at
	// query time.
	ErrCodeConfigInvalid   = "ERR_101_CONFIG_INVALID"
	ErrCodeInvalidWeights  = "ERR_102_INVALID_WEIGHTS"
	ErrCodeMisalignedInput = "ERR_103_MISALIGNED_INPUT"
	ErrCodeConfigNotFound  = "ERR_104_CONFIG_NOT_FOUND"

	// Backend / network errors (300-399).
	ErrCodeBackendUnavailable = "ERR_301_BACKEND_UNAVAILABLE"
	ErrCodeNetworkTimeout     = "ERR_302_NETWORK_TIMEOUT"
	ErrCodeRateLimited        = "ERR_303_RATE_LIMITED"
	ErrCodeServerError        = "ERR_304_SERVER_ERROR"

	// Validation errors (400-499).
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeEmptyCorpus       = "ERR_403_EMPTY_CORPUS"

	// Internal errors (500-599).
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
	ErrCodeIndexFailed     = "ERR_504_INDEX_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '3':
		if code == ErrCodeBackendUnavailable {
			return CategoryBackend
		}
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch categoryFromCode(code) {
	case CategoryConfig:
		return SeverityFatal
	case CategoryBackend, CategoryNetwork:
		// Recovered locally via fallback or retry.
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode checks if an error code represents a transient error.
// Permanent failures (bad request, auth, config) are never retried.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeRateLimited, ErrCodeServerError:
		return true
	default:
		return false
	}
}
