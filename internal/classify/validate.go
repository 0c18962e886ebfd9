package classify

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fpang/litter-report/internal/metrics"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// KeyError describes why a Gemini API key could not be used.
type KeyError struct {
	Type    KeyErrorType
	Message string
	Err     error
}

// KeyErrorType categorizes key validation failures.
type KeyErrorType int

const (
	// KeyInvalid indicates the API key is invalid or revoked.
	KeyInvalid KeyErrorType = iota
	// KeyNetworkError indicates a network connectivity issue.
	KeyNetworkError
	// KeyQuotaExceeded indicates the API quota has been exceeded.
	KeyQuotaExceeded
	// KeyUnknown indicates an unknown error occurred.
	KeyUnknown
)

func (t KeyErrorType) String() string {
	switch t {
	case KeyInvalid:
		return "invalid"
	case KeyNetworkError:
		return "network_error"
	case KeyQuotaExceeded:
		return "quota"
	default:
		return "unknown"
	}
}

func (e *KeyError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

// ValidateKey makes a minimal request with model to check that the client's
// key works. It returns nil or a *KeyError.
func ValidateKey(ctx context.Context, models ContentGenerator, model string) error {
	if model == "" {
		model = DefaultGeminiModel
	}
	log.Debug().Str("model", model).Msg("Validating Gemini API key")

	start := time.Now()
	resp, err := models.GenerateContent(ctx, model, genai.Text("hi"), nil)
	elapsed := time.Since(start)

	result := "success"
	var keyErr *KeyError
	switch {
	case err != nil:
		keyErr = classifyKeyError(err)
		result = keyErr.Type.String()
	case resp == nil || len(resp.Candidates) == 0:
		keyErr = &KeyError{Type: KeyUnknown, Message: "API returned empty response"}
		result = "empty_response"
	}

	metrics.New(metrics.Namespace).
		Dimension("Result", result).
		Metric("ApiKeyValidationMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Count("ApiKeyValidationResult").
		Flush()

	if keyErr != nil {
		return keyErr
	}
	log.Info().Dur("duration", elapsed).Msg("Gemini API key validated")
	return nil
}

func classifyKeyError(err error) *KeyError {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key not valid") ||
		strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "api_key_invalid") ||
		strings.Contains(msg, "permission denied"):
		return &KeyError{Type: KeyInvalid, Message: "API key is invalid or has been revoked", Err: err}
	case strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "rate limit"):
		return &KeyError{Type: KeyQuotaExceeded, Message: "API quota exceeded or rate limited", Err: err}
	case strings.Contains(msg, "connection") ||
		strings.Contains(msg, "network") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "unreachable"):
		return &KeyError{Type: KeyNetworkError, Message: "Network error - check your internet connection", Err: err}
	default:
		return &KeyError{Type: KeyUnknown, Message: "Failed to validate API key", Err: err}
	}
}

func classifyAPIError(err *genai.APIError) *KeyError {
	switch err.Code {
	case 400, 401, 403:
		return &KeyError{Type: KeyInvalid, Message: "API key is invalid, expired, or lacks permissions", Err: err}
	case 429:
		return &KeyError{Type: KeyQuotaExceeded, Message: "API rate limit exceeded - try again later", Err: err}
	case 500, 502, 503, 504:
		return &KeyError{Type: KeyNetworkError, Message: "Gemini API server error - try again later", Err: err}
	default:
		return &KeyError{Type: KeyUnknown, Message: err.Message, Err: err}
	}
}
