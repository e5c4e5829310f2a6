package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tatianab/casefile/internal/models"
)

// StatusError is a non-2xx reply from a backend reached over plain HTTP.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

// Classify wraps a backend error in the matching taxonomy sentinel.
// Context errors pass through untouched.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", kindOf(err), err)
}

func kindOf(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return openAIKind(apiErr.HTTPStatusCode, fmt.Sprint(apiErr.Code), apiErr.Type, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return openAIKind(reqErr.HTTPStatusCode, "", "", "")
	}

	var sErr *StatusError
	if errors.As(err, &sErr) {
		return httpKind(sErr.Code, sErr.Message)
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return httpKind(gErr.Code, gErr.Message)
	}
	if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown {
		return grpcKind(s.Code(), s.Message())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return models.ErrNetwork
	}
	return models.ErrGeneration
}

func openAIKind(code int, errCode, errType, msg string) error {
	switch {
	case errCode == "invalid_api_key":
		return models.ErrAuthentication
	case errCode == "insufficient_quota", errType == "insufficient_quota":
		return models.ErrQuotaExceeded
	}
	return httpKind(code, msg)
}

func httpKind(code int, msg string) error {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return models.ErrAuthentication
	case code == http.StatusPaymentRequired:
		return models.ErrQuotaExceeded
	case code == http.StatusTooManyRequests:
		if strings.Contains(strings.ToLower(msg), "quota") {
			return models.ErrQuotaExceeded
		}
		return models.ErrRateLimited
	case code == http.StatusBadRequest && strings.Contains(msg, "API key not valid"):
		return models.ErrAuthentication
	case code >= 500:
		return models.ErrNetwork
	}
	return models.ErrGeneration
}

func grpcKind(code codes.Code, msg string) error {
	switch code {
	case codes.Unauthenticated, codes.PermissionDenied:
		return models.ErrAuthentication
	case codes.ResourceExhausted:
		if strings.Contains(strings.ToLower(msg), "quota") {
			return models.ErrQuotaExceeded
		}
		return models.ErrRateLimited
	case codes.InvalidArgument:
		if strings.Contains(msg, "API key not valid") {
			return models.ErrAuthentication
		}
	case codes.Unavailable, codes.DeadlineExceeded:
		return models.ErrNetwork
	}
	return models.ErrGeneration
}

// statusLabel names the outcome of a call for metrics.
func statusLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, models.ErrAuthentication):
		return "auth"
	case errors.Is(err, models.ErrQuotaExceeded):
		return "quota"
	case errors.Is(err, models.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, models.ErrNetwork):
		return "network"
	case errors.Is(err, models.ErrMalformedResponse):
		return "empty_response"
	}
	return "error"
}
