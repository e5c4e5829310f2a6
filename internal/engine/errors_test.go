package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tatianab/casefile/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"grpc unauthenticated", status.Error(codes.Unauthenticated, "missing key"), models.ErrAuthentication},
		{"grpc bad key", status.Error(codes.InvalidArgument, "API key not valid. Please pass a valid API key."), models.ErrAuthentication},
		{"grpc quota", status.Error(codes.ResourceExhausted, "You exceeded your current quota"), models.ErrQuotaExceeded},
		{"grpc throttled", status.Error(codes.ResourceExhausted, "too many requests"), models.ErrRateLimited},
		{"grpc unavailable", status.Error(codes.Unavailable, "connection reset"), models.ErrNetwork},
		{"grpc other", status.Error(codes.InvalidArgument, "bad schema"), models.ErrGeneration},
		{"rest forbidden", &googleapi.Error{Code: 403, Message: "permission denied"}, models.ErrAuthentication},
		{"rest throttled", &googleapi.Error{Code: 429, Message: "slow down"}, models.ErrRateLimited},
		{"rest server", &googleapi.Error{Code: 503, Message: "unavailable"}, models.ErrNetwork},
		{"http unauthorized", &StatusError{Code: 401, Message: "invalid api key"}, models.ErrAuthentication},
		{"http payment", &StatusError{Code: 402, Message: "quota"}, models.ErrQuotaExceeded},
		{"http throttled", &StatusError{Code: 429, Message: "busy"}, models.ErrRateLimited},
		{"dial", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, models.ErrNetwork},
		{"unknown", errors.New("boom"), models.ErrGeneration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(fmt.Errorf("generate: %w", tt.err))
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, tt.err, "the cause stays reachable")
		})
	}
}

func TestClassifyKeepsContextErrors(t *testing.T) {
	err := Classify(context.Canceled)
	assert.Equal(t, context.Canceled, err)
	assert.False(t, models.Retryable(err))
	assert.NoError(t, Classify(nil))
}

func TestClassifiedErrorsDriveRetry(t *testing.T) {
	assert.False(t, models.Retryable(Classify(status.Error(codes.Unauthenticated, "x"))))
	assert.True(t, models.Retryable(Classify(status.Error(codes.Unavailable, "x"))))
	assert.Equal(t, "auth", statusLabel(Classify(status.Error(codes.PermissionDenied, "x"))))
	assert.Equal(t, "success", statusLabel(nil))
}
