package speech

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/tatianab/casefile/internal/models"
	"github.com/tatianab/casefile/internal/retry"
)

func fakeElevenLabs(t *testing.T, limiter *rate.Limiter, handler http.HandlerFunc) *ElevenLabs {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	policy := retry.Policy{
		Attempts:   ElevenLabsAttempts,
		Retryable:  models.Retryable,
		NewBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	}
	return NewElevenLabs(ElevenLabsOptions{
		APIKey:  "xi-test-key",
		BaseURL: srv.URL,
		Dir:     t.TempDir(),
		Limiter: limiter,
		Policy:  &policy,
	}, nil)
}

func TestElevenLabsSynthesize(t *testing.T) {
	var got ttsRequest
	e := fakeElevenLabs(t, nil, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/"+DefaultElevenLabsVoice, r.URL.Path)
		assert.Equal(t, "xi-test-key", r.Header.Get("xi-api-key"))
		assert.Equal(t, "audio/mpeg", r.Header.Get("Accept"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3-rachel"))
	})

	audio, err := e.Synthesize(context.Background(), "**The choir** falls silent. 👻", "alloy")
	require.NoError(t, err)
	assert.Equal(t, DefaultElevenLabsVoice, audio.Voice)

	data, err := os.ReadFile(audio.Path)
	require.NoError(t, err)
	assert.Equal(t, "ID3-rachel", string(data))
	assert.Equal(t, "The choir falls silent.", got.Text)
	assert.Equal(t, "eleven_monolingual_v1", got.ModelID)
	assert.True(t, got.VoiceSettings.UseSpeakerBoost)
}

func TestElevenLabsRetriesThrottling(t *testing.T) {
	var calls atomic.Int32
	e := fakeElevenLabs(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < ElevenLabsAttempts {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("busy"))
			return
		}
		w.Write([]byte("mp3"))
	})

	_, err := e.Synthesize(context.Background(), "The bells ring.", "alloy")
	require.NoError(t, err)
	assert.EqualValues(t, ElevenLabsAttempts, calls.Load())
}

func TestElevenLabsGivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	e := fakeElevenLabs(t, nil, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := e.Synthesize(context.Background(), "The bells ring.", "alloy")
	assert.ErrorIs(t, err, models.ErrRateLimited)
	assert.EqualValues(t, ElevenLabsAttempts, calls.Load())
}

func TestElevenLabsFailuresNotRetried(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"bad key", http.StatusUnauthorized, models.ErrAuthentication},
		{"quota", http.StatusPaymentRequired, models.ErrQuotaExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			e := fakeElevenLabs(t, nil, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"detail": "nope"}`))
			})

			_, err := e.Synthesize(context.Background(), "The bells ring.", "alloy")
			assert.ErrorIs(t, err, tt.want)
			assert.EqualValues(t, 1, calls.Load())
		})
	}
}

func TestElevenLabsRateLimit(t *testing.T) {
	var calls atomic.Int32
	e := fakeElevenLabs(t, rate.NewLimiter(0, 1), func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("mp3"))
	})

	_, err := e.Synthesize(context.Background(), "first", "alloy")
	require.NoError(t, err)
	_, err = e.Synthesize(context.Background(), "second", "alloy")
	assert.ErrorIs(t, err, models.ErrRateLimited)
	assert.EqualValues(t, 1, calls.Load())
}

func TestElevenLabsStop(t *testing.T) {
	started := make(chan struct{})
	e := fakeElevenLabs(t, nil, func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	})

	errc := make(chan error, 1)
	go func() {
		_, err := e.Synthesize(context.Background(), "a long monologue", "alloy")
		errc <- err
	}()

	<-started
	e.Stop()
	assert.ErrorIs(t, <-errc, context.Canceled)
}
