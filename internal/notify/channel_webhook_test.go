package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalcommon "github.com/goran-ethernal/ChainReactor/internal/common"
	"github.com/goran-ethernal/ChainReactor/pkg/config"
)

type capturedRequest struct {
	body        []byte
	signature   string
	contentType string
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, func() []capturedRequest) {
	t.Helper()

	var mu sync.Mutex

	var captured []capturedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		mu.Lock()
		captured = append(captured, capturedRequest{
			body:        body,
			signature:   r.Header.Get(internalcommon.SignatureHeader),
			contentType: r.Header.Get("Content-Type"),
		})
		mu.Unlock()

		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()

		out := make([]capturedRequest, len(captured))
		copy(out, captured)

		return out
	}
}

func TestWebhookChannel_Deliver(t *testing.T) {
	t.Parallel()

	srv, requests := newCaptureServer(t, http.StatusOK)

	ch, err := NewWebhookChannel(config.ChannelConfig{
		Name:    "hook",
		Type:    "webhook",
		URL:     srv.URL,
		Secret:  "super-secret",
		Timeout: internalcommon.NewDuration(2 * time.Second),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })

	rec := NewRecord(badgeEvent("U1", "B1"), "hook")
	require.NoError(t, ch.Deliver(t.Context(), rec))

	got := requests()
	require.Len(t, got, 1)
	assert.Equal(t, "application/json", got[0].contentType)

	// The body is signed with the shared HMAC scheme.
	assert.True(t, internalcommon.VerifySignature("super-secret", got[0].body, got[0].signature))

	var delivered Record
	require.NoError(t, json.Unmarshal(got[0].body, &delivered))
	assert.Equal(t, rec.ID, delivered.ID)
	assert.Equal(t, "U1", delivered.UserID)
}

func TestWebhookChannel_NoSecretNoSignature(t *testing.T) {
	t.Parallel()

	srv, requests := newCaptureServer(t, http.StatusAccepted)

	ch, err := NewWebhookChannel(config.ChannelConfig{Name: "hook", Type: "webhook", URL: srv.URL})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })

	require.NoError(t, ch.Deliver(t.Context(), NewRecord(badgeEvent("U1", "B1"), "hook")))

	got := requests()
	require.Len(t, got, 1)
	assert.Empty(t, got[0].signature)
}

func TestWebhookChannel_NonSuccessStatus(t *testing.T) {
	t.Parallel()

	srv, _ := newCaptureServer(t, http.StatusInternalServerError)

	ch, err := NewWebhookChannel(config.ChannelConfig{Name: "hook", Type: "webhook", URL: srv.URL})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })

	err = ch.Deliver(t.Context(), NewRecord(badgeEvent("U1", "B1"), "hook"))
	require.ErrorContains(t, err, "unexpected status 500")
}

func TestWebhookChannel_UnreachableEndpoint(t *testing.T) {
	t.Parallel()

	ch, err := NewWebhookChannel(config.ChannelConfig{
		Name:    "hook",
		Type:    "webhook",
		URL:     "http://127.0.0.1:1",
		Timeout: internalcommon.NewDuration(500 * time.Millisecond),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })

	err = ch.Deliver(t.Context(), NewRecord(badgeEvent("U1", "B1"), "hook"))
	require.Error(t, err)
}
