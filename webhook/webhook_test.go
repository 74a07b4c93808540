package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliver_SignsBody(t *testing.T) {
	var gotSig string
	var gotEvent Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		assert.True(t, Verify("s3cret", body, gotSig))
		_ = json.Unmarshal(body, &gotEvent)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ev := &Event{Type: EventThreadCompleted, JobID: "job-1", Timestamp: 42, Data: map[string]int{"tweets": 3}}
	err := NewSender(time.Second).Deliver(context.Background(), srv.URL, "s3cret", ev)

	require.NoError(t, err)
	assert.Contains(t, gotSig, "sha256=")
	assert.Equal(t, "job-1", gotEvent.JobID)
	assert.Equal(t, EventThreadCompleted, gotEvent.Type)
}

func TestDeliver_NoSecretNoSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(SignatureHeader))
	}))
	defer srv.Close()

	require.NoError(t, NewSender(time.Second).Deliver(context.Background(), srv.URL, "", &Event{Type: EventThreadFailed}))
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewSender(time.Second).Deliver(context.Background(), srv.URL, "", &Event{})
	assert.ErrorContains(t, err, "502")
}

func TestDeliverAsync_Retries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	s := NewSender(time.Second)
	s.retries = []time.Duration{0, time.Millisecond, time.Millisecond, time.Millisecond}
	s.DeliverAsync(srv.URL, "", &Event{Type: EventThreadCompleted})
	s.Wait()

	assert.Equal(t, int32(3), calls.Load())
}

func TestVerify_RejectsTampering(t *testing.T) {
	sig := Sign("k", []byte(`{"a":1}`))
	assert.True(t, Verify("k", []byte(`{"a":1}`), sig))
	assert.False(t, Verify("k", []byte(`{"a":2}`), sig))
	assert.False(t, Verify("other", []byte(`{"a":1}`), sig))
}
