package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fnal-sbnd/rrarchiver/internal/config"
)

func TestDispatch_EmptySummary_NoSinksCalled(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	d := NewDispatcher(config.ReportingConfig{WebhookURL: srv.URL}, nil)
	d.Dispatch(context.Background(), Summary{Stage: "import"})
	assert.False(t, called)
}

func TestDispatch_WebhookReceivesJSONSummary(t *testing.T) {
	var received Summary
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer srv.Close()

	d := NewDispatcher(config.ReportingConfig{WebhookURL: srv.URL}, nil)
	d.Dispatch(context.Background(), Summary{Stage: "migrate", Failed: []int{101}})

	assert.Equal(t, "migrate", received.Stage)
	assert.Equal(t, []int{101}, received.Failed)
}

func TestDispatch_WebhookErrorIsLoggedNotReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher(config.ReportingConfig{WebhookURL: srv.URL}, nil)
	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), Summary{Stage: "import", Failed: []int{1}})
	})
}

func TestNewDispatcher_NoConfig_NoSinks(t *testing.T) {
	d := NewDispatcher(config.ReportingConfig{}, nil)
	assert.Empty(t, d.sinks)
}
