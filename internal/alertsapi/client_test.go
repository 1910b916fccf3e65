package alertsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/tablealert/internal/domain"
)

func TestLatest_DecodesRecord(t *testing.T) {
	var gotEmail string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/alerts/latest", r.URL.Path)
		gotEmail = r.URL.Query().Get("email")
		_, _ = w.Write([]byte(`{"status":"pending_payment","createdAt":"2025-10-01T12:00:00.000Z"}`))
	}))
	defer ts.Close()

	c := New(ts.URL+"/", time.Second)
	rec, err := c.Latest(context.Background(), "a+b@example.com")
	require.NoError(t, err)
	assert.Equal(t, "a+b@example.com", gotEmail)
	assert.Equal(t, domain.StatusPendingPayment, rec.Status)
	assert.Equal(t, "2025-10-01T12:00:00.000Z", rec.CreatedAt)
}

func TestLatest_NullCreatedAtAndNone(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"none","createdAt":null}`))
	}))
	defer ts.Close()

	rec, err := New(ts.URL, time.Second).Latest(context.Background(), "x@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNone, rec.Status)
	assert.Empty(t, rec.CreatedAt)
}

func TestLatest_ErrorsOnBadResponses(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("email") == "broken@example.com" {
			_, _ = w.Write([]byte(`{not json`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	c := New(ts.URL, time.Second)
	_, err := c.Latest(context.Background(), "x@example.com")
	assert.Error(t, err)
	_, err = c.Latest(context.Background(), "broken@example.com")
	assert.Error(t, err)
}

func TestActivatePending(t *testing.T) {
	var body map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/alerts/activate-pending", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"activated":2}`))
	}))
	defer ts.Close()

	out, err := New(ts.URL, time.Second).ActivatePending(context.Background(), "x@example.com")
	require.NoError(t, err)
	assert.Equal(t, "x@example.com", body["email"])
	assert.EqualValues(t, 2, out["activated"])
}

func TestActivatePending_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := New(ts.URL, time.Second).ActivatePending(context.Background(), "x@example.com")
	assert.Error(t, err)
}
