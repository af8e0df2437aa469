package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newLocator(t *testing.T, h http.HandlerFunc, timeout time.Duration) *HTTPLocator {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPLocator(Config{Endpoint: srv.URL + "/%s/json/", Timeout: timeout}, srv.Client(), zap.NewNop().Sugar())
}

func TestLookup_Loopback(t *testing.T) {
	l := newLocator(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("loopback must not hit the network")
	}, time.Second)

	for _, ip := range []string{"127.0.0.1", "::1", "localhost"} {
		assert.Equal(t, Location{City: "Local", Country: "Local"}, l.Lookup(context.Background(), ip))
	}
}

func TestLookup_OK(t *testing.T) {
	l := newLocator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/8.8.8.8/json/", r.URL.Path)
		_, _ = w.Write([]byte(`{"city":"Mountain View","country_name":"United States"}`))
	}, time.Second)

	got := l.Lookup(context.Background(), "8.8.8.8")
	assert.Equal(t, Location{City: "Mountain View", Country: "United States"}, got)
}

func TestLookup_MissingFields(t *testing.T) {
	l := newLocator(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"country_name":"France"}`))
	}, time.Second)

	assert.Equal(t, Location{City: "Unknown", Country: "France"}, l.Lookup(context.Background(), "1.2.3.4"))
}

func TestLookup_FailuresResolveUnknown(t *testing.T) {
	unknown := Location{City: "Unknown", Country: "Unknown"}

	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"bad json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{`))
		},
		"reserved": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error":true,"reason":"Reserved IP Address"}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			l := newLocator(t, h, time.Second)
			assert.Equal(t, unknown, l.Lookup(context.Background(), "10.1.2.3"))
		})
	}
}

func TestLookup_Timeout(t *testing.T) {
	l := newLocator(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, 50*time.Millisecond)

	start := time.Now()
	got := l.Lookup(context.Background(), "8.8.4.4")
	assert.Equal(t, Location{City: "Unknown", Country: "Unknown"}, got)
	assert.Less(t, time.Since(start), time.Second)
}

func TestLookup_NotAnIP(t *testing.T) {
	l := newLocator(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("invalid ip must not hit the network")
	}, time.Second)
	assert.Equal(t, Location{City: "Unknown", Country: "Unknown"}, l.Lookup(context.Background(), "unknown"))
}
