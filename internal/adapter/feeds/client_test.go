package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crisislens/hazard-ingest-service/internal/config"
	"github.com/crisislens/hazard-ingest-service/internal/domain"
)

func TestClientGet(t *testing.T) {
	t.Run("merges query and sends bearer token", func(t *testing.T) {
		var gotAuth, gotQuery string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotQuery = r.URL.RawQuery
			w.Write([]byte(`{"ok":true}`)) //nolint:errcheck
		}))
		defer server.Close()

		feed := config.Feed{URL: server.URL + "?preset=1", APIKey: "secret", Timeout: time.Second}
		body, err := testClient(t).get(context.Background(), domain.SourceUSGS, feed, url.Values{"limit": {"5"}})
		require.NoError(t, err)
		assert.JSONEq(t, `{"ok":true}`, string(body))
		assert.Equal(t, "Bearer secret", gotAuth)
		assert.Contains(t, gotQuery, "preset=1")
		assert.Contains(t, gotQuery, "limit=5")
	})

	t.Run("falls back to secondary endpoint", func(t *testing.T) {
		primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer primary.Close()
		secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[]`)) //nolint:errcheck
		}))
		defer secondary.Close()

		feed := config.Feed{URL: primary.URL, SecondaryURL: secondary.URL, Timeout: time.Second}
		body, err := testClient(t).get(context.Background(), domain.SourceSFFD, feed, nil)
		require.NoError(t, err)
		assert.Equal(t, "[]", string(body))
	})

	t.Run("reports both failures when fallback also fails", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		feed := config.Feed{URL: server.URL, SecondaryURL: server.URL, Timeout: time.Second}
		_, err := testClient(t).get(context.Background(), domain.SourceFEMA, feed, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 503")
	})

	t.Run("non-2xx without fallback is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		feed := config.Feed{URL: server.URL, Timeout: time.Second}
		_, err := testClient(t).get(context.Background(), domain.SourceKontur, feed, nil)
		assert.Error(t, err)
	})
}

func TestFetchFailureServesFixture(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()
	feed := config.Feed{URL: server.URL, Timeout: time.Second}

	t.Run("usgs events", func(t *testing.T) {
		events, err := NewUSGS(testClient(t), feed, false).Fetch(context.Background())
		require.NoError(t, err)
		assert.Len(t, events, 6, "fixture data stands in for the dead feed")
	})

	t.Run("fema declarations and clusters", func(t *testing.T) {
		events, clusters, err := NewFEMA(testClient(t), feed, false).Fetch(context.Background())
		require.NoError(t, err)
		assert.Len(t, events, 8)
		assert.NotEmpty(t, clusters)
	})

	t.Run("social mentions when an endpoint is configured", func(t *testing.T) {
		mentions, err := NewSocial(testClient(t), feed, false).Fetch(context.Background())
		require.NoError(t, err)
		assert.Len(t, mentions, 8)
	})

	t.Run("census regions", func(t *testing.T) {
		regions, err := NewCensus(testClient(t), feed, false).Fetch(context.Background())
		require.NoError(t, err)
		assert.Len(t, regions, 5)
	})
}
