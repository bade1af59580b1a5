package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErrors "github.com/netwatch-io/console-api/pkg/errors"
)

type widgetCacheStub struct {
	sets        int
	invalidated []string
	invalidErr  error
}

func (c *widgetCacheStub) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	return false, nil
}

func (c *widgetCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.sets++
	return nil
}

func (c *widgetCacheStub) Invalidate(ctx context.Context, pattern string) error {
	c.invalidated = append(c.invalidated, pattern)
	return c.invalidErr
}

func TestProxyServiceWidget(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"green"}`))
	}))
	defer upstream.Close()

	cache := &widgetCacheStub{}
	svc := NewProxyService(cache, ProxyServiceConfig{ElasticURL: upstream.URL, Timeout: time.Second}, nil)

	widget, err := svc.Widget(context.Background(), SourceElastic)
	require.NoError(t, err)
	require.True(t, widget.Available)
	require.Equal(t, SourceElastic, widget.Source)
	require.JSONEq(t, `{"status":"green"}`, string(widget.Data))
	require.Equal(t, 1, cache.sets)
}

func TestProxyServiceWidgetDegradesOnFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	svc := NewProxyService(nil, ProxyServiceConfig{SwarmURL: upstream.URL, Timeout: time.Second}, nil)

	widget, err := svc.Widget(context.Background(), SourceSwarm)
	require.NoError(t, err)
	require.False(t, widget.Available)
	require.Contains(t, widget.Error, "502")
}

func TestProxyServiceWidgetUnconfiguredSource(t *testing.T) {
	svc := NewProxyService(nil, ProxyServiceConfig{}, nil)

	widget, err := svc.Widget(context.Background(), SourceNetdata)
	require.NoError(t, err)
	require.False(t, widget.Available)
	require.Equal(t, "source not configured", widget.Error)

	_, err = svc.Widget(context.Background(), "mainframe")
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestProxyServiceRefreshWidgets(t *testing.T) {
	cache := &widgetCacheStub{}
	svc := NewProxyService(cache, ProxyServiceConfig{}, nil)

	require.NoError(t, svc.RefreshWidgets(context.Background()))
	require.Equal(t, []string{"widget:*"}, cache.invalidated)

	cache.invalidErr = errors.New("redis gone")
	err := svc.RefreshWidgets(context.Background())
	require.True(t, appErrors.Is(err, appErrors.ErrInternal))

	// Cache-off deployments treat a refresh as a no-op.
	require.NoError(t, NewProxyService(nil, ProxyServiceConfig{}, nil).RefreshWidgets(context.Background()))
}

func TestProxyServiceDashboardCollectsAllSources(t *testing.T) {
	svc := NewProxyService(nil, ProxyServiceConfig{}, nil)
	widgets := svc.Dashboard(context.Background())
	require.Len(t, widgets, 5)
	for source, widget := range widgets {
		require.Equal(t, source, widget.Source)
		require.False(t, widget.Available)
	}
}
