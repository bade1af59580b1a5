package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/netwatch-io/console-api/internal/dto"
	appErrors "github.com/netwatch-io/console-api/pkg/errors"
)

// Upstream sources surfaced as dashboard widgets.
const (
	SourceSwarm    = "swarm"
	SourceElastic  = "elastic"
	SourceArkime   = "arkime"
	SourceNetdata  = "netdata"
	SourceRegistry = "registry"
)

// maxWidgetBody caps how much of an upstream response is relayed.
const maxWidgetBody = 1 << 20

type widgetCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

type upstream struct {
	baseURL string
	path    string
}

// ProxyService fetches health and status payloads from the platform's
// surrounding systems. Failures degrade to an unavailable widget rather than
// failing the dashboard request.
type ProxyService struct {
	client    *http.Client
	cache     widgetCache
	cacheTTL  time.Duration
	upstreams map[string]upstream
	logger    *zap.Logger
}

// ProxyServiceConfig wires upstream endpoints.
type ProxyServiceConfig struct {
	SwarmURL       string
	ElasticURL     string
	ArkimeURL      string
	NetdataURL     string
	RegistryURL    string
	Timeout        time.Duration
	WidgetCacheTTL time.Duration
}

// NewProxyService constructs a ProxyService.
func NewProxyService(cache widgetCache, cfg ProxyServiceConfig, logger *zap.Logger) *ProxyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.WidgetCacheTTL <= 0 {
		cfg.WidgetCacheTTL = 15 * time.Second
	}

	upstreams := map[string]upstream{
		SourceSwarm:    {baseURL: cfg.SwarmURL, path: "/nodes"},
		SourceElastic:  {baseURL: cfg.ElasticURL, path: "/_cluster/health"},
		SourceArkime:   {baseURL: cfg.ArkimeURL, path: "/api/stats"},
		SourceNetdata:  {baseURL: cfg.NetdataURL, path: "/api/v1/info"},
		SourceRegistry: {baseURL: cfg.RegistryURL, path: "/v2/_catalog"},
	}

	return &ProxyService{
		client:    &http.Client{Timeout: cfg.Timeout},
		cache:     cache,
		cacheTTL:  cfg.WidgetCacheTTL,
		upstreams: upstreams,
		logger:    logger,
	}
}

// Widget fetches a single source's status payload, serving a cached copy
// when one is fresh.
func (s *ProxyService) Widget(ctx context.Context, source string) (*dto.Widget, error) {
	target, ok := s.upstreams[source]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown status source")
	}
	if target.baseURL == "" {
		return &dto.Widget{
			Available: false,
			Source:    source,
			Error:     "source not configured",
			FetchedAt: time.Now().UTC(),
		}, nil
	}

	cacheKey := "widget:" + source
	if s.cache != nil {
		var cached dto.Widget
		hit, err := s.cache.Get(ctx, cacheKey, &cached)
		if err != nil {
			s.logger.Warn("widget cache read failed", zap.String("source", source), zap.Error(err))
		}
		if hit {
			cached.Cached = true
			return &cached, nil
		}
	}

	widget := s.fetch(ctx, source, target)
	if s.cache != nil && widget.Available {
		if err := s.cache.Set(ctx, cacheKey, widget, s.cacheTTL); err != nil {
			s.logger.Warn("widget cache write failed", zap.String("source", source), zap.Error(err))
		}
	}
	return widget, nil
}

// RefreshWidgets drops every cached widget payload so the next dashboard
// load reflects current upstream state instead of waiting out the TTL.
func (s *ProxyService) RefreshWidgets(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx, "widget:*"); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refresh widget cache")
	}
	return nil
}

// Dashboard fetches every configured source concurrently.
func (s *ProxyService) Dashboard(ctx context.Context) map[string]*dto.Widget {
	results := make(map[string]*dto.Widget, len(s.upstreams))
	type keyed struct {
		source string
		widget *dto.Widget
	}
	ch := make(chan keyed, len(s.upstreams))
	for source := range s.upstreams {
		go func(source string) {
			widget, err := s.Widget(ctx, source)
			if err != nil {
				widget = &dto.Widget{Available: false, Source: source, Error: err.Error(), FetchedAt: time.Now().UTC()}
			}
			ch <- keyed{source: source, widget: widget}
		}(source)
	}
	for range s.upstreams {
		k := <-ch
		results[k.source] = k.widget
	}
	return results
}

func (s *ProxyService) fetch(ctx context.Context, source string, target upstream) *dto.Widget {
	widget := &dto.Widget{Source: source, FetchedAt: time.Now().UTC()}

	endpoint, err := url.JoinPath(target.baseURL, target.path)
	if err != nil {
		widget.Error = "invalid upstream url"
		return widget
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		widget.Error = err.Error()
		return widget
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("upstream fetch failed", zap.String("source", source), zap.Error(err))
		widget.Error = "upstream unreachable"
		return widget
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWidgetBody))
	if err != nil {
		widget.Error = "failed to read upstream response"
		return widget
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		widget.Error = fmt.Sprintf("upstream returned %d", resp.StatusCode)
		return widget
	}
	if !json.Valid(body) {
		widget.Error = "upstream returned non-JSON payload"
		return widget
	}

	widget.Available = true
	widget.Data = json.RawMessage(body)
	return widget
}
