// Package secrets resolves secret:// configuration references against Secret Manager.
package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	meterName           = "github.com/storefront-orders/api/internal/platform/secrets"
)

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (accessClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type accessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Resolver fetches secrets from Secret Manager, caching values for the process lifetime.
// When Secret Manager is unreachable or unauthorised, values come from a local KEY=VALUE file.
type Resolver struct {
	client     accessClient
	ownsClient bool
	projectID  string
	logger     *zap.Logger
	retry      gax.CallOption

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string

	mu    sync.RWMutex
	cache map[string]string

	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithFallbackFile overrides the local fallback file path.
func WithFallbackFile(path string) Option {
	return func(r *Resolver) { r.fallbackPath = strings.TrimSpace(path) }
}

// WithClient injects a Secret Manager client.
func WithClient(client accessClient) Option {
	return func(r *Resolver) { r.client = client }
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(r *Resolver) {
		if provider != nil {
			r.registerMetrics(provider.Meter(meterName))
		}
	}
}

// NewResolver builds a Resolver for projectID. A missing client is not fatal; the resolver then
// serves only the fallback file.
func NewResolver(ctx context.Context, projectID string, opts ...Option) *Resolver {
	r := &Resolver{
		projectID:    strings.TrimSpace(projectID),
		logger:       zap.NewNop(),
		fallbackPath: defaultFallbackPath,
		cache:        make(map[string]string),
		retry: gax.WithRetry(func() gax.Retryer {
			return gax.OnCodes([]codes.Code{codes.Unavailable, codes.DeadlineExceeded}, gax.Backoff{
				Initial:    100 * time.Millisecond,
				Max:        2 * time.Second,
				Multiplier: 2,
			})
		}),
	}
	r.registerMetrics(otel.GetMeterProvider().Meter(meterName))
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.client == nil && r.projectID != "" {
		client, err := newSecretManagerClient(ctx)
		if err != nil {
			r.logger.Warn("secrets: secret manager unavailable, using fallback file", zap.Error(err))
		} else {
			r.client = client
			r.ownsClient = true
		}
	}
	return r
}

func (r *Resolver) registerMetrics(meter metric.Meter) {
	if h, err := meter.Float64Histogram("secrets.fetch.latency", metric.WithUnit("ms")); err == nil {
		r.latency = h
	}
	if c, err := meter.Int64Counter("secrets.fetch.cache_hits"); err == nil {
		r.cacheHits = c
	}
}

// Close releases the Secret Manager client when the resolver created it.
func (r *Resolver) Close() error {
	if r.ownsClient && r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ResolveSecret returns the value for a secret://name[?version=N&project=P] reference.
func (r *Resolver) ResolveSecret(ctx context.Context, raw string) (string, error) {
	start := time.Now()
	ref, err := parseReference(raw)
	if err != nil {
		return "", err
	}

	r.mu.RLock()
	value, ok := r.cache[ref.key()]
	r.mu.RUnlock()
	if ok {
		if r.cacheHits != nil {
			r.cacheHits.Add(ctx, 1)
		}
		return value, nil
	}

	source := "remote"
	value, err = r.fetch(ctx, ref)
	if err != nil {
		if !fallbackEligible(err) {
			r.record(ctx, start, "error")
			return "", fmt.Errorf("secrets: fetch %s: %w", ref.name, err)
		}
		r.logger.Debug("secrets: using fallback value", zap.String("secret", ref.name), zap.Error(err))
		fallback, found := r.lookupFallback(ref)
		if !found {
			r.record(ctx, start, "error")
			return "", fmt.Errorf("secrets: no value for %s: %w", ref.name, err)
		}
		value, source = fallback, "fallback"
	}

	r.mu.Lock()
	r.cache[ref.key()] = value
	r.mu.Unlock()
	r.record(ctx, start, source)
	return value, nil
}

var errNoRemote = errors.New("secret manager not configured")

func (r *Resolver) fetch(ctx context.Context, ref reference) (string, error) {
	project := ref.project
	if project == "" {
		project = r.projectID
	}
	if r.client == nil || project == "" {
		return "", errNoRemote
	}
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, ref.name, ref.version)
	resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name}, r.retry)
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("empty payload for %s", name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (r *Resolver) record(ctx context.Context, start time.Time, source string) {
	if r.latency == nil {
		return
	}
	elapsed := float64(time.Since(start)) / float64(time.Millisecond)
	r.latency.Record(ctx, elapsed, metric.WithAttributes(attribute.String("source", source)))
}

func (r *Resolver) lookupFallback(ref reference) (string, bool) {
	r.fallbackOnce.Do(func() {
		r.fallback = loadFallbackFile(r.fallbackPath, r.logger)
	})
	if v, ok := r.fallback[ref.key()]; ok {
		return v, true
	}
	v, ok := r.fallback[ref.name]
	return v, ok
}

func loadFallbackFile(path string, logger *zap.Logger) map[string]string {
	values := map[string]string{}
	if path == "" {
		return values
	}
	file, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("secrets: cannot open fallback file", zap.String("path", path), zap.Error(err))
		}
		return values
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if ref, err := parseReference(key); err == nil {
			values[ref.key()] = strings.TrimSpace(value)
			values[ref.name] = strings.TrimSpace(value)
			continue
		}
		values[key] = strings.TrimSpace(value)
	}
	return values
}

// fallbackEligible reports whether err means Secret Manager cannot serve us at all, as opposed
// to the secret being absent.
func fallbackEligible(err error) bool {
	if errors.Is(err, errNoRemote) {
		return true
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

type reference struct {
	name    string
	version string
	project string
}

func (r reference) key() string {
	return r.project + "/" + r.name + "#" + r.version
}

func parseReference(raw string) (reference, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "sm://") {
		raw = "secret://" + strings.TrimPrefix(raw, "sm://")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: invalid reference %q", raw)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", raw)
	}
	version := strings.TrimSpace(u.Query().Get("version"))
	if version == "" {
		version = "latest"
	}
	return reference{name: name, version: version, project: strings.TrimSpace(u.Query().Get("project"))}, nil
}
