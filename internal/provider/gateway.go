// Package provider wraps the DNS provider's zone and record REST
// endpoints behind caching, bounded timeouts and bounded retry.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"zonebot/internal/model"
	"zonebot/internal/retry"
)

const (
	// DefaultTimeout bounds a single provider attempt.
	DefaultTimeout = 10 * time.Second
	// DefaultTTL and DefaultProxied are the fixed attributes for records
	// created through this system.
	DefaultTTL     = 3600
	DefaultProxied = false
)

type Config struct {
	BaseURL    string
	APIToken   string
	HTTPClient *http.Client
	Policy     retry.Policy
	Timeout    time.Duration
	Logger     *slog.Logger
}

type Gateway struct {
	baseURL string
	token   string
	httpc   *http.Client
	policy  retry.Policy
	timeout time.Duration
	log     *slog.Logger

	mu    sync.Mutex
	zones []model.Zone // nil until first successful fetch
}

func New(cfg Config) *Gateway {
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{}
	}
	policy := cfg.Policy
	if policy.MaxAttempts == 0 {
		policy = retry.Default
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		baseURL: cfg.BaseURL,
		token:   cfg.APIToken,
		httpc:   httpc,
		policy:  policy,
		timeout: timeout,
		log:     log,
	}
}

// Zones returns the cached zone list, fetching it once if the cache has
// never been filled. Cache entries stay valid until explicitly refreshed.
func (g *Gateway) Zones(ctx context.Context) ([]model.Zone, error) {
	g.mu.Lock()
	cached := g.zones
	g.mu.Unlock()
	if cached != nil {
		return append([]model.Zone(nil), cached...), nil
	}
	return g.RefreshZones(ctx)
}

// RefreshZones bypasses the cache and replaces it with the provider's
// current zone list. The network round trip happens outside the lock.
func (g *Gateway) RefreshZones(ctx context.Context) ([]model.Zone, error) {
	zones, err := g.fetchZones(ctx)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.zones = zones
	g.mu.Unlock()
	g.log.Debug("zone cache refreshed", "zones", len(zones))
	return append([]model.Zone(nil), zones...), nil
}

func (g *Gateway) fetchZones(ctx context.Context) ([]model.Zone, error) {
	zones := []model.Zone{}
	for page := 1; ; page++ {
		var result []zoneBody
		var info *resultInfo
		err := g.policy.Do(ctx, Transient, func(ctx context.Context) error {
			var derr error
			info, derr = g.do(ctx, http.MethodGet, fmt.Sprintf("/zones?page=%d&per_page=50", page), nil, &result)
			return derr
		})
		if err != nil {
			if Transient(err) {
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			return nil, err
		}
		for _, z := range result {
			zones = append(zones, model.Zone{ID: z.ID, Name: z.Name})
		}
		if info == nil || info.Page >= info.TotalPages {
			return zones, nil
		}
	}
}

// FindRecord returns the provider records at a fully-qualified name,
// regardless of type. An empty slice means not found.
func (g *Gateway) FindRecord(ctx context.Context, zoneID, fqdn string) ([]model.Record, error) {
	var result []recordBody
	path := fmt.Sprintf("/zones/%s/dns_records?name=%s", zoneID, url.QueryEscape(fqdn))
	if err := g.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	records := make([]model.Record, 0, len(result))
	for _, r := range result {
		records = append(records, r.toModel(zoneID, ""))
	}
	return records, nil
}

// GetRecord fetches a single record by id. Returns ErrNotFound when the
// provider no longer has it.
func (g *Gateway) GetRecord(ctx context.Context, zoneID, recordID string) (model.Record, error) {
	var result recordBody
	path := fmt.Sprintf("/zones/%s/dns_records/%s", zoneID, recordID)
	if err := g.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		var ae *APIError
		if errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound {
			return model.Record{}, ErrNotFound
		}
		return model.Record{}, err
	}
	return result.toModel(zoneID, ""), nil
}

// CreateRecord creates a record with the fixed default attributes. It
// fails with ErrAlreadyExists when the provider already holds a record
// with the same fully-qualified name and type, so repeated conversations
// cannot stack duplicates.
func (g *Gateway) CreateRecord(ctx context.Context, zoneID, fqdn, recordType, content string) (model.Record, error) {
	existing, err := g.FindRecord(ctx, zoneID, fqdn)
	if err != nil {
		return model.Record{}, err
	}
	for _, r := range existing {
		if r.Type == recordType {
			return model.Record{}, ErrAlreadyExists
		}
	}

	body := recordBody{
		Type:    recordType,
		Name:    fqdn,
		Content: content,
		TTL:     DefaultTTL,
		Proxied: DefaultProxied,
	}
	var result recordBody
	path := fmt.Sprintf("/zones/%s/dns_records", zoneID)
	if err := g.call(ctx, http.MethodPost, path, body, &result); err != nil {
		return model.Record{}, err
	}
	return result.toModel(zoneID, ""), nil
}

// UpdateRecord changes only the content of an existing record. Current
// attributes are fetched first so type, ttl and proxying survive the
// update. Returns ErrNotFound when the record has gone away on the
// provider side.
func (g *Gateway) UpdateRecord(ctx context.Context, zoneID, recordID, newContent string) (model.Record, error) {
	current, err := g.GetRecord(ctx, zoneID, recordID)
	if err != nil {
		return model.Record{}, err
	}

	body := recordBody{
		Type:    current.Type,
		Name:    current.Name,
		Content: newContent,
		TTL:     current.TTL,
		Proxied: current.Proxied,
	}
	var result recordBody
	path := fmt.Sprintf("/zones/%s/dns_records/%s", zoneID, recordID)
	if err := g.call(ctx, http.MethodPut, path, body, &result); err != nil {
		return model.Record{}, err
	}
	return result.toModel(zoneID, ""), nil
}

// DeleteRecord removes a record. Returns ErrNotFound when the provider no
// longer has it.
func (g *Gateway) DeleteRecord(ctx context.Context, zoneID, recordID string) error {
	path := fmt.Sprintf("/zones/%s/dns_records/%s", zoneID, recordID)
	if err := g.call(ctx, http.MethodDelete, path, nil, nil); err != nil {
		var ae *APIError
		if errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}
		return err
	}
	return nil
}
