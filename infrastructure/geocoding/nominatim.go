// Package geocoding provides reverse geocoding backends: an OpenStreetMap
// Nominatim client plus circuit breaker and cache decorators.
package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"memorymap-backend/application/ports"
	pkgerrors "memorymap-backend/pkg/errors"
)

const nominatimService = "nominatim"

// NominatimConfig configures NominatimBackend.
type NominatimConfig struct {
	BaseURL   string
	UserAgent string
	Language  string
	Timeout   time.Duration
}

// NominatimBackend performs reverse lookups against the Nominatim
// /reverse endpoint.
type NominatimBackend struct {
	baseURL   string
	language  string
	client    *http.Client
	userAgent atomic.Value
	logger    *zap.Logger
}

func NewNominatimBackend(cfg NominatimConfig, logger *zap.Logger) *NominatimBackend {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	b := &NominatimBackend{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		language: cfg.Language,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With(zap.String("component", "nominatim")),
	}
	b.SetUserAgent(cfg.UserAgent)
	return b
}

// SetUserAgent replaces the User-Agent header used for new requests.
// Nominatim's usage policy requires an identifying agent.
func (b *NominatimBackend) SetUserAgent(ua string) {
	b.userAgent.Store(ua)
}

func (b *NominatimBackend) UserAgent() string {
	ua, _ := b.userAgent.Load().(string)
	return ua
}

type nominatimAddress struct {
	City          string `json:"city"`
	Town          string `json:"town"`
	Village       string `json:"village"`
	Hamlet        string `json:"hamlet"`
	Suburb        string `json:"suburb"`
	County        string `json:"county"`
	StateDistrict string `json:"state_district"`
	State         string `json:"state"`
}

type nominatimResponse struct {
	Address *nominatimAddress `json:"address"`
	Error   string            `json:"error"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Lookup returns at most one candidate. "Unable to geocode" responses
// (open sea, poles) are an empty result, not an error.
func (b *NominatimBackend) Lookup(ctx context.Context, lat, lng float64) ([]ports.Address, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("zoom", "14")
	q.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, pkgerrors.NewInternalError("failed to build geocode request").WithCause(err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := b.UserAgent(); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if b.language != "" {
		req.Header.Set("Accept-Language", b.language)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, pkgerrors.NewNetworkError("geocode request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, pkgerrors.NewExternalError(nominatimService,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var payload nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, pkgerrors.NewExternalError(nominatimService, fmt.Errorf("failed to decode response: %w", err))
	}

	if payload.Error != "" || payload.Address == nil {
		b.logger.Debug("No address for coordinates",
			zap.Float64("lat", lat),
			zap.Float64("lng", lng),
			zap.String("reason", payload.Error),
		)
		return nil, nil
	}

	a := payload.Address
	return []ports.Address{{
		Locality:  firstNonEmpty(a.City, a.Town, a.Village, a.Hamlet, a.Suburb),
		SubRegion: firstNonEmpty(a.County, a.StateDistrict),
		Region:    a.State,
	}}, nil
}
