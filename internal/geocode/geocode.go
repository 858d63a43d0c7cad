// Package geocode resolves free-text locations to coordinates through an
// external geocoding service, caching every outcome per process.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"civicbot/internal/civic"
	"civicbot/internal/metrics"
)

// Coordinates is a resolved latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Config points the resolver at its providers. FallbackURL is optional; when
// set, it is tried after the primary returns nothing.
type Config struct {
	BaseURL     string
	UserAgent   string
	FallbackURL string
	FallbackKey string
}

const requestTimeout = 8 * time.Second

type cacheEntry struct {
	coords Coordinates
	found  bool
}

// Resolver geocodes location text with a process-wide cache. Negative
// outcomes are cached too so a failing location is not retried.
type Resolver struct {
	client *http.Client
	cfg    Config

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

func New(client *http.Client, cfg Config) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	return &Resolver{client: client, cfg: cfg, cache: make(map[string]cacheEntry)}
}

// Resolve maps location text to coordinates. The second return is false
// when the location is the unknown sentinel, empty, or not geocodable.
// Network failures are soft: logged, cached as not found, never returned.
func (r *Resolver) Resolve(ctx context.Context, locationText string) (Coordinates, bool) {
	trimmed := strings.TrimSpace(locationText)
	if trimmed == "" || strings.EqualFold(trimmed, civic.UnknownLocation) || strings.EqualFold(trimmed, "none") {
		return Coordinates{}, false
	}

	key := strings.ToLower(trimmed)
	r.mu.RLock()
	entry, hit := r.cache[key]
	r.mu.RUnlock()
	if hit {
		metrics.IncGeocodeCacheHit()
		return entry.coords, entry.found
	}
	metrics.IncGeocodeCacheMiss()

	coords, found := r.lookup(ctx, trimmed)
	r.mu.Lock()
	r.cache[key] = cacheEntry{coords: coords, found: found}
	r.mu.Unlock()
	return coords, found
}

func (r *Resolver) lookup(ctx context.Context, locationText string) (Coordinates, bool) {
	coords, err := r.primary(ctx, locationText)
	if err == nil {
		log.Printf("geocode: resolved %q to %.5f,%.5f", locationText, coords.Lat, coords.Lng)
		return coords, true
	}
	log.Printf("geocode: primary lookup failed for %q: %v", locationText, err)

	if r.cfg.FallbackURL != "" {
		coords, err = r.fallback(ctx, locationText)
		if err == nil {
			log.Printf("geocode: resolved %q via fallback", locationText)
			return coords, true
		}
		log.Printf("geocode: fallback lookup failed for %q: %v", locationText, err)
	}
	return Coordinates{}, false
}

// primary queries a Nominatim-shaped endpoint.
func (r *Resolver) primary(ctx context.Context, locationText string) (Coordinates, error) {
	endpoint := fmt.Sprintf("%s?q=%s&format=json&limit=1", r.cfg.BaseURL, url.QueryEscape(locationText))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Coordinates{}, err
	}
	if r.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", r.cfg.UserAgent)
	}
	req.Header.Set("Accept-Language", "en")

	resp, err := r.client.Do(req)
	if err != nil {
		return Coordinates{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Coordinates{}, fmt.Errorf("geocoder status %d", resp.StatusCode)
	}

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Coordinates{}, err
	}
	if len(results) == 0 {
		return Coordinates{}, fmt.Errorf("no results")
	}
	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("bad latitude %q", results[0].Lat)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("bad longitude %q", results[0].Lon)
	}
	return Coordinates{Lat: lat, Lng: lng}, nil
}

// fallback queries a Google-geocoding-shaped endpoint.
func (r *Resolver) fallback(ctx context.Context, locationText string) (Coordinates, error) {
	endpoint := fmt.Sprintf("%s?address=%s", r.cfg.FallbackURL, url.QueryEscape(locationText))
	if r.cfg.FallbackKey != "" {
		endpoint += "&key=" + url.QueryEscape(r.cfg.FallbackKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Coordinates{}, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return Coordinates{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Coordinates{}, fmt.Errorf("fallback geocoder status %d", resp.StatusCode)
	}

	var data struct {
		Status  string `json:"status"`
		Results []struct {
			Geometry struct {
				Location Coordinates `json:"location"`
			} `json:"geometry"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Coordinates{}, err
	}
	if data.Status != "OK" || len(data.Results) == 0 {
		return Coordinates{}, fmt.Errorf("fallback status %q with %d results", data.Status, len(data.Results))
	}
	return data.Results[0].Geometry.Location, nil
}

// CacheSize reports how many distinct locations have been looked up.
func (r *Resolver) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
