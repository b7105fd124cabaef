// Package routeapi speaks to the route-info lookup endpoint that snaps a
// coordinate to the nearest road-network route.
//
// It builds one request Descriptor per input row, fetches it, and classifies
// the response into a success record, a soft error (permanent rejection) or a
// retryable failure. Batch orchestration lives in package snap.
package routeapi

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// RoutePath is the lookup operation, relative to the API base URL.
const RoutePath = "route/GetRouteInfoByCoordinates"

// DefaultSnapDistance is the snap threshold used when none is configured.
const DefaultSnapDistance = 200

// ErrMalformedGeometry is returned by Build when a row's geometry is not a WKT point.
var ErrMalformedGeometry = errors.New("malformed geometry")

// InputRow is one input record. Values holds the pass-through fields in input
// column order; Geometry is the WKT point text.
type InputRow struct {
	RequestID string
	Geometry  string
	Values    []string
}

// Descriptor is a fully formed lookup request for one row.
type Descriptor struct {
	RequestID string
	X         float64
	Y         float64
	URL       string
}

// Config holds the per-run query parameters.
type Config struct {
	// BaseURL is the API root, e.g. "https://host/api/".
	BaseURL      string
	SnapDistance float64
	// ReturnKeys restricts the returned route fields. Empty returns all fields.
	ReturnKeys []string
}

// Builder turns input rows into descriptors. It is safe for concurrent use.
type Builder struct {
	endpoint *url.URL
	fixed    url.Values
}

func NewBuilder(cfg Config) (*Builder, error) {
	base, err := ParseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	endpoint := base.ResolveReference(&url.URL{Path: RoutePath})

	snapDistance := cfg.SnapDistance
	if snapDistance <= 0 {
		snapDistance = DefaultSnapDistance
	}

	fixed := url.Values{}
	fixed.Set("snap_distance", formatFloat(snapDistance))
	if keys := NormalizeKeys(cfg.ReturnKeys); len(keys) > 0 {
		fixed.Set("return_keys", strings.Join(keys, ","))
	}

	return &Builder{endpoint: endpoint, fixed: fixed}, nil
}

// Endpoint returns the lookup URL without query parameters.
func (b *Builder) Endpoint() string {
	return b.endpoint.String()
}

// Build returns the descriptor for row. It fails with ErrMalformedGeometry when
// the geometry does not parse as a point.
func (b *Builder) Build(row InputRow) (Descriptor, error) {
	pt, err := ParsePoint(row.Geometry)
	if err != nil {
		return Descriptor{}, fmt.Errorf("request %s: %w", row.RequestID, err)
	}

	q := url.Values{}
	for k, v := range b.fixed {
		q[k] = v
	}
	q.Set("xcoord", formatFloat(pt.X()))
	q.Set("ycoord", formatFloat(pt.Y()))
	q.Set("request_id", row.RequestID)

	u := *b.endpoint
	u.RawQuery = q.Encode()
	return Descriptor{
		RequestID: row.RequestID,
		X:         pt.X(),
		Y:         pt.Y(),
		URL:       u.String(),
	}, nil
}

// ParsePoint parses WKT text as a single finite point.
func ParsePoint(s string) (orb.Point, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return orb.Point{}, fmt.Errorf("%w: empty geometry", ErrMalformedGeometry)
	}
	g, err := wkt.Unmarshal(strings.ToUpper(s))
	if err != nil {
		return orb.Point{}, fmt.Errorf("%w: %q: %v", ErrMalformedGeometry, s, err)
	}
	pt, ok := g.(orb.Point)
	if !ok {
		return orb.Point{}, fmt.Errorf("%w: %q is a %s, want Point", ErrMalformedGeometry, s, g.GeoJSONType())
	}
	if math.IsNaN(pt.X()) || math.IsNaN(pt.Y()) || math.IsInf(pt.X(), 0) || math.IsInf(pt.Y(), 0) {
		return orb.Point{}, fmt.Errorf("%w: %q has non-finite coordinates", ErrMalformedGeometry, s)
	}
	return pt, nil
}

// ParseBaseURL validates an absolute http(s) API root and normalizes it to end in "/".
func ParseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("route api base URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse route api base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("route api base URL must be http or https (got %q)", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("route api base URL must include a host (got %q)", raw)
	}
	// Ensure the base path ends with a slash so ResolveReference treats it as a directory.
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// NormalizeKeys trims keys and drops empties and duplicates, preserving order.
func NormalizeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
