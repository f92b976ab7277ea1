// Package arcgis queries ArcGIS REST feature layers (FeatureServer or
// MapServer) and returns their features as flat attribute maps.
package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/property-map/internal/geo"
	"github.com/sells-group/property-map/internal/model"
	"github.com/sells-group/property-map/internal/resilience"
)

const (
	sourceName = "arcgis"
	// wgs84 is the spatial reference used for both input and output geometry.
	wgs84 = "4326"
)

// ErrUnknownLayer is returned for a layer name with no configured URL.
var ErrUnknownLayer = eris.New("arcgis: unknown layer")

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithToken sets the token sent with every query.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			if burst <= 0 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithLayer maps a layer name to its REST endpoint, e.g.
// https://host/arcgis/rest/services/Cadastre/MapServer/0.
func WithLayer(name, layerURL string) Option {
	return func(c *Client) {
		c.layers[name] = strings.TrimRight(layerURL, "/")
	}
}

// Client runs feature queries against ArcGIS REST layers.
type Client struct {
	http    *http.Client
	layers  map[string]string
	token   string
	limiter *rate.Limiter
}

// New creates a Client. Layers are registered with WithLayer.
func New(opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		layers:  make(map[string]string),
		limiter: rate.NewLimiter(rate.Limit(10), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LayerURL returns the endpoint registered for name.
func (c *Client) LayerURL(name string) (string, bool) {
	u, ok := c.layers[name]
	return u, ok
}

// serviceError is the body ArcGIS returns, usually with HTTP 200, when a
// query fails on the server.
type serviceError struct {
	Error *struct {
		Code    int      `json:"code"`
		Message string   `json:"message"`
		Details []string `json:"details"`
	} `json:"error"`
}

// QueryFeatures runs q against the layer's query endpoint. A successful query
// that matches nothing returns an empty slice and no error; HTTP failures and
// ArcGIS error bodies are returned as errors.
func (c *Client) QueryFeatures(ctx context.Context, q model.FeatureQuery) ([]model.Feature, error) {
	base, ok := c.layers[q.Layer]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownLayer, "arcgis: layer %q", q.Layer)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "arcgis: rate limit wait")
	}

	reqURL := base + "/query?" + c.params(q).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "arcgis: build request")
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "arcgis: query %s", q.Layer)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "arcgis: read %s response", q.Layer)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Wrapf(&resilience.StatusError{
			Source:     sourceName,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), 200),
		}, "arcgis: query %s", q.Layer)
	}

	var se serviceError
	if err := json.Unmarshal(body, &se); err == nil && se.Error != nil {
		msg := se.Error.Message
		if len(se.Error.Details) > 0 {
			msg += ": " + strings.Join(se.Error.Details, "; ")
		}
		return nil, eris.Wrapf(&resilience.StatusError{
			Source:     sourceName,
			StatusCode: se.Error.Code,
			Body:       msg,
		}, "arcgis: query %s", q.Layer)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		return nil, eris.Wrapf(err, "arcgis: decode %s response", q.Layer)
	}

	features := make([]model.Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		attrs := model.Attributes(f.Properties).Clone()
		if attrs == nil {
			attrs = model.Attributes{}
		}
		feat := model.Feature{Attributes: attrs}
		if q.ReturnGeometry {
			feat.Location = geo.Location(f.Geometry)
		}
		features = append(features, feat)
	}

	zap.L().Debug("arcgis: query complete",
		zap.String("layer", q.Layer),
		zap.Int("features", len(features)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return features, nil
}

func (c *Client) params(q model.FeatureQuery) url.Values {
	p := url.Values{}
	p.Set("where", whereClause(q.Where))
	p.Set("outFields", "*")
	p.Set("returnGeometry", strconv.FormatBool(q.ReturnGeometry))
	p.Set("outSR", wgs84)
	p.Set("f", "geojson")

	switch {
	case q.Point != nil:
		p.Set("geometry", fmt.Sprintf("%s,%s", coord(q.Point.Lon), coord(q.Point.Lat)))
		p.Set("geometryType", "esriGeometryPoint")
	case q.Envelope != nil:
		e := q.Envelope
		p.Set("geometry", fmt.Sprintf("%s,%s,%s,%s",
			coord(e.MinLon), coord(e.MinLat), coord(e.MaxLon), coord(e.MaxLat)))
		p.Set("geometryType", "esriGeometryEnvelope")
	}
	if q.Point != nil || q.Envelope != nil {
		p.Set("inSR", wgs84)
		p.Set("spatialRel", "esriSpatialRelIntersects")
	}

	if q.Limit > 0 {
		p.Set("resultRecordCount", strconv.Itoa(q.Limit))
	}
	if c.token != "" {
		p.Set("token", c.token)
	}
	return p
}

// whereClause renders equality conditions as an ArcGIS SQL where clause.
// Values are always quoted; ArcGIS casts quoted literals for numeric fields.
func whereClause(conds []model.Condition) string {
	if len(conds) == 0 {
		return "1=1"
	}
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = fmt.Sprintf("%s = '%s'", c.Field, strings.ReplaceAll(c.Value, "'", "''"))
	}
	return strings.Join(parts, " AND ")
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
