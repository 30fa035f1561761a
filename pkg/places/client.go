// Package places provides a client for the Google Places API (New): text
// search, place details, and photo media. Every call is reported to a
// UsageRecorder whatever its outcome.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/trustdiner/trustdiner-api/pkg/apperrors"
	"github.com/trustdiner/trustdiner-api/pkg/config"
	"github.com/trustdiner/trustdiner-api/pkg/logging"
	"github.com/trustdiner/trustdiner-api/pkg/metrics"
	"github.com/trustdiner/trustdiner-api/pkg/models"
)

// ServiceName identifies this provider in usage logs and the cost table.
const ServiceName = "google_places"

// Endpoint names recorded in usage logs.
const (
	EndpointTextSearch = "text_search"
	EndpointDetails    = "details"
	EndpointPhoto      = "photo"
)

// DiningType is the includedType filter applied to text searches.
const DiningType = "restaurant"

const (
	maxSearchResults = 20
	maxPhotoBytes    = 10 << 20
	maxErrorBody     = 512
)

var (
	searchFieldMask = strings.Join([]string{
		"places.id",
		"places.displayName",
		"places.formattedAddress",
		"places.location",
		"places.rating",
		"places.userRatingCount",
		"places.priceLevel",
		"places.businessStatus",
		"places.primaryType",
		"places.types",
	}, ",")

	detailsFieldMask = strings.Join([]string{
		"id",
		"displayName",
		"formattedAddress",
		"location",
		"rating",
		"userRatingCount",
		"priceLevel",
		"businessStatus",
		"primaryType",
		"types",
		"nationalPhoneNumber",
		"websiteUri",
		"regularOpeningHours",
		"photos",
		"reviews",
	}, ",")
)

// UsageRecorder persists one provider call. Implementations must not block
// the caller on failure.
type UsageRecorder interface {
	Record(ctx context.Context, usage *models.APIUsage)
}

// Provider is the subset of the client used by the orchestrators.
type Provider interface {
	Available() bool
	TextSearch(ctx context.Context, query string) ([]Place, error)
	GetDetails(ctx context.Context, placeID string) (*Place, error)
	DownloadPhoto(ctx context.Context, photoName string) ([]byte, error)
}

// Client calls the Places API.
type Client struct {
	httpClient *http.Client
	cfg        config.PlacesConfig
	usage      UsageRecorder
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewClient creates a Places client. usage and m may be nil.
func NewClient(cfg config.PlacesConfig, usage UsageRecorder, m *metrics.Metrics, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		usage:      usage,
		metrics:    m,
		logger:     logger.Named("places"),
	}
}

// HTTPClient exposes the underlying client so tests can attach transports.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Available reports whether a usable API key is configured.
func (c *Client) Available() bool {
	return c.cfg.IsAvailable()
}

type textSearchRequest struct {
	TextQuery      string       `json:"textQuery"`
	IncludedType   string       `json:"includedType,omitempty"`
	MaxResultCount int          `json:"maxResultCount,omitempty"`
	LocationBias   locationBias `json:"locationBias"`
}

type locationBias struct {
	Circle circle `json:"circle"`
}

type circle struct {
	Center latLng  `json:"center"`
	Radius float64 `json:"radius"`
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TextSearch finds dining establishments matching query near the configured center.
func (c *Client) TextSearch(ctx context.Context, query string) ([]Place, error) {
	if !c.Available() {
		return nil, apperrors.ErrProviderUnavailable
	}

	payload, err := json.Marshal(textSearchRequest{
		TextQuery:      query,
		IncludedType:   DiningType,
		MaxResultCount: maxSearchResults,
		LocationBias: locationBias{Circle: circle{
			Center: latLng{Latitude: c.cfg.CenterLat, Longitude: c.cfg.CenterLng},
			Radius: c.cfg.RadiusMeters,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	body, err := c.call(ctx, EndpointTextSearch, map[string]any{"query": query}, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/places:searchText", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Goog-FieldMask", searchFieldMask)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Places []wirePlace `json:"places"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse search response: %v", apperrors.ErrProviderFailed, err)
	}

	out := make([]Place, 0, len(resp.Places))
	for i := range resp.Places {
		out = append(out, resp.Places[i].toPlace())
	}
	return out, nil
}

// maxPlaceIDLength bounds place ids accepted from callers.
const maxPlaceIDLength = 256

// ValidPlaceID reports whether id is non-empty and made only of the
// characters the provider uses in place ids: letters, digits, '-' and '_'.
func ValidPlaceID(id string) bool {
	if id == "" || len(id) > maxPlaceIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// GetDetails fetches full details for one place.
func (c *Client) GetDetails(ctx context.Context, placeID string) (*Place, error) {
	if !ValidPlaceID(placeID) {
		return nil, fmt.Errorf("%w: place_id contains unsupported characters", apperrors.ErrInvalidInput)
	}
	if !c.Available() {
		return nil, apperrors.ErrProviderUnavailable
	}

	body, err := c.call(ctx, EndpointDetails, map[string]any{"place_id": placeID}, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/places/"+url.PathEscape(placeID), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Goog-FieldMask", detailsFieldMask)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var wp wirePlace
	if err := json.Unmarshal(body, &wp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse details response: %v", apperrors.ErrProviderFailed, err)
	}
	p := wp.toPlace()
	return &p, nil
}

// DownloadPhoto fetches the media bytes for a photo resource name
// ("places/<id>/photos/<ref>").
func (c *Client) DownloadPhoto(ctx context.Context, photoName string) ([]byte, error) {
	if !c.Available() {
		return nil, apperrors.ErrProviderUnavailable
	}

	params := map[string]any{"photo": photoName, "max_width": c.cfg.PhotoMaxWidth}
	return c.call(ctx, EndpointPhoto, params, func(ctx context.Context) (*http.Request, error) {
		endpoint := c.cfg.BaseURL + "/" + photoName + "/media?maxWidthPx=" + strconv.Itoa(c.cfg.PhotoMaxWidth)
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
}

// call executes one provider request detached from the caller's
// cancellation and records its usage.
func (c *Client) call(ctx context.Context, endpoint string, params map[string]any, build func(context.Context) (*http.Request, error)) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeout)
	defer cancel()

	req, err := build(callCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Goog-Api-Key", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	status, body, err := c.do(req)
	elapsed := time.Since(start)

	c.metrics.RecordProviderCall(ServiceName, endpoint, elapsed, err)
	if c.usage != nil {
		c.usage.Record(context.WithoutCancel(ctx), &models.APIUsage{
			Service:   ServiceName,
			Endpoint:  endpoint,
			Params:    params,
			Status:    status,
			Success:   err == nil,
			LatencyMs: elapsed.Milliseconds(),
		})
	}

	if err != nil {
		c.logger.Warn("Places call failed",
			zap.String("endpoint", endpoint),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}

	c.logger.Debug("Places call succeeded",
		zap.String("endpoint", endpoint),
		zap.Duration("latency", elapsed))
	return body, nil
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", apperrors.ErrProviderFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: failed to read response: %v", apperrors.ErrProviderFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil, fmt.Errorf("%w: places returned status %d: %s",
			apperrors.ErrProviderFailed, resp.StatusCode, logging.TruncateString(string(body), maxErrorBody))
	}
	return resp.StatusCode, body, nil
}

// IsTransient reports whether err is worth retrying (timeouts and 5xx).
func IsTransient(err error) bool {
	if err == nil || !errors.Is(err, apperrors.ErrProviderFailed) {
		return false
	}
	msg := err.Error()
	for _, s := range []string{"status 500", "status 502", "status 503", "status 504", "timeout", "deadline exceeded", "connection reset"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

var _ Provider = (*Client)(nil)
