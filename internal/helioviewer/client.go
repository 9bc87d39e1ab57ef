// Package helioviewer is a client for the Helioviewer image archive API.
package helioviewer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/helio/sungo/internal/metadata"
	"github.com/helio/sungo/internal/metrics"
)

// DefaultAPIURL is the public Helioviewer API endpoint.
const DefaultAPIURL = "https://api.helioviewer.org/"

const (
	// maxQuerySteps bounds the number of closest-image requests one range
	// query may issue.
	maxQuerySteps = 4096
	// queryConcurrency bounds in-flight closest-image requests.
	queryConcurrency = 8
	// maxResponseBytes bounds a JSON or XML response body.
	maxResponseBytes = 4 << 20
)

// Client performs Helioviewer API requests.
type Client struct {
	apiURL     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client for apiURL, or DefaultAPIURL when empty.
func NewClient(apiURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// APIURL returns the configured endpoint.
func (c *Client) APIURL() string {
	return c.apiURL
}

func (c *Client) actionURL(action string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("action", action)
	return c.apiURL + "?" + params.Encode()
}

// get performs a GET and returns the body. Failures are *FetchError.
func (c *Client) get(ctx context.Context, action, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{URL: target, Err: fmt.Errorf("creating request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.IncFetchErrors(action)
		return nil, &FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.IncFetchErrors(action)
		return nil, &FetchError{URL: target, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.IncFetchErrors(action)
		return nil, &FetchError{URL: target, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response body: %w", err)}
	}
	return body, nil
}

// ClosestImage returns the archived image of source nearest to date.
func (c *Client) ClosestImage(ctx context.Context, source int, date time.Time) (Image, error) {
	target := c.actionURL("getClosestImage", url.Values{
		"sourceId": {strconv.Itoa(source)},
		"date":     {date.UTC().Format("2006-01-02T15:04:05.000Z")},
	})
	body, err := c.get(ctx, "getClosestImage", target)
	if err != nil {
		return Image{}, err
	}

	var r closestImageResponse
	if err := json.Unmarshal(body, &r); err != nil {
		metrics.IncFetchErrors("getClosestImage")
		return Image{}, &FetchError{URL: target, StatusCode: http.StatusOK, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if r.Error != "" {
		metrics.IncFetchErrors("getClosestImage")
		return Image{}, &FetchError{URL: target, StatusCode: http.StatusOK, Err: fmt.Errorf("api error: %s", r.Error)}
	}
	ts, err := metadata.ParseDate(r.Date)
	if err != nil {
		metrics.IncFetchErrors("getClosestImage")
		return Image{}, &FetchError{URL: target, StatusCode: http.StatusOK, Err: fmt.Errorf("image date: %w", err)}
	}

	return Image{
		ID:        int64(r.ID),
		Timestamp: ts,
		Info: ImageInfo{
			Width:         r.Width,
			Height:        r.Height,
			SolarCenterX:  r.RefPixelX,
			SolarCenterY:  r.RefPixelY,
			OffsetX:       r.OffsetX,
			OffsetY:       r.OffsetY,
			SolarRotation: r.Rotation,
			SolarRadius:   r.Rsun,
		},
	}, nil
}

// QueryImages returns the closest image for each step of cadence from start
// to end inclusive, in step order. A non-positive cadence queries start only.
// Consecutive steps may resolve to the same image.
func (c *Client) QueryImages(ctx context.Context, source int, start, end time.Time, cadence time.Duration) ([]Image, error) {
	var steps []time.Time
	for t := start; !t.After(end); t = t.Add(cadence) {
		steps = append(steps, t)
		if cadence <= 0 {
			break
		}
		if len(steps) > maxQuerySteps {
			return nil, fmt.Errorf("helioviewer: range %s..%s at %s exceeds %d steps",
				start.Format(time.RFC3339), end.Format(time.RFC3339), cadence, maxQuerySteps)
		}
	}

	images := make([]Image, len(steps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(queryConcurrency)
	for i, t := range steps {
		g.Go(func() error {
			img, err := c.ClosestImage(gctx, source, t)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.logger.Debug("images queried",
		"source_id", source,
		"steps", len(steps),
	)
	return images, nil
}

// FetchHeader downloads and parses the JP2 XML header of image id. A non-zero
// override replaces the header's observation date.
func (c *Client) FetchHeader(ctx context.Context, id int64, override time.Time) (metadata.Header, error) {
	target := c.actionURL("getJP2Header", url.Values{
		"id": {strconv.FormatInt(id, 10)},
	})
	body, err := c.get(ctx, "getJP2Header", target)
	if err != nil {
		return metadata.Header{}, err
	}
	h, err := metadata.ParseXMLHeader(bytes.NewReader(body))
	if err != nil {
		metrics.IncFetchErrors("getJP2Header")
		return metadata.Header{}, &FetchError{URL: target, StatusCode: http.StatusOK, Err: err}
	}
	if !override.IsZero() {
		h = h.WithDate(override)
	}
	return h, nil
}

// ImageURL returns the download URL of image id at the given scale.
func (c *Client) ImageURL(id int64, scale float64, format string) string {
	return c.actionURL("downloadImage", url.Values{
		"id":    {strconv.FormatInt(id, 10)},
		"scale": {strconv.FormatFloat(scale, 'f', -1, 64)},
		"type":  {format},
	})
}
