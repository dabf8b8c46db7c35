package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/blurdetect/internal/faults"
)

// Image is a raw image payload fetched from the photo store.
type Image struct {
	Data        []byte
	ContentType string
}

// Fetcher retrieves original image bytes by their upstream identifier.
type Fetcher interface {
	FetchImage(ctx context.Context, upstreamImageID, userID string) (*Image, error)
}

const defaultFetchTimeout = 30 * time.Second

// HTTPClient fetches images over the photo store's HTTP API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPClient builds a fetcher for the given base URL. A nil client gets a
// default with a 30 second timeout.
func NewHTTPClient(baseURL string, client *http.Client, logger *zap.Logger) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		logger:     logger.Named("upstream_client"),
	}
}

// FetchImage downloads the image bytes for one photo. Failures are classified
// so the caller can translate them to API responses without inspecting HTTP
// details.
func (c *HTTPClient) FetchImage(ctx context.Context, upstreamImageID, userID string) (*Image, error) {
	const op = "upstream.fetch_image"

	endpoint := fmt.Sprintf("%s/photo/%s?user_id=%s",
		c.baseURL, url.PathEscape(upstreamImageID), url.QueryEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, faults.New(faults.KindUpstream, op, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, faults.Errorf(faults.KindNotFound, op, "upstream has no image %s", upstreamImageID)
	case resp.StatusCode == http.StatusForbidden:
		return nil, faults.Errorf(faults.KindAccessExpired, op, "upstream denied access to image %s", upstreamImageID)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, faults.Errorf(faults.KindUpstream, op, "upstream returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(op, err)
	}

	contentType := resp.Header.Get("Content-Type")
	// The photo store answers 200 with a JSON notice instead of 403 when the
	// signed source URL has lapsed.
	if isExpiredNotice(contentType, body) {
		return nil, faults.Errorf(faults.KindAccessExpired, op, "upstream reports the photo URL expired")
	}
	if len(body) == 0 || !strings.HasPrefix(contentType, "image/") {
		return nil, faults.Errorf(faults.KindInvalidContent, op, "upstream returned %q with %d bytes", contentType, len(body))
	}

	c.logger.Debug("fetched image",
		zap.String("upstream_image_id", upstreamImageID),
		zap.String("content_type", contentType),
		zap.Int("bytes", len(body)))
	return &Image{Data: body, ContentType: contentType}, nil
}

func classifyTransportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return faults.New(faults.KindTimeout, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return faults.New(faults.KindTimeout, op, err)
	}
	return faults.New(faults.KindNetworkUnavailable, op, err)
}

func isExpiredNotice(contentType string, body []byte) bool {
	if !strings.HasPrefix(contentType, "application/json") {
		return false
	}
	var notice struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &notice); err != nil {
		return false
	}
	return notice.Status == "expired"
}
