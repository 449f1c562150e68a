package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"market-data-server/src/helpers"
	"market-data-server/src/logger"
	"market-data-server/src/models"
)

// maxBodyBytes caps a single response body
const maxBodyBytes = 64 << 20

type AsyncNetworkManager struct {
	Config  *models.MConfig
	Client  *http.Client
	Logger  *logger.Logger
	Timeout time.Duration
}

// -----------------------------------------------------------------------------

func NewAsyncNetworkManager(cfg *models.MConfig, log *logger.Logger) *AsyncNetworkManager {
	timeout := time.Duration(cfg.Network.RequestTimeout) * time.Second
	return &AsyncNetworkManager{
		Config:  cfg,
		Logger:  log,
		Timeout: timeout,
		Client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: timeout,
		},
	}
}

// -----------------------------------------------------------------------------

// BuildURL appends params to urlStr. Existing query values are kept.
func BuildURL(urlStr string, params map[string]string) (string, error) {
	reqUrl, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}

	q := reqUrl.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	reqUrl.RawQuery = q.Encode()
	return reqUrl.String(), nil
}

// -----------------------------------------------------------------------------

// Get performs one GET request bounded by the configured timeout.
// Failures come back as UpstreamUnavailableError or UpstreamRateLimitedError.
func (nm *AsyncNetworkManager) Get(ctx context.Context, urlStr string, params map[string]string, headers map[string]string) ([]byte, error) {
	endpoint := urlStr
	finalUrl, err := BuildURL(urlStr, params)
	if err != nil {
		return nil, helpers.NewUpstreamUnavailable(endpoint, 0, err)
	}

	if nm.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, nm.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalUrl, nil)
	if err != nil {
		return nil, helpers.NewUpstreamUnavailable(endpoint, 0, err)
	}

	req.Header.Set("User-Agent", nm.Config.Network.UserAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := nm.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timeout after %v: %w", nm.Timeout, err)
		}
		nm.Logger.Debug("Request to %s failed: %v", endpoint, err)
		return nil, helpers.NewUpstreamUnavailable(endpoint, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		nm.Logger.Warning("Request to %s rate limited", endpoint)
		return nil, helpers.NewUpstreamRateLimited(endpoint)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, helpers.NewUpstreamUnavailable(endpoint, resp.StatusCode, fmt.Errorf("%s", snippet))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, helpers.NewUpstreamUnavailable(endpoint, 0, err)
	}

	return body, nil
}
