package geo_client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mcdev12/globalquiz/go/clients"
)

// ErrLookupFailed is returned when an address cannot be resolved to a country
var ErrLookupFailed = errors.New("geo lookup failed")

// LookupResponse is the subset of the ip-api.com response we use
type LookupResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	CountryCode string `json:"countryCode"`
}

// IPAPIClient resolves IP addresses to ISO country codes through ip-api.com
type IPAPIClient struct {
	*clients.BaseClient
}

func NewIPAPIClient(baseURL string, timeout time.Duration) *IPAPIClient {
	if baseURL == "" {
		baseURL = BaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	client := &IPAPIClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}
	client.SetHeader(JsonHeader, JsonContentType)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	return client
}

// ResolveCountry returns the two-letter country code for ip
func (c *IPAPIClient) ResolveCountry(ctx context.Context, ip string) (string, error) {
	ip = NormalizeIP(ip)
	if ip == "" {
		return "", fmt.Errorf("%w: empty address", ErrLookupFailed)
	}

	body, err := c.Get(ctx, url.PathEscape(ip)+"?"+fieldsParam)
	if err != nil {
		var statusErr *clients.StatusError
		if errors.As(err, &statusErr) && statusErr.RateLimited() {
			return "", fmt.Errorf("%w: rate limited", ErrLookupFailed)
		}
		return "", fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	var response LookupResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("%w: failed to unmarshal response: %v", ErrLookupFailed, err)
	}

	if response.Status != statusSuccess || response.CountryCode == "" {
		return "", fmt.Errorf("%w: %s (%s)", ErrLookupFailed, response.Status, response.Message)
	}

	return response.CountryCode, nil
}

// NormalizeIP strips the IPv4-mapped IPv6 prefix and any surrounding whitespace
func NormalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	return strings.TrimPrefix(ip, "::ffff:")
}
