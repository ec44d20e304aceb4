package rates

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// DefaultFeedURL is the National Bank of Ukraine daily exchange feed
const DefaultFeedURL = "https://bank.gov.ua/NBUStatService/v1/statdirectory/exchange"

// Provider returns a fresh rate snapshot
type Provider interface {
	Fetch(ctx context.Context) (*Table, error)
}

// ProviderFunc adapts a function to Provider
type ProviderFunc func(ctx context.Context) (*Table, error)

func (f ProviderFunc) Fetch(ctx context.Context) (*Table, error) { return f(ctx) }

// Config holds feed client configuration
type Config struct {
	URL          string
	BaseCurrency string
	Timeout      time.Duration
	DialTimeout  time.Duration
	UserAgent    string
}

// DefaultConfig returns the default feed client configuration
func DefaultConfig() Config {
	return Config{
		URL:          DefaultFeedURL,
		BaseCurrency: DefaultBaseCurrency,
		Timeout:      10 * time.Second,
		DialTimeout:  5 * time.Second,
		UserAgent:    "fxrate-server/1.0",
	}
}

// HTTPProvider fetches the XML feed over HTTP on every call
type HTTPProvider struct {
	config Config
	client *http.Client
}

// NewHTTPProvider creates a provider with its own transport
func NewHTTPProvider(c Config) *HTTPProvider {
	if c.BaseCurrency == "" {
		c.BaseCurrency = DefaultBaseCurrency
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: c.DialTimeout,
		}).DialContext,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPProvider{
		config: c,
		client: &http.Client{Transport: transport, Timeout: c.Timeout},
	}
}

// Fetch downloads and parses the feed
func (p *HTTPProvider) Fetch(ctx context.Context) (*Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedFetch, err)
	}
	if p.config.UserAgent != "" {
		req.Header.Set("User-Agent", p.config.UserAgent)
	}
	req.Header.Set("Accept", "application/xml, text/xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: unexpected status %s", ErrFeedFetch, resp.Status)
	}

	return BuildFromFeed(p.config.BaseCurrency, resp.Body)
}

// Close releases idle upstream connections
func (p *HTTPProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
