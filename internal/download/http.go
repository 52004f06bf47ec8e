package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/rkm/senprep/internal/catalog"
	"github.com/rkm/senprep/internal/config"
)

// HTTPProvider downloads products from the primary archive over HTTP.
// Credentials are passed through from the credentials file unopened by the
// rest of the pipeline.
type HTTPProvider struct {
	baseURL    string
	creds      *config.Credentials
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPProvider creates the primary archive transport. Per-attempt
// timeouts come from the request context, not the client.
func NewHTTPProvider(baseURL string, creds *config.Credentials) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		creds:   creds,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 16,
			},
		},
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the provider.
func (p *HTTPProvider) WithLogger(logger *slog.Logger) *HTTPProvider {
	p.logger = logger
	return p
}

// Name identifies the provider in logs and error messages.
func (p *HTTPProvider) Name() string { return "archive" }

// Fetch streams the product archive to dst.
func (p *HTTPProvider) Fetch(ctx context.Context, ref catalog.ProductRef, dst string) error {
	downloadURL := ref.DownloadURL
	if downloadURL == "" {
		u, err := url.Parse(p.baseURL)
		if err != nil {
			return fmt.Errorf("invalid download base URL: %w", err)
		}
		u.Path += fmt.Sprintf("/Products(%s)/$value", ref.ID)
		downloadURL = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("User-Agent", "senprep/1.0")
	if p.creds != nil {
		req.SetBasicAuth(p.creds.Username, p.creds.Password)
	}

	p.logger.DebugContext(ctx, "downloading product",
		slog.String("product_id", ref.ID),
		slog.String("url", downloadURL),
	)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("archive request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("archive returned status %d: %s", resp.StatusCode, string(body))
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to stream product bytes: %w", err)
	}

	p.logger.DebugContext(ctx, "product downloaded",
		slog.String("product_id", ref.ID),
		slog.Int64("bytes", n),
	)
	return out.Close()
}
