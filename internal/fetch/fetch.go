package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-cleanhttp"
)

// Upper bound on a fetched body. Installer scripts are a few hundred KiB.
const maxBodySize = 64 << 20

// HTTPS client for build inputs.
type Client struct {
	http    *http.Client
	timeout time.Duration // Per-fetch timeout. Zero disables it.
}

// Options for [New].
type Options struct {
	Timeout   time.Duration // Per-fetch timeout. Zero disables it.
	TLS       *tls.Config   // Base TLS configuration. MinVersion is raised to TLS 1.2 when lower.
	UserAgent string
}

// Creates a client with a TLS 1.2 floor.
//
// The transport comes from go-cleanhttp so no global state is shared with
// other HTTP users in the process.
func New(opts Options) *Client {
	transport := cleanhttp.DefaultPooledTransport()

	cfg := &tls.Config{}
	if opts.TLS != nil {
		cfg = opts.TLS.Clone()
	}
	if cfg.MinVersion < tls.VersionTLS12 {
		cfg.MinVersion = tls.VersionTLS12
	}
	transport.TLSClientConfig = cfg

	client := &http.Client{
		Transport: &userAgent{next: transport, value: opts.UserAgent},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if req.URL.Scheme != "https" {
				return fmt.Errorf("%w: redirect to %s", ErrInsecureURL, req.URL.Redacted())
			}
			if len(via) >= 10 {
				return fmt.Errorf("stopped after %d redirects", len(via))
			}
			return nil
		},
	}

	return &Client{http: client, timeout: opts.Timeout}
}

// Downloads the resource at rawURL into w and returns the number of bytes
// written.
//
// Only https URLs are accepted. Any non-2xx status is an error.
func (c *Client) Fetch(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	u, err := CheckURL(rawURL)
	if err != nil {
		return 0, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrFetch, u.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: %s: unexpected status %s", ErrFetch, u.Redacted(), resp.Status)
	}

	n, err := io.Copy(w, io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return n, fmt.Errorf("%w: %s: %w", ErrFetch, u.Redacted(), err)
	}
	if n > maxBodySize {
		return n, fmt.Errorf("%w: %s: body exceeds %s", ErrFetch, u.Redacted(), humanize.IBytes(maxBodySize))
	}

	slog.Debug("fetched", "url", u.Redacted(), "size", humanize.IBytes(uint64(n)))
	return n, nil
}

// Parses rawURL and rejects anything but an absolute https URL.
func CheckURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q (https required)", ErrInsecureURL, rawURL)
	}
	return u, nil
}

// Sets the User-Agent header on outgoing requests.
type userAgent struct {
	next  http.RoundTripper
	value string
}

func (t *userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.value == "" {
		return t.next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.value)
	return t.next.RoundTrip(req)
}
