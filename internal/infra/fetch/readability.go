package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/bryanwahyu/adguardian/internal/middleware"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultMaxBytes = 5 << 20
	userAgent       = "Mozilla/5.0 (compatible; adguardian/1.0)"
)

var (
	ErrBlockedAddress = errors.New("address not allowed")
	ErrEmptyArticle   = errors.New("no readable text on page")
)

// Fetcher extracts the readable article text of a page.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	// Validate screens urls before any request; middleware.ValidateURL by default.
	Validate func(string) error
}

type Options struct {
	Timeout  time.Duration
	MaxBytes int64
	// AllowPrivate disables the resolved-address check. Tests only.
	AllowPrivate bool
}

func New(o Options) *Fetcher {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	if !o.AllowPrivate {
		// hostnames resolving to private ranges are rejected at dial time
		dialer.Control = func(_, address string, _ syscall.RawConn) error {
			if !middleware.PublicAddr(address) {
				return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
			}
			return nil
		}
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext

	f := &Fetcher{
		client:   &http.Client{Timeout: o.Timeout, Transport: transport},
		maxBytes: o.MaxBytes,
		Validate: middleware.ValidateURL,
	}
	if o.AllowPrivate {
		f.Validate = func(string) error { return nil }
	}
	return f
}

// Fetch implements audit.PageFetcher.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := f.Validate(rawURL); err != nil {
		return "", err
	}
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL.Host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", pageURL.Host, resp.StatusCode)
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, f.maxBytes), pageURL)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", pageURL.Host, err)
	}
	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", ErrEmptyArticle
	}
	if title := strings.TrimSpace(article.Title); title != "" && !strings.HasPrefix(text, title) {
		text = title + "\n" + text
	}
	return text, nil
}
