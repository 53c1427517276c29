package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/lehigh-university-libraries/alttext/internal/models"
)

var (
	// ErrTooLarge is returned when a remote image exceeds the size limit
	ErrTooLarge = errors.New("image too large")

	// ErrBlockedAddress is returned when a URL resolves to an address the
	// fetcher may not connect to
	ErrBlockedAddress = errors.New("blocked network address")
)

// FetcherOptions configures a Fetcher
type FetcherOptions struct {
	MaxBytes int64

	// AllowPrivateNetworks permits loopback, private, link-local and
	// unspecified destinations. Only the CLI sets it.
	AllowPrivateNetworks bool
}

// Fetcher retrieves images from remote URLs
type Fetcher struct {
	HTTPClient *http.Client
	MaxBytes   int64
}

// NewFetcher creates a new image fetcher. Unless opts.AllowPrivateNetworks
// is set, every connection, redirects included, is checked after name
// resolution and refused for non public addresses.
func NewFetcher(opts FetcherOptions) *Fetcher {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !opts.AllowPrivateNetworks {
		dialer.Control = publicOnly
		// A proxy would be dialed instead of the target
		transport.Proxy = nil
	}
	transport.DialContext = dialer.DialContext

	return &Fetcher{
		HTTPClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		MaxBytes: opts.MaxBytes,
	}
}

// sharedAddressSpace is the carrier grade NAT range, RFC 6598
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// publicOnly is a net.Dialer Control hook. address is the resolved ip:port.
func publicOnly(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	if !IsPublicAddr(addr) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, addr)
	}
	return nil
}

// IsPublicAddr reports whether addr is a globally routable unicast address.
func IsPublicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	switch {
	case !addr.IsValid(),
		addr.IsUnspecified(),
		addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsInterfaceLocalMulticast(),
		addr.IsMulticast(),
		sharedAddressSpace.Contains(addr):
		return false
	}
	return true
}

// IsURL reports whether s is an http or https URL
func IsURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Fetch downloads rawURL. The upload is named after the last path segment,
// or the host when the path is empty.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (models.UploadedImage, error) {
	if !IsURL(rawURL) {
		return models.UploadedImage{}, fmt.Errorf("not an http(s) URL: %s", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return models.UploadedImage{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return models.UploadedImage{}, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.UploadedImage{}, fmt.Errorf("image URL returned status %d", resp.StatusCode)
	}

	reader := io.Reader(resp.Body)
	if f.MaxBytes > 0 {
		reader = io.LimitReader(resp.Body, f.MaxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return models.UploadedImage{}, fmt.Errorf("failed to read image data: %w", err)
	}
	if f.MaxBytes > 0 && int64(len(data)) > f.MaxBytes {
		return models.UploadedImage{}, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, rawURL, f.MaxBytes)
	}

	slog.Debug("Fetched remote image", "url", rawURL, "size", len(data), "content_type", resp.Header.Get("Content-Type"))

	return models.UploadedImage{Name: nameFromURL(rawURL), Data: data}, nil
}

func nameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	name := path.Base(strings.TrimSuffix(u.Path, "/"))
	if name == "." || name == "/" || name == "" {
		return u.Host
	}
	return name
}
