// Package mcpprobe validates MCP server URLs and checks that a configured
// server answers the MCP handshake.
package mcpprobe

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// ErrUnsafeURL matches every rejection from Validator.ValidateServerURL.
var ErrUnsafeURL = errors.New("unsafe MCP server URL")

// urlError is a rejection reason that also matches ErrUnsafeURL.
type urlError string

func (e urlError) Error() string        { return string(e) }
func (e urlError) Is(target error) bool { return target == ErrUnsafeURL }

// Rejection reasons.
var (
	ErrInvalidURL       error = urlError("invalid URL format")
	ErrInvalidScheme    error = urlError("only https server URLs are allowed")
	ErrEmptyHost        error = urlError("URL must have a host")
	ErrCredentialsInURL error = urlError("credentials must not be embedded in the URL; use the auth token")
	ErrLocalhostBlocked error = urlError("local host names are not allowed")
	ErrPrivateIP        error = urlError("private and internal addresses are not allowed")
)

// blockedPrefixes are ranges the netip predicates do not already cover.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"), // carrier-grade NAT
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"), // benchmarking
}

// blockedAddr reports whether a is loopback, private, link-local (which
// includes cloud metadata endpoints) or otherwise not publicly routable.
func blockedAddr(a netip.Addr) bool {
	a = a.Unmap()
	if !a.IsValid() || a.IsUnspecified() || a.IsLoopback() || a.IsPrivate() ||
		a.IsLinkLocalUnicast() || a.IsLinkLocalMulticast() || a.IsMulticast() {
		return true
	}
	for _, p := range blockedPrefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// LookupFunc resolves a host name.
type LookupFunc func(ctx context.Context, host string) ([]netip.Addr, error)

// Validator rejects server URLs that could be used to reach internal
// networks from the API process.
type Validator struct {
	// AllowPrivate admits plain http and private hosts, for local MCP servers.
	AllowPrivate bool
	Lookup       LookupFunc
}

// NewValidator returns a validator backed by the system resolver.
func NewValidator(allowPrivate bool) *Validator {
	return &Validator{
		AllowPrivate: allowPrivate,
		Lookup: func(ctx context.Context, host string) ([]netip.Addr, error) {
			return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		},
	}
}

// ValidateServerURL checks scheme, host and resolved addresses of serverURL.
// Hosts that do not resolve pass; the probe reports them as unreachable.
func (v *Validator) ValidateServerURL(ctx context.Context, serverURL string) error {
	u, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil {
		return ErrInvalidURL
	}
	if u.User != nil {
		return ErrCredentialsInURL
	}
	if u.Scheme != "https" && (u.Scheme != "http" || !v.AllowPrivate) {
		return ErrInvalidScheme
	}

	host := u.Hostname()
	if host == "" {
		return ErrEmptyHost
	}
	if v.AllowPrivate {
		return nil
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if blockedAddr(addr) {
			return ErrPrivateIP
		}
		return nil
	}
	if localName(host) {
		return ErrLocalhostBlocked
	}

	if v.Lookup == nil {
		return nil
	}
	addrs, err := v.Lookup(ctx, host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if blockedAddr(a) {
			return ErrPrivateIP
		}
	}
	return nil
}

func localName(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "localhost" {
		return true
	}
	for _, suffix := range []string{".localhost", ".local", ".internal", ".home.arpa"} {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// ExtractHost returns host[:port] of serverURL for logs and span attributes,
// which must never carry the path or query.
func ExtractHost(serverURL string) string {
	if u, err := url.Parse(serverURL); err == nil {
		return u.Host
	}
	return "(invalid)"
}
