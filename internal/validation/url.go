package validation

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// NormalizeOptions tunes NormalizeURL.
type NormalizeOptions struct {
	// ForceHTTPS rewrites http:// inputs to https://.
	ForceHTTPS bool
}

// URLValidationResult contains the result of normalizing one input line.
type URLValidationResult struct {
	Input         string
	NormalizedURL string
	Warnings      []string
	Error         error
}

// Valid reports whether the input produced a usable URL.
func (r *URLValidationResult) Valid() bool { return r.Error == nil }

// NormalizeURL turns a raw input line into a fully qualified URL. A missing
// scheme becomes https, and a bare domain root such as https://example.com
// gains a trailing slash.
func NormalizeURL(raw string, opts NormalizeOptions) *URLValidationResult {
	result := &URLValidationResult{Input: raw}

	target := strings.TrimSpace(raw)
	if target == "" {
		result.Error = fmt.Errorf("url cannot be empty")
		return result
	}

	lower := strings.ToLower(target)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		if strings.Contains(target, "://") {
			result.Error = fmt.Errorf("unsupported scheme in %q", target)
			return result
		}
		target = "https://" + target
	}

	parsed, err := url.Parse(target)
	if err != nil {
		result.Error = fmt.Errorf("invalid URL format: %w", err)
		return result
	}
	if parsed.Host == "" {
		result.Error = fmt.Errorf("url %q has no host", raw)
		return result
	}

	if opts.ForceHTTPS && parsed.Scheme == "http" {
		parsed.Scheme = "https"
	}

	if parsed.Path == "" && parsed.RawQuery == "" && parsed.Fragment == "" && isBareDomain(parsed.Host) {
		parsed.Path = "/"
	}

	if isPrivateHost(parsed.Hostname()) {
		result.Warnings = append(result.Warnings, "URL points to a private or loopback address")
	}

	result.NormalizedURL = parsed.String()
	return result
}

// NormalizeAll normalizes every input and removes duplicates, keeping the
// first occurrence. Invalid inputs are returned separately.
func NormalizeAll(inputs []string, opts NormalizeOptions) (valid []string, invalid []*URLValidationResult) {
	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		if strings.TrimSpace(in) == "" {
			continue
		}
		res := NormalizeURL(in, opts)
		if !res.Valid() {
			invalid = append(invalid, res)
			continue
		}
		if _, dup := seen[res.NormalizedURL]; dup {
			continue
		}
		seen[res.NormalizedURL] = struct{}{}
		valid = append(valid, res.NormalizedURL)
	}
	return valid, invalid
}

// isBareDomain reports whether host, without a port, is a name with a known
// public suffix.
func isBareDomain(host string) bool {
	if strings.Contains(host, ":") {
		return false
	}
	if net.ParseIP(host) != nil {
		return false
	}
	_, err := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(host))
	return err == nil
}

// RegistrableDomain returns the eTLD+1 of the URL's host, or the host itself
// when it has none.
func RegistrableDomain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	if domain, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return domain
	}
	return host
}

// isPrivateHost checks if a hostname/IP is private
func isPrivateHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}

var staticExtensions = []string{
	".m4v", ".json", ".js", ".fnt", ".ogg", ".css", ".jpg", ".jpeg",
	".png", ".svg", ".img", ".gif", ".exe", ".mp4", ".flv",
	".pdf", ".doc", ".ogv", ".webm", ".wmv", ".webp", ".mov",
	".mp3", ".m4a", ".m4p", ".ppt", ".pptx", ".scss", ".tif",
	".tiff", ".ttf", ".otf", ".woff", ".woff2", ".bmp", ".ico",
	".eot", ".htc", ".swf", ".rtf", ".image", ".rf", ".txt",
	".xml", ".zip", ".msi", ".tar", ".gz", ".rar",
}

// IsStaticAsset reports whether the URL path ends in a static file extension.
// Such URLs rarely reflect parameters.
func IsStaticAsset(rawURL string) bool {
	path := rawURL
	if parsed, err := url.Parse(rawURL); err == nil {
		path = parsed.Path
	}
	path = strings.ToLower(strings.TrimSpace(path))
	for _, ext := range staticExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// FilterStaticAssets drops static asset URLs, preserving order.
func FilterStaticAssets(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if !IsStaticAsset(u) {
			out = append(out, u)
		}
	}
	return out
}
