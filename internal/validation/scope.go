package validation

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"
)

// ScopeFile restricts which input URLs are expanded into candidates.
type ScopeFile struct {
	InScope     []ScopeEntry
	OutOfScope  []ScopeEntry
	Description string
}

// ScopeEntry represents a single scope entry (domain, IP range, etc.)
type ScopeEntry struct {
	Value string
	Type  string // "domain", "wildcard", "ip", "ip_range", "url"
}

var domainPattern = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

// LoadScopeFile loads and parses a scope file
func LoadScopeFile(path string) (*ScopeFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scope file: %w", err)
	}
	defer file.Close()

	return ParseScope(file)
}

// ParseScope reads scope entries. Lines under [out-of-scope] exclude; all
// others include. '#' starts a comment.
func ParseScope(r io.Reader) (*ScopeFile, error) {
	scope := &ScopeFile{
		InScope:    []ScopeEntry{},
		OutOfScope: []ScopeEntry{},
	}

	scanner := bufio.NewScanner(r)
	inScopeSection := true

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			if strings.HasPrefix(line, "# Description:") {
				scope.Description = strings.TrimSpace(strings.TrimPrefix(line, "# Description:"))
			}
			continue
		}

		switch strings.ToLower(line) {
		case "[in-scope]", "[inscope]":
			inScopeSection = true
			continue
		case "[out-of-scope]", "[outofscope]":
			inScopeSection = false
			continue
		}

		entry := parseScopeEntry(line)
		if entry == nil {
			continue
		}

		if inScopeSection {
			scope.InScope = append(scope.InScope, *entry)
		} else {
			scope.OutOfScope = append(scope.OutOfScope, *entry)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading scope file: %w", err)
	}

	return scope, nil
}

func parseScopeEntry(line string) *ScopeEntry {
	lower := strings.ToLower(line)

	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return &ScopeEntry{Value: line, Type: "url"}
	}
	if _, _, err := net.ParseCIDR(line); err == nil {
		return &ScopeEntry{Value: line, Type: "ip_range"}
	}
	if net.ParseIP(line) != nil {
		return &ScopeEntry{Value: line, Type: "ip"}
	}
	if strings.HasPrefix(line, "*.") && domainPattern.MatchString(strings.TrimPrefix(line, "*.")) {
		return &ScopeEntry{Value: line, Type: "wildcard"}
	}
	if domainPattern.MatchString(line) {
		return &ScopeEntry{Value: line, Type: "domain"}
	}
	return nil
}

// IsInScope checks a fully qualified URL. Out-of-scope entries win.
func (sf *ScopeFile) IsInScope(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if sf.matchesAny(parsed, sf.OutOfScope) {
		return false
	}
	return sf.matchesAny(parsed, sf.InScope)
}

// Filter keeps the in-scope URLs, preserving order.
func (sf *ScopeFile) Filter(urls []string) (kept []string, dropped int) {
	for _, u := range urls {
		if sf.IsInScope(u) {
			kept = append(kept, u)
		} else {
			dropped++
		}
	}
	return kept, dropped
}

func (sf *ScopeFile) matchesAny(target *url.URL, entries []ScopeEntry) bool {
	for _, entry := range entries {
		if matchesScopeEntry(target, entry) {
			return true
		}
	}
	return false
}

func matchesScopeEntry(target *url.URL, entry ScopeEntry) bool {
	host := strings.ToLower(target.Hostname())
	value := strings.ToLower(entry.Value)

	switch entry.Type {
	case "domain":
		return host == value || strings.HasSuffix(host, "."+value)

	case "wildcard":
		return strings.HasSuffix(host, strings.TrimPrefix(value, "*"))

	case "ip":
		return host == value

	case "ip_range":
		ip := net.ParseIP(host)
		if ip == nil {
			return false
		}
		_, ipNet, err := net.ParseCIDR(entry.Value)
		if err != nil {
			return false
		}
		return ipNet.Contains(ip)

	case "url":
		return strings.HasPrefix(strings.ToLower(target.String()), value)
	}

	return false
}
