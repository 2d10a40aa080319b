// Package fingerprint derives a non-authoritative visitor fingerprint from
// client signals and matches it against known respondents.
//
// A fingerprint recognises a returning browser for deduplication. Collisions
// behind shared NAT or proxies are expected, so it must never be used for
// authorization.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/mssola/useragent"

	"pollster/internal/respondent/models"
	pstrings "pollster/pkg/platform/strings"
)

// minComponents is how many non-empty signals a fingerprint needs.
const minComponents = 2

// Signals are the request attributes a fingerprint is derived from.
type Signals struct {
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
	ClientIP       string
}

// Compute returns the SHA-256 hex digest of the normalised signals, or "" when
// fewer than two signals are present. Components are sorted before hashing, and
// browser versions are reduced to their major version so routine updates keep
// the same fingerprint.
func Compute(s Signals) string {
	var components []string
	if ua := normalizeUserAgent(s.UserAgent); ua != "" {
		components = append(components, "ua="+ua)
	}
	if langs := pstrings.HeaderTokens(s.AcceptLanguage); len(langs) > 0 {
		components = append(components, "lang="+strings.Join(langs, ","))
	}
	if encs := pstrings.HeaderTokens(s.AcceptEncoding); len(encs) > 0 {
		components = append(components, "enc="+strings.Join(encs, ","))
	}
	if ip := strings.TrimSpace(s.ClientIP); ip != "" {
		components = append(components, "ip="+ip)
	}
	if len(components) < minComponents {
		return ""
	}

	slices.Sort(components)
	sum := sha256.Sum256([]byte(strings.Join(components, "|")))
	return hex.EncodeToString(sum[:])
}

func normalizeUserAgent(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return strings.ToLower(raw)
	}
	return strings.ToLower(fmt.Sprintf("%s/%s|%s|%s|mobile=%t",
		name, majorVersion(version), ua.OSInfo().Name, ua.Platform(), ua.Mobile()))
}

func majorVersion(version string) string {
	if dot := strings.IndexByte(version, '.'); dot >= 0 {
		return version[:dot]
	}
	return version
}

// DisplayName summarises a user agent as "<browser> on <os>".
func DisplayName(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "Unknown Device"
	}
	ua := useragent.New(raw)
	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}
	os := ua.OSInfo().Name
	if os == "" {
		os = ua.Platform()
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}

// Describe extracts the browser and device blobs stored on a respondent.
func Describe(raw string) (browser, device models.Blob) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	engine, engineVersion := ua.Engine()
	browser = models.Blob{
		"name":           name,
		"version":        version,
		"major_version":  majorVersion(version),
		"engine":         engine,
		"engine_version": engineVersion,
	}
	osInfo := ua.OSInfo()
	device = models.Blob{
		"type":       DeviceType(raw),
		"os":         osInfo.Name,
		"os_version": osInfo.Version,
		"platform":   ua.Platform(),
		"mobile":     ua.Mobile(),
		"bot":        ua.Bot(),
	}
	return browser, device
}

// DeviceType classifies a user agent as bot, tablet, mobile or desktop.
func DeviceType(raw string) string {
	ua := useragent.New(raw)
	switch {
	case ua.Bot():
		return "bot"
	case ua.Platform() == "iPad" || strings.Contains(strings.ToLower(raw), "tablet"):
		return "tablet"
	case ua.Mobile():
		return "mobile"
	default:
		return "desktop"
	}
}
