// Package hostname cleans client-supplied hostnames (option 12) before they
// are recorded on a lease or exported to hook scripts. Clients send control
// characters, emoji, shell metacharacters and placeholder names like
// "localhost" or "android-abc123def"; the pipeline strips, validates,
// deduplicates and rewrites them.
package hostname

import (
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"unicode"
)

// DefaultMaxLength is the DNS label limit.
const DefaultMaxLength = 63

// Config controls the sanitisation pipeline.
type Config struct {
	Enabled          bool     `toml:"enabled"`
	StripEmoji       bool     `toml:"strip_emoji"`
	Lowercase        bool     `toml:"lowercase"`
	Dedup            bool     `toml:"dedup"`
	MaxLength        int      `toml:"max_length"`
	FallbackTemplate string   `toml:"fallback_template"`
	AllowRegex       string   `toml:"allow_regex"`
	DenyPatterns     []string `toml:"deny_patterns"`
}

// TakenFunc reports whether name is in use by a client other than clientKey.
type TakenFunc func(name, clientKey string) bool

// well-known placeholder names that never identify a host
var builtinDeny = compileDeny(
	`^localhost$`,
	`^localhost\.localdomain$`,
	`^android-[a-f0-9]{12,}$`,
	`^galaxy-[a-f0-9]+$`,
	`^iphone$`,
	`^ipad$`,
	`^host$`,
	`^dhcp$`,
	`^unknown$`,
	`^none$`,
	`^null$`,
	`^default$`,
	`^changeme$`,
)

func compileDeny(patterns ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		res = append(res, regexp.MustCompile("(?i)"+p))
	}
	return res
}

// Sanitiser applies the pipeline. A nil *Sanitiser only does the basic
// character cleanup.
type Sanitiser struct {
	cfg    Config
	allow  *regexp.Regexp
	deny   []*regexp.Regexp
	taken  TakenFunc
	logger *slog.Logger
}

// New compiles cfg. taken may be nil, which disables deduplication.
func New(cfg Config, taken TakenFunc, logger *slog.Logger) (*Sanitiser, error) {
	s := &Sanitiser{cfg: cfg, taken: taken, logger: logger}
	if s.cfg.MaxLength <= 0 {
		s.cfg.MaxLength = DefaultMaxLength
	}
	if cfg.AllowRegex != "" {
		re, err := regexp.Compile(cfg.AllowRegex)
		if err != nil {
			return nil, fmt.Errorf("compiling allow_regex %q: %w", cfg.AllowRegex, err)
		}
		s.allow = re
	}
	for _, p := range cfg.DenyPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compiling deny pattern %q: %w", p, err)
		}
		s.deny = append(s.deny, re)
	}
	return s, nil
}

// Sanitise returns the cleaned form of name for the client with the given
// MAC and key. An empty name stays empty; a rejected one is replaced by the
// MAC-derived fallback.
func (s *Sanitiser) Sanitise(name string, mac net.HardwareAddr, clientKey string) string {
	if name == "" {
		return ""
	}
	if s == nil || !s.cfg.Enabled {
		return basicSanitise(name)
	}

	cleaned := stripControlChars(name)
	if s.cfg.StripEmoji {
		cleaned = stripEmoji(cleaned)
	}
	cleaned = stripInvalidDNS(cleaned)
	if s.cfg.Lowercase {
		cleaned = strings.ToLower(cleaned)
	}
	cleaned = collapseRepeated(strings.Trim(cleaned, ".-"))
	if len(cleaned) > s.cfg.MaxLength {
		cleaned = strings.TrimRight(cleaned[:s.cfg.MaxLength], ".-")
	}

	if reason := s.reject(cleaned); reason != "" {
		s.logger.Debug("hostname rejected",
			"original", name,
			"cleaned", cleaned,
			"mac", mac.String(),
			"reason", reason)
		return s.fallback(mac)
	}

	if s.cfg.Dedup && s.taken != nil && s.taken(cleaned, clientKey) {
		cleaned = s.deduplicate(cleaned, mac, clientKey)
	}
	return cleaned
}

// reject returns why cleaned is unusable, or "".
func (s *Sanitiser) reject(cleaned string) string {
	switch {
	case cleaned == "":
		return "empty after cleanup"
	case matchesAny(cleaned, builtinDeny):
		return "placeholder name"
	case matchesAny(cleaned, s.deny):
		return "deny pattern"
	case s.allow != nil && !s.allow.MatchString(cleaned):
		return "allow regex"
	}
	return ""
}

func (s *Sanitiser) fallback(mac net.HardwareAddr) string {
	tmpl := s.cfg.FallbackTemplate
	if tmpl == "" {
		tmpl = "dhcp-{mac}"
	}
	return strings.ReplaceAll(tmpl, "{mac}", strings.ReplaceAll(mac.String(), ":", ""))
}

// deduplicate appends -2, -3, ... until the name is free, truncating the
// base to stay within the length limit.
func (s *Sanitiser) deduplicate(name string, mac net.HardwareAddr, clientKey string) string {
	for i := 2; i <= 99; i++ {
		suffix := fmt.Sprintf("-%d", i)
		base := name
		if len(base)+len(suffix) > s.cfg.MaxLength {
			base = strings.TrimRight(base[:s.cfg.MaxLength-len(suffix)], ".-")
		}
		if candidate := base + suffix; !s.taken(candidate, clientKey) {
			return candidate
		}
	}
	return s.fallback(mac)
}

func matchesAny(name string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// basicSanitise keeps only DNS characters, lowercased.
func basicSanitise(name string) string {
	s := strings.Trim(stripInvalidDNS(name), ".-")
	if len(s) > 253 {
		s = s[:253]
	}
	return strings.ToLower(s)
}

func stripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}

func stripEmoji(s string) string {
	return strings.Map(func(r rune) rune {
		if isEmoji(r) {
			return -1
		}
		return r
	}, s)
}

func isEmoji(r rune) bool {
	if r < 128 {
		return false
	}
	return unicode.Is(unicode.So, r) ||
		unicode.Is(unicode.Sk, r) ||
		(r >= 0x1F300 && r <= 0x1F9FF) ||
		(r >= 0x2600 && r <= 0x27BF) ||
		(r >= 0xFE00 && r <= 0xFE0F) ||
		r == 0x200D
}

// stripInvalidDNS keeps a-z, A-Z, 0-9, hyphen and dot (RFC 952 / RFC 1123).
func stripInvalidDNS(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range []byte(s) {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '.' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// collapseRepeated turns runs of dots or hyphens into one.
func collapseRepeated(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c == '.' || c == '-') && c == prev {
			continue
		}
		b.WriteByte(c)
		prev = c
	}
	return b.String()
}
