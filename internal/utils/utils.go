package utils

import (
	"crypto/md5"
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL drops the fragment and fills a missing scheme. Unlike a
// crawler-wide canonicaliser it keeps the host and query intact, because two
// article URLs differing only by "www." are still fetched separately by
// their sites' listing pages.
func NormalizeURL(urlStr string) string {
	parsed, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil {
		return urlStr
	}

	parsed.Fragment = ""
	parsed.RawFragment = ""

	if parsed.Scheme == "" && parsed.Host != "" {
		parsed.Scheme = "https"
	}

	return parsed.String()
}

// ResolveURL resolves ref against base and returns an absolute http(s) URL.
func ResolveURL(base, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty reference")
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse reference %q: %w", ref, err)
	}
	abs := b.ResolveReference(r)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", abs.Scheme)
	}
	return abs.String(), nil
}

func Host(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return parsed.Host
}

func ComputeContentHash(content string) string {
	hash := md5.Sum([]byte(content))
	return fmt.Sprintf("%x", hash)
}
