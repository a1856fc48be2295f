package crawler

import (
	"net"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// nonTextExtensions are resource types the crawler never follows:
// binary formats go to the file-extraction path, not the link queue.
var nonTextExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".svg": {}, ".webp": {}, ".ico": {},
	".zip": {}, ".tar": {}, ".gz": {}, ".bz2": {}, ".rar": {}, ".7z": {},
	".mp3": {}, ".mp4": {}, ".avi": {}, ".mov": {}, ".mkv": {}, ".webm": {}, ".wav": {},
	".pdf": {}, ".doc": {}, ".docx": {}, ".ppt": {}, ".pptx": {}, ".xls": {}, ".xlsx": {},
	".exe": {}, ".dmg": {}, ".iso": {}, ".apk": {},
	".css": {}, ".js": {}, ".json": {}, ".xml": {}, ".rss": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
}

// admit decides whether a discovered link enters the worklist:
// http(s) scheme, same registrable domain as the seed, a crawlable
// extension, and no excluded path pattern.
func (c *Crawler) admit(link *url.URL, seedDomain string) bool {
	if link.Scheme != "http" && link.Scheme != "https" {
		return false
	}
	if link.Host == "" {
		return false
	}
	if registrableDomain(link.Host) != seedDomain {
		return false
	}

	ext := strings.ToLower(path.Ext(link.Path))
	if _, blocked := nonTextExtensions[ext]; blocked {
		return false
	}

	lowerPath := strings.ToLower(link.Path)
	for _, pattern := range c.config.ExcludedPatterns {
		if pattern != "" && strings.Contains(lowerPath, strings.ToLower(pattern)) {
			return false
		}
	}
	return true
}

// registrableDomain reduces a host to its eTLD+1 so links on any
// subdomain of the seed's site are admitted. Hosts without a public
// suffix (localhost, IPs) fall back to the bare host.
func registrableDomain(host string) string {
	host = strings.ToLower(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// normalizeURL is the visited-set key: lowercased scheme and host,
// fragment stripped, trailing slash trimmed.
func normalizeURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	p := strings.TrimSuffix(u.EscapedPath(), "/")

	normalized := scheme + "://" + host + p
	if u.RawQuery != "" {
		normalized += "?" + u.RawQuery
	}
	return normalized
}
