package meta

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/dashdock/dashdock/internal/domain"
)

// FeedScheme is the URI prefix Dash uses to hand feed links to docset
// browsers. The remainder is percent-encoded.
const FeedScheme = "dash-feed://"

type catalogEntry struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Icon    string `json:"icon"`
	Version string `json:"version"`
}

// ParseCatalogEntry builds metadata from a single catalog list object.
// Name and title are required.
func ParseCatalogEntry(data []byte) (domain.DocsetMetadata, error) {
	var e catalogEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return domain.DocsetMetadata{}, fmt.Errorf("parse catalog entry: %w", err)
	}
	if e.Name == "" || e.Title == "" {
		return domain.DocsetMetadata{}, fmt.Errorf("parse catalog entry: missing name or title")
	}
	return domain.DocsetMetadata{
		Name:    e.Name,
		Title:   e.Title,
		Icon:    e.Icon,
		Version: e.Version,
		Source:  domain.SourceCatalog,
	}, nil
}

// ParseCatalog decodes the catalog endpoint's JSON array into a name-keyed
// map. A repeated name is last-wins.
func ParseCatalog(data []byte) (map[string]domain.DocsetMetadata, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("corrupted docset list: %w", err)
	}

	out := make(map[string]domain.DocsetMetadata, len(raw))
	for _, r := range raw {
		m, err := ParseCatalogEntry(r)
		if err != nil {
			return nil, err
		}
		out[m.Name] = m
	}
	return out, nil
}

// Dash feeds are tiny XML documents: an <entry> with a <version> and one
// <url> per mirror. Some third-party feeds serve the same fields as JSON.
type xmlFeed struct {
	XMLName xml.Name `xml:"entry"`
	Name    string   `xml:"name"`
	Version string   `xml:"version"`
	URLs    []string `xml:"url"`
}

type jsonFeed struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	URL     string   `json:"url"`
	URLs    []string `json:"urls"`
}

// ParseFeed decodes a feed document fetched from feedURL. The result is
// tagged SourceFeed and remembers feedURL so the docset can be refreshed
// later. A feed without any download URL fails with domain.ErrInvalidFeed.
func ParseFeed(feedURL string, data []byte) (domain.DocsetMetadata, error) {
	m := domain.DocsetMetadata{
		FeedURL: feedURL,
		Source:  domain.SourceFeed,
	}

	var xf xmlFeed
	if err := xml.Unmarshal(data, &xf); err == nil {
		m.Name = xf.Name
		m.Version = strings.TrimSpace(xf.Version)
		for _, u := range xf.URLs {
			if u = strings.TrimSpace(u); u != "" {
				m.URLs = append(m.URLs, u)
			}
		}
	} else {
		var jf jsonFeed
		if jerr := json.Unmarshal(data, &jf); jerr != nil {
			return domain.DocsetMetadata{}, fmt.Errorf("parse feed %s: %w", feedURL, err)
		}
		m.Name = jf.Name
		m.Version = jf.Version
		m.URLs = jf.URLs
		if jf.URL != "" {
			m.URLs = append([]string{jf.URL}, m.URLs...)
		}
	}

	if m.Name == "" {
		m.Name = nameFromURL(feedURL)
	}
	m.Title = m.Name

	if len(m.URLs) == 0 {
		return domain.DocsetMetadata{}, domain.ErrInvalidFeed
	}
	return m, nil
}

// NormalizeFeedURL strips the dash-feed:// prefix and percent-decodes the
// remainder. Plain URLs pass through untouched.
func NormalizeFeedURL(raw string) (string, error) {
	if !strings.HasPrefix(raw, FeedScheme) {
		return raw, nil
	}
	decoded, err := url.QueryUnescape(strings.TrimPrefix(raw, FeedScheme))
	if err != nil {
		return "", fmt.Errorf("decode feed url: %w", err)
	}
	return decoded, nil
}

// nameFromURL derives a docset name from a feed URL, e.g.
// "http://kapeli.com/feeds/Go.xml" -> "Go".
func nameFromURL(rawURL string) string {
	base := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		base = u.Path
	}
	base = path.Base(base)
	return strings.TrimSuffix(base, path.Ext(base))
}
