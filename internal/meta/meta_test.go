package meta

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashdock/dashdock/internal/domain"
)

func TestParseCatalog(t *testing.T) {
	data := []byte(`[
		{"name": "go", "title": "Go", "icon": "go", "version": "1.22"},
		{"name": "python", "title": "Python 2"},
		{"name": "python", "title": "Python 3"}
	]`)

	catalog, err := ParseCatalog(data)
	require.NoError(t, err)

	assert.Len(t, catalog, 2)
	assert.Equal(t, "Go", catalog["go"].Title)
	assert.Equal(t, "1.22", catalog["go"].Version)
	assert.Equal(t, domain.SourceCatalog, catalog["go"].Source)

	// Repeated name is last-wins.
	assert.Equal(t, "Python 3", catalog["python"].Title)
}

func TestParseCatalogEntryMissingFields(t *testing.T) {
	_, err := ParseCatalogEntry([]byte(`{"title": "Go"}`))
	assert.Error(t, err)

	_, err = ParseCatalogEntry([]byte(`{"name": "go"}`))
	assert.Error(t, err)

	_, err = ParseCatalogEntry([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseCatalogCorrupt(t *testing.T) {
	_, err := ParseCatalog([]byte(`{"not": "an array"}`))
	assert.Error(t, err)
}

func TestParseFeedXML(t *testing.T) {
	data := []byte(`<entry>
		<version>5.1</version>
		<url>http://london.kapeli.com/feeds/Go.tgz</url>
		<url>http://tokyo.kapeli.com/feeds/Go.tgz</url>
	</entry>`)

	m, err := ParseFeed("http://kapeli.com/feeds/Go.xml", data)
	require.NoError(t, err)

	assert.Equal(t, "Go", m.Name)
	assert.Equal(t, "5.1", m.Version)
	assert.Len(t, m.URLs, 2)
	assert.Equal(t, domain.SourceFeed, m.Source)
	assert.Equal(t, "http://kapeli.com/feeds/Go.xml", m.FeedURL)
}

func TestParseFeedJSON(t *testing.T) {
	data := []byte(`{"name": "go", "version": "", "url": "http://x/go.tgz"}`)

	m, err := ParseFeed("http://x/feed.json", data)
	require.NoError(t, err)

	assert.Equal(t, "go", m.Name)
	assert.Empty(t, m.Version)
	assert.Equal(t, []string{"http://x/go.tgz"}, m.URLs)
}

func TestParseFeedWithoutURLs(t *testing.T) {
	_, err := ParseFeed("http://x/feed.xml", []byte(`<entry><version>1</version></entry>`))
	assert.ErrorIs(t, err, domain.ErrInvalidFeed)
}

func TestParseFeedGarbage(t *testing.T) {
	_, err := ParseFeed("http://x/feed", []byte(`%%%`))
	assert.Error(t, err)
}

func TestIsNewerThan(t *testing.T) {
	withVersion := func(v string) domain.DocsetMetadata {
		return domain.DocsetMetadata{Name: "go", Version: v}
	}

	// Empty version always forces a redownload.
	assert.True(t, withVersion("").IsNewerThan(withVersion("2")))
	assert.True(t, withVersion("").IsNewerThan(withVersion("")))

	assert.False(t, withVersion("2").IsNewerThan(withVersion("2")))
	assert.True(t, withVersion("2").IsNewerThan(withVersion("1")))
}

func TestNormalizeFeedURL(t *testing.T) {
	got, err := NormalizeFeedURL("dash-feed://http%3A%2F%2Fkapeli.com%2Ffeeds%2FGo.xml")
	require.NoError(t, err)
	assert.Equal(t, "http://kapeli.com/feeds/Go.xml", got)

	got, err = NormalizeFeedURL("http://kapeli.com/feeds/Go.xml")
	require.NoError(t, err)
	assert.Equal(t, "http://kapeli.com/feeds/Go.xml", got)
}

func TestSideFileRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/docsets/go.docset", 0755))

	in := domain.DocsetMetadata{
		Name:    "go",
		Title:   "Go",
		Version: "1.22",
		FeedURL: "http://x/feed.xml",
		URLs:    []string{"http://x/go.tgz"},
		Source:  domain.SourceFeed,
	}
	require.NoError(t, WriteSideFile(fs, "/docsets/go.docset", in))

	out, err := ReadSideFile(fs, "/docsets/go.docset")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
