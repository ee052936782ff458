package domain

import "time"

// Source tags where a docset's metadata came from.
type Source string

const (
	SourceCatalog Source = "catalog"
	SourceFeed    Source = "feed"
)

// DocsetMetadata describes one docset as advertised by the catalog or a feed.
// Name is the join key across the whole pipeline: catalog entries, feed
// entries, registry rows and pending installs all meet on it.
type DocsetMetadata struct {
	Name    string   `json:"name"`
	Title   string   `json:"title"`
	Icon    string   `json:"icon,omitempty"`
	Version string   `json:"version,omitempty"`
	FeedURL string   `json:"feed_url,omitempty"`
	URLs    []string `json:"urls,omitempty"`
	Source  Source   `json:"source"`
}

// IsNewerThan reports whether m should replace other. Versions are opaque
// strings compared for identity only. An empty version always wins, so feeds
// that omit versioning force a redownload.
func (m DocsetMetadata) IsNewerThan(other DocsetMetadata) bool {
	if m.Version == "" {
		return true
	}
	return m.Version != other.Version
}

// State of a single docset acquisition attempt.
type State string

const (
	StateIdle         State = "Idle"
	StateFetchingFeed State = "FetchingFeed"
	StateDownloading  State = "Downloading"
	StateExtracting   State = "Extracting"
	StateInstalled    State = "Installed"
	StateError        State = "Error"
	StateCancelled    State = "Cancelled"
)

// IsActive reports whether the docset has in-flight work.
func (s State) IsActive() bool {
	return s == StateFetchingFeed || s == StateDownloading || s == StateExtracting
}

// IsTerminal reports whether the attempt has finished, one way or another.
func (s State) IsTerminal() bool {
	return s == StateInstalled || s == StateError || s == StateCancelled
}

// PendingInstall tracks a downloaded archive between transfer completion and
// the extractor's terminal event. At most one exists per docset name.
type PendingInstall struct {
	DocsetName  string
	ArchivePath string
	TargetPath  string
}

// InstalledDocset is one row of the installed-docset registry. Meta is nil
// when the docset directory carries no meta.json side file.
type InstalledDocset struct {
	Name        string
	Title       string
	Path        string
	Meta        *DocsetMetadata
	InstalledAt time.Time
}
