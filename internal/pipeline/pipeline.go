package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/dashdock/dashdock/internal/domain"
	"github.com/dashdock/dashdock/internal/meta"
	"github.com/dashdock/dashdock/internal/mirror"
	"github.com/dashdock/dashdock/internal/registry"
	"github.com/dashdock/dashdock/internal/transfer"
)

// Pipeline drives docset acquisition: catalog fetch, feed resolution,
// archive download, extraction handoff and installation. All state lives
// behind one mutex; transfer and extraction callbacks serialize through it,
// so per-docset transitions never race.
type Pipeline struct {
	mu sync.Mutex

	transfers  *transfer.Registry
	extractor  domain.Extractor
	installed  domain.Registry
	mirrors    *mirror.Selector
	catalogURL string
	fs         afero.Fs

	catalog map[string]domain.DocsetMetadata
	feeds   map[string]domain.DocsetMetadata
	states  map[string]domain.State
	pending map[string]domain.PendingInstall

	catalogReady chan struct{}
	catalogOnce  sync.Once

	onEvent func(Event)
}

// New wires the pipeline to its collaborators and hooks itself into the
// transfer registry's callbacks.
func New(transfers *transfer.Registry, extractor domain.Extractor, installed domain.Registry,
	mirrors *mirror.Selector, catalogURL string, fsys afero.Fs) *Pipeline {

	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	p := &Pipeline{
		transfers:    transfers,
		extractor:    extractor,
		installed:    installed,
		mirrors:      mirrors,
		catalogURL:   strings.TrimRight(catalogURL, "/"),
		fs:           fsys,
		catalog:      make(map[string]domain.DocsetMetadata),
		feeds:        make(map[string]domain.DocsetMetadata),
		states:       make(map[string]domain.State),
		pending:      make(map[string]domain.PendingInstall),
		catalogReady: make(chan struct{}),
	}
	transfers.OnDone(p.transferDone)
	transfers.OnProgress(p.transferProgress)
	return p
}

// OnEvent registers the view layer's event callback. Must be set before any
// operation is started.
func (p *Pipeline) OnEvent(fn func(Event)) {
	p.onEvent = fn
}

func (p *Pipeline) emit(events ...Event) {
	if p.onEvent == nil {
		return
	}
	for _, e := range events {
		p.onEvent(e)
	}
}

// FetchCatalog starts one catalog transfer. On completion the snapshot is
// replaced wholesale; stale entries do not survive.
func (p *Pipeline) FetchCatalog() error {
	_, err := p.transfers.Start(p.catalogURL+"/docsets", transfer.PurposeCatalog, "")
	return err
}

// Catalog returns the current snapshot sorted by name.
func (p *Pipeline) Catalog() []domain.DocsetMetadata {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.DocsetMetadata, 0, len(p.catalog))
	for _, m := range p.catalog {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// State reports the acquisition state of one docset.
func (p *Pipeline) State(name string) domain.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.states[name]; ok {
		return s
	}
	return domain.StateIdle
}

// ActiveDocsets lists docsets with work in flight: fetching a feed,
// downloading, or waiting on extraction.
func (p *Pipeline) ActiveDocsets() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []string
	for name, s := range p.states {
		if s.IsActive() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// AddFeed starts fetching a user-supplied feed URL. dash-feed:// links are
// normalized first. The docset name is unknown until the feed parses, so the
// transfer is untagged.
func (p *Pipeline) AddFeed(rawURL string) error {
	feedURL, err := meta.NormalizeFeedURL(rawURL)
	if err != nil {
		return err
	}
	_, err = p.transfers.Start(feedURL, transfer.PurposeFeed, "")
	return err
}

// Install starts an archive download for each named docset. Names already
// installed, unknown, or with work in flight are rejected individually; the
// rest proceed.
func (p *Pipeline) Install(names ...string) error {
	return p.install(names, false)
}

// install is Install with an escape hatch: force admits names that are
// already installed, which the update path needs when re-resolving docsets
// whose metadata went missing.
func (p *Pipeline) install(names []string, force bool) error {
	var evs []Event
	var errs []error

	p.mu.Lock()
	for _, name := range names {
		if !force && p.installed.Contains(name) {
			errs = append(errs, fmt.Errorf("%s: already installed", name))
			continue
		}
		if _, busy := p.pending[name]; busy || p.states[name].IsActive() {
			errs = append(errs, fmt.Errorf("%s: %w", name, domain.ErrInstallPending))
			continue
		}

		var archiveURL string
		if _, ok := p.catalog[name]; ok {
			archiveURL = p.mirrors.ArchiveURL(name)
		} else if m, ok := p.feeds[name]; ok && len(m.URLs) > 0 {
			archiveURL = m.URLs[0]
		} else {
			errs = append(errs, fmt.Errorf("%s: not in catalog", name))
			continue
		}

		if _, err := p.transfers.Start(archiveURL, transfer.PurposeArchive, name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		p.states[name] = domain.StateDownloading
		evs = append(evs, Event{Kind: EventStateChanged, Docset: name, State: domain.StateDownloading})
	}
	p.mu.Unlock()

	p.emit(evs...)
	return errors.Join(errs...)
}

// Update refreshes every installed docset that came from a feed. Docsets
// with no metadata at all can be re-resolved from the catalog; confirmMissing
// decides whether to do that. The catalog join waits on an explicit
// catalog-ready signal plus transfer quiescence, then reinstalls by name.
func (p *Pipeline) Update(ctx context.Context, confirmMissing func(names []string) bool) error {
	docsets, err := p.installed.Docsets()
	if err != nil {
		return err
	}

	var evs []Event
	var missing []string

	p.mu.Lock()
	for _, ds := range docsets {
		if ds.Meta == nil || ds.Meta.Name == "" {
			missing = append(missing, ds.Name)
			continue
		}
		if ds.Meta.FeedURL == "" {
			continue
		}
		if _, busy := p.pending[ds.Name]; busy || p.states[ds.Name].IsActive() {
			continue
		}
		if _, err := p.transfers.Start(ds.Meta.FeedURL, transfer.PurposeFeed, ds.Name); err != nil {
			continue
		}
		p.states[ds.Name] = domain.StateFetchingFeed
		evs = append(evs, Event{Kind: EventStateChanged, Docset: ds.Name, State: domain.StateFetchingFeed})
	}
	catalogEmpty := len(p.catalog) == 0
	p.mu.Unlock()

	p.emit(evs...)

	if len(missing) == 0 || confirmMissing == nil || !confirmMissing(missing) {
		return nil
	}

	if catalogEmpty {
		if err := p.FetchCatalog(); err != nil {
			return err
		}
	}

	go p.reinstallWhenQuiet(ctx, missing)
	return nil
}

// reinstallWhenQuiet waits for the catalog to load and the transfer set to
// drain, then re-resolves the named docsets against the fresh catalog.
func (p *Pipeline) reinstallWhenQuiet(ctx context.Context, names []string) {
	select {
	case <-p.catalogReady:
	case <-ctx.Done():
		return
	}
	if err := p.transfers.WaitIdle(ctx); err != nil {
		return
	}

	p.mu.Lock()
	resolved := names[:0]
	for _, name := range names {
		if _, ok := p.catalog[name]; ok {
			resolved = append(resolved, name)
		}
	}
	p.mu.Unlock()

	if len(resolved) > 0 {
		_ = p.install(resolved, true)
	}
}

// Delete removes a docset. The registry removal is immediate and
// authoritative; the directory is removed asynchronously and a failure there
// is reported but never rolls the removal back.
func (p *Pipeline) Delete(name string) error {
	ds, ok := p.installed.Get(name)
	if !ok {
		return domain.ErrNotInstalled
	}
	if err := p.installed.Remove(name); err != nil {
		return err
	}

	go func() {
		if err := p.fs.RemoveAll(ds.Path); err != nil {
			p.emit(Event{Kind: EventDeleteDone, Docset: name,
				Err: fmt.Errorf("cannot delete docset directory: %w", err)})
			return
		}
		p.emit(Event{Kind: EventDeleteDone, Docset: name})
	}()
	return nil
}

// StopAll aborts every active transfer. Each abort resolves as a cancelled
// terminal event, which clears that docset's progress without raising an
// error.
func (p *Pipeline) StopAll() {
	p.transfers.CancelAll()
}

// transferProgress relays one transfer's progress and the recomputed
// aggregate to the view. Runs on the transfer goroutine; touches no state.
func (p *Pipeline) transferProgress(t transfer.Transfer) {
	var evs []Event
	if t.DocsetName != "" {
		evs = append(evs, Event{
			Kind:    EventDocsetProgress,
			Docset:  t.DocsetName,
			Percent: transfer.Percent(t.Received, t.Total),
		})
	}
	received, total := p.transfers.Progress()
	evs = append(evs, Event{
		Kind:    EventAggregate,
		Percent: transfer.Percent(received, total),
		Active:  p.transfers.ActiveCount(),
	})
	p.emit(evs...)
}

// transferDone dispatches a transfer's single terminal event.
func (p *Pipeline) transferDone(res transfer.Result) {
	t := res.Transfer

	if res.Err != nil {
		p.failTransfer(t, res.Err)
		return
	}

	switch t.Purpose {
	case transfer.PurposeCatalog:
		p.catalogDone(res)
	case transfer.PurposeFeed:
		p.feedDone(res)
	case transfer.PurposeArchive:
		p.archiveDone(res)
	}

	p.emitAggregate()
}

func (p *Pipeline) failTransfer(t transfer.Transfer, err error) {
	cancelled := errors.Is(err, domain.ErrCancelled)

	var evs []Event
	if t.DocsetName != "" {
		state := domain.StateError
		if cancelled {
			state = domain.StateCancelled
		}
		p.mu.Lock()
		p.states[t.DocsetName] = state
		p.mu.Unlock()
		evs = append(evs, Event{Kind: EventStateChanged, Docset: t.DocsetName, State: state})
	}
	if !cancelled {
		evs = append(evs, Event{Kind: EventError, Docset: t.DocsetName, Err: err})
	}
	p.emit(evs...)
	p.emitAggregate()
}

func (p *Pipeline) catalogDone(res transfer.Result) {
	parsed, err := meta.ParseCatalog(res.Body)
	if err != nil {
		p.emit(Event{Kind: EventError, Err: err})
		return
	}

	p.mu.Lock()
	p.catalog = parsed
	p.mu.Unlock()

	p.catalogOnce.Do(func() { close(p.catalogReady) })
	p.emit(Event{Kind: EventCatalogLoaded})
}

func (p *Pipeline) feedDone(res transfer.Result) {
	t := res.Transfer

	m, err := meta.ParseFeed(t.URL.String(), res.Body)
	if err != nil {
		if t.DocsetName != "" {
			p.mu.Lock()
			p.states[t.DocsetName] = domain.StateError
			p.mu.Unlock()
			p.emit(Event{Kind: EventStateChanged, Docset: t.DocsetName, State: domain.StateError})
		}
		p.emit(Event{Kind: EventError, Docset: t.DocsetName, Err: err})
		return
	}

	name := m.Name

	p.mu.Lock()
	old, known := p.feeds[name]
	if !known {
		if ds, ok := p.installed.Get(name); ok && ds.Meta != nil {
			old, known = *ds.Meta, true
		}
	}

	if known && !m.IsNewerThan(old) {
		p.states[name] = domain.StateIdle
		p.mu.Unlock()
		p.emit(Event{Kind: EventUpToDate, Docset: name})
		return
	}

	// New or changed version (or no version at all): remember the feed and
	// go straight for the archive.
	p.feeds[name] = m
	if _, err := p.transfers.Start(m.URLs[0], transfer.PurposeArchive, name); err != nil {
		p.states[name] = domain.StateError
		p.mu.Unlock()
		p.emit(Event{Kind: EventStateChanged, Docset: name, State: domain.StateError},
			Event{Kind: EventError, Docset: name, Err: err})
		return
	}
	p.states[name] = domain.StateDownloading
	p.mu.Unlock()

	p.emit(Event{Kind: EventStateChanged, Docset: name, State: domain.StateDownloading})
}

func (p *Pipeline) archiveDone(res transfer.Result) {
	name := res.Transfer.DocsetName
	folder := name + registry.DocsetSuffix
	target := filepath.Join(p.installed.Dir(), folder)

	p.mu.Lock()
	if _, busy := p.pending[name]; busy {
		p.mu.Unlock()
		os.Remove(res.ArchivePath)
		p.emit(Event{Kind: EventError, Docset: name, Err: domain.ErrInstallPending})
		return
	}
	p.pending[name] = domain.PendingInstall{
		DocsetName:  name,
		ArchivePath: res.ArchivePath,
		TargetPath:  target,
	}
	p.states[name] = domain.StateExtracting
	p.mu.Unlock()

	p.emit(Event{Kind: EventStateChanged, Docset: name, State: domain.StateExtracting})
	p.extractor.Extract(context.Background(), res.ArchivePath, p.installed.Dir(), folder, p)
}

// ExtractionProgress implements domain.ExtractionSink.
func (p *Pipeline) ExtractionProgress(folder string, extracted, total int64) {
	name := strings.TrimSuffix(folder, registry.DocsetSuffix)
	p.emit(Event{
		Kind:    EventDocsetProgress,
		Docset:  name,
		Percent: transfer.Percent(extracted, total),
	})
}

// ExtractionCompleted implements domain.ExtractionSink: the docset directory
// gets its metadata side file, joins the registry, and the temp archive goes
// away.
func (p *Pipeline) ExtractionCompleted(folder string) {
	name := strings.TrimSuffix(folder, registry.DocsetSuffix)

	p.mu.Lock()
	pi, ok := p.pending[name]
	delete(p.pending, name)
	m, haveMeta := p.catalog[name]
	if !haveMeta {
		m, haveMeta = p.feeds[name]
	}
	p.states[name] = domain.StateInstalled
	p.mu.Unlock()

	if !ok {
		return
	}
	defer os.Remove(pi.ArchivePath)

	if haveMeta {
		if err := meta.WriteSideFile(p.fs, pi.TargetPath, m); err != nil {
			p.emit(Event{Kind: EventError, Docset: name, Err: err})
		}
	}
	if _, err := p.installed.Add(pi.TargetPath); err != nil {
		p.mu.Lock()
		p.states[name] = domain.StateError
		p.mu.Unlock()
		p.emit(Event{Kind: EventStateChanged, Docset: name, State: domain.StateError},
			Event{Kind: EventError, Docset: name, Err: err})
		return
	}

	p.emit(Event{Kind: EventStateChanged, Docset: name, State: domain.StateInstalled})
}

// ExtractionError implements domain.ExtractionSink. The temp archive is
// discarded and the docset's progress state cleared.
func (p *Pipeline) ExtractionError(folder string, err error) {
	name := strings.TrimSuffix(folder, registry.DocsetSuffix)

	p.mu.Lock()
	pi, ok := p.pending[name]
	delete(p.pending, name)
	p.states[name] = domain.StateError
	p.mu.Unlock()

	if ok {
		os.Remove(pi.ArchivePath)
	}
	p.emit(Event{Kind: EventStateChanged, Docset: name, State: domain.StateError},
		Event{Kind: EventError, Docset: name, Err: fmt.Errorf("cannot extract docset %s: %w", name, err)})
}

func (p *Pipeline) emitAggregate() {
	received, total := p.transfers.Progress()
	p.emit(Event{
		Kind:    EventAggregate,
		Percent: transfer.Percent(received, total),
		Active:  p.transfers.ActiveCount(),
	})
}
