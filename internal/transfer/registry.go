package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/dashdock/dashdock/internal/domain"
)

// Purpose says why a transfer exists, so its completion can be dispatched
// without inspecting the payload.
type Purpose int

const (
	PurposeCatalog Purpose = iota
	PurposeFeed
	PurposeArchive
)

func (p Purpose) String() string {
	switch p {
	case PurposeCatalog:
		return "catalog"
	case PurposeFeed:
		return "feed"
	case PurposeArchive:
		return "archive"
	default:
		return "unknown"
	}
}

const (
	// maxRedirects caps redirect hops per logical transfer.
	maxRedirects = 10

	// progressFloor suppresses progress noise from redirect and error pages.
	progressFloor = 10 * 1024

	copyChunk = 1 << 20
)

// Transfer is one logical network fetch. Purpose and DocsetName survive
// redirect hops unchanged; Redirects counts the hops taken so far.
type Transfer struct {
	ID         uuid.UUID
	Purpose    Purpose
	DocsetName string
	URL        *url.URL
	Received   int64
	Total      int64 // -1 until the response reveals it
	Redirects  int

	cancel context.CancelFunc
}

// Result is the single terminal outcome of a transfer. Archive payloads are
// streamed to a temp file and reported as ArchivePath; everything else is
// small enough to hand over as Body. A cancelled transfer carries
// domain.ErrCancelled, which is not a failure.
type Result struct {
	Transfer    Transfer
	Body        []byte
	ArchivePath string
	Err         error
}

// Registry owns every in-flight transfer. Completion and progress callbacks
// run on the transfer's goroutine; consumers serialize their own state.
type Registry struct {
	mu         sync.Mutex
	client     *http.Client
	tmpDir     string
	active     map[uuid.UUID]*Transfer
	waiters    []chan struct{}
	onProgress func(Transfer)
	onDone     func(Result)

	// Contributions of finished transfers, retained so the aggregate never
	// moves backwards while others are still running. Cleared when the
	// active set drains.
	drainedReceived int64
	drainedTotal    int64
}

// NewRegistry wraps client for manual redirect handling. tmpDir receives
// streamed archive payloads; empty means the system temp dir.
func NewRegistry(client *http.Client, tmpDir string) *Registry {
	if client == nil {
		client = &http.Client{}
	}
	// Redirects are followed by hand so purpose and docset name can be
	// carried across hops and the hop count bounded. The client is copied
	// first; the caller's keeps its own redirect policy.
	cl := *client
	cl.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return &Registry{
		client: &cl,
		tmpDir: tmpDir,
		active: make(map[uuid.UUID]*Transfer),
	}
}

// OnProgress registers the per-transfer progress callback. Must be set
// before the first Start.
func (r *Registry) OnProgress(fn func(Transfer)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onProgress = fn
}

// OnDone registers the terminal-event callback. Must be set before the
// first Start.
func (r *Registry) OnDone(fn func(Result)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDone = fn
}

// Start issues a GET for rawURL and registers the transfer. The returned ID
// identifies it in progress callbacks until its one terminal event.
func (r *Registry) Start(rawURL string, purpose Purpose, docsetName string) (uuid.UUID, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return uuid.Nil, fmt.Errorf("bad url %q: %w", rawURL, err)
	}

	t := &Transfer{
		ID:         uuid.New(),
		Purpose:    purpose,
		DocsetName: docsetName,
		URL:        u,
		Total:      -1,
	}
	r.launch(t)
	return t.ID, nil
}

func (r *Registry) launch(t *Transfer) {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	r.mu.Lock()
	r.active[t.ID] = t
	r.mu.Unlock()

	go r.run(ctx, t)
}

func (r *Registry) run(ctx context.Context, t *Transfer) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL.String(), nil)
	if err != nil {
		r.finish(t, Result{Err: err})
		return
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = domain.ErrCancelled
		}
		r.finish(t, Result{Err: err})
		return
	}
	defer resp.Body.Close()

	if loc := resp.Header.Get("Location"); loc != "" && resp.StatusCode >= 300 && resp.StatusCode < 400 {
		r.redirect(t, loc)
		return
	}

	if resp.StatusCode != http.StatusOK {
		r.finish(t, Result{Err: fmt.Errorf("unexpected status: %d", resp.StatusCode)})
		return
	}

	r.mu.Lock()
	t.Total = resp.ContentLength
	r.mu.Unlock()

	if t.Purpose == PurposeArchive {
		r.finish(t, r.readToFile(ctx, t, resp.Body))
		return
	}
	r.finish(t, r.readToMemory(ctx, t, resp.Body))
}

// redirect starts a fresh transfer for the redirect target. The original is
// discarded without a terminal event, so the whole hop chain still produces
// exactly one.
func (r *Registry) redirect(t *Transfer, location string) {
	if t.Redirects+1 > maxRedirects {
		r.finish(t, Result{Err: domain.ErrTooManyRedirects})
		return
	}

	target, err := url.Parse(location)
	if err != nil {
		r.finish(t, Result{Err: fmt.Errorf("bad redirect target %q: %w", location, err)})
		return
	}

	resolved := t.URL.ResolveReference(target)
	if resolved.Scheme == "" {
		resolved.Scheme = t.URL.Scheme
	}

	next := &Transfer{
		ID:         uuid.New(),
		Purpose:    t.Purpose,
		DocsetName: t.DocsetName,
		URL:        resolved,
		Total:      -1,
		Redirects:  t.Redirects + 1,
	}

	r.mu.Lock()
	delete(r.active, t.ID)
	r.mu.Unlock()

	r.launch(next)
}

func (r *Registry) readToMemory(ctx context.Context, t *Transfer, body io.Reader) Result {
	var out []byte
	buf := make([]byte, copyChunk)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
			r.advance(t, int64(n))
		}
		if err == io.EOF {
			return Result{Body: out}
		}
		if err != nil {
			if ctx.Err() != nil {
				err = domain.ErrCancelled
			}
			return Result{Err: err}
		}
	}
}

func (r *Registry) readToFile(ctx context.Context, t *Transfer, body io.Reader) Result {
	pattern := "docset-*.tgz"
	if t.DocsetName != "" {
		pattern = t.DocsetName + "-*.tgz"
	}
	f, err := os.CreateTemp(r.tmpDir, pattern)
	if err != nil {
		return Result{Err: err}
	}

	buf := make([]byte, copyChunk)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				f.Close()
				os.Remove(f.Name())
				return Result{Err: werr}
			}
			r.advance(t, int64(n))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			f.Close()
			os.Remove(f.Name())
			if ctx.Err() != nil {
				err = domain.ErrCancelled
			}
			return Result{Err: err}
		}
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return Result{Err: err}
	}
	return Result{ArchivePath: f.Name()}
}

// advance bumps the byte counter and reports progress, unless the total is
// still unknown or too little has arrived to matter.
func (r *Registry) advance(t *Transfer, n int64) {
	r.mu.Lock()
	t.Received += n
	if t.Total <= 0 || t.Received < progressFloor {
		r.mu.Unlock()
		return
	}
	snap := *t
	fn := r.onProgress
	r.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
}

// finish removes the transfer from the active set and delivers its terminal
// event. Idle waiters are checked only after the completion callback has
// run, so a completion that chains into a new transfer (feed to archive)
// keeps the registry busy across the handoff.
func (r *Registry) finish(t *Transfer, res Result) {
	r.mu.Lock()
	delete(r.active, t.ID)
	if t.Total > 0 {
		recv := t.Received
		if recv > t.Total {
			recv = t.Total
		}
		r.drainedReceived += recv
		r.drainedTotal += t.Total
	}
	if len(r.active) == 0 {
		r.drainedReceived, r.drainedTotal = 0, 0
	}
	res.Transfer = *t
	fn := r.onDone
	r.mu.Unlock()

	if fn != nil {
		fn(res)
	}

	r.mu.Lock()
	var waiters []chan struct{}
	if len(r.active) == 0 {
		waiters = r.waiters
		r.waiters = nil
	}
	r.mu.Unlock()
	for _, w := range waiters {
		close(w)
	}
}

// CancelAll aborts every active transfer. Each surfaces as one terminal
// event carrying domain.ErrCancelled.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(r.active))
	for _, t := range r.active {
		if t.cancel != nil {
			cancels = append(cancels, t.cancel)
		}
	}
	r.mu.Unlock()

	for _, c := range cancels {
		c()
	}
}

// ActiveCount reports how many transfers are in flight.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// IdleChan returns a channel closed once the active set is empty. An already
// idle registry returns a closed channel.
func (r *Registry) IdleChan() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan struct{})
	if len(r.active) == 0 {
		close(ch)
		return ch
	}
	r.waiters = append(r.waiters, ch)
	return ch
}

// WaitIdle blocks until the active set drains or ctx expires.
func (r *Registry) WaitIdle(ctx context.Context) error {
	select {
	case <-r.IdleChan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Progress sums received and expected bytes over the live active set plus
// the retained contributions of transfers that already finished, so the
// aggregate is non-decreasing while work remains. Transfers with an unknown
// total contribute to neither side, and an empty set yields (0, 0) with no
// residue from finished work.
func (r *Registry) Progress() (received, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	received, total = r.drainedReceived, r.drainedTotal
	for _, t := range r.active {
		if t.Total <= 0 {
			continue
		}
		total += t.Total
		if t.Received < t.Total {
			received += t.Received
		} else {
			received += t.Total
		}
	}
	return received, total
}
