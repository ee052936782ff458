package extract

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tarEntry struct {
	name string
	body string
	link string
	dir  bool
}

// buildTgz writes a gzip'd tarball of entries to a temp file and returns its
// path.
func buildTgz(t *testing.T, entries []tarEntry) string {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0644}
		switch {
		case e.dir:
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0755
		case e.link != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.link
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "archive.tgz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

// recordingSink captures extraction events and signals the terminal one.
type recordingSink struct {
	mu        sync.Mutex
	progress  int
	completed []string
	failed    []string
	errs      []error
	done      chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{done: make(chan struct{})}
}

func (s *recordingSink) ExtractionProgress(name string, received, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress++
}

func (s *recordingSink) ExtractionCompleted(name string) {
	s.mu.Lock()
	s.completed = append(s.completed, name)
	s.mu.Unlock()
	close(s.done)
}

func (s *recordingSink) ExtractionError(name string, err error) {
	s.mu.Lock()
	s.failed = append(s.failed, name)
	s.errs = append(s.errs, err)
	s.mu.Unlock()
	close(s.done)
}

func (s *recordingSink) wait(t *testing.T) {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for extraction to finish")
	}
}

func TestExtractRenamesTopLevelDir(t *testing.T) {
	src := buildTgz(t, []tarEntry{
		{name: "Go Programming.docset/", dir: true},
		{name: "Go Programming.docset/Contents/", dir: true},
		{name: "Go Programming.docset/Contents/Info.plist", body: "<plist/>"},
		{name: "Go Programming.docset/Contents/Resources/docSet.dsidx", body: "sqlite"},
		{name: "Go Programming.docset/Contents/alias", link: "Info.plist"},
	})
	destRoot := t.TempDir()
	sink := newRecordingSink()

	New().Extract(context.Background(), src, destRoot, "go.docset", sink)
	sink.wait(t)

	require.Equal(t, []string{"go.docset"}, sink.completed)
	assert.Empty(t, sink.failed)

	got, err := os.ReadFile(filepath.Join(destRoot, "go.docset", "Contents", "Info.plist"))
	require.NoError(t, err)
	assert.Equal(t, "<plist/>", string(got))

	_, err = os.Stat(filepath.Join(destRoot, "Go Programming.docset"))
	assert.True(t, os.IsNotExist(err), "original top-level name must not appear")

	link, err := os.Readlink(filepath.Join(destRoot, "go.docset", "Contents", "alias"))
	require.NoError(t, err)
	assert.Equal(t, "Info.plist", link)
}

func TestExtractCorruptArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tgz")
	// Valid gzip magic followed by garbage.
	require.NoError(t, os.WriteFile(path, []byte{0x1f, 0x8b, 0xff, 0x00, 0x01}, 0644))

	sink := newRecordingSink()
	New().Extract(context.Background(), path, t.TempDir(), "bad.docset", sink)
	sink.wait(t)

	require.Equal(t, []string{"bad.docset"}, sink.failed)
	assert.Empty(t, sink.completed)
}

func TestExtractRejectsTraversal(t *testing.T) {
	src := buildTgz(t, []tarEntry{
		{name: "x.docset/../../evil", body: "nope"},
	})
	sink := newRecordingSink()

	New().Extract(context.Background(), src, t.TempDir(), "x.docset", sink)
	sink.wait(t)

	require.Len(t, sink.failed, 1)
	assert.Contains(t, sink.errs[0].Error(), "invalid path")
}

func TestExtractRejectsEscapingSymlink(t *testing.T) {
	src := buildTgz(t, []tarEntry{
		{name: "x.docset/link", link: "../../outside"},
	})
	sink := newRecordingSink()

	New().Extract(context.Background(), src, t.TempDir(), "x.docset", sink)
	sink.wait(t)

	require.Len(t, sink.failed, 1)
	assert.Contains(t, sink.errs[0].Error(), "invalid link target")
}

func TestExtractRejectsAbsoluteSymlink(t *testing.T) {
	src := buildTgz(t, []tarEntry{
		{name: "x.docset/link", link: "/etc/passwd"},
	})
	sink := newRecordingSink()

	New().Extract(context.Background(), src, t.TempDir(), "x.docset", sink)
	sink.wait(t)

	require.Len(t, sink.failed, 1)
	assert.Contains(t, sink.errs[0].Error(), "invalid link target")
}

func TestExtractMissingSource(t *testing.T) {
	sink := newRecordingSink()
	New().Extract(context.Background(), filepath.Join(t.TempDir(), "absent.tgz"), t.TempDir(), "go.docset", sink)
	sink.wait(t)

	assert.Len(t, sink.failed, 1)
}

func TestExtractCancelled(t *testing.T) {
	src := buildTgz(t, []tarEntry{
		{name: "go.docset/", dir: true},
		{name: "go.docset/file", body: "data"},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := newRecordingSink()
	New().Extract(ctx, src, t.TempDir(), "go.docset", sink)
	sink.wait(t)

	require.Len(t, sink.failed, 1)
	assert.ErrorIs(t, sink.errs[0], context.Canceled)
}

func TestExtractPlainTar(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "go.docset/readme", Mode: 0644, Typeflag: tar.TypeReg, Size: 2,
	}))
	_, err := tw.Write([]byte("ok"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	path := filepath.Join(t.TempDir(), "plain.tar")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	destRoot := t.TempDir()
	sink := newRecordingSink()
	New().Extract(context.Background(), path, destRoot, "go.docset", sink)
	sink.wait(t)

	require.Equal(t, []string{"go.docset"}, sink.completed)
	got, err := os.ReadFile(filepath.Join(destRoot, "go.docset", "readme"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(got))
}

func TestRewriteTop(t *testing.T) {
	assert.Equal(t, "go.docset", rewriteTop("Go.docset", "go.docset"))
	assert.Equal(t, "go.docset/Contents/x", rewriteTop("Go.docset/Contents/x", "go.docset"))
	assert.Equal(t, "go.docset/Contents/x", rewriteTop("./Go.docset/Contents/x", "go.docset"))
	assert.Empty(t, rewriteTop(".", "go.docset"))
	assert.Empty(t, rewriteTop("", "go.docset"))
}
