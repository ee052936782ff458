package extract

import (
	"archive/tar"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/dashdock/dashdock/internal/domain"
)

// reportEvery throttles progress events to one per chunk of compressed input.
const reportEvery = 256 * 1024

// Service unpacks docset tarballs. It implements domain.Extractor: Extract
// returns immediately and the sink receives progress events followed by
// exactly one terminal event, all tagged with the caller's name.
type Service struct{}

func New() *Service {
	return &Service{}
}

// Extract unpacks the archive at src into destRoot/name. The archive's own
// top-level directory is renamed to name, so "go.docset" lands where the
// caller asked regardless of how the tarball was built.
func (s *Service) Extract(ctx context.Context, src, destRoot, name string, sink domain.ExtractionSink) {
	go s.run(ctx, src, destRoot, name, sink)
}

func (s *Service) run(ctx context.Context, src, destRoot, name string, sink domain.ExtractionSink) {
	file, err := os.Open(src)
	if err != nil {
		sink.ExtractionError(name, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		sink.ExtractionError(name, err)
		return
	}
	total := info.Size()

	// Progress is measured in compressed bytes consumed, which is what the
	// archive's size bounds.
	counted := &countingReader{r: file}

	reader, cleanup, err := decompressor(file, counted)
	if err != nil {
		sink.ExtractionError(name, err)
		return
	}
	if cleanup != nil {
		defer cleanup()
	}

	tr := tar.NewReader(reader)
	var reported int64

	for {
		if ctx.Err() != nil {
			sink.ExtractionError(name, ctx.Err())
			return
		}

		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			sink.ExtractionError(name, err)
			return
		}

		if strings.Contains(header.Name, "..") {
			sink.ExtractionError(name, fmt.Errorf("invalid path in archive: %s", header.Name))
			return
		}

		rel := rewriteTop(header.Name, name)
		if rel == "" {
			continue
		}
		target := filepath.Join(destRoot, rel)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				sink.ExtractionError(name, err)
				return
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				sink.ExtractionError(name, err)
				return
			}
			outFile, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, header.FileInfo().Mode())
			if err != nil {
				sink.ExtractionError(name, err)
				return
			}
			if _, err := io.Copy(outFile, tr); err != nil {
				outFile.Close()
				sink.ExtractionError(name, err)
				return
			}
			outFile.Close()
		case tar.TypeSymlink:
			// Link targets get the same screening as entry names, or a
			// later regular-file entry could write through the link and
			// land outside destRoot.
			if filepath.IsAbs(header.Linkname) || strings.Contains(header.Linkname, "..") {
				sink.ExtractionError(name, fmt.Errorf("invalid link target in archive: %s", header.Linkname))
				return
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				sink.ExtractionError(name, err)
				return
			}
			os.Remove(target)
			if err := os.Symlink(header.Linkname, target); err != nil {
				sink.ExtractionError(name, err)
				return
			}
		}

		if counted.n-reported >= reportEvery {
			reported = counted.n
			sink.ExtractionProgress(name, counted.n, total)
		}
	}

	sink.ExtractionProgress(name, total, total)
	sink.ExtractionCompleted(name)
}

// rewriteTop replaces the first path element of a tar entry with name.
func rewriteTop(entry, name string) string {
	entry = strings.TrimPrefix(entry, "./")
	if entry == "" || entry == "." {
		return ""
	}
	parts := strings.SplitN(entry, "/", 2)
	if len(parts) == 1 {
		return name
	}
	return name + "/" + parts[1]
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// decompressor sniffs the archive's magic bytes and returns a reader over
// counted for the matching compression. Docset feeds serve gzip, but zstd,
// xz and bzip2 tarballs show up in third-party feeds.
func decompressor(file *os.File, counted io.Reader) (io.Reader, func(), error) {
	header := make([]byte, 6)
	n, _ := file.Read(header)
	header = header[:n]
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, nil, err
	}

	switch {
	case n >= 4 && header[0] == 0x28 && header[1] == 0xb5 && header[2] == 0x2f && header[3] == 0xfd:
		// zstd: 0x28B52FFD
		zr, err := zstd.NewReader(counted)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd: %w", err)
		}
		return zr, func() { zr.Close() }, nil

	case n >= 2 && header[0] == 0x1f && header[1] == 0x8b:
		// gzip: 0x1F8B
		gzr, err := gzip.NewReader(counted)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		return gzr, func() { gzr.Close() }, nil

	case n >= 6 && header[0] == 0xfd && header[1] == 0x37 && header[2] == 0x7a && header[3] == 0x58 && header[4] == 0x5a && header[5] == 0x00:
		// xz: 0xFD377A585A00
		xzr, err := xz.NewReader(counted)
		if err != nil {
			return nil, nil, fmt.Errorf("xz: %w", err)
		}
		return xzr, nil, nil

	case n >= 2 && header[0] == 0x42 && header[1] == 0x5a:
		// bzip2: 0x425A
		return bzip2.NewReader(counted), nil, nil

	default:
		// plain tar
		return counted, nil, nil
	}
}
