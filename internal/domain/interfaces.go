package domain

import "context"

// ExtractionSink receives extraction events. The name passed to Extract is
// echoed back on every event, so callers correlate without path matching.
type ExtractionSink interface {
	ExtractionProgress(name string, extracted, total int64)
	ExtractionCompleted(name string)
	ExtractionError(name string, err error)
}

// Extractor unpacks a downloaded archive into destRoot/name. It returns
// immediately; zero or more progress events are followed by exactly one
// terminal event on the sink.
type Extractor interface {
	Extract(ctx context.Context, src, destRoot, name string, sink ExtractionSink)
}

// Registry tracks installed docsets. Registry state, not disk state, is
// authoritative for "is this docset installed".
type Registry interface {
	Add(path string) (*InstalledDocset, error)
	Remove(name string) error
	Contains(name string) bool
	Get(name string) (*InstalledDocset, bool)
	Docsets() ([]*InstalledDocset, error)
	Dir() string
}
