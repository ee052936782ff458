package pipeline

import "github.com/dashdock/dashdock/internal/domain"

// EventKind discriminates pipeline events.
type EventKind int

const (
	// EventCatalogLoaded fires after a catalog fetch replaced the snapshot.
	EventCatalogLoaded EventKind = iota

	// EventStateChanged reports a docset moving through the acquisition
	// states. Terminal states carry no error; failures arrive separately
	// as EventError.
	EventStateChanged

	// EventDocsetProgress reports one docset's download or extraction
	// percentage.
	EventDocsetProgress

	// EventAggregate reports combined progress over all active transfers.
	EventAggregate

	// EventUpToDate reports a feed refresh that found nothing newer.
	EventUpToDate

	// EventDeleteDone reports the disk half of a delete. Err is set when
	// directory removal failed; the registry removal stands regardless.
	EventDeleteDone

	// EventError reports a terminal failure for one docset, or for the
	// catalog when Docset is empty. Cancellations never arrive here.
	EventError
)

// Event is what the pipeline tells the view layer. Exactly which fields are
// meaningful depends on Kind.
type Event struct {
	Kind    EventKind
	Docset  string
	State   domain.State
	Percent int
	Active  int
	Err     error
}
