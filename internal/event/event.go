// Package event defines the progress events a mirror run emits.
package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	PassStarted Type = iota + 1
	PassComplete
	ListingPage
	ListingFailed
	KeyStarted
	KeyCopied
	KeyUploaded
	KeySkipped
	KeyFailed
	KeyDeleted
	DeleteFailed
	RestoreRequested
	DryRun
)

var typeNames = [...]string{
	PassStarted:      "PassStarted",
	PassComplete:     "PassComplete",
	ListingPage:      "ListingPage",
	ListingFailed:    "ListingFailed",
	KeyStarted:       "KeyStarted",
	KeyCopied:        "KeyCopied",
	KeyUploaded:      "KeyUploaded",
	KeySkipped:       "KeySkipped",
	KeyFailed:        "KeyFailed",
	KeyDeleted:       "KeyDeleted",
	DeleteFailed:     "DeleteFailed",
	RestoreRequested: "RestoreRequested",
	DryRun:           "DryRun",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Pass names the phase of a run an event belongs to.
type Pass string

const (
	PassCopy   Pass = "copy"
	PassDelete Pass = "delete"
)

// Event represents a single progress event from the engine.
type Event struct {
	Type        Type
	Timestamp   time.Time
	Error       error
	Pass        Pass
	Key         string // source key (copy) or destination key (delete)
	Destination string
	Size        int64 // object size, or keys in the page for ListingPage
	Attempt     int   // 1-based try number, set on KeyStarted
}

// Emit stamps e and sends it on ch without blocking. Events are dropped
// when ch is full or nil.
func Emit(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
	}
}
