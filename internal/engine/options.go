package engine

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/bamsammich/s3mirror/internal/compare"
	"github.com/bamsammich/s3mirror/internal/event"
	"github.com/bamsammich/s3mirror/internal/filter"
	"github.com/bamsammich/s3mirror/internal/store"
)

// DefaultRetryDelay is the pause between attempts of one operation.
const DefaultRetryDelay = 10 * time.Millisecond

// Options configures one mirror run. It is read-only once Run starts and
// shared by every job.
type Options struct {
	Strategy compare.Strategy // nil = compare.ETag
	Filter   *filter.Chain    // nil = everything
	BWLimit  *rate.Limiter    // nil = unlimited; applies to streamed copies
	Events   chan<- event.Event

	Put store.PutOptions

	// SourcePrefix and DestPrefix scope the listings. A destination key maps
	// back to its source key by swapping one prefix for the other.
	SourcePrefix string
	DestPrefix   string

	MaxRetries    int
	MaxConcurrent int
	RetryDelay    time.Duration
	RestoreDays   int32

	DryRun         bool
	Verbose        bool
	DeleteRemoved  bool
	RestoreTiering bool
}

func (o *Options) maxRetries() int {
	if o.MaxRetries < 1 {
		return 1
	}
	return o.MaxRetries
}

func (o *Options) maxConcurrent() int {
	if o.MaxConcurrent < 1 {
		return 1
	}
	return o.MaxConcurrent
}

func (o *Options) retryDelay() time.Duration {
	if o.RetryDelay <= 0 {
		return DefaultRetryDelay
	}
	return o.RetryDelay
}

func (o *Options) strategy() compare.Strategy { //nolint:ireturn // returns the configured strategy
	if o.Strategy == nil {
		return compare.ETag{}
	}
	return o.Strategy
}

// DestKey maps a source key to its destination key.
func (o *Options) DestKey(srcKey string) string {
	return o.DestPrefix + srcKey[min(len(o.SourcePrefix), len(srcKey)):]
}

// SourceKey maps a destination key back to its source key.
func (o *Options) SourceKey(dstKey string) string {
	if o.DestPrefix == "" {
		return o.SourcePrefix + dstKey
	}
	return o.SourcePrefix + dstKey[min(len(o.DestPrefix), len(dstKey)):]
}

// matches applies the filter chain to a key relative to its listing prefix.
func (o *Options) matches(rel string, s store.FileSummary) bool {
	if o.Filter == nil {
		return true
	}
	return o.Filter.Match(rel, s.Size, s.LastModified)
}

func (o *Options) matchesKey(rel string) bool {
	if o.Filter == nil {
		return true
	}
	return o.Filter.MatchKey(rel)
}
