// Package providers wraps external retrieval sources behind one query
// contract. Each adapter translates the uniform options into its
// provider's native call and returns raw results untouched; merging,
// normalization, and deduplication belong to the search orchestrator.
package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kadirpekel/dossier/pkg/document"
)

// Freshness windows a news-capable provider understands natively.
const (
	FreshnessPastDay   = "past day"
	FreshnessPastWeek  = "past week"
	FreshnessPastMonth = "past month"
)

// SearchOptions carries the uniform query options.
type SearchOptions struct {
	// MaxResults requested from the provider.
	MaxResults int

	// DaysBack restricts results to the trailing window, in days.
	DaysBack int

	// Freshness is an optional constraint ("past day", "past week",
	// "past month"). Adapters without native support emulate it by
	// filtering on publish date and dropping undated items.
	Freshness string

	// Language hint, BCP 47 tag or provider-specific code.
	Language string
}

// Adapter is a uniform wrapper around one external retrieval source.
type Adapter interface {
	// ID is the registered provider id (also the rate-limit key).
	ID() string

	// Category is the retrieval channel this adapter serves.
	Category() document.SourceType

	// Search performs one provider call. Implementations never mutate
	// or merge results and surface failures as *Error.
	Search(ctx context.Context, query string, opts SearchOptions) ([]document.RawResult, error)
}

// ErrRateLimited marks a provider-side rate limit signal, reached only
// after the adapter's own backoff retries are exhausted.
var ErrRateLimited = errors.New("rate limited")

// Error reports a failed provider call. The orchestrator recovers
// these per-task and continues with the remaining tasks.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// providerErr wraps err for the given provider, leaving context errors
// unwrapped so timeouts stay discriminable.
func providerErr(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Provider: provider, Err: err}
}

// FreshnessDays translates a freshness constraint into a day window.
func FreshnessDays(freshness string) (int, bool) {
	switch freshness {
	case FreshnessPastDay:
		return 1, true
	case FreshnessPastWeek:
		return 7, true
	case FreshnessPastMonth:
		return 30, true
	default:
		return 0, false
	}
}

// effectiveWindow resolves the day window an emulating adapter must
// filter by: the freshness constraint when present, else DaysBack.
// The second return reports whether a freshness constraint is active,
// which forces undated items to be dropped.
func effectiveWindow(opts SearchOptions) (int, bool) {
	if days, ok := FreshnessDays(opts.Freshness); ok {
		if opts.DaysBack > 0 && opts.DaysBack < days {
			return opts.DaysBack, true
		}
		return days, true
	}
	return opts.DaysBack, false
}

// emulateFreshness filters raw results by publish date for adapters
// whose API cannot express the constraint. Undated items are dropped
// only while a freshness constraint is active.
func emulateFreshness(results []document.RawResult, opts SearchOptions, now time.Time) []document.RawResult {
	days, strict := effectiveWindow(opts)
	if days <= 0 {
		return results
	}
	cutoff := now.AddDate(0, 0, -days)

	out := results[:0:0]
	for _, r := range results {
		published := firstParsedDate(r)
		if published == nil {
			if !strict {
				out = append(out, r)
			}
			continue
		}
		if !published.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

func firstParsedDate(r document.RawResult) *time.Time {
	for _, candidate := range []string{r.PublishDate, r.Published, r.Date, r.Year, r.PubDate} {
		if t := document.ParseDate(candidate); t != nil {
			return t
		}
	}
	return nil
}
