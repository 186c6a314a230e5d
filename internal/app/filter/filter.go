// Package filter provides the filter chain for enqueue validation.
package filter

import (
	"context"

	"github.com/osa030/stagebox/internal/domain/track"
)

// Request represents a resolved enqueue request to be validated.
type Request struct {
	Entry track.Entry // Queued entry, including its requester
	Info  track.Info  // Resolved metadata
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "user_pending", "duplicate_track", "queue_full"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for enqueue filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the filter configuration.
	ValidateConfig(settings map[string]any) error
	// Check performs the filter check.
	Check(ctx context.Context, req Request) Result
}

// QueueView is the read-only queue access filters need.
type QueueView interface {
	Entries() []track.Entry
}

// Factory builds a filter bound to a guild queue.
type Factory func(q QueueView) Filter

// registry holds registered filter factories.
var registry = make(map[string]Factory)

// Register registers a filter factory.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]Factory {
	return registry
}

// others returns the entries of q other than the one being checked.
func others(q QueueView, seq uint64) []track.Entry {
	return selectEntries(q, func(e track.Entry) bool { return e.Seq != seq })
}

// ahead returns the entries of q queued before the one being checked.
// Requests resolve out of order; counting only earlier entries keeps the
// oldest requests admitted.
func ahead(q QueueView, seq uint64) []track.Entry {
	return selectEntries(q, func(e track.Entry) bool { return e.Seq < seq })
}

func selectEntries(q QueueView, keep func(track.Entry) bool) []track.Entry {
	if q == nil {
		return nil
	}
	all := q.Entries()
	result := make([]track.Entry, 0, len(all))
	for _, e := range all {
		if keep(e) {
			result = append(result, e)
		}
	}
	return result
}
