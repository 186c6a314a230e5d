package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/stagebox/internal/domain/track"
)

// DuplicateTrackFilter checks for duplicate tracks in the queue.
// Callers must serialize Check with marking the track ready, otherwise two
// copies resolving at once both pass.
// Detects:
// - Same page URL
// - Re-uploads and alternate versions (normalized title + same uploader)
// Excludes:
// - Covers (same title but different uploader)
type DuplicateTrackFilter struct {
	queue QueueView
}

// NewDuplicateTrackFilter creates a new duplicate track filter.
func NewDuplicateTrackFilter(q QueueView) *DuplicateTrackFilter {
	return &DuplicateTrackFilter{
		queue: q,
	}
}

// Name returns the filter name.
func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track_filter"
}

// Description returns the filter description.
func (f *DuplicateTrackFilter) Description() string {
	return "Rejects tracks already in the queue, including remasters and live versions of the same upload"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateTrackFilter) ValidateConfig(config map[string]any) error {
	// No configuration needed
	return nil
}

// Check checks if the track is a duplicate.
func (f *DuplicateTrackFilter) Check(ctx context.Context, req Request) Result {
	for _, queued := range others(f.queue, req.Entry.Seq) {
		if queued.Track == nil {
			continue
		}
		if queued.Track.Status() == track.StatusPending {
			// An earlier identical request wins; later ones check it once resolved
			if queued.Seq < req.Entry.Seq && req.Entry.Track != nil && sameQuery(queued.Track.Query, req.Entry.Track.Query) {
				return Reject("duplicate_track")
			}
			continue
		}
		if queued.Track.Status() != track.StatusReady {
			continue
		}
		info := queued.Track.Info()

		if info.WebpageURL != "" && info.WebpageURL == req.Info.WebpageURL {
			return Reject("duplicate_track")
		}

		if isSameSong(info, req.Info) {
			return Reject("duplicate_track")
		}
	}

	return Accept()
}

func sameQuery(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// isSameSong reports whether two tracks are versions of one song by the same uploader.
func isSameSong(a, b track.Info) bool {
	name1 := normalizeTrackName(a.Title)
	name2 := normalizeTrackName(b.Title)
	if name1 == "" || name1 != name2 {
		return false
	}
	// Different uploader means a cover
	return a.Uploader != "" && strings.EqualFold(a.Uploader, b.Uploader)
}

var (
	remasterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),              // "(Any Remaster text)"
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),              // "[Any Remaster text]"
	}

	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*\(official\s+(music\s+)?(video|audio)\)`), // "(Official Video)"
		regexp.MustCompile(`\s*\[official\s+(music\s+)?(video|audio)\]`), // "[Official Audio]"
		regexp.MustCompile(`\s*\(.*?version\)`),                          // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),                             // "(Radio Edit)"
		regexp.MustCompile(`\s*-?\s*live`),                               // "- Live"
		regexp.MustCompile(`\s*\(live\)`),                                // "(Live)"
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),                       // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*single\s+version`),                   // "- Single Version"
	}

	whitespacePattern = regexp.MustCompile(`\s+`)
)

// normalizeTrackName removes remaster information and version details.
func normalizeTrackName(name string) string {
	normalized := strings.ToLower(name)

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	normalized = strings.TrimSpace(normalized)
	normalized = whitespacePattern.ReplaceAllString(normalized, " ")

	// Remove trailing dashes
	normalized = strings.TrimRight(normalized, " -")

	return normalized
}

func init() {
	Register("duplicate_track_filter", func(q QueueView) Filter {
		return NewDuplicateTrackFilter(q)
	})
}
