package feed

import "github.com/quietink/thoughts/backend/internal/thoughts"

const (
	pageSize = thoughts.PageSize
	// minListLength is the loaded-item threshold below which a list counts as
	// short: the end-of-list footer and the scroll affordance are suppressed.
	minListLength = 10
)

// ShouldFetchNext reports whether a further page remains to be fetched, given
// the known total and the index of the next page. Fetching stops once
// overallCount/pageSize no longer exceeds the page index.
func ShouldFetchNext(overallCount int64, pageIndex int) bool {
	return overallCount > int64(pageIndex)*pageSize
}

// IsShortList reports whether the loaded prefix is below the display
// threshold for scroll affordances.
func IsShortList(loadedCount int) bool {
	return loadedCount < minListLength
}
