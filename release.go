package releasecache

import (
	"fmt"
	"strings"
	"time"
)

// Release is a specific distributable version of a package, with its
// publication date and status tags.
type Release struct {
	// Version is the release version string, e.g. "11.x-1.4".
	Version string

	// Date is the publication timestamp.
	Date time.Time

	// Status holds the release status tags, e.g. "Recommended",
	// "Supported", "Security update", "Insecure".
	Status []string
}

// displayDateLayout renders dates as YYYY-Mon-DD for interactive listings.
const displayDateLayout = "2006-Jan-02"

// DisplayDate returns the publication date formatted for display.
func (r Release) DisplayDate() string {
	return r.Date.UTC().Format(displayDateLayout)
}

// StatusLine returns the status tags joined for display.
func (r Release) StatusLine() string {
	return strings.Join(r.Status, ", ")
}

// DisplayRow returns the single-line representation used when presenting a
// release for interactive choice.
func (r Release) DisplayRow() string {
	return fmt.Sprintf("%s - %s - %s", r.Version, r.DisplayDate(), r.StatusLine())
}

// HasStatus reports whether the release carries the given status tag.
func (r Release) HasStatus(tag string) bool {
	for _, s := range r.Status {
		if s == tag {
			return true
		}
	}
	return false
}
