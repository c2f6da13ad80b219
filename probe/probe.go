// Package probe implements the ReadinessProbe: a file is ready
// only once both the lookahead and size-stability signals agree. The
// retry/delay shape here is grounded on the poll package's
// attempt-counter-then-sleep loop, reapplied to readiness instead of
// receipt confirmation.
package probe

import (
	"os"
	"sort"
	"time"
)

// Result is the outcome of one readiness check.
type Result int

// Results.
const (
	NotReady Result = iota
	Ready
	FileMissing
)

// Options configures a single Check call; all fields correspond directly to
// the sender's readiness options.
type Options struct {
	Lookahead  int
	StableMs   time.Duration
	FileWaitMs time.Duration
}

// HasLookahead reports whether some name in listing is lexicographically at
// least K positions after name, where listing is sorted ascending. This is
// a pure function over an already-sorted listing so the Scanner's single
// directory read can be reused without an extra stat round-trip.
func HasLookahead(listing []string, name string, k int) bool {
	if k <= 0 {
		return true
	}
	idx := sort.SearchStrings(listing, name)
	if idx >= len(listing) || listing[idx] != name {
		// name isn't in the listing at all; lookahead can't be evaluated
		// from this snapshot.
		return false
	}
	return idx+k < len(listing)
}

// Check runs the size-stability sampling for one candidate, assuming the
// lookahead signal has already been confirmed by the caller against its
// directory listing (HasLookahead). absPath must exist at call time; use
// WaitForFile first if the Scanner's listing may be stale.
func Check(absPath string, opts Options) (result Result, size int64) {
	size1, err := statSize(absPath)
	if err != nil {
		return FileMissing, 0
	}
	time.Sleep(opts.StableMs)
	size2, err := statSize(absPath)
	if err != nil {
		return FileMissing, 0
	}
	if size1 == size2 && size1 > 0 {
		return Ready, size2
	}
	return NotReady, size2
}

// WaitForFile handles the file-absence race: the Scanner saw
// the name, but by probe time it may have been rotated out or not yet
// renamed from a ".part". It polls every waitStep until file_wait_ms has
// elapsed.
func WaitForFile(absPath string, fileWaitMs time.Duration) bool {
	deadline := time.Now().Add(fileWaitMs)
	waitStep := fileWaitMs / 4
	if waitStep <= 0 {
		waitStep = time.Millisecond
	}
	for {
		if _, err := os.Stat(absPath); err == nil {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(waitStep)
	}
}

func statSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
