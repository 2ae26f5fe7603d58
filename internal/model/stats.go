package model

import "sync"

// Category identifies one kind of outcome counted during a run.
type Category int

// Outcome categories tracked by Statistics.
const (
	FilesCopied Category = iota
	DirectoriesCreated
	FilesDeleted
	DirectoriesDeleted
	EntriesPurged
	OrphansRemoved
	UnprocessableSource
	UnprocessableDestination
	DirectoriesUnreadable
	IndexesRemoved

	categoryCount
)

var categoryNames = [categoryCount]string{
	"files copied",
	"directories created",
	"files deleted",
	"directories deleted",
	"entries purged",
	"orphans removed",
	"unprocessable source entries",
	"unprocessable destination entries",
	"unreadable directories",
	"superseded indexes removed",
}

// String returns a human-readable label.
func (c Category) String() string {
	if c < 0 || c >= categoryCount {
		return "unknown"
	}

	return categoryNames[c]
}

// Categories lists every category in display order.
func Categories() []Category {
	out := make([]Category, 0, categoryCount)
	for c := Category(0); c < categoryCount; c++ {
		out = append(out, c)
	}

	return out
}

// Counter holds success and failure tallies.
type Counter struct {
	Succeeded int
	Failed    int
}

// Total returns the number of attempts.
func (c Counter) Total() int {
	return c.Succeeded + c.Failed
}

// CommitStatus records what happened to the index at the end of a run.
type CommitStatus int

// Commit outcomes.
const (
	CommitNotNeeded CommitStatus = iota
	CommitSucceeded
	CommitFailed
	CommitSkipped
)

func (s CommitStatus) String() string {
	switch s {
	case CommitNotNeeded:
		return "not needed"
	case CommitSucceeded:
		return "saved"
	case CommitFailed:
		return "failed"
	case CommitSkipped:
		return "skipped (dry run)"
	}

	return "unknown"
}

// Summary is an immutable snapshot of Statistics.
type Summary struct {
	Counters [categoryCount]Counter
	Commit   CommitStatus
	DryRun   bool
}

// Get returns the counter for c.
func (s Summary) Get(c Category) Counter {
	if c < 0 || c >= categoryCount {
		return Counter{}
	}

	return s.Counters[c]
}

// Statistics accumulates outcomes during a run. It is safe for concurrent use.
type Statistics struct {
	mu      sync.Mutex
	summary Summary
}

// NewStatistics creates an empty tally.
func NewStatistics(dryRun bool) *Statistics {
	return &Statistics{summary: Summary{DryRun: dryRun}}
}

// Succeeded records one successful operation in c.
func (s *Statistics) Succeeded(c Category) {
	s.add(c, 1, 0)
}

// Failed records one failed operation in c.
func (s *Statistics) Failed(c Category) {
	s.add(c, 0, 1)
}

// Record records ok as a success or failure in c.
func (s *Statistics) Record(c Category, ok bool) {
	if ok {
		s.Succeeded(c)
	} else {
		s.Failed(c)
	}
}

func (s *Statistics) add(c Category, succeeded, failed int) {
	if c < 0 || c >= categoryCount {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.summary.Counters[c].Succeeded += succeeded
	s.summary.Counters[c].Failed += failed
}

// SetCommit records the latest index commit outcome.
func (s *Statistics) SetCommit(status CommitStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.summary.Commit = status
}

// Summary returns a snapshot of the current tallies.
func (s *Statistics) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.summary
}
