package domain

import "time"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// JobCursor marks the last job of a page; the next page starts strictly after it
type JobCursor struct {
	CreatedAt time.Time
	JobID     int64
}

// JobFilter selects one owner's jobs, newest first
type JobFilter struct {
	OwnerID  int64
	Status   JobStatus
	Cursor   *JobCursor
	PageSize int
}

// JobPage is one page of a listing. Next is nil on the last page.
type JobPage struct {
	Jobs []*PrintJob
	Next *JobCursor
}
