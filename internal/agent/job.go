package agent

import (
	"github.com/cuongbtq/print-relay/internal/api/dto"
	"github.com/cuongbtq/print-relay/internal/domain"
	"github.com/cuongbtq/print-relay/internal/realtime"
)

// Job is a ready job as the executor sees it, from either the push channel or the pull endpoint
type Job struct {
	ID           int64
	DocumentName string
	DocumentURL  string
	PrinterName  string
	Copies       int
	Duplex       bool
	Orientation  domain.Orientation
	Payload      *domain.PreparedPayload
}

func jobFromEvent(e realtime.JobReady) Job {
	return Job{
		ID:           e.ID,
		DocumentName: e.DocumentName,
		DocumentURL:  e.DocumentURL,
		PrinterName:  e.PrinterName,
		Copies:       e.Copies,
		Duplex:       e.Duplex,
		Orientation:  e.Orientation,
		Payload:      e.PreparedPayload,
	}
}

func jobFromSummary(s dto.ReadyJobDTO) Job {
	return Job{
		ID:           s.ID,
		DocumentName: s.DocumentName,
		DocumentURL:  s.DocumentURL,
		PrinterName:  s.PrinterName,
		Copies:       s.Copies,
		Duplex:       s.Duplex,
		Orientation:  s.Orientation,
		Payload:      s.PreparedPayload,
	}
}

// recentSet remembers the last few finished job ids so late push events are not re-executed
type recentSet struct {
	ids   map[int64]struct{}
	order []int64
	max   int
}

func newRecentSet(max int) *recentSet {
	return &recentSet{ids: make(map[int64]struct{}, max), max: max}
}

func (r *recentSet) add(id int64) {
	if _, ok := r.ids[id]; ok {
		return
	}
	if len(r.order) >= r.max {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.ids, oldest)
	}
	r.ids[id] = struct{}{}
	r.order = append(r.order, id)
}

func (r *recentSet) contains(id int64) bool {
	_, ok := r.ids[id]
	return ok
}
