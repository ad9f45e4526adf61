package realtime

import (
	"testing"

	"github.com/cuongbtq/print-relay/internal/domain"
	"github.com/cuongbtq/print-relay/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher() *Dispatcher {
	log := logger.NewDiscard().Logger
	return NewDispatcher(NewRegistry(log), NewPendingQueue(100, 0, log), log)
}

func readyJob(id int64) *domain.PrintJob {
	return &domain.PrintJob{
		ID:                id,
		OwnerID:           7,
		DocumentURL:       "https://files.example.com/a.pdf",
		DocumentName:      "a.pdf",
		Status:            domain.JobStatusReady,
		PrinterName:       "Front Desk",
		PrinterExternalID: "front-desk",
		Options:           domain.RenderOptions{Copies: 2, Orientation: domain.OrientationPortrait},
		Payload:           &domain.PreparedPayload{PrinterName: "Front Desk"},
	}
}

func jobIDs(t *testing.T, events []Envelope) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(events))
	for _, env := range events {
		require.Equal(t, EventJobReady, env.Event)
		var ready JobReady
		require.NoError(t, env.Decode(&ready))
		ids = append(ids, ready.ID)
	}
	return ids
}

func TestDispatch_PushesToLiveSession(t *testing.T) {
	d := newTestDispatcher()
	conn := newFakeConn("a")
	accepted, _ := d.Attach(7, conn, d.Registry().NextSeq())
	require.True(t, accepted)

	d.Dispatch(readyJob(1), 7)

	events := conn.events()
	require.Len(t, events, 1)

	var ready JobReady
	require.NoError(t, events[0].Decode(&ready))
	assert.Equal(t, int64(1), ready.ID)
	assert.Equal(t, "front-desk", ready.PrinterExternalID)
	assert.Equal(t, 2, ready.Copies)
	assert.Equal(t, domain.JobStatusReady, ready.Status)
	require.NotNil(t, ready.PreparedPayload)
	assert.False(t, ready.Timestamp.IsZero())
	assert.Zero(t, d.Pending().Len(7))
}

func TestDispatch_BuffersThenFlushesOnAttach(t *testing.T) {
	d := newTestDispatcher()

	d.Dispatch(readyJob(1), 7)
	assert.Equal(t, 1, d.Pending().Len(7))

	conn := newFakeConn("a")
	accepted, flushed := d.Attach(7, conn, d.Registry().NextSeq())
	require.True(t, accepted)
	assert.Equal(t, 1, flushed)
	assert.Equal(t, []int64{1}, jobIDs(t, conn.events()))
	assert.Zero(t, d.Pending().Len(7))
}

func TestDispatch_FlushKeepsArrivalOrder(t *testing.T) {
	d := newTestDispatcher()
	for id := int64(1); id <= 3; id++ {
		d.Dispatch(readyJob(id), 7)
	}

	conn := newFakeConn("a")
	_, flushed := d.Attach(7, conn, d.Registry().NextSeq())
	assert.Equal(t, 3, flushed)

	d.Dispatch(readyJob(4), 7)
	assert.Equal(t, []int64{1, 2, 3, 4}, jobIDs(t, conn.events()))
}

func TestDispatch_SendFailureBuffers(t *testing.T) {
	d := newTestDispatcher()
	conn := newFakeConn("a")
	conn.capacity = 0
	_, _ = d.Attach(7, conn, d.Registry().NextSeq())

	d.Dispatch(readyJob(1), 7)
	assert.Equal(t, 1, d.Pending().Len(7))
}

func TestDispatch_DeadSessionBuffers(t *testing.T) {
	d := newTestDispatcher()
	conn := newFakeConn("a")
	_, _ = d.Attach(7, conn, d.Registry().NextSeq())
	conn.kill()

	d.Dispatch(readyJob(1), 7)
	assert.Equal(t, 1, d.Pending().Len(7))
	assert.Zero(t, d.Registry().Count())
}

func TestAttach_PartialFlushRequeues(t *testing.T) {
	d := newTestDispatcher()
	for id := int64(1); id <= 3; id++ {
		d.Dispatch(readyJob(id), 7)
	}

	conn := newFakeConn("a")
	conn.capacity = 1
	accepted, flushed := d.Attach(7, conn, d.Registry().NextSeq())
	require.True(t, accepted)
	assert.Equal(t, 1, flushed)
	assert.Equal(t, 2, d.Pending().Len(7))

	next := newFakeConn("b")
	_, flushed = d.Attach(7, next, d.Registry().NextSeq())
	assert.Equal(t, 2, flushed)
	assert.Equal(t, []int64{2, 3}, jobIDs(t, next.events()))
}

func TestAttach_StaleRegistrationKeepsPending(t *testing.T) {
	d := newTestDispatcher()
	old := d.Registry().NextSeq()
	_, _ = d.Attach(7, newFakeConn("b"), d.Registry().NextSeq())

	d.Pending().Enqueue(7, Envelope{Event: EventJobReady})

	accepted, flushed := d.Attach(7, newFakeConn("a"), old)
	assert.False(t, accepted)
	assert.Zero(t, flushed)
	assert.Equal(t, 1, d.Pending().Len(7))
}

func TestDetach(t *testing.T) {
	d := newTestDispatcher()
	_, _ = d.Attach(7, newFakeConn("a"), d.Registry().NextSeq())

	assert.False(t, d.Detach(7, "other"))
	assert.True(t, d.Detach(7, "a"))

	d.Dispatch(readyJob(1), 7)
	assert.Equal(t, 1, d.Pending().Len(7))
}
