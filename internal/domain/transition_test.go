package domain

import (
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckReport(t *testing.T) {
	tests := []struct {
		name        string
		from        JobStatus
		to          JobStatus
		wantChanged bool
		wantErr     error
	}{
		{name: "ready to processing", from: JobStatusReady, to: JobStatusProcessing, wantChanged: true},
		{name: "ready to completed", from: JobStatusReady, to: JobStatusCompleted, wantChanged: true},
		{name: "ready to failed", from: JobStatusReady, to: JobStatusFailed, wantChanged: true},
		{name: "processing to completed", from: JobStatusProcessing, to: JobStatusCompleted, wantChanged: true},
		{name: "processing to failed", from: JobStatusProcessing, to: JobStatusFailed, wantChanged: true},
		{name: "processing again", from: JobStatusProcessing, to: JobStatusProcessing, wantErr: ErrInvalidTransition},
		{name: "completed again", from: JobStatusCompleted, to: JobStatusCompleted},
		{name: "failed again", from: JobStatusFailed, to: JobStatusFailed},
		{name: "completed to failed", from: JobStatusCompleted, to: JobStatusFailed, wantErr: ErrInvalidTransition},
		{name: "failed to completed", from: JobStatusFailed, to: JobStatusCompleted, wantErr: ErrInvalidTransition},
		{name: "completed to processing", from: JobStatusCompleted, to: JobStatusProcessing, wantErr: ErrInvalidTransition},
		{name: "pending to processing", from: JobStatusPending, to: JobStatusProcessing, wantErr: ErrInvalidTransition},
		{name: "pending to failed", from: JobStatusPending, to: JobStatusFailed, wantErr: ErrInvalidTransition},
		{name: "ready is not reportable", from: JobStatusPending, to: JobStatusReady, wantErr: ErrValidation},
		{name: "pending is not reportable", from: JobStatusReady, to: JobStatusPending, wantErr: ErrValidation},
		{name: "unknown status", from: JobStatusReady, to: JobStatus("printing"), wantErr: ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed, err := CheckReport(tt.from, tt.to)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.False(t, changed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantChanged, changed)
		})
	}
}

func TestInvalidTransitionIsInvalidState(t *testing.T) {
	_, err := CheckReport(JobStatusCompleted, JobStatusFailed)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.NotErrorIs(t, err, ErrValidation)
}

func TestCanTransition_NeverBackward(t *testing.T) {
	order := map[JobStatus]int{
		JobStatusPending:    0,
		JobStatusReady:      1,
		JobStatusProcessing: 2,
		JobStatusCompleted:  3,
		JobStatusFailed:     3,
	}

	for from := range order {
		for to := range order {
			if CanTransition(from, to) {
				assert.Greater(t, order[to], order[from], "%s -> %s", from, to)
			}
		}
	}

	assert.False(t, CanTransition(JobStatusPending, JobStatusProcessing), "ready must not be skipped")
	assert.False(t, CanTransition(JobStatusPending, JobStatusCompleted), "ready must not be skipped")
}

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.False(t, JobStatusReady.IsTerminal())
	assert.False(t, JobStatusProcessing.IsTerminal())
}

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "short", in: "jam", max: 5, want: "jam"},
		{name: "ascii cut", in: "paper jam", max: 5, want: "paper"},
		{name: "cut inside two-byte rune", in: "abcé", max: 4, want: "abc"},
		{name: "cut after two-byte rune", in: "abcéd", max: 5, want: "abcé"},
		{name: "cut inside four-byte rune", in: "a🖨b", max: 3, want: "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateUTF8(tt.in, tt.max)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
