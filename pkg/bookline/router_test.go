package bookline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		name    string
		stage   Stage
		missing []string
		want    string
	}{
		{"missing fields win over stage", StageProceedToBooking, []string{fieldSeekerContact}, NodeGather},
		{"missing fields during fetch", StageProceedToFetchSlots, []string{fieldPreferredDate}, NodeGather},
		{"fetch slots", StageProceedToFetchSlots, nil, NodeMatch},
		{"slots fetched stops", StageSlotsFetched, nil, StopTurn},
		{"booking", StageProceedToBooking, nil, NodeBook},
		{"cancelling", StageCancelling, nil, NodeBook},
		{"booking complete stops", StageBookingComplete, nil, StopTurn},
		{"missing fields win over stop", StageSlotsFetched, []string{fieldSeekerContact}, NodeGather},
		{"initial request", StageInitialRequest, nil, NodeGather},
		{"gathering time", StageGatheringTime, nil, NodeGather},
		{"confirming slots", StageConfirmingSlots, nil, NodeGather},
		{"no slot available", StageNoSlotAvailable, nil, NodeGather},
		{"rescheduling", StageRescheduling, nil, NodeGather},
		{"cancellation complete", StageCancellationComplete, nil, NodeGather},
		{"unknown stage defaults", Stage("made_up"), nil, NodeGather},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Route(tt.stage, tt.missing))
		})
	}
}

func TestRoute_Deterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.Equal(t, NodeMatch, Route(StageProceedToFetchSlots, nil))
		assert.Equal(t, NodeBook, Route(StageCancelling, nil))
		assert.Equal(t, NodeGather, Route(StageCancelling, []string{fieldServiceType}))
	}
}
