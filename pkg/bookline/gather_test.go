package bookline

import (
	"context"
	"testing"

	"github.com/bookline/bookline/pkg/bookline/infer"
	"github.com/bookline/bookline/pkg/bookline/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCtx(t *testing.T, r repo.Repository, client infer.Client) Context {
	t.Helper()
	return NewContext(context.Background(),
		WithRepo(r),
		WithInfer(client),
		WithSessionID("sess-1"),
	)
}

func catalogRepo(t *testing.T) *repo.MemoryRepository {
	t.Helper()
	m := repo.NewMemoryRepository()
	for _, name := range []string{"Consultation", "Therapy"} {
		_, err := m.CreateService(context.Background(), repo.Service{ProviderID: 1, Name: name})
		require.NoError(t, err)
	}
	return m
}

func TestGather_AllFieldsInOneMessage(t *testing.T) {
	script := infer.NewScript().
		QueueExtract(infer.Fields{
			ServiceType:   "Consultation",
			PreferredDate: "2025-09-10",
			PreferredTime: "10:00",
			SeekerName:    "Sam",
			SeekerContact: "555-1234",
		}).
		QueueReply("Great, a Consultation for Sam on 2025-09-10. Let me check availability.")

	s := NewState("sess-1").WithUserMessage("I need a consultation tomorrow, I'm Sam, call me at 555-1234")
	out, err := gatherNode(testCtx(t, catalogRepo(t), script), s)

	require.NoError(t, err)
	assert.Equal(t, StageProceedToFetchSlots, out.Stage)
	assert.Empty(t, out.MissingFields)
	assert.Equal(t, "Sam", out.Contact.SeekerName)
	assert.Contains(t, out.LastReply(), "Consultation")
}

func TestGather_AsksForHighestPrecedenceMissing(t *testing.T) {
	// Only service and date provided; the name is asked for first, and a
	// generation failure falls back to the static question.
	script := infer.NewScript().
		QueueExtract(infer.Fields{ServiceType: "Therapy", PreferredDate: "2025-09-10"})

	s := NewState("sess-1").WithUserMessage("therapy on the 10th please")
	out, err := gatherNode(testCtx(t, catalogRepo(t), script), s)

	require.NoError(t, err)
	assert.Equal(t, []string{fieldSeekerName, fieldSeekerContact}, out.MissingFields)
	assert.Equal(t, StageGatheringTime, out.Stage)
	assert.Equal(t, fallbackQuestions[fieldSeekerName], out.LastReply())
}

func TestGather_ContactMapsToContactStage(t *testing.T) {
	script := infer.NewScript().
		QueueExtract(infer.Fields{
			ServiceType:   "Therapy",
			PreferredDate: "2025-09-10",
			SeekerName:    "Ana",
		})

	s := NewState("sess-1").WithUserMessage("I'm Ana")
	out, err := gatherNode(testCtx(t, catalogRepo(t), script), s)

	require.NoError(t, err)
	assert.Equal(t, []string{fieldSeekerContact}, out.MissingFields)
	assert.Equal(t, StageGatheringContact, out.Stage)
	assert.Equal(t, fallbackQuestions[fieldSeekerContact], out.LastReply())
}

func TestGather_ExtractionFailureTreatedAsEmpty(t *testing.T) {
	// An exhausted script fails every call: extraction degrades to "nothing
	// extracted" and the question falls back to the static template.
	s := NewState("sess-1").WithUserMessage("hello")
	out, err := gatherNode(testCtx(t, catalogRepo(t), infer.NewScript()), s)

	require.NoError(t, err)
	assert.Equal(t, StageGatheringService, out.Stage)
	assert.Equal(t, fallbackQuestions[fieldServiceType], out.LastReply())
}

func TestGather_MergeNeverClearsKnownValues(t *testing.T) {
	s := NewState("sess-1")
	s.Service.ServiceType = "Therapy"
	s.Contact.SeekerName = "Ana"

	merged := mergeFields(s, infer.Fields{PreferredDate: "2025-09-12"})

	assert.Equal(t, "Therapy", merged.Service.ServiceType)
	assert.Equal(t, "Ana", merged.Contact.SeekerName)
	assert.Equal(t, "2025-09-12", merged.TimePrefs.PreferredDate)
}

func TestGather_MissingFieldsOnlyFromAbsentValues(t *testing.T) {
	states := []State{
		NewState("a"),
		{Service: ServiceInfo{ServiceType: "x"}},
		{TimePrefs: TimePreferences{PreferredDate: "2025-01-01"}},
		{Contact: ContactInfo{SeekerName: "n", SeekerContact: "c"}},
		{
			Service:   ServiceInfo{ServiceType: "x"},
			TimePrefs: TimePreferences{PreferredDate: "2025-01-01"},
			Contact:   ContactInfo{SeekerName: "n", SeekerContact: "c"},
		},
	}

	for _, s := range states {
		missing := missingFields(s)
		if s.Service.ServiceType != "" {
			assert.NotContains(t, missing, fieldServiceType)
		}
		if s.TimePrefs.PreferredDate != "" {
			assert.NotContains(t, missing, fieldPreferredDate)
		}
		if s.Contact.SeekerName != "" {
			assert.NotContains(t, missing, fieldSeekerName)
		}
		if s.Contact.SeekerContact != "" {
			assert.NotContains(t, missing, fieldSeekerContact)
		}
	}
}

func TestGather_UnknownServiceListsCatalog(t *testing.T) {
	script := infer.NewScript().
		QueueExtract(infer.Fields{
			ServiceType:   "massage",
			PreferredDate: "2025-09-10",
			SeekerName:    "Sam",
			SeekerContact: "555-1234",
		})

	s := NewState("sess-1").WithUserMessage("a massage please")
	out, err := gatherNode(testCtx(t, catalogRepo(t), script), s)

	require.NoError(t, err)
	assert.Equal(t, StageGatheringService, out.Stage)
	assert.Contains(t, out.LastReply(), "Consultation")
	assert.Contains(t, out.LastReply(), "Therapy")
}

func TestGather_ServiceMatchIsCaseInsensitive(t *testing.T) {
	script := infer.NewScript().
		QueueExtract(infer.Fields{
			ServiceType:   "consultation",
			PreferredDate: "2025-09-10",
			SeekerName:    "Sam",
			SeekerContact: "555-1234",
		}).
		QueueReply("Confirmed.")

	s := NewState("sess-1").WithUserMessage("a consultation please")
	out, err := gatherNode(testCtx(t, catalogRepo(t), script), s)

	require.NoError(t, err)
	assert.Equal(t, StageProceedToFetchSlots, out.Stage)
}

func TestGather_PresentSlots(t *testing.T) {
	s := NewState("sess-1")
	s.Stage = StageSlotsFetched
	s.AvailableSlots = []repo.Slot{
		{ID: 3001, Date: "2025-09-10", StartTime: "10:00", EndTime: "11:00", ProviderName: "Dr. Okafor"},
		{ID: 3002, Date: "2025-09-10", StartTime: "11:00", EndTime: "12:00", ProviderName: "Dr. Virtanen"},
	}

	out, err := gatherNode(testCtx(t, nil, nil), s)

	require.NoError(t, err)
	assert.Equal(t, StageConfirmingSlots, out.Stage)
	assert.Contains(t, out.LastReply(), "[3001]")
	assert.Contains(t, out.LastReply(), "Dr. Virtanen")
}

func TestGather_ConfirmSlotSelects(t *testing.T) {
	s := NewState("sess-1")
	s.Stage = StageConfirmingSlots
	s.AvailableSlots = []repo.Slot{
		{ID: 3001, Date: "2025-09-10", StartTime: "10:00", EndTime: "11:00"},
	}
	s = s.WithUserMessage(" 3001 ")

	out, err := gatherNode(testCtx(t, nil, nil), s)

	require.NoError(t, err)
	assert.Equal(t, StageProceedToBooking, out.Stage)
	require.NotNil(t, out.SelectedSlot)
	assert.Equal(t, int64(3001), out.SelectedSlot.ID)
}

func TestGather_ConfirmSlotRejectsUnknownID(t *testing.T) {
	s := NewState("sess-1")
	s.Stage = StageConfirmingSlots
	s.AvailableSlots = []repo.Slot{
		{ID: 1, Date: "2025-09-10", StartTime: "10:00", EndTime: "11:00"},
	}
	s = s.WithUserMessage("3001")

	out, err := gatherNode(testCtx(t, nil, nil), s)

	require.NoError(t, err)
	assert.Equal(t, StageConfirmingSlots, out.Stage)
	assert.Nil(t, out.SelectedSlot)
	assert.Contains(t, out.LastReply(), "could not match")
}

func TestGather_ConfirmSlotRejectsNonNumeric(t *testing.T) {
	s := NewState("sess-1")
	s.Stage = StageConfirmingSlots
	s.AvailableSlots = []repo.Slot{{ID: 1}}
	s = s.WithUserMessage("the first one")

	out, err := gatherNode(testCtx(t, nil, nil), s)

	require.NoError(t, err)
	assert.Equal(t, StageConfirmingSlots, out.Stage)
	assert.Nil(t, out.SelectedSlot)
}

func TestGather_NoSlotAvailableRegressesToTime(t *testing.T) {
	s := NewState("sess-1")
	s.Stage = StageNoSlotAvailable

	out, err := gatherNode(testCtx(t, nil, infer.NewScript()), s)

	require.NoError(t, err)
	assert.Equal(t, StageGatheringTime, out.Stage)
	assert.Contains(t, out.LastReply(), "alternative")
}

func TestGather_RescheduleParksCurrentBooking(t *testing.T) {
	slot := repo.Slot{ID: 7, Date: "2025-09-10", StartTime: "10:00", EndTime: "11:00"}

	s := NewState("sess-1")
	s.Stage = StageRescheduling
	s.SelectedSlot = &slot
	s.AppointmentID = 42
	s.TimePrefs = TimePreferences{PreferredDate: "2025-09-10", PreferredTime: "10:00"}

	out, err := gatherNode(testCtx(t, nil, nil), s)

	require.NoError(t, err)
	assert.Equal(t, StageGatheringTime, out.Stage)
	assert.True(t, out.RescheduleRequested)
	assert.Equal(t, int64(42), out.OldAppointmentID)
	require.NotNil(t, out.OldSelectedSlot)
	assert.Equal(t, int64(7), out.OldSelectedSlot.ID)
	assert.Nil(t, out.SelectedSlot)
	assert.Zero(t, out.AppointmentID)
	assert.Empty(t, out.TimePrefs.PreferredDate)
}

func TestGather_CancelSetsFlagAndKeepsStage(t *testing.T) {
	slot := repo.Slot{ID: 7}

	s := NewState("sess-1")
	s.Stage = StageCancelling
	s.SelectedSlot = &slot
	s.AppointmentID = 42

	out, err := gatherNode(testCtx(t, nil, nil), s)

	require.NoError(t, err)
	assert.Equal(t, StageCancelling, out.Stage)
	assert.True(t, out.CancelRequested)
	assert.Equal(t, int64(42), out.OldAppointmentID)
	require.NotNil(t, out.OldSelectedSlot)
}

func TestGather_BookingCompleteAppendsConfirmation(t *testing.T) {
	s := NewState("sess-1")
	s.Stage = StageBookingComplete
	s.ConfirmationText = "Your appointment has been booked!"

	out, err := gatherNode(testCtx(t, nil, nil), s)

	require.NoError(t, err)
	assert.Equal(t, StageBookingComplete, out.Stage)
	assert.Equal(t, "Your appointment has been booked!", out.LastReply())
}

func TestGather_BookingCompleteSurfacesError(t *testing.T) {
	s := NewState("sess-1")
	s.Stage = StageBookingComplete
	s.LastError = "slot 9 is no longer available"

	out, err := gatherNode(testCtx(t, nil, nil), s)

	require.NoError(t, err)
	assert.Contains(t, out.LastReply(), "slot 9 is no longer available")
}

func TestGather_UnknownStageFallsBackToGathering(t *testing.T) {
	s := NewState("sess-1")
	s.Stage = Stage("made_up_stage")
	s = s.WithUserMessage("hello")

	out, err := gatherNode(testCtx(t, catalogRepo(t), infer.NewScript()), s)

	require.NoError(t, err)
	assert.Equal(t, StageGatheringService, out.Stage)
	assert.NotEmpty(t, out.LastReply())
}
