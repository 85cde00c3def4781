package bookline

import (
	"context"
	"testing"

	"github.com/bookline/bookline/pkg/bookline/compensate"
	"github.com/bookline/bookline/pkg/bookline/infer"
	"github.com/bookline/bookline/pkg/bookline/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func journalCtx(t *testing.T, r repo.Repository, journal compensate.Store) Context {
	t.Helper()
	return NewContext(context.Background(),
		WithRepo(r),
		WithInfer(infer.NewScript()),
		WithJournal(journal),
		WithSessionID("sess-1"),
	)
}

func bookableState(t *testing.T, m *repo.MemoryRepository) (State, repo.Slot) {
	t.Helper()
	slot, err := m.CreateSlot(context.Background(), repo.Slot{
		ProviderID:   1,
		ProviderName: "Dr. Okafor",
		Date:         "2025-09-10",
		StartTime:    "10:00",
		EndTime:      "11:00",
		ServiceID:    1,
	})
	require.NoError(t, err)

	s := NewState("sess-1")
	s.Stage = StageProceedToBooking
	s.Service.ServiceType = "Consultation"
	s.TimePrefs = TimePreferences{PreferredDate: "2025-09-10", PreferredTime: "10:00"}
	s.Contact = ContactInfo{SeekerName: "Sam", SeekerContact: "555-1234"}
	s.SelectedSlot = &slot
	return s, slot
}

func TestBooking_CommitMarksAppointmentAndSlot(t *testing.T) {
	m := repo.NewMemoryRepository()
	s, slot := bookableState(t, m)

	out, err := bookNode(journalCtx(t, m, nil), s)

	require.NoError(t, err)
	assert.Equal(t, StageBookingComplete, out.Stage)
	assert.Empty(t, out.LastError)
	require.NotZero(t, out.AppointmentID)

	// After a successful booking, the appointment is booked AND its slot
	// is no longer available.
	appt, err := m.GetAppointment(context.Background(), out.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, repo.AppointmentBooked, appt.Status)
	assert.Equal(t, "2025-09-10 10:00:00", appt.ScheduledTime)
	assert.Equal(t, int64(placeholderSeekerID), appt.SeekerID)

	slots, err := m.FindSlots(context.Background(), repo.SlotQuery{Date: slot.Date, StartTime: slot.StartTime})
	require.NoError(t, err)
	assert.Empty(t, slots, "booked slot must not be findable as available")

	assert.Contains(t, out.ConfirmationText, "has been booked!")
	assert.Contains(t, out.ConfirmationText, "Dr. Okafor")
}

func TestBooking_FailsFastWithoutSlotOrContact(t *testing.T) {
	m := repo.NewMemoryRepository()

	s := NewState("sess-1")
	s.Stage = StageProceedToBooking
	s.Contact.SeekerContact = "555-1234"

	out, err := bookNode(journalCtx(t, m, nil), s)
	require.NoError(t, err)
	assert.Equal(t, StageBookingComplete, out.Stage)
	assert.NotEmpty(t, out.LastError)
	assert.Zero(t, out.AppointmentID)

	s2, _ := bookableState(t, m)
	s2.Contact.SeekerContact = ""

	out2, err := bookNode(journalCtx(t, m, nil), s2)
	require.NoError(t, err)
	assert.NotEmpty(t, out2.LastError)
	assert.Zero(t, out2.AppointmentID)

	// Fail-fast means no commit was attempted.
	_, err = m.GetAppointment(context.Background(), 1)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestBooking_SlotAlreadyTakenVoidsAppointment(t *testing.T) {
	m := repo.NewMemoryRepository()
	journal := compensate.NewMemoryStore()
	s, slot := bookableState(t, m)

	// Another session wins the slot first.
	claimed, err := m.ClaimSlot(context.Background(), slot.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	out, err := bookNode(journalCtx(t, m, journal), s)

	require.NoError(t, err)
	assert.Equal(t, StageBookingComplete, out.Stage)
	assert.Contains(t, out.LastError, "no longer available")
	assert.Zero(t, out.AppointmentID)
	assert.Empty(t, out.ConfirmationText)

	// The half-committed appointment was voided, not left booked.
	appt, err := m.GetAppointment(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, repo.AppointmentCancelled, appt.Status)
}

func TestBooking_CancelReleasesSlotAndAppointment(t *testing.T) {
	m := repo.NewMemoryRepository()

	slot, err := m.CreateSlot(context.Background(), repo.Slot{
		ProviderID: 1, Date: "2025-09-10", StartTime: "10:00", EndTime: "11:00",
		Status: repo.SlotBooked,
	})
	require.NoError(t, err)

	apptID, err := m.CreateAppointment(context.Background(), repo.Appointment{
		ProviderID: 1, SlotID: slot.ID,
		ScheduledTime: "2025-09-10 10:00:00",
		Status:        repo.AppointmentBooked,
	})
	require.NoError(t, err)

	s := NewState("sess-1")
	s.Stage = StageCancelling
	s.CancelRequested = true
	s.OldAppointmentID = apptID
	s.OldSelectedSlot = &slot

	out, err := bookNode(journalCtx(t, m, nil), s)

	require.NoError(t, err)
	assert.Equal(t, StageCancellationComplete, out.Stage)
	assert.Contains(t, out.ConfirmationText, "has been cancelled!")

	appt, err := m.GetAppointment(context.Background(), apptID)
	require.NoError(t, err)
	assert.Equal(t, repo.AppointmentCancelled, appt.Status)

	slots, err := m.FindSlots(context.Background(), repo.SlotQuery{Date: slot.Date, StartTime: slot.StartTime})
	require.NoError(t, err)
	require.Len(t, slots, 1, "cancelled slot must be available again")

	assert.False(t, out.CancelRequested)
	assert.Zero(t, out.OldAppointmentID)
	assert.Nil(t, out.OldSelectedSlot)
}

func TestBooking_CancelJournalsPartialFailures(t *testing.T) {
	m := repo.NewMemoryRepository()
	journal := compensate.NewMemoryStore()

	// Neither the appointment nor the slot exists; both actions fail and
	// both land in the journal, and the turn still completes.
	ghost := repo.Slot{ID: 999}
	s := NewState("sess-1")
	s.Stage = StageCancelling
	s.CancelRequested = true
	s.OldAppointmentID = 888
	s.OldSelectedSlot = &ghost

	out, err := bookNode(journalCtx(t, m, journal), s)

	require.NoError(t, err)
	assert.Equal(t, StageCancellationComplete, out.Stage)

	pending, err := journal.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, compensate.KindCancelAppointment, pending[0].Kind)
	assert.Equal(t, int64(888), pending[0].TargetID)
	assert.Equal(t, compensate.KindReleaseSlot, pending[1].Kind)
	assert.Equal(t, int64(999), pending[1].TargetID)
}

func TestBooking_RescheduleCleansUpOldBooking(t *testing.T) {
	m := repo.NewMemoryRepository()

	oldSlot, err := m.CreateSlot(context.Background(), repo.Slot{
		ProviderID: 1, Date: "2025-09-10", StartTime: "10:00", EndTime: "11:00",
		Status: repo.SlotBooked,
	})
	require.NoError(t, err)
	oldApptID, err := m.CreateAppointment(context.Background(), repo.Appointment{
		ProviderID: 1, SlotID: oldSlot.ID,
		ScheduledTime: "2025-09-10 10:00:00",
		Status:        repo.AppointmentBooked,
	})
	require.NoError(t, err)

	newSlot, err := m.CreateSlot(context.Background(), repo.Slot{
		ProviderID: 2, ProviderName: "Dr. Virtanen",
		Date: "2025-09-12", StartTime: "14:00", EndTime: "15:00",
	})
	require.NoError(t, err)

	s := NewState("sess-1")
	s.Stage = StageProceedToBooking
	s.Contact = ContactInfo{SeekerName: "Sam", SeekerContact: "555-1234"}
	s.SelectedSlot = &newSlot
	s.OldSelectedSlot = &oldSlot
	s.OldAppointmentID = oldApptID
	s.RescheduleRequested = true

	out, err := bookNode(journalCtx(t, m, nil), s)

	require.NoError(t, err)
	assert.Equal(t, StageBookingComplete, out.Stage)
	assert.Contains(t, out.ConfirmationText, "rescheduled!")

	oldAppt, err := m.GetAppointment(context.Background(), oldApptID)
	require.NoError(t, err)
	assert.Equal(t, repo.AppointmentCancelled, oldAppt.Status)

	released, err := m.FindSlots(context.Background(), repo.SlotQuery{Date: "2025-09-10", StartTime: "10:00"})
	require.NoError(t, err)
	assert.Len(t, released, 1, "old slot must be available again")

	claimed, err := m.ClaimSlot(context.Background(), newSlot.ID)
	require.NoError(t, err)
	assert.False(t, claimed, "new slot must already be booked")

	assert.False(t, out.RescheduleRequested)
	assert.Zero(t, out.OldAppointmentID)
	assert.Nil(t, out.OldSelectedSlot)
}
