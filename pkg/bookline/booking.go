package bookline

import (
	"fmt"

	"github.com/bookline/bookline/pkg/bookline/compensate"
	"github.com/bookline/bookline/pkg/bookline/observability"
	"github.com/bookline/bookline/pkg/bookline/repo"
)

// placeholderSeekerID is stamped on every created appointment. Seeker
// accounts are not modeled; all bookings are filed under this one fixed
// placeholder account, and the gathered name and contact ride in the
// appointment notes instead.
const placeholderSeekerID = 5

// bookNode commits, reschedules, or cancels a reservation. Branches are
// evaluated in a fixed order: cancellation first, then the fail-fast
// validation, then the booking commit with optional old-booking cleanup.
func bookNode(ctx Context, s State) (State, error) {
	if ctx.Repo() == nil {
		s.LastError = "booking storage is unavailable"
		s.Stage = StageBookingComplete
		return s, nil
	}

	if s.CancelRequested {
		return cancelBooking(ctx, s), nil
	}

	if s.SelectedSlot == nil || s.Contact.SeekerContact == "" {
		s.LastError = "cannot book without a selected slot and contact details"
		s.Stage = StageBookingComplete
		return s, nil
	}

	return commitBooking(ctx, s), nil
}

// cancelBooking releases the parked booking. Both sub-actions are
// best-effort: a failure is journaled for retry, never aborts the other.
func cancelBooking(ctx Context, s State) State {
	old := s.OldSelectedSlot

	if s.OldAppointmentID != 0 {
		compensateOnFailure(ctx, compensate.KindCancelAppointment, s.OldAppointmentID,
			func() (bool, error) {
				return ctx.Repo().UpdateAppointmentStatus(ctx, s.OldAppointmentID, repo.AppointmentCancelled)
			})
	}
	if old != nil {
		compensateOnFailure(ctx, compensate.KindReleaseSlot, old.ID,
			func() (bool, error) {
				return ctx.Repo().UpdateSlotStatus(ctx, old.ID, repo.SlotAvailable)
			})
	}

	s.ConfirmationText = cancellationMessage(old, s.OldAppointmentID)
	s.OldSelectedSlot = nil
	s.OldAppointmentID = 0
	s.SelectedSlot = nil
	s.AppointmentID = 0
	s.CancelRequested = false
	s.Stage = StageCancellationComplete
	return s
}

// commitBooking creates the appointment, claims the slot, and on a
// reschedule cleans up the superseded booking.
func commitBooking(ctx Context, s State) State {
	slot := *s.SelectedSlot
	scheduled := slot.Date + " " + slot.StartTime + ":00"

	appointmentID, err := ctx.Repo().CreateAppointment(ctx, repo.Appointment{
		TypeID:        slot.ServiceID,
		SeekerID:      placeholderSeekerID,
		ProviderID:    slot.ProviderID,
		SlotID:        slot.ID,
		ScheduledTime: scheduled,
		Status:        repo.AppointmentBooked,
		Notes:         bookingNotes(s),
	})
	if err != nil {
		ctx.Logger().Error("appointment creation failed", "error", err.Error())
		s.LastError = "could not create the appointment: " + err.Error()
		s.Stage = StageBookingComplete
		return s
	}

	// Conditional claim: only an available slot can move to booked, so two
	// sessions racing for the same slot cannot both succeed.
	claimed, err := ctx.Repo().ClaimSlot(ctx, slot.ID)
	if err != nil || !claimed {
		// The appointment row exists but holds no slot; void it so the
		// booking is not half-committed.
		compensateOnFailure(ctx, compensate.KindVoidAppointment, appointmentID,
			func() (bool, error) {
				return ctx.Repo().UpdateAppointmentStatus(ctx, appointmentID, repo.AppointmentCancelled)
			})
		if err != nil {
			s.LastError = "could not reserve the slot: " + err.Error()
		} else {
			s.LastError = fmt.Sprintf("slot %d is no longer available", slot.ID)
		}
		s.Stage = StageBookingComplete
		return s
	}

	observability.LogBooking(ctx.Logger(), ctx.SessionID(), appointmentID, slot.ID)

	rescheduled := s.RescheduleRequested
	if rescheduled {
		if s.OldAppointmentID != 0 {
			oldID := s.OldAppointmentID
			compensateOnFailure(ctx, compensate.KindCancelAppointment, oldID,
				func() (bool, error) {
					return ctx.Repo().UpdateAppointmentStatus(ctx, oldID, repo.AppointmentCancelled)
				})
		}
		if s.OldSelectedSlot != nil {
			oldSlot := s.OldSelectedSlot.ID
			compensateOnFailure(ctx, compensate.KindReleaseSlot, oldSlot,
				func() (bool, error) {
					return ctx.Repo().UpdateSlotStatus(ctx, oldSlot, repo.SlotAvailable)
				})
		}
		s.OldSelectedSlot = nil
		s.OldAppointmentID = 0
		s.RescheduleRequested = false
	}

	s.AppointmentID = appointmentID
	s.LastError = ""
	s.ConfirmationText = bookingMessage(slot, appointmentID, scheduled, rescheduled)
	s.Stage = StageBookingComplete
	return s
}

// compensateOnFailure attempts a best-effort repository action and, if it
// fails, journals a pending entry so the compensation runner retries it.
func compensateOnFailure(ctx Context, kind compensate.Kind, targetID int64, action func() (bool, error)) {
	ok, err := action()
	if err == nil && ok {
		return
	}
	if err == nil {
		err = repo.ErrNotFound
	}

	ctx.Logger().Warn("compensating action failed",
		"kind", string(kind), "target_id", targetID, "error", err.Error())

	journal := ctx.Journal()
	if journal == nil {
		return
	}
	entry := compensate.NewEntry(ctx.SessionID(), kind, targetID)
	entry.LastError = err.Error()
	if jErr := journal.Append(ctx, entry); jErr != nil {
		ctx.Logger().Error("journal append failed",
			"kind", string(kind), "target_id", targetID, "error", jErr.Error())
	}
}

func bookingNotes(s State) string {
	return fmt.Sprintf("booked for %s (%s) via conversation %s",
		s.Contact.SeekerName, s.Contact.SeekerContact, s.SessionID)
}

func bookingMessage(slot repo.Slot, appointmentID int64, scheduled string, rescheduled bool) string {
	headline := "Your appointment has been booked!"
	if rescheduled {
		headline = "Your appointment has been rescheduled!"
	}
	return fmt.Sprintf("%s\nProvider ID : %d\nProvider Name : %s\nScheduled Time : %s\nAppointment ID : %d",
		headline, slot.ProviderID, slot.ProviderName, scheduled, appointmentID)
}

func cancellationMessage(old *repo.Slot, appointmentID int64) string {
	providerID := int64(0)
	providerName := ""
	scheduled := ""
	if old != nil {
		providerID = old.ProviderID
		providerName = old.ProviderName
		scheduled = old.Date + " " + old.StartTime + ":00"
	}
	return fmt.Sprintf("Your appointment has been cancelled!\nProvider ID : %d\nProvider Name : %s\nScheduled Time : %s\nAppointment ID : %d",
		providerID, providerName, scheduled, appointmentID)
}
