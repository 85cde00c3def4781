package bookline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bookline/bookline/pkg/bookline/infer"
	"github.com/bookline/bookline/pkg/bookline/observability"
	"github.com/bookline/bookline/pkg/bookline/repo"
)

// Required booking fields, in precedence order. MissingFields is always
// recomputed from exactly these.
const (
	fieldServiceType   = "service_type"
	fieldPreferredDate = "preferred_date"
	fieldSeekerName    = "seeker_name"
	fieldSeekerContact = "seeker_contact"
)

// fallbackQuestions is used when follow-up generation fails. One static
// question per required field.
var fallbackQuestions = map[string]string{
	fieldServiceType:   "What type of service are you looking to book?",
	fieldPreferredDate: "What date would you like to come in?",
	fieldSeekerName:    "Can I get your name, please?",
	fieldSeekerContact: "What is the best phone number or email to reach you?",
}

// gatherNode is the information-gathering node. It dispatches on the
// current stage; stages it has no branch for fall through to field
// extraction rather than failing the turn.
func gatherNode(ctx Context, s State) (State, error) {
	switch s.Stage {
	case StageInitialRequest, StageConfirmingDetails, StageGatheringService,
		StageGatheringTime, StageGatheringContact:
		return gatherFields(ctx, s)

	case StageSlotsFetched:
		return presentSlots(s), nil

	case StageConfirmingSlots:
		return confirmSlot(s), nil

	case StageNoSlotAvailable:
		reply := generateOr(ctx, noSlotPrompt(s),
			"Unfortunately no slots match your requested time. Could you share an alternative date or time?")
		s = s.WithAssistantMessage(reply)
		s.Stage = StageGatheringTime
		return s, nil

	case StageBookingComplete:
		return appendFinalSummary(s), nil

	case StageRescheduling:
		return beginReschedule(s), nil

	case StageCancelling:
		return beginCancel(s), nil

	case StageCancellationComplete:
		return appendFinalSummary(s), nil

	default:
		// Unknown stage: degrade to gathering instead of failing the turn.
		ctx.Logger().Warn("unrecognized stage, defaulting to field gathering",
			"stage", string(s.Stage))
		return gatherFields(ctx, s)
	}
}

// gatherFields extracts booking fields from the raw user message, merges
// them into state, and either asks for the highest-precedence missing field,
// corrects an unknown service, or confirms and moves on to slot fetching.
func gatherFields(ctx Context, s State) (State, error) {
	catalog := serviceCatalog(ctx)

	s = mergeFields(s, extractFields(ctx, s, catalog))
	s.MissingFields = missingFields(s)

	if len(s.MissingFields) > 0 {
		field := s.MissingFields[0]
		question := generateOr(ctx, questionPrompt(s, field), fallbackQuestions[field])
		s = s.WithAssistantMessage(question)
		s.Stage = stageForField(field)
		return s, nil
	}

	// All fields present: the service must be one we actually offer. An
	// empty catalog means the lookup failed, in which case validation is
	// skipped rather than blocking the conversation.
	if len(catalog) > 0 && !knownService(catalog, s.Service.ServiceType) {
		correction := generateOr(ctx, correctionPrompt(s, catalog),
			fmt.Sprintf("Sorry, we do not offer %q. Our available services are: %s. Which one would you like?",
				s.Service.ServiceType, strings.Join(catalog, ", ")))
		s = s.WithAssistantMessage(correction)
		s.Stage = StageGatheringService
		return s, nil
	}

	confirmation := generateOr(ctx, confirmationPrompt(s),
		fmt.Sprintf("Great, I have everything I need: %s for %s on %s. Let me check the available slots.",
			s.Service.ServiceType, s.Contact.SeekerName, s.TimePrefs.PreferredDate))
	s = s.WithAssistantMessage(confirmation)
	s.Stage = StageProceedToFetchSlots
	return s, nil
}

// extractFields runs field extraction for the current message. Failures are
// treated as "nothing extracted".
func extractFields(ctx Context, s State, catalog []string) infer.Fields {
	client := ctx.Infer()
	if client == nil {
		return infer.Fields{}
	}

	// The full profile only applies while the service is still unknown;
	// it carries the catalog so the model can map the request onto it.
	profile := infer.ProfileReduced
	var services []string
	if s.Service.ServiceType == "" || s.Stage == StageGatheringService {
		profile = infer.ProfileFull
		services = catalog
	}

	fields, err := client.Extract(ctx, infer.ExtractRequest{
		Message:  s.RawInput,
		Profile:  profile,
		Services: services,
		Today:    time.Now().UTC().Format(repo.DateLayout),
	})
	if err != nil {
		observability.LogInferenceDegraded(ctx.Logger(), ctx.SessionID(), "extract", err)
		return infer.Fields{}
	}
	return fields
}

// mergeFields folds extracted values into state. A value already known is
// only overwritten by a non-empty new value, never cleared.
func mergeFields(s State, f infer.Fields) State {
	if f.ServiceType != "" {
		s.Service.ServiceType = f.ServiceType
	}
	if f.PreferredDate != "" {
		s.TimePrefs.PreferredDate = f.PreferredDate
	}
	if f.PreferredTime != "" {
		s.TimePrefs.PreferredTime = f.PreferredTime
	}
	if f.SeekerName != "" {
		s.Contact.SeekerName = f.SeekerName
	}
	if f.SeekerContact != "" {
		s.Contact.SeekerContact = f.SeekerContact
	}
	return s
}

// missingFields recomputes the required-field list from state, in
// precedence order.
func missingFields(s State) []string {
	var missing []string
	if s.Service.ServiceType == "" {
		missing = append(missing, fieldServiceType)
	}
	if s.TimePrefs.PreferredDate == "" {
		missing = append(missing, fieldPreferredDate)
	}
	if s.Contact.SeekerName == "" {
		missing = append(missing, fieldSeekerName)
	}
	if s.Contact.SeekerContact == "" {
		missing = append(missing, fieldSeekerContact)
	}
	return missing
}

// stageForField maps a missing field to the stage that gathers it.
func stageForField(field string) Stage {
	switch field {
	case fieldSeekerContact:
		return StageGatheringContact
	case fieldServiceType:
		return StageGatheringService
	default:
		return StageGatheringTime
	}
}

// serviceCatalog fetches the known service names. A lookup failure yields
// an empty catalog; callers treat that as "cannot validate".
func serviceCatalog(ctx Context) []string {
	r := ctx.Repo()
	if r == nil {
		return nil
	}
	names, err := r.ServiceNames(ctx)
	if err != nil {
		ctx.Logger().Warn("service catalog lookup failed", "error", err.Error())
		return nil
	}
	return names
}

// knownService reports whether name matches a catalog entry
// (case-insensitive).
func knownService(catalog []string, name string) bool {
	for _, c := range catalog {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// presentSlots enumerates the fetched slots and asks the user to pick one.
func presentSlots(s State) State {
	var b strings.Builder
	b.WriteString("Here are the available slots:\n")
	for _, slot := range s.AvailableSlots {
		b.WriteString(formatSlot(slot))
		b.WriteString("\n")
	}
	b.WriteString("Please reply with the id of the slot you would like.")

	s = s.WithAssistantMessage(b.String())
	s.Stage = StageConfirmingSlots
	return s
}

// confirmSlot parses the user message as a slot id and selects the matching
// entry. Anything that does not resolve to a listed slot re-prompts and
// stays in the same stage.
func confirmSlot(s State) State {
	id, err := strconv.ParseInt(strings.TrimSpace(s.RawInput), 10, 64)
	if err == nil {
		for i := range s.AvailableSlots {
			if s.AvailableSlots[i].ID == id {
				slot := s.AvailableSlots[i]
				s.SelectedSlot = &slot
				s = s.WithAssistantMessage(fmt.Sprintf("Booking slot %d on %s at %s for you now.",
					slot.ID, slot.Date, slot.StartTime))
				s.Stage = StageProceedToBooking
				return s
			}
		}
	}

	s = s.WithAssistantMessage("I could not match that to one of the listed slots. Please reply with one of the slot ids shown above.")
	return s
}

// beginReschedule regresses the session into time gathering with the
// reschedule flag set. The current booking is parked in the old_* fields
// until the replacement is committed.
func beginReschedule(s State) State {
	s.OldSelectedSlot = s.SelectedSlot
	s.OldAppointmentID = s.AppointmentID
	s.SelectedSlot = nil
	s.AppointmentID = 0
	s.TimePrefs = TimePreferences{}
	s.RescheduleRequested = true
	s.ConfirmationText = ""

	s = s.WithAssistantMessage("Sure, let's reschedule your appointment. What new date and time would you like?")
	s.Stage = StageGatheringTime
	return s
}

// beginCancel parks the current booking in the old_* fields and sets the
// cancel flag. The stage stays Cancelling so the router hands the session
// to the booking node for the actual side effects.
func beginCancel(s State) State {
	s.OldSelectedSlot = s.SelectedSlot
	s.OldAppointmentID = s.AppointmentID
	s.CancelRequested = true

	return s.WithAssistantMessage("Okay, cancelling your appointment now.")
}

// appendFinalSummary closes out a completed booking or cancellation turn.
func appendFinalSummary(s State) State {
	switch {
	case s.ConfirmationText != "":
		return s.WithAssistantMessage(s.ConfirmationText)
	case s.LastError != "":
		return s.WithAssistantMessage("Sorry, I could not complete that: " + s.LastError)
	default:
		return s.WithAssistantMessage("Is there anything else I can help you with?")
	}
}

// formatSlot renders one slot for the user-facing transcript.
func formatSlot(slot repo.Slot) string {
	line := fmt.Sprintf("[%d] %s %s-%s", slot.ID, slot.Date, slot.StartTime, slot.EndTime)
	if slot.ProviderName != "" {
		line += " with " + slot.ProviderName
	}
	if slot.ServiceName != "" {
		line += " (" + slot.ServiceName + ")"
	}
	return line
}

// generateOr asks the inference client for a reply and falls back to the
// given static text on any failure.
func generateOr(ctx Context, prompt, fallback string) string {
	client := ctx.Infer()
	if client == nil {
		return fallback
	}
	reply, err := client.Generate(ctx, prompt)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			observability.LogInferenceDegraded(ctx.Logger(), ctx.SessionID(), "generate", err)
		}
		return fallback
	}
	return reply
}

func questionPrompt(s State, field string) string {
	return fmt.Sprintf(
		"You are a friendly appointment booking assistant. The user said: %q. "+
			"Known so far: service=%q date=%q time=%q name=%q contact=%q. "+
			"Ask one short question for their %s. Ask for nothing else.",
		s.RawInput, s.Service.ServiceType, s.TimePrefs.PreferredDate,
		s.TimePrefs.PreferredTime, s.Contact.SeekerName, s.Contact.SeekerContact,
		strings.ReplaceAll(field, "_", " "))
}

func correctionPrompt(s State, catalog []string) string {
	return fmt.Sprintf(
		"You are a friendly appointment booking assistant. The user asked for the service %q, "+
			"which we do not offer. Politely say so and list the services we do offer: %s. "+
			"Ask which one they would like.",
		s.Service.ServiceType, strings.Join(catalog, ", "))
}

func confirmationPrompt(s State) string {
	return fmt.Sprintf(
		"You are a friendly appointment booking assistant. Confirm the booking request back to the user "+
			"in one or two sentences and say you will look for available slots. "+
			"Service: %s. Date: %s. Time: %s. Name: %s. Contact: %s.",
		s.Service.ServiceType, s.TimePrefs.PreferredDate, s.TimePrefs.PreferredTime,
		s.Contact.SeekerName, s.Contact.SeekerContact)
}

func noSlotPrompt(s State) string {
	return fmt.Sprintf(
		"You are a friendly appointment booking assistant. No available slot matches the user's request "+
			"for %s on %s at %s. Apologize briefly and ask for an alternative date or time.",
		s.Service.ServiceType, s.TimePrefs.PreferredDate, s.TimePrefs.PreferredTime)
}
