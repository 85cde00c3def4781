package bookline

import (
	"time"

	"github.com/bookline/bookline/pkg/bookline/repo"
)

// Stage is the position of a session in the conversation state machine.
type Stage string

// Conversation stages. InitialRequest is the stage of every new session.
// There is no hard terminal stage: Rescheduling and Cancelling loop back
// into information gathering, so a session can run indefinitely across turns.
const (
	StageInitialRequest       Stage = "initial_request"
	StageGatheringService     Stage = "gathering_service"
	StageGatheringTime        Stage = "gathering_time"
	StageGatheringContact     Stage = "gathering_contact"
	StageConfirmingDetails    Stage = "confirming_details"
	StageProceedToFetchSlots  Stage = "proceed_to_fetch_slots"
	StageSlotsFetched         Stage = "slots_fetched"
	StageConfirmingSlots      Stage = "confirming_slots"
	StageNoSlotAvailable      Stage = "no_slot_available"
	StageProceedToBooking     Stage = "proceed_to_booking"
	StageBookingComplete      Stage = "booking_complete"
	StageRescheduling         Stage = "rescheduling"
	StageCancelling           Stage = "cancelling"
	StageCancellationComplete Stage = "cancellation_complete"
)

// Message roles in the full exchange log.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of the full exchange, tool results included.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DisplayEntry is one entry of the user-facing transcript.
type DisplayEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ServiceInfo holds what is known about the requested service.
type ServiceInfo struct {
	ServiceType string `json:"service_type,omitempty"`
}

// TimePreferences holds the requested date and time of day.
type TimePreferences struct {
	PreferredDate string `json:"preferred_date,omitempty"`
	PreferredTime string `json:"preferred_time,omitempty"`
}

// ContactInfo holds who is booking and how to reach them.
type ContactInfo struct {
	SeekerName    string `json:"seeker_name,omitempty"`
	SeekerContact string `json:"seeker_contact,omitempty"`
}

// State is the full session record threaded through every node. It has value
// semantics: nodes receive a State, build an updated copy, and return it.
// Between turns the state is durably checkpointed and has no other owner.
type State struct {
	SessionID string `json:"session_id"`
	Stage     Stage  `json:"stage"`

	// MissingFields is recomputed by the gathering node from the four
	// canonical booking fields, in precedence order.
	MissingFields []string `json:"missing_fields,omitempty"`

	// RawInput is the verbatim user message for the current turn.
	RawInput string `json:"raw_input,omitempty"`

	Service   ServiceInfo     `json:"service_info"`
	TimePrefs TimePreferences `json:"time_preferences"`
	Contact   ContactInfo     `json:"contact_info"`

	MessageLog []Message      `json:"message_log,omitempty"`
	DisplayLog []DisplayEntry `json:"display_log,omitempty"`

	// AvailableSlots is replaced wholesale by each slot search.
	AvailableSlots []repo.Slot `json:"available_slots,omitempty"`

	SelectedSlot    *repo.Slot `json:"selected_slot,omitempty"`
	OldSelectedSlot *repo.Slot `json:"old_selected_slot,omitempty"`

	AppointmentID    int64 `json:"appointment_id,omitempty"`
	OldAppointmentID int64 `json:"old_appointment_id,omitempty"`

	RescheduleRequested bool `json:"reschedule_requested,omitempty"`
	CancelRequested     bool `json:"cancel_requested,omitempty"`

	ConfirmationText string `json:"confirmation_text,omitempty"`
	LastError        string `json:"last_error,omitempty"`
}

// NewState creates the state of a fresh session.
func NewState(sessionID string) State {
	return State{
		SessionID: sessionID,
		Stage:     StageInitialRequest,
	}
}

// WithUserMessage appends the message to both logs and records it as the
// turn's raw input.
func (s State) WithUserMessage(text string) State {
	s.RawInput = text
	s.MessageLog = append(s.MessageLog, Message{Role: RoleUser, Content: text})
	s.DisplayLog = append(s.DisplayLog, DisplayEntry{
		Role:      RoleUser,
		Content:   text,
		Timestamp: time.Now().UTC(),
	})
	return s
}

// WithAssistantMessage appends an assistant reply to both logs.
func (s State) WithAssistantMessage(text string) State {
	s.MessageLog = append(s.MessageLog, Message{Role: RoleAssistant, Content: text})
	s.DisplayLog = append(s.DisplayLog, DisplayEntry{
		Role:      RoleAssistant,
		Content:   text,
		Timestamp: time.Now().UTC(),
	})
	return s
}

// WithToolMessage appends a tool result to the exchange log only. Tool
// output never appears in the user-facing transcript.
func (s State) WithToolMessage(text string) State {
	s.MessageLog = append(s.MessageLog, Message{Role: RoleTool, Content: text})
	return s
}

// LastReply returns the content of the most recent assistant display entry,
// or "" if there is none.
func (s State) LastReply() string {
	for i := len(s.DisplayLog) - 1; i >= 0; i-- {
		if s.DisplayLog[i].Role == RoleAssistant {
			return s.DisplayLog[i].Content
		}
	}
	return ""
}
