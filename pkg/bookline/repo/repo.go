// Package repo defines the booking repository contract: slots, appointments,
// and the service catalog. The workflow engine consumes Repository as an
// injected dependency and never touches storage directly.
package repo

import (
	"context"
	"errors"
	"time"
)

// SlotStatus is the lifecycle state of an availability slot.
type SlotStatus string

// Slot status values.
const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
	SlotBlocked   SlotStatus = "blocked"
)

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

// Appointment status values.
const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentBooked    AppointmentStatus = "booked"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// Date and time layouts used throughout the repository.
// Dates are "YYYY-MM-DD", times of day are "HH:MM", timestamps are
// "YYYY-MM-DD HH:MM:SS".
const (
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04"
	DateTimeLayout = "2006-01-02 15:04:05"
)

// DefaultSlotWindow is the search window applied when a query omits an
// end time.
const DefaultSlotWindow = time.Hour

// Slot is a provider's offered, bookable time interval.
type Slot struct {
	ID           int64      `json:"slot_id"`
	ProviderID   int64      `json:"provider_id"`
	ProviderName string     `json:"provider_name,omitempty"`
	Date         string     `json:"date"`
	StartTime    string     `json:"start_time"`
	EndTime      string     `json:"end_time"`
	Status       SlotStatus `json:"status"`
	ServiceID    int64      `json:"service_id,omitempty"`
	ServiceName  string     `json:"service_name,omitempty"`
}

// Appointment is a committed booking against a slot. Appointments are never
// physically deleted by the workflow; cancel and reschedule only flip Status.
type Appointment struct {
	ID            int64             `json:"appointment_id"`
	TypeID        int64             `json:"type_id"`
	SeekerID      int64             `json:"seeker_id"`
	ProviderID    int64             `json:"provider_id"`
	SlotID        int64             `json:"slot_id"`
	ScheduledTime string            `json:"scheduled_time"`
	Status        AppointmentStatus `json:"status"`
	Notes         string            `json:"notes,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Service is an entry in the service catalog.
type Service struct {
	ID              int64   `json:"service_id"`
	ProviderID      int64   `json:"provider_id"`
	Name            string  `json:"name"`
	DurationMinutes int     `json:"duration_minutes"`
	Price           float64 `json:"price"`
}

// SlotQuery selects slots on a single date whose interval overlaps
// [StartTime, EndTime). EndTime defaults to StartTime + DefaultSlotWindow,
// Status defaults to SlotAvailable. ServiceName, when set, matches the
// associated service name case-insensitively as a substring.
type SlotQuery struct {
	Date        string
	StartTime   string
	EndTime     string
	Status      SlotStatus
	ServiceName string
}

// Normalize applies the query defaults. Returns an error if StartTime is not
// a valid HH:MM time.
func (q SlotQuery) Normalize() (SlotQuery, error) {
	if q.Status == "" {
		q.Status = SlotAvailable
	}
	if q.EndTime == "" {
		end, err := DefaultEndTime(q.StartTime)
		if err != nil {
			return q, err
		}
		q.EndTime = end
	}
	return q, nil
}

// DefaultEndTime returns start + DefaultSlotWindow in HH:MM form.
func DefaultEndTime(start string) (string, error) {
	t, err := time.Parse(TimeLayout, start)
	if err != nil {
		return "", err
	}
	return t.Add(DefaultSlotWindow).Format(TimeLayout), nil
}

// Overlaps reports whether the slot interval [slotStart, slotEnd) overlaps
// the requested range [reqStart, reqEnd). Boundary rules follow the booking
// query: the slot matches if its start falls in [reqStart, reqEnd), its end
// falls in (reqStart, reqEnd], or it fully contains the requested range.
// Times are zero-padded HH:MM strings, so lexicographic comparison is
// chronological.
func Overlaps(slotStart, slotEnd, reqStart, reqEnd string) bool {
	if slotStart >= reqStart && slotStart < reqEnd {
		return true
	}
	if slotEnd > reqStart && slotEnd <= reqEnd {
		return true
	}
	return slotStart <= reqStart && slotEnd >= reqEnd
}

// Sentinel errors for repository operations.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrRepoClosed indicates the repository has been closed.
	ErrRepoClosed = errors.New("repository closed")
)

// Repository is the storage contract consumed by the workflow nodes.
// All operations are synchronous request/response; errors are explicit.
// Implementations must be safe for concurrent use.
type Repository interface {
	// CreateAppointment inserts a new appointment and returns its id.
	CreateAppointment(ctx context.Context, a Appointment) (int64, error)

	// GetAppointment returns the appointment, or ErrNotFound.
	GetAppointment(ctx context.Context, id int64) (*Appointment, error)

	// UpdateAppointmentStatus sets the status, returning false if the
	// appointment does not exist.
	UpdateAppointmentStatus(ctx context.Context, id int64, status AppointmentStatus) (bool, error)

	// DeleteAppointment removes the appointment, returning false if it
	// does not exist. The workflow itself never calls this; it exists for
	// administrative tooling.
	DeleteAppointment(ctx context.Context, id int64) (bool, error)

	// FindSlots returns slots matching the query, ordered by ascending
	// start time.
	FindSlots(ctx context.Context, q SlotQuery) ([]Slot, error)

	// SlotsByProvider returns a provider's available slots within the
	// inclusive date range, ordered by date then start time.
	SlotsByProvider(ctx context.Context, providerID int64, fromDate, toDate string) ([]Slot, error)

	// UpdateSlotStatus sets the slot status unconditionally, returning
	// false if the slot does not exist.
	UpdateSlotStatus(ctx context.Context, slotID int64, status SlotStatus) (bool, error)

	// ClaimSlot moves a slot from available to booked. Returns false
	// without error when the slot exists but is no longer available, so
	// concurrent bookings of the same slot cannot both succeed.
	ClaimSlot(ctx context.Context, slotID int64) (bool, error)

	// CreateSlot inserts a new availability slot and returns it with its
	// assigned id.
	CreateSlot(ctx context.Context, s Slot) (Slot, error)

	// CreateService adds an entry to the service catalog.
	CreateService(ctx context.Context, s Service) (Service, error)

	// ServiceNames returns the names of all catalog services.
	ServiceNames(ctx context.Context) ([]string, error)

	// Close releases any resources.
	Close() error
}
