package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository for tests and examples.
// Data is lost when the process exits.
type MemoryRepository struct {
	mu           sync.RWMutex
	slots        map[int64]Slot
	appointments map[int64]Appointment
	services     map[int64]Service
	nextSlot     int64
	nextAppt     int64
	nextService  int64
	closed       bool
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		slots:        make(map[int64]Slot),
		appointments: make(map[int64]Appointment),
		services:     make(map[int64]Service),
		nextSlot:     1,
		nextAppt:     1,
		nextService:  1,
	}
}

// CreateAppointment implements Repository.
func (m *MemoryRepository) CreateAppointment(_ context.Context, a Appointment) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrRepoClosed
	}

	a.ID = m.nextAppt
	m.nextAppt++
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	m.appointments[a.ID] = a
	return a.ID, nil
}

// GetAppointment implements Repository.
func (m *MemoryRepository) GetAppointment(_ context.Context, id int64) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrRepoClosed
	}

	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

// UpdateAppointmentStatus implements Repository.
func (m *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id int64, status AppointmentStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrRepoClosed
	}

	a, ok := m.appointments[id]
	if !ok {
		return false, nil
	}
	a.Status = status
	a.UpdatedAt = time.Now().UTC()
	m.appointments[id] = a
	return true, nil
}

// DeleteAppointment implements Repository.
func (m *MemoryRepository) DeleteAppointment(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrRepoClosed
	}

	if _, ok := m.appointments[id]; !ok {
		return false, nil
	}
	delete(m.appointments, id)
	return true, nil
}

// FindSlots implements Repository.
func (m *MemoryRepository) FindSlots(_ context.Context, q SlotQuery) ([]Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrRepoClosed
	}

	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	var out []Slot
	for _, s := range m.slots {
		if s.Date != q.Date || s.Status != q.Status {
			continue
		}
		if !Overlaps(s.StartTime, s.EndTime, q.StartTime, q.EndTime) {
			continue
		}
		if q.ServiceName != "" && !strings.Contains(strings.ToLower(s.ServiceName), strings.ToLower(q.ServiceName)) {
			continue
		}
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SlotsByProvider implements Repository.
func (m *MemoryRepository) SlotsByProvider(_ context.Context, providerID int64, fromDate, toDate string) ([]Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrRepoClosed
	}

	var out []Slot
	for _, s := range m.slots {
		if s.ProviderID != providerID || s.Status != SlotAvailable {
			continue
		}
		if s.Date < fromDate || s.Date > toDate {
			continue
		}
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

// UpdateSlotStatus implements Repository.
func (m *MemoryRepository) UpdateSlotStatus(_ context.Context, slotID int64, status SlotStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrRepoClosed
	}

	s, ok := m.slots[slotID]
	if !ok {
		return false, nil
	}
	s.Status = status
	m.slots[slotID] = s
	return true, nil
}

// ClaimSlot implements Repository.
func (m *MemoryRepository) ClaimSlot(_ context.Context, slotID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrRepoClosed
	}

	s, ok := m.slots[slotID]
	if !ok || s.Status != SlotAvailable {
		return false, nil
	}
	s.Status = SlotBooked
	m.slots[slotID] = s
	return true, nil
}

// CreateSlot implements Repository.
func (m *MemoryRepository) CreateSlot(_ context.Context, s Slot) (Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Slot{}, ErrRepoClosed
	}

	if s.Status == "" {
		s.Status = SlotAvailable
	}
	s.ID = m.nextSlot
	m.nextSlot++
	m.slots[s.ID] = s
	return s, nil
}

// CreateService implements Repository.
func (m *MemoryRepository) CreateService(_ context.Context, s Service) (Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Service{}, ErrRepoClosed
	}

	s.ID = m.nextService
	m.nextService++
	m.services[s.ID] = s
	return s, nil
}

// ServiceNames implements Repository.
func (m *MemoryRepository) ServiceNames(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrRepoClosed
	}

	names := make([]string, 0, len(m.services))
	for _, s := range m.services {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names, nil
}

// Close implements Repository.
func (m *MemoryRepository) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}
