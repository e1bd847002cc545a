package testutil

import (
	"context"
	"sync"

	"github.com/diaspomoney/payments/internal/domain/booking"
	domainErrors "github.com/diaspomoney/payments/internal/domain/errors"
	"github.com/diaspomoney/payments/internal/domain/transaction"
	"github.com/google/uuid"
)

// --- Booking Repository Mock ---

// MockBookingRepository is an in-memory booking.Repository. Stored values are
// copied so callers cannot mutate them behind the repository's back.
type MockBookingRepository struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]booking.Booking

	CreateFunc       func(ctx context.Context, b *booking.Booking) error
	GetByIDFunc      func(ctx context.Context, id uuid.UUID) (*booking.Booking, error)
	UpdateStatusFunc func(ctx context.Context, id uuid.UUID, status booking.Status) error
	UpdateFunc       func(ctx context.Context, b *booking.Booking) error
}

func NewMockBookingRepository() *MockBookingRepository {
	return &MockBookingRepository{bookings: make(map[uuid.UUID]booking.Booking)}
}

func (m *MockBookingRepository) Create(ctx context.Context, b *booking.Booking) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, b)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = *b
	return nil
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, domainErrors.ErrBookingNotFound
	}
	return &b, nil
}

func (m *MockBookingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status booking.Status) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return domainErrors.ErrBookingNotFound
	}
	b.SetStatus(status)
	m.bookings[id] = b
	return nil
}

func (m *MockBookingRepository) Update(ctx context.Context, b *booking.Booking) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, b)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[b.ID]; !ok {
		return domainErrors.ErrBookingNotFound
	}
	m.bookings[b.ID] = *b
	return nil
}

// AddBooking seeds the repository.
func (m *MockBookingRepository) AddBooking(b *booking.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = *b
}

// Status returns the stored status of a booking, or "" when unknown.
func (m *MockBookingRepository) Status(id uuid.UUID) booking.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bookings[id].Status
}

// --- Transaction Repository Mock ---

// MockTransactionRepository is an in-memory transaction.Repository.
type MockTransactionRepository struct {
	mu           sync.Mutex
	transactions map[uuid.UUID]transaction.Transaction

	CreateFunc  func(ctx context.Context, t *transaction.Transaction) error
	GetByIDFunc func(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
	UpdateFunc  func(ctx context.Context, t *transaction.Transaction) error
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{transactions: make(map[uuid.UUID]transaction.Transaction)}
}

func (m *MockTransactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[t.ID] = *t
	return nil
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return nil, domainErrors.ErrTransactionNotFound
	}
	return &t, nil
}

func (m *MockTransactionRepository) Update(ctx context.Context, t *transaction.Transaction) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transactions[t.ID]; !ok {
		return domainErrors.ErrTransactionNotFound
	}
	m.transactions[t.ID] = *t
	return nil
}

// AddTransaction seeds the repository.
func (m *MockTransactionRepository) AddTransaction(t *transaction.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[t.ID] = *t
}

// Status returns the stored status of a transaction, or "" when unknown.
func (m *MockTransactionRepository) Status(id uuid.UUID) transaction.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transactions[id].Status
}

// --- Transaction Manager Mock ---

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}
