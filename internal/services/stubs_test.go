package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Thaynan-souza/raphietro-atelier/internal/domain"
	"github.com/Thaynan-souza/raphietro-atelier/internal/repositories"
)

type repoErr struct {
	notFound bool
	msg      string
}

func (e repoErr) Error() string       { return e.msg }
func (e repoErr) IsNotFound() bool    { return e.notFound }
func (e repoErr) IsConflict() bool    { return false }
func (e repoErr) IsUnavailable() bool { return !e.notFound }

var (
	errNotFound    = repoErr{notFound: true, msg: "not found"}
	errUnavailable = repoErr{msg: "backend unavailable"}
)

// memoryOrderRepo applies writes like the backend: generated ids, atomic
// status+history updates, and full snapshots to subscribers.
type memoryOrderRepo struct {
	mu        sync.Mutex
	orders    []domain.Order
	nextID    int
	creates   int
	updates   []repositories.StatusUpdate
	createErr error
	updateErr error
	listeners []chan []domain.Order
}

func (r *memoryOrderRepo) Create(_ context.Context, order domain.Order) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if r.createErr != nil {
		return "", r.createErr
	}
	r.nextID++
	order.ID = fmt.Sprintf("PEDIDO%04dXYZ", r.nextID)
	r.orders = append([]domain.Order{order}, r.orders...)
	r.broadcastLocked()
	return order.ID, nil
}

func (r *memoryOrderRepo) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return domain.Order{}, errNotFound
}

func (r *memoryOrderRepo) UpdateStatus(_ context.Context, id string, update repositories.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
	if r.updateErr != nil {
		return r.updateErr
	}
	for i := range r.orders {
		if r.orders[i].ID == id {
			r.orders[i].Status = update.Status
			r.orders[i].StatusHistory = append(slices.Clone(r.orders[i].StatusHistory), update.Entry)
			r.broadcastLocked()
			return nil
		}
	}
	return errNotFound
}

func (r *memoryOrderRepo) Subscribe(ctx context.Context) (*repositories.Subscription[domain.Order], error) {
	r.mu.Lock()
	ch := make(chan []domain.Order, 16)
	ch <- slices.Clone(r.orders)
	r.listeners = append(r.listeners, ch)
	r.mu.Unlock()
	return repositories.NewSubscription(ctx, func(ctx context.Context, emit func(repositories.SnapshotEvent[domain.Order]) bool) {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-ch:
				if !emit(repositories.SnapshotEvent[domain.Order]{Items: snap}) {
					return
				}
			}
		}
	}), nil
}

func (r *memoryOrderRepo) broadcastLocked() {
	for _, ch := range r.listeners {
		select {
		case ch <- slices.Clone(r.orders):
		default:
		}
	}
}

func (r *memoryOrderRepo) seed(order domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, order)
}

type stubClientRepo struct {
	byTaxID   map[string]domain.Client
	findErr   error
	created   []domain.Client
	createErr error
	subscribe func(context.Context) (*repositories.Subscription[domain.Client], error)
}

func (s *stubClientRepo) FindByTaxID(_ context.Context, taxID string) (domain.Client, error) {
	if s.findErr != nil {
		return domain.Client{}, s.findErr
	}
	if c, ok := s.byTaxID[taxID]; ok {
		return c, nil
	}
	return domain.Client{}, errNotFound
}

func (s *stubClientRepo) Create(_ context.Context, client domain.Client) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	s.created = append(s.created, client)
	return fmt.Sprintf("client-%d", len(s.created)), nil
}

func (s *stubClientRepo) Subscribe(ctx context.Context) (*repositories.Subscription[domain.Client], error) {
	if s.subscribe != nil {
		return s.subscribe(ctx)
	}
	return nil, errors.New("not implemented")
}

type stubServiceRepo struct {
	byID      map[string]domain.Service
	getCalls  int
	created   []domain.Service
	subscribe func(context.Context) (*repositories.Subscription[domain.Service], error)
}

func (s *stubServiceRepo) Get(_ context.Context, id string) (domain.Service, error) {
	s.getCalls++
	if svc, ok := s.byID[id]; ok {
		svc.ID = id
		return svc, nil
	}
	return domain.Service{}, errNotFound
}

func (s *stubServiceRepo) Create(_ context.Context, service domain.Service) (string, error) {
	s.created = append(s.created, service)
	return fmt.Sprintf("service-%d", len(s.created)), nil
}

func (s *stubServiceRepo) Subscribe(ctx context.Context) (*repositories.Subscription[domain.Service], error) {
	if s.subscribe != nil {
		return s.subscribe(ctx)
	}
	return nil, errors.New("not implemented")
}

type stubStaffRepo struct {
	byID      map[string]domain.StaffMember
	created   []domain.StaffMember
	createErr error
	roles     []domain.StaffRole
	subscribe func(context.Context) (*repositories.Subscription[domain.StaffMember], error)
}

func (s *stubStaffRepo) Get(_ context.Context, id string) (domain.StaffMember, error) {
	if m, ok := s.byID[id]; ok {
		m.ID = id
		return m, nil
	}
	return domain.StaffMember{}, errNotFound
}

func (s *stubStaffRepo) Create(_ context.Context, member domain.StaffMember) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, member)
	return nil
}

func (s *stubStaffRepo) Subscribe(ctx context.Context, roles ...domain.StaffRole) (*repositories.Subscription[domain.StaffMember], error) {
	s.roles = roles
	if s.subscribe != nil {
		return s.subscribe(ctx)
	}
	return nil, errors.New("not implemented")
}

type stubCounterRepo struct {
	value int64
	err   error
	ids   []string
}

func (s *stubCounterRepo) Next(_ context.Context, counterID string, step int64) (int64, error) {
	s.ids = append(s.ids, counterID)
	if s.err != nil {
		return 0, s.err
	}
	s.value += step
	return s.value, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return "msg-1", p.err
}

type failingPrinter struct{ err error }

func (p failingPrinter) Print(context.Context, PrintJob) error { return p.err }

type recordedLog struct {
	event  string
	fields map[string]any
}

type logRecorder struct {
	mu      sync.Mutex
	entries []recordedLog
}

func (l *logRecorder) log(_ context.Context, event string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, recordedLog{event: event, fields: fields})
}

func (l *logRecorder) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.event == event {
			return true
		}
	}
	return false
}

// staticSubscription delivers the given events and then waits for Close.
func staticSubscription[T any](ctx context.Context, events ...repositories.SnapshotEvent[T]) *repositories.Subscription[T] {
	return repositories.NewSubscription(ctx, func(ctx context.Context, emit func(repositories.SnapshotEvent[T]) bool) {
		for _, event := range events {
			if !emit(event) {
				return
			}
		}
		<-ctx.Done()
	})
}

// memoryPrintSurface keeps the last printed receipt per order.
type memoryPrintSurface struct {
	mu   sync.Mutex
	jobs map[string]PrintJob
}

func newMemoryPrintSurface() *memoryPrintSurface {
	return &memoryPrintSurface{jobs: make(map[string]PrintJob)}
}

func (m *memoryPrintSurface) Print(_ context.Context, job PrintJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.OrderID] = job
	return nil
}

func (m *memoryPrintSurface) Last(orderID string) (PrintJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[orderID]
	if !ok {
		return PrintJob{}, ErrReceiptNotPrinted
	}
	return job, nil
}
