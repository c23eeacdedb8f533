package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wenwu/saas-platform/lease-service/internal/models"
)

type memTxKey struct{}

// MemoryDB keeps every table in process. It backs STORE_DRIVER=memory and the
// service tests. Transactions are serialized and roll back by restoring a
// snapshot taken at begin.
type MemoryDB struct {
	mu        sync.Mutex
	customers map[string]models.Customer
	emails    map[string]string
	orders    map[string]models.Order
	leases    map[string]models.Lease
	cycles    map[string]models.BillingCycle
	regions   map[string]models.Region
	logs      []models.LeaseLog
	now       func() time.Time
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		customers: make(map[string]models.Customer),
		emails:    make(map[string]string),
		orders:    make(map[string]models.Order),
		leases:    make(map[string]models.Lease),
		cycles:    make(map[string]models.BillingCycle),
		regions:   make(map[string]models.Region),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NewMemoryStore wires every store to a fresh MemoryDB.
func NewMemoryStore() *Store {
	return NewMemoryDB().Store()
}

// SetClock makes the store stamp created_at and updated_at with now.
func (m *MemoryDB) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryDB) Store() *Store {
	return &Store{
		Customers: memCustomers{m},
		Orders:    memOrders{m},
		Leases:    memLeases{m},
		Cycles:    memCycles{m},
		Regions:   memRegions{m},
		Logs:      memLogs{m},
		Tx:        m,
	}
}

// lock takes the store mutex unless ctx already runs inside a transaction,
// which holds it for its whole duration.
func (m *MemoryDB) lock(ctx context.Context) func() {
	if ctx.Value(memTxKey{}) != nil {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

type memSnapshot struct {
	customers map[string]models.Customer
	emails    map[string]string
	orders    map[string]models.Order
	leases    map[string]models.Lease
	cycles    map[string]models.BillingCycle
	regions   map[string]models.Region
	logs      []models.LeaseLog
}

func (m *MemoryDB) snapshot() memSnapshot {
	return memSnapshot{
		customers: cloneMap(m.customers),
		emails:    cloneMap(m.emails),
		orders:    cloneMap(m.orders),
		leases:    cloneMap(m.leases),
		cycles:    cloneMap(m.cycles),
		regions:   cloneMap(m.regions),
		logs:      append([]models.LeaseLog(nil), m.logs...),
	}
}

func (m *MemoryDB) restore(s memSnapshot) {
	m.customers = s.customers
	m.emails = s.emails
	m.orders = s.orders
	m.leases = s.leases
	m.cycles = s.cycles
	m.regions = s.regions
	m.logs = s.logs
}

func cloneMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (m *MemoryDB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	defer func() {
		if p := recover(); p != nil {
			m.restore(snap)
			panic(p)
		} else if err != nil {
			m.restore(snap)
		}
	}()

	return fn(context.WithValue(ctx, memTxKey{}, true))
}

// ==================== Customers ====================

type memCustomers struct{ m *MemoryDB }

func (s memCustomers) UpsertByEmail(ctx context.Context, c *models.Customer) (*models.Customer, error) {
	defer s.m.lock(ctx)()

	if id, ok := s.m.emails[c.Email]; ok {
		existing := s.m.customers[id]
		if existing.Name == "" && c.Name != "" {
			existing.Name = c.Name
			s.m.customers[id] = existing
		}
		return &existing, nil
	}

	stored := *c
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.m.now()
	}
	s.m.customers[stored.ID] = stored
	s.m.emails[stored.Email] = stored.ID
	return &stored, nil
}

func (s memCustomers) GetByID(ctx context.Context, id string) (*models.Customer, error) {
	defer s.m.lock(ctx)()
	c, ok := s.m.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s memCustomers) GetByEmail(ctx context.Context, email string) (*models.Customer, error) {
	defer s.m.lock(ctx)()
	id, ok := s.m.emails[email]
	if !ok {
		return nil, ErrNotFound
	}
	c := s.m.customers[id]
	return &c, nil
}

// ==================== Orders ====================

type memOrders struct{ m *MemoryDB }

func (s memOrders) Create(ctx context.Context, o *models.Order) error {
	defer s.m.lock(ctx)()
	if _, ok := s.m.customers[o.CustomerID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.m.orders[o.ID]; ok {
		return ErrConflict
	}
	s.m.orders[o.ID] = *o
	return nil
}

func (s memOrders) withEmail(o models.Order) *models.Order {
	o.CustomerEmail = s.m.customers[o.CustomerID].Email
	return &o
}

func (s memOrders) GetByID(ctx context.Context, id string) (*models.Order, error) {
	defer s.m.lock(ctx)()
	o, ok := s.m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.withEmail(o), nil
}

func (s memOrders) GetByCheckoutSessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	defer s.m.lock(ctx)()
	for _, o := range s.m.orders {
		if o.CheckoutSessionID != nil && *o.CheckoutSessionID == sessionID {
			return s.withEmail(o), nil
		}
	}
	return nil, ErrNotFound
}

func (s memOrders) ListByCustomer(ctx context.Context, customerID string) ([]*models.Order, error) {
	defer s.m.lock(ctx)()
	var out []*models.Order
	for _, o := range s.m.orders {
		if o.CustomerID == customerID {
			out = append(out, s.withEmail(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s memOrders) update(ctx context.Context, id string, fn func(o *models.Order) error) error {
	defer s.m.lock(ctx)()
	o, ok := s.m.orders[id]
	if !ok {
		return ErrNotFound
	}
	if err := fn(&o); err != nil {
		return err
	}
	o.UpdatedAt = s.m.now()
	s.m.orders[id] = o
	return nil
}

func (s memOrders) SetCheckoutSession(ctx context.Context, id, sessionID string) error {
	return s.update(ctx, id, func(o *models.Order) error {
		o.CheckoutSessionID = &sessionID
		return nil
	})
}

func (s memOrders) TransitionStatus(ctx context.Context, id, from, to string) error {
	return s.update(ctx, id, func(o *models.Order) error {
		if o.Status != from {
			return ErrStaleStatus
		}
		o.Status = to
		return nil
	})
}

func (s memOrders) SetInstance(ctx context.Context, id, instanceID string) error {
	return s.update(ctx, id, func(o *models.Order) error {
		o.InstanceID = &instanceID
		return nil
	})
}

func (s memOrders) MarkActive(ctx context.Context, id, leaseID string) error {
	return s.update(ctx, id, func(o *models.Order) error {
		o.Status = models.OrderStatusActive
		o.LeaseID = &leaseID
		o.ErrorMessage = nil
		return nil
	})
}

func (s memOrders) MarkFailed(ctx context.Context, id, message string) error {
	return s.update(ctx, id, func(o *models.Order) error {
		o.Status = models.OrderStatusFailed
		o.ErrorMessage = &message
		return nil
	})
}

// ==================== Leases ====================

type memLeases struct{ m *MemoryDB }

func (s memLeases) Create(ctx context.Context, l *models.Lease) error {
	defer s.m.lock(ctx)()
	if _, ok := s.m.customers[l.CustomerID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.m.leases[l.ID]; ok {
		return ErrConflict
	}
	s.m.leases[l.ID] = *l
	return nil
}

func (s memLeases) GetByID(ctx context.Context, id string) (*models.Lease, error) {
	defer s.m.lock(ctx)()
	l, ok := s.m.leases[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (s memLeases) GetByOrderID(ctx context.Context, orderID string) (*models.Lease, error) {
	defer s.m.lock(ctx)()
	for _, l := range s.m.leases {
		if l.OrderID != "" && l.OrderID == orderID {
			l := l
			return &l, nil
		}
	}
	return nil, ErrNotFound
}

func (s memLeases) ListByCustomer(ctx context.Context, customerID string) ([]*models.Lease, error) {
	defer s.m.lock(ctx)()
	var out []*models.Lease
	for _, l := range s.m.leases {
		if l.CustomerID == customerID {
			l := l
			out = append(out, &l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s memLeases) Cancel(ctx context.Context, id string, at time.Time) error {
	defer s.m.lock(ctx)()
	l, ok := s.m.leases[id]
	if !ok {
		return ErrNotFound
	}
	if l.Status != models.LeaseStatusActive {
		return ErrStaleStatus
	}
	l.Status = models.LeaseStatusCancelled
	l.CancelledAt = &at
	l.UpdatedAt = at
	s.m.leases[id] = l
	return nil
}

func (s memLeases) ExpireEnded(ctx context.Context, now time.Time) ([]string, error) {
	defer s.m.lock(ctx)()
	var ids []string
	for id, l := range s.m.leases {
		if l.Status == models.LeaseStatusActive && l.EndDate.Before(now) {
			l.Status = models.LeaseStatusExpired
			l.UpdatedAt = now
			s.m.leases[id] = l
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ==================== Billing cycles ====================

type memCycles struct{ m *MemoryDB }

func (s memCycles) CreateBatch(ctx context.Context, cycles []models.BillingCycle) error {
	defer s.m.lock(ctx)()
	for _, c := range cycles {
		if _, ok := s.m.leases[c.LeaseID]; !ok {
			return ErrNotFound
		}
		for _, existing := range s.m.cycles {
			if existing.LeaseID == c.LeaseID && existing.Sequence == c.Sequence {
				return ErrConflict
			}
		}
		s.m.cycles[c.ID] = c
	}
	return nil
}

func (s memCycles) GetByID(ctx context.Context, id string) (*models.BillingCycle, error) {
	defer s.m.lock(ctx)()
	c, ok := s.m.cycles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s memCycles) ListByLease(ctx context.Context, leaseID string) ([]*models.BillingCycle, error) {
	defer s.m.lock(ctx)()
	var out []*models.BillingCycle
	for _, c := range s.m.cycles {
		if c.LeaseID == leaseID {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s memCycles) CountByLease(ctx context.Context, leaseID string) (int, error) {
	defer s.m.lock(ctx)()
	n := 0
	for _, c := range s.m.cycles {
		if c.LeaseID == leaseID {
			n++
		}
	}
	return n, nil
}

func (s memCycles) MarkPaid(ctx context.Context, id string, at time.Time) error {
	defer s.m.lock(ctx)()
	c, ok := s.m.cycles[id]
	if !ok {
		return ErrNotFound
	}
	if c.Status != models.CycleStatusPending && c.Status != models.CycleStatusOverdue {
		return ErrStaleStatus
	}
	c.Status = models.CycleStatusPaid
	c.PaidDate = &at
	s.m.cycles[id] = c
	return nil
}

func (s memCycles) MarkOverdue(ctx context.Context, now time.Time) ([]*models.BillingCycle, error) {
	defer s.m.lock(ctx)()
	var out []*models.BillingCycle
	for id, c := range s.m.cycles {
		if c.Status != models.CycleStatusPending || !c.DueDate.Before(now) {
			continue
		}
		if s.m.leases[c.LeaseID].Status != models.LeaseStatusActive {
			continue
		}
		c.Status = models.CycleStatusOverdue
		s.m.cycles[id] = c
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LeaseID != out[j].LeaseID {
			return out[i].LeaseID < out[j].LeaseID
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out, nil
}

// ==================== Regions ====================

type memRegions struct{ m *MemoryDB }

func (s memRegions) list(ctx context.Context, onlyAvailable bool) []*models.Region {
	defer s.m.lock(ctx)()
	var out []*models.Region
	for _, r := range s.m.regions {
		if onlyAvailable && !r.Available {
			continue
		}
		r := r
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s memRegions) GetAll(ctx context.Context) ([]*models.Region, error) {
	return s.list(ctx, false), nil
}

func (s memRegions) GetAvailable(ctx context.Context) ([]*models.Region, error) {
	return s.list(ctx, true), nil
}

func (s memRegions) GetByCode(ctx context.Context, code string) (*models.Region, error) {
	defer s.m.lock(ctx)()
	r, ok := s.m.regions[code]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s memRegions) Upsert(ctx context.Context, region *models.Region) error {
	defer s.m.lock(ctx)()
	now := s.m.now()
	stored := *region
	stored.UpdatedAt = now
	if existing, ok := s.m.regions[region.Code]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	s.m.regions[region.Code] = stored
	return nil
}

// ==================== Logs ====================

type memLogs struct{ m *MemoryDB }

func (s memLogs) Create(ctx context.Context, entry *models.LeaseLog) error {
	defer s.m.lock(ctx)()
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	stored := *entry
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.m.now()
	}
	s.m.logs = append(s.m.logs, stored)
	return nil
}

func (s memLogs) GetByLeaseID(ctx context.Context, leaseID string, limit int) ([]*models.LeaseLog, error) {
	defer s.m.lock(ctx)()
	if limit <= 0 {
		limit = 50
	}
	var out []*models.LeaseLog
	for i := len(s.m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.m.logs[i].LeaseID == leaseID {
			entry := s.m.logs[i]
			out = append(out, &entry)
		}
	}
	return out, nil
}
