// internal/repository/memory_repository.go
package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/javajoker/broadcast-backend/internal/models"
)

// MemoryRepository keeps the ledgers in process. Transactions take a global
// lock and work on a copy of the state that replaces the original on commit,
// so concurrent transactions are serialized.
type MemoryRepository struct {
	store *memoryStore
	// tx is the working copy when the repository is bound to a transaction.
	tx *memoryState
}

type memoryStore struct {
	mu    sync.Mutex
	state *memoryState
	seq   int64
	clk   clock.Clock
}

type memoryState struct {
	broadcasts map[uuid.UUID]models.Broadcast
	requests   map[uuid.UUID]models.Request
	items      map[uuid.UUID][]models.LineItem
	events     map[uuid.UUID]models.BridgeEvent
	audit      []models.AuditLog
	order      map[uuid.UUID]int64
}

// NewMemoryRepository stamps rows with clk, so timestamps follow the same
// clock as the services' deadlines.
func NewMemoryRepository(clk clock.Clock) *MemoryRepository {
	return &MemoryRepository{
		store: &memoryStore{state: newMemoryState(), clk: clk},
	}
}

func newMemoryState() *memoryState {
	return &memoryState{
		broadcasts: make(map[uuid.UUID]models.Broadcast),
		requests:   make(map[uuid.UUID]models.Request),
		items:      make(map[uuid.UUID][]models.LineItem),
		events:     make(map[uuid.UUID]models.BridgeEvent),
		order:      make(map[uuid.UUID]int64),
	}
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range s.broadcasts {
		c.broadcasts[k] = v
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.order {
		c.order[k] = v
	}
	c.audit = append(c.audit, s.audit...)
	return c
}

func (r *MemoryRepository) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	if r.tx != nil {
		return fn(r)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	working := r.store.state.clone()
	if err := fn(&MemoryRepository{store: r.store, tx: working}); err != nil {
		return err
	}
	r.store.state = working
	return nil
}

// do runs fn against the transaction copy, or under the store lock when the
// repository is not bound to a transaction.
func (r *MemoryRepository) do(fn func(st *memoryState) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(r.store.state)
}

func (r *MemoryRepository) nextSeq(st *memoryState, id uuid.UUID) {
	r.store.seq++
	st.order[id] = r.store.seq
}

func (r *MemoryRepository) now() time.Time {
	return r.store.clk.Now().UTC()
}

func (r *MemoryRepository) stamp(base *models.BaseModel) {
	if base.ID == uuid.Nil {
		base.ID = uuid.New()
	}
	now := r.now()
	if base.CreatedAt.IsZero() {
		base.CreatedAt = now
	}
	base.UpdatedAt = now
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *MemoryRepository) CreateBroadcast(ctx context.Context, b *models.Broadcast, requests []models.Request) error {
	return r.do(func(st *memoryState) error {
		r.stamp(&b.BaseModel)
		if _, exists := st.broadcasts[b.ID]; exists {
			return fmt.Errorf("broadcast %s already exists", b.ID)
		}

		seen := make(map[uuid.UUID]bool, len(requests))
		for i := range requests {
			if seen[requests[i].MerchantID] {
				return fmt.Errorf("duplicate request for merchant %s", requests[i].MerchantID)
			}
			seen[requests[i].MerchantID] = true
		}

		st.broadcasts[b.ID] = *b
		r.nextSeq(st, b.ID)
		for i := range requests {
			req := &requests[i]
			r.stamp(&req.BaseModel)
			req.BroadcastID = b.ID
			stored := *req
			stored.Broadcast = nil
			stored.Items = nil
			st.requests[req.ID] = stored
			r.nextSeq(st, req.ID)
		}
		return nil
	})
}

func (r *MemoryRepository) GetBroadcast(ctx context.Context, id uuid.UUID) (*models.Broadcast, error) {
	var out models.Broadcast
	err := r.do(func(st *memoryState) error {
		b, ok := st.broadcasts[id]
		if !ok {
			return ErrNotFound
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LockBroadcast is GetBroadcast here; every transaction already holds the
// store lock.
func (r *MemoryRepository) LockBroadcast(ctx context.Context, id uuid.UUID) (*models.Broadcast, error) {
	return r.GetBroadcast(ctx, id)
}

func (r *MemoryRepository) ListBroadcasts(ctx context.Context, filter BroadcastFilter) ([]models.Broadcast, int64, error) {
	var out []models.Broadcast
	var total int64
	err := r.do(func(st *memoryState) error {
		matched := r.filterBroadcasts(st, filter)
		// newest first
		sort.SliceStable(matched, func(i, j int) bool {
			return st.order[matched[i].ID] > st.order[matched[j].ID]
		})
		total = int64(len(matched))
		out = page(matched, filter.Offset, filter.Limit)
		return nil
	})
	return out, total, err
}

func (r *MemoryRepository) CountBroadcasts(ctx context.Context, filter BroadcastFilter) (int64, error) {
	var total int64
	err := r.do(func(st *memoryState) error {
		total = int64(len(r.filterBroadcasts(st, filter)))
		return nil
	})
	return total, err
}

func (r *MemoryRepository) filterBroadcasts(st *memoryState, filter BroadcastFilter) []models.Broadcast {
	var matched []models.Broadcast
	for _, b := range st.broadcasts {
		if filter.CustomerID != nil && b.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.Status != nil && b.Status != *filter.Status {
			continue
		}
		matched = append(matched, b)
	}
	return matched
}

func (r *MemoryRepository) TransitionBroadcast(ctx context.Context, id uuid.UUID, from models.BroadcastStatus, changes BroadcastChanges) (bool, error) {
	var updated bool
	err := r.do(func(st *memoryState) error {
		b, ok := st.broadcasts[id]
		if !ok || b.Status != from {
			return nil
		}
		changes.apply(&b)
		b.UpdatedAt = r.now()
		st.broadcasts[id] = b
		updated = true
		return nil
	})
	return updated, err
}

func (r *MemoryRepository) ListBroadcastsPastExpiry(ctx context.Context, now time.Time, limit int) ([]models.Broadcast, error) {
	var out []models.Broadcast
	err := r.do(func(st *memoryState) error {
		for _, b := range st.broadcasts {
			if b.Status == models.BroadcastStatusActive && b.ExpiresAt.Before(now) {
				out = append(out, b)
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
		out = page(out, 0, limit)
		return nil
	})
	return out, err
}

func (r *MemoryRepository) GetRequest(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	var out models.Request
	err := r.do(func(st *memoryState) error {
		req, ok := st.requests[id]
		if !ok {
			return ErrNotFound
		}
		out = hydrate(st, req)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *MemoryRepository) ListRequests(ctx context.Context, broadcastID uuid.UUID) ([]models.Request, error) {
	var out []models.Request
	err := r.do(func(st *memoryState) error {
		for _, req := range st.requests {
			if req.BroadcastID == broadcastID {
				req.Items = copyItems(st.items[req.ID])
				out = append(out, req)
			}
		}
		sortRequests(st, out)
		return nil
	})
	return out, err
}

func (r *MemoryRepository) ListMerchantRequests(ctx context.Context, filter RequestFilter) ([]models.Request, int64, error) {
	var out []models.Request
	var total int64
	err := r.do(func(st *memoryState) error {
		var matched []models.Request
		for _, req := range st.requests {
			if req.MerchantID != filter.MerchantID {
				continue
			}
			if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, req.Status) {
				continue
			}
			matched = append(matched, req)
		}
		sort.SliceStable(matched, func(i, j int) bool {
			return st.order[matched[i].ID] > st.order[matched[j].ID]
		})
		total = int64(len(matched))
		for _, req := range page(matched, filter.Offset, filter.Limit) {
			out = append(out, hydrate(st, req))
		}
		return nil
	})
	return out, total, err
}

func (r *MemoryRepository) CountMerchantRequests(ctx context.Context, merchantID uuid.UUID, statuses []models.RequestStatus) (int64, error) {
	var total int64
	err := r.do(func(st *memoryState) error {
		for _, req := range st.requests {
			if req.MerchantID == merchantID && (len(statuses) == 0 || containsStatus(statuses, req.Status)) {
				total++
			}
		}
		return nil
	})
	return total, err
}

func (r *MemoryRepository) TransitionRequest(ctx context.Context, id uuid.UUID, from []models.RequestStatus, changes RequestChanges) (bool, error) {
	var updated bool
	err := r.do(func(st *memoryState) error {
		req, ok := st.requests[id]
		if !ok || !containsStatus(from, req.Status) {
			return nil
		}
		changes.apply(&req)
		req.UpdatedAt = r.now()
		st.requests[id] = req
		updated = true
		return nil
	})
	return updated, err
}

func (r *MemoryRepository) SaveQuote(ctx context.Context, quote Quote) (bool, error) {
	var saved bool
	err := r.do(func(st *memoryState) error {
		req, ok := st.requests[quote.RequestID]
		if !ok || req.Status != models.RequestStatusPending {
			return nil
		}

		pricedAt, expiresAt, ref := quote.PricedAt, quote.PricingExpiresAt, quote.OrderReference
		req.Status = models.RequestStatusPriced
		req.Subtotal = quote.Subtotal
		req.DeliveryFee = quote.DeliveryFee
		req.Total = quote.Total
		req.ItemsCount = len(quote.Items)
		req.MerchantNotes = quote.MerchantNotes
		req.PricedAt = &pricedAt
		req.PricingExpiresAt = &expiresAt
		req.OrderReference = &ref
		req.UpdatedAt = r.now()

		items := make([]models.LineItem, len(quote.Items))
		for i, item := range quote.Items {
			r.stamp(&item.BaseModel)
			item.RequestID = req.ID
			items[i] = item
		}

		st.requests[req.ID] = req
		st.items[req.ID] = items
		saved = true
		return nil
	})
	return saved, err
}

func (r *MemoryRepository) ListPendingPastDeadline(ctx context.Context, now time.Time, limit int) ([]models.Request, error) {
	var out []models.Request
	err := r.do(func(st *memoryState) error {
		for _, req := range st.requests {
			if req.Status != models.RequestStatusPending {
				continue
			}
			if b, ok := st.broadcasts[req.BroadcastID]; ok && b.PricingDeadline.Before(now) {
				out = append(out, req)
			}
		}
		sortRequests(st, out)
		out = page(out, 0, limit)
		return nil
	})
	return out, err
}

func (r *MemoryRepository) ListStaleQuotes(ctx context.Context, now time.Time, limit int) ([]models.Request, error) {
	var out []models.Request
	err := r.do(func(st *memoryState) error {
		for _, req := range st.requests {
			if req.Status != models.RequestStatusPriced || req.PricingExpiresAt == nil || !req.PricingExpiresAt.Before(now) {
				continue
			}
			if b, ok := st.broadcasts[req.BroadcastID]; ok && b.Status == models.BroadcastStatusActive {
				out = append(out, req)
			}
		}
		sortRequests(st, out)
		out = page(out, 0, limit)
		return nil
	})
	return out, err
}

func (r *MemoryRepository) AppendEvents(ctx context.Context, events ...models.BridgeEvent) error {
	return r.do(func(st *memoryState) error {
		for _, e := range events {
			r.stamp(&e.BaseModel)
			if e.Status == "" {
				e.Status = models.BridgeEventStatusPending
			}
			st.events[e.ID] = e
			r.nextSeq(st, e.ID)
		}
		return nil
	})
}

func (r *MemoryRepository) ListDueEvents(ctx context.Context, now time.Time, limit int) ([]models.BridgeEvent, error) {
	var out []models.BridgeEvent
	err := r.do(func(st *memoryState) error {
		// head is the oldest undelivered event per order reference
		head := make(map[uuid.UUID]models.BridgeEvent)
		for _, e := range st.events {
			if e.Status != models.BridgeEventStatusPending && e.Status != models.BridgeEventStatusFailed {
				continue
			}
			if h, ok := head[e.OrderReference]; !ok || st.order[e.ID] < st.order[h.ID] {
				head[e.OrderReference] = e
			}
		}
		for _, e := range head {
			if e.Status == models.BridgeEventStatusPending && !e.NextAttemptAt.After(now) {
				out = append(out, e)
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return st.order[out[i].ID] < st.order[out[j].ID] })
		out = page(out, 0, limit)
		return nil
	})
	return out, err
}

func (r *MemoryRepository) MarkEventDispatched(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.do(func(st *memoryState) error {
		e, ok := st.events[id]
		if !ok {
			return ErrNotFound
		}
		e.Status = models.BridgeEventStatusDispatched
		e.DispatchedAt = &at
		e.Attempts++
		e.LastError = ""
		e.UpdatedAt = r.now()
		st.events[id] = e
		return nil
	})
}

func (r *MemoryRepository) RecordEventFailure(ctx context.Context, id uuid.UUID, failure EventFailure) error {
	return r.do(func(st *memoryState) error {
		e, ok := st.events[id]
		if !ok {
			return ErrNotFound
		}
		e.Attempts = failure.Attempts
		e.LastError = failure.LastError
		e.NextAttemptAt = failure.NextAttemptAt
		if failure.Final {
			e.Status = models.BridgeEventStatusFailed
		}
		e.UpdatedAt = r.now()
		st.events[id] = e
		return nil
	})
}

func (r *MemoryRepository) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	return r.do(func(st *memoryState) error {
		r.stamp(&entry.BaseModel)
		st.audit = append(st.audit, *entry)
		return nil
	})
}

// Events returns every outbox row in insertion order.
func (r *MemoryRepository) Events() []models.BridgeEvent {
	var out []models.BridgeEvent
	r.do(func(st *memoryState) error {
		for _, e := range st.events {
			out = append(out, e)
		}
		sort.SliceStable(out, func(i, j int) bool { return st.order[out[i].ID] < st.order[out[j].ID] })
		return nil
	})
	return out
}

// AuditLogs returns every audit entry in insertion order.
func (r *MemoryRepository) AuditLogs() []models.AuditLog {
	var out []models.AuditLog
	r.do(func(st *memoryState) error {
		out = append(out, st.audit...)
		return nil
	})
	return out
}

func hydrate(st *memoryState, req models.Request) models.Request {
	req.Items = copyItems(st.items[req.ID])
	if b, ok := st.broadcasts[req.BroadcastID]; ok {
		req.Broadcast = &b
	}
	return req
}

func copyItems(items []models.LineItem) []models.LineItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]models.LineItem, len(items))
	copy(out, items)
	return out
}

func sortRequests(st *memoryState, reqs []models.Request) {
	sort.SliceStable(reqs, func(i, j int) bool { return st.order[reqs[i].ID] < st.order[reqs[j].ID] })
}

func page[T any](rows []T, offset, limit int) []T {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
