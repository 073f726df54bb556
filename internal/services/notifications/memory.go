package notifications

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/pkg/errors"
)

var _ Store = (*Memory)(nil)

type globalRef struct {
	id          string
	recipientID string
}

// Memory keeps everything in process. Each recipient list has its own
// lock; the global arrival order has another. The two are never held
// together.
type Memory struct {
	limits Limits
	now    func() time.Time

	boxesMu sync.Mutex
	boxes   map[string]*box

	orderMu sync.Mutex
	order   *list.List // of globalRef, oldest first
	elems   map[string]*list.Element
}

type box struct {
	mu    sync.Mutex
	items []*models.Notification // newest first
}

func NewMemory(limits Limits) *Memory {
	return &Memory{
		limits: limits.withDefaults(),
		now:    func() time.Time { return time.Now().UTC() },
		boxes:  map[string]*box{},
		order:  list.New(),
		elems:  map[string]*list.Element{},
	}
}

func (m *Memory) box(recipientID string) *box {
	m.boxesMu.Lock()
	defer m.boxesMu.Unlock()
	b, ok := m.boxes[recipientID]
	if !ok {
		b = &box{}
		m.boxes[recipientID] = b
	}
	return b
}

// pruneLocked drops expired items; b.mu must be held.
func (b *box) pruneLocked(now time.Time) []string {
	var gone []string
	kept := b.items[:0]
	for _, n := range b.items {
		if n.Expired(now) {
			gone = append(gone, n.ID)
			continue
		}
		kept = append(kept, n)
	}
	for i := len(kept); i < len(b.items); i++ {
		b.items[i] = nil
	}
	b.items = kept
	return gone
}

func (b *box) removeLocked(id string) bool {
	for i, n := range b.items {
		if n.ID == id {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Memory) forget(ids []string) {
	if len(ids) == 0 {
		return
	}
	m.orderMu.Lock()
	defer m.orderMu.Unlock()
	for _, id := range ids {
		if e, ok := m.elems[id]; ok {
			m.order.Remove(e)
			delete(m.elems, id)
		}
	}
}

func (m *Memory) Append(ctx context.Context, recipientID string, n *models.Notification) (*models.Notification, error) {
	if recipientID == "" {
		return nil, errors.Wrap(models.ErrInvalidArgument, "recipient id is required")
	}
	now := m.now()
	rec := stamp(recipientID, n, now, m.limits.TTL)

	b := m.box(recipientID)
	b.mu.Lock()
	gone := b.pruneLocked(now)
	b.items = append([]*models.Notification{rec}, b.items...)
	if len(b.items) > m.limits.PerRecipient {
		for _, old := range b.items[m.limits.PerRecipient:] {
			gone = append(gone, old.ID)
		}
		b.items = b.items[:m.limits.PerRecipient]
	}
	b.mu.Unlock()

	m.forget(gone)

	m.orderMu.Lock()
	m.elems[rec.ID] = m.order.PushBack(globalRef{id: rec.ID, recipientID: recipientID})
	var victims []globalRef
	for m.order.Len() > m.limits.Global {
		e := m.order.Front()
		ref := m.order.Remove(e).(globalRef)
		delete(m.elems, ref.id)
		victims = append(victims, ref)
	}
	m.orderMu.Unlock()

	for _, v := range victims {
		vb := m.box(v.recipientID)
		vb.mu.Lock()
		vb.removeLocked(v.id)
		vb.mu.Unlock()
	}

	return clone(rec), nil
}

func (m *Memory) List(ctx context.Context, recipientID string, q models.NotificationQuery) ([]*models.Notification, error) {
	b := m.box(recipientID)
	b.mu.Lock()
	gone := b.pruneLocked(m.now())
	page := q.Page(b.items)
	out := make([]*models.Notification, 0, len(page))
	for _, n := range page {
		out = append(out, clone(n))
	}
	b.mu.Unlock()

	m.forget(gone)
	return out, nil
}

func (m *Memory) MarkRead(ctx context.Context, id, recipientID string) error {
	b := m.box(recipientID)
	now := m.now()
	b.mu.Lock()
	gone := b.pruneLocked(now)
	found := false
	for _, n := range b.items {
		if n.ID == id {
			found = true
			if !n.Read {
				n.Read = true
				at := now
				n.ReadAt = &at
			}
			break
		}
	}
	b.mu.Unlock()

	m.forget(gone)
	if !found {
		return errors.Wrapf(models.ErrNotFound, "notification %s", id)
	}
	return nil
}

func (m *Memory) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	b := m.box(recipientID)
	now := m.now()
	b.mu.Lock()
	gone := b.pruneLocked(now)
	changed := 0
	for _, n := range b.items {
		if !n.Read {
			n.Read = true
			at := now
			n.ReadAt = &at
			changed++
		}
	}
	b.mu.Unlock()

	m.forget(gone)
	return changed, nil
}

func (m *Memory) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	b := m.box(recipientID)
	b.mu.Lock()
	gone := b.pruneLocked(m.now())
	count := 0
	for _, n := range b.items {
		if !n.Read {
			count++
		}
	}
	b.mu.Unlock()

	m.forget(gone)
	return count, nil
}

func (m *Memory) Delete(ctx context.Context, id, recipientID string) error {
	b := m.box(recipientID)
	b.mu.Lock()
	gone := b.pruneLocked(m.now())
	removed := b.removeLocked(id)
	b.mu.Unlock()

	if removed {
		gone = append(gone, id)
	}
	m.forget(gone)
	if !removed {
		return errors.Wrapf(models.ErrNotFound, "notification %s", id)
	}
	return nil
}

func (m *Memory) Sweep(ctx context.Context) (int, error) {
	m.boxesMu.Lock()
	boxes := make([]*box, 0, len(m.boxes))
	for _, b := range m.boxes {
		boxes = append(boxes, b)
	}
	m.boxesMu.Unlock()

	now := m.now()
	total := 0
	for _, b := range boxes {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		b.mu.Lock()
		gone := b.pruneLocked(now)
		b.mu.Unlock()

		m.forget(gone)
		total += len(gone)
	}
	return total, nil
}
