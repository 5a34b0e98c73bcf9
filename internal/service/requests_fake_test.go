package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bigkaa/servicedesk/internal/domain/model"
	"github.com/bigkaa/servicedesk/internal/repository"
)

// memStore — in-memory хранилище с транзакциями для тестов сервиса.
// Транзакции сериализуются, при ошибке состояние откатывается.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	services  map[string]*model.Service
	slas      map[string]*model.SLA
	templates map[string]*model.Template
	requests  map[string]model.Request
	audit     []*model.AuditEntry
	overrides map[string]model.RoleOverride

	// auditErr — ошибка, возвращаемая при записи аудита
	auditErr error
	// readGate — задерживает чтения заявки до прихода нужного числа читателей
	readGate *gate
}

// gate пропускает первых want участников только вместе.
type gate struct {
	mu   sync.Mutex
	n    int
	want int
	ch   chan struct{}
}

func newGate(want int) *gate {
	return &gate{want: want, ch: make(chan struct{})}
}

func (g *gate) arrive() {
	g.mu.Lock()
	g.n++
	n := g.n
	if n == g.want {
		close(g.ch)
	}
	g.mu.Unlock()
	if n <= g.want {
		<-g.ch
	}
}

func newMemStore() *memStore {
	return &memStore{
		services:  map[string]*model.Service{},
		slas:      map[string]*model.SLA{},
		templates: map[string]*model.Template{},
		requests:  map[string]model.Request{},
		overrides: map[string]model.RoleOverride{},
	}
}

func (st *memStore) repos() *repository.Repos {
	return &repository.Repos{
		Catalog:       &memCatalog{st: st},
		Requests:      &memRequests{st: st},
		Audit:         &memAudit{st: st},
		RoleOverrides: &memRoleOverrides{st: st},
	}
}

// InTx реализует TxManager.
func (st *memStore) InTx(_ context.Context, fn func(repos *repository.Repos) error) error {
	st.txMu.Lock()
	defer st.txMu.Unlock()

	st.mu.Lock()
	savedRequests := make(map[string]model.Request, len(st.requests))
	for k, v := range st.requests {
		savedRequests[k] = v
	}
	savedAudit := len(st.audit)
	savedOverrides := make(map[string]model.RoleOverride, len(st.overrides))
	for k, v := range st.overrides {
		savedOverrides[k] = v
	}
	st.mu.Unlock()

	if err := fn(st.repos()); err != nil {
		st.mu.Lock()
		st.requests = savedRequests
		st.audit = st.audit[:savedAudit]
		st.overrides = savedOverrides
		st.mu.Unlock()
		return err
	}
	return nil
}

func (st *memStore) auditFor(id string) []*model.AuditEntry {
	st.mu.Lock()
	defer st.mu.Unlock()
	var out []*model.AuditEntry
	for _, e := range st.audit {
		if e.AffectedID != nil && *e.AffectedID == id {
			out = append(out, e)
		}
	}
	return out
}

type memCatalog struct{ st *memStore }

func (c *memCatalog) GetService(_ context.Context, id string) (*model.Service, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	s, ok := c.st.services[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (c *memCatalog) GetSLA(_ context.Context, id string) (*model.SLA, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	s, ok := c.st.slas[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (c *memCatalog) GetTemplate(_ context.Context, id string) (*model.Template, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	t, ok := c.st.templates[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

type memRequests struct{ st *memStore }

func (r *memRequests) Create(_ context.Context, req *model.Request) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, existing := range r.st.requests {
		if existing.Code == req.Code {
			return repository.ErrConflict
		}
		if req.IdempotencyKey != nil && existing.IdempotencyKey != nil &&
			existing.Requester.ID == req.Requester.ID && *existing.IdempotencyKey == *req.IdempotencyKey {
			return repository.ErrDuplicateIdempotencyKey
		}
	}
	req.CreatedAt = time.Now().UTC()
	req.UpdatedAt = req.CreatedAt
	r.st.requests[req.ID] = *req
	return nil
}

func (r *memRequests) get(id string) (*model.Request, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	req, ok := r.st.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &req, nil
}

func (r *memRequests) GetByID(_ context.Context, id string) (*model.Request, error) {
	if g := r.st.readGate; g != nil {
		g.arrive()
	}
	return r.get(id)
}

func (r *memRequests) GetForUpdate(_ context.Context, id string) (*model.Request, error) {
	return r.get(id)
}

func (r *memRequests) FindByIdempotencyKey(_ context.Context, requesterID, key string) (*model.Request, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, req := range r.st.requests {
		if req.Requester.ID == requesterID && req.IdempotencyKey != nil && *req.IdempotencyKey == key {
			cp := req
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memRequests) UpdateStatus(
	_ context.Context,
	id string,
	expected, next model.RequestStatus,
	redirectedAt *time.Time,
) (*model.Request, error) {
	r.st.mu.Lock()
	req, ok := r.st.requests[id]
	if !ok || req.Status != expected {
		r.st.mu.Unlock()
		return nil, repository.ErrStaleStatus
	}
	req.Status = next
	if req.RedirectedAt == nil {
		req.RedirectedAt = redirectedAt
	}
	req.UpdatedAt = time.Now().UTC()
	r.st.requests[id] = req
	r.st.mu.Unlock()
	return r.get(id)
}

func (r *memRequests) Delete(_ context.Context, id string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.requests[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.st.requests, id)
	return nil
}

func (r *memRequests) match(req model.Request, f repository.RequestFilters) bool {
	if f.RequesterID != nil && req.Requester.ID != *f.RequesterID {
		return false
	}
	if f.Status != nil && req.Status != *f.Status {
		return false
	}
	if f.ServiceID != nil && req.ServiceID != *f.ServiceID {
		return false
	}
	return true
}

func (r *memRequests) List(_ context.Context, f repository.RequestFilters, limit, offset int) ([]*model.Request, error) {
	if offset < 0 || limit < 0 {
		// PostgreSQL отклоняет отрицательные LIMIT и OFFSET
		return nil, fmt.Errorf("отрицательный LIMIT/OFFSET: %d/%d", limit, offset)
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var all []*model.Request
	for _, req := range r.st.requests {
		if r.match(req, f) {
			cp := req
			all = append(all, &cp)
		}
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *memRequests) Count(_ context.Context, f repository.RequestFilters) (int, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	n := 0
	for _, req := range r.st.requests {
		if r.match(req, f) {
			n++
		}
	}
	return n, nil
}

type memAudit struct{ st *memStore }

func (a *memAudit) Insert(_ context.Context, e *model.AuditEntry) error {
	a.st.mu.Lock()
	defer a.st.mu.Unlock()
	if a.st.auditErr != nil {
		return a.st.auditErr
	}
	e.ID = int64(len(a.st.audit) + 1)
	e.CreatedAt = time.Now().UTC()
	a.st.audit = append(a.st.audit, e)
	return nil
}

type memRoleOverrides struct{ st *memStore }

func (m *memRoleOverrides) Upsert(_ context.Context, ro *model.RoleOverride) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	now := time.Now().UTC()
	if prev, ok := m.st.overrides[ro.UserID]; ok {
		ro.ID = prev.ID
		ro.CreatedAt = prev.CreatedAt
	} else {
		ro.ID = "ro-" + ro.UserID
		ro.CreatedAt = now
	}
	ro.UpdatedAt = now
	m.st.overrides[ro.UserID] = *ro
	return nil
}

func (m *memRoleOverrides) GetByUserID(_ context.Context, userID string) (*model.RoleOverride, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	ro, ok := m.st.overrides[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &ro, nil
}
