package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"registration-workers/internal/models"
)

// Memory is an in-process Store enforcing the same constraints as the
// Postgres schema. Transactions are serialized and roll back by restoring a
// snapshot.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	applications map[string]*models.Application
	actions      []models.ApplicationAction
	orders       map[string]*models.InspectionOrder
	reports      map[string]*models.InspectionReport
	certificates map[string]*models.Certificate
	settings     map[string]string
	audit        []AuditEntry
}

// AuditEntry is one audit_log row held by Memory.
type AuditEntry struct {
	EventType    string
	ResourceType string
	ResourceID   string
	Details      map[string]interface{}
	CreatedAt    time.Time
}

func NewMemory() *Memory {
	return &Memory{state: &memState{
		applications: map[string]*models.Application{},
		orders:       map[string]*models.InspectionOrder{},
		reports:      map[string]*models.InspectionReport{},
		certificates: map[string]*models.Certificate{},
		settings:     map[string]string{},
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		applications: make(map[string]*models.Application, len(s.applications)),
		actions:      make([]models.ApplicationAction, len(s.actions)),
		orders:       make(map[string]*models.InspectionOrder, len(s.orders)),
		reports:      make(map[string]*models.InspectionReport, len(s.reports)),
		certificates: make(map[string]*models.Certificate, len(s.certificates)),
		settings:     make(map[string]string, len(s.settings)),
		audit:        append([]AuditEntry(nil), s.audit...),
	}
	for k, v := range s.applications {
		c.applications[k] = v.Clone()
	}
	copy(c.actions, s.actions)
	for k, v := range s.orders {
		o := *v
		c.orders[k] = &o
	}
	for k, v := range s.reports {
		r := *v
		c.reports[k] = &r
	}
	for k, v := range s.certificates {
		cert := *v
		c.certificates[k] = &cert
	}
	for k, v := range s.settings {
		c.settings[k] = v
	}
	return c
}

// SetSetting writes a system setting.
func (m *Memory) SetSetting(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.settings[key] = value
}

// Audit returns a copy of the audit log.
func (m *Memory) Audit() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditEntry(nil), m.state.audit...)
}

// Applications returns a copy of every stored application.
func (m *Memory) Applications() []*models.Application {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Application, 0, len(m.state.applications))
	for _, a := range m.state.applications {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}

// Certificates returns a copy of every stored certificate.
func (m *Memory) Certificates() []models.Certificate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Certificate, 0, len(m.state.certificates))
	for _, c := range m.state.certificates {
		out = append(out, *c)
	}
	return out
}

func (m *Memory) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := m.state.clone()
	if err := fn(ctx, &memTx{s: m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// read runs fn against the committed state.
func (m *Memory) read(fn func(r memReader)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(memReader{s: m.state})
}

func (m *Memory) GetApplication(ctx context.Context, id string) (a *models.Application, err error) {
	m.read(func(r memReader) { a, err = r.GetApplication(ctx, id) })
	return
}

func (m *Memory) FindActive(ctx context.Context, key models.ActiveKey) (a *models.Application, err error) {
	m.read(func(r memReader) { a, err = r.FindActive(ctx, key) })
	return
}

func (m *Memory) MaxSerial(ctx context.Context) (n int64, err error) {
	m.read(func(r memReader) { n, err = r.MaxSerial(ctx) })
	return
}

func (m *Memory) MaxCertificateSerial(ctx context.Context) (n int64, err error) {
	m.read(func(r memReader) { n, err = r.MaxCertificateSerial(ctx) })
	return
}

func (m *Memory) GetSetting(ctx context.Context, key string) (v string, ok bool, err error) {
	m.read(func(r memReader) { v, ok, err = r.GetSetting(ctx, key) })
	return
}

func (m *Memory) FindActionByKey(ctx context.Context, applicationID string, kind models.ActionKind, key string) (a *models.ApplicationAction, err error) {
	m.read(func(r memReader) { a, err = r.FindActionByKey(ctx, applicationID, kind, key) })
	return
}

func (m *Memory) History(ctx context.Context, applicationID string) (h []models.ApplicationAction, err error) {
	m.read(func(r memReader) { h, err = r.History(ctx, applicationID) })
	return
}

func (m *Memory) GetInspectionOrder(ctx context.Context, id string) (o *models.InspectionOrder, err error) {
	m.read(func(r memReader) { o, err = r.GetInspectionOrder(ctx, id) })
	return
}

func (m *Memory) ActiveInspectionOrder(ctx context.Context, applicationID string) (o *models.InspectionOrder, err error) {
	m.read(func(r memReader) { o, err = r.ActiveInspectionOrder(ctx, applicationID) })
	return
}

func (m *Memory) ReportForOrder(ctx context.Context, orderID string) (rep *models.InspectionReport, err error) {
	m.read(func(r memReader) { rep, err = r.ReportForOrder(ctx, orderID) })
	return
}

func (m *Memory) LatestInspectionReport(ctx context.Context, applicationID string) (rep *models.InspectionReport, err error) {
	m.read(func(r memReader) { rep, err = r.LatestInspectionReport(ctx, applicationID) })
	return
}

func (m *Memory) CertificateForApplication(ctx context.Context, applicationID string) (c *models.Certificate, err error) {
	m.read(func(r memReader) { c, err = r.CertificateForApplication(ctx, applicationID) })
	return
}

func (m *Memory) ListStaleDrafts(ctx context.Context, updatedBefore time.Time, limit int) (out []*models.Application, err error) {
	m.read(func(r memReader) { out, err = r.ListStaleDrafts(ctx, updatedBefore, limit) })
	return
}

// ==========================
// Unlocked state access
// ==========================

type memReader struct {
	s *memState
}

func (r memReader) GetApplication(_ context.Context, id string) (*models.Application, error) {
	a, ok := r.s.applications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (r memReader) FindActive(_ context.Context, key models.ActiveKey) (*models.Application, error) {
	for _, a := range r.s.applications {
		if !a.Status.IsTerminal() && a.ActiveKey() == key {
			return a.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (r memReader) MaxSerial(context.Context) (int64, error) {
	var max int64
	for _, a := range r.s.applications {
		if a.Serial > max {
			max = a.Serial
		}
	}
	return max, nil
}

func (r memReader) MaxCertificateSerial(context.Context) (int64, error) {
	var max int64
	for _, c := range r.s.certificates {
		if c.Serial > max {
			max = c.Serial
		}
	}
	return max, nil
}

func (r memReader) GetSetting(_ context.Context, key string) (string, bool, error) {
	v, ok := r.s.settings[key]
	return v, ok, nil
}

func (r memReader) FindActionByKey(_ context.Context, applicationID string, kind models.ActionKind, key string) (*models.ApplicationAction, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	for _, a := range r.s.actions {
		if a.ApplicationID == applicationID && a.ActionKind == kind && a.IdempotencyKey == key {
			out := a
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r memReader) History(_ context.Context, applicationID string) ([]models.ApplicationAction, error) {
	var out []models.ApplicationAction
	for i := len(r.s.actions) - 1; i >= 0; i-- {
		if r.s.actions[i].ApplicationID == applicationID {
			out = append(out, r.s.actions[i])
		}
	}
	return out, nil
}

func (r memReader) GetInspectionOrder(_ context.Context, id string) (*models.InspectionOrder, error) {
	o, ok := r.s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *o
	return &out, nil
}

func (r memReader) ActiveInspectionOrder(_ context.Context, applicationID string) (*models.InspectionOrder, error) {
	for _, o := range r.s.orders {
		if o.ApplicationID == applicationID && o.Status.Active() {
			out := *o
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r memReader) ReportForOrder(_ context.Context, orderID string) (*models.InspectionReport, error) {
	rep, ok := r.s.reports[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rep
	return &out, nil
}

func (r memReader) LatestInspectionReport(_ context.Context, applicationID string) (*models.InspectionReport, error) {
	var latest *models.InspectionReport
	for _, rep := range r.s.reports {
		if rep.ApplicationID != applicationID {
			continue
		}
		if latest == nil || rep.CreatedAt.After(latest.CreatedAt) {
			latest = rep
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	out := *latest
	return &out, nil
}

func (r memReader) CertificateForApplication(_ context.Context, applicationID string) (*models.Certificate, error) {
	for _, c := range r.s.certificates {
		if c.ApplicationID == applicationID {
			out := *c
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r memReader) ListStaleDrafts(_ context.Context, updatedBefore time.Time, limit int) ([]*models.Application, error) {
	var out []*models.Application
	for _, a := range r.s.applications {
		if a.Status == models.StatusDraft && a.UpdatedAt.Before(updatedBefore) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memTx struct {
	s *memState
}

func (t *memTx) r() memReader { return memReader{s: t.s} }

func (t *memTx) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	return t.r().GetApplication(ctx, id)
}

func (t *memTx) FindActive(ctx context.Context, key models.ActiveKey) (*models.Application, error) {
	return t.r().FindActive(ctx, key)
}

func (t *memTx) MaxSerial(ctx context.Context) (int64, error) { return t.r().MaxSerial(ctx) }

func (t *memTx) MaxCertificateSerial(ctx context.Context) (int64, error) {
	return t.r().MaxCertificateSerial(ctx)
}

func (t *memTx) GetSetting(ctx context.Context, key string) (string, bool, error) {
	return t.r().GetSetting(ctx, key)
}

func (t *memTx) FindActionByKey(ctx context.Context, applicationID string, kind models.ActionKind, key string) (*models.ApplicationAction, error) {
	return t.r().FindActionByKey(ctx, applicationID, kind, key)
}

func (t *memTx) History(ctx context.Context, applicationID string) ([]models.ApplicationAction, error) {
	return t.r().History(ctx, applicationID)
}

func (t *memTx) GetInspectionOrder(ctx context.Context, id string) (*models.InspectionOrder, error) {
	return t.r().GetInspectionOrder(ctx, id)
}

func (t *memTx) ActiveInspectionOrder(ctx context.Context, applicationID string) (*models.InspectionOrder, error) {
	return t.r().ActiveInspectionOrder(ctx, applicationID)
}

func (t *memTx) ReportForOrder(ctx context.Context, orderID string) (*models.InspectionReport, error) {
	return t.r().ReportForOrder(ctx, orderID)
}

func (t *memTx) LatestInspectionReport(ctx context.Context, applicationID string) (*models.InspectionReport, error) {
	return t.r().LatestInspectionReport(ctx, applicationID)
}

func (t *memTx) CertificateForApplication(ctx context.Context, applicationID string) (*models.Certificate, error) {
	return t.r().CertificateForApplication(ctx, applicationID)
}

func (t *memTx) ListStaleDrafts(ctx context.Context, updatedBefore time.Time, limit int) ([]*models.Application, error) {
	return t.r().ListStaleDrafts(ctx, updatedBefore, limit)
}

func (t *memTx) InsertApplication(_ context.Context, a *models.Application) error {
	if a.ParentApplicationID != "" {
		if _, ok := t.s.applications[a.ParentApplicationID]; !ok {
			return ErrNotFound
		}
	}
	for _, existing := range t.s.applications {
		if existing.Serial == a.Serial || existing.ApplicationNumber == a.ApplicationNumber {
			return ErrSerialTaken
		}
	}
	if !a.Status.IsTerminal() {
		for _, existing := range t.s.applications {
			if !existing.Status.IsTerminal() && existing.ActiveKey() == a.ActiveKey() {
				return ErrActiveDuplicate
			}
		}
	}
	t.s.applications[a.ID] = a.Clone()
	return nil
}

func (t *memTx) LockApplication(ctx context.Context, id string) (*models.Application, error) {
	return t.GetApplication(ctx, id)
}

func (t *memTx) UpdateApplication(_ context.Context, a *models.Application) error {
	current, ok := t.s.applications[a.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != a.Version {
		return ErrVersionConflict
	}
	if !a.Status.IsTerminal() && current.Status.IsTerminal() {
		for id, other := range t.s.applications {
			if id != a.ID && !other.Status.IsTerminal() && other.ActiveKey() == a.ActiveKey() {
				return ErrActiveDuplicate
			}
		}
	}
	next := a.Clone()
	next.Version++
	// Identity columns are not updatable.
	next.ApplicationNumber = current.ApplicationNumber
	next.Serial = current.Serial
	next.Kind = current.Kind
	next.OwnerUserID = current.OwnerUserID
	next.ParentApplicationID = current.ParentApplicationID
	next.CreatedAt = current.CreatedAt
	t.s.applications[a.ID] = next
	a.Version = next.Version
	return nil
}

func (t *memTx) DeleteApplication(_ context.Context, id string) error {
	if _, ok := t.s.applications[id]; !ok {
		return ErrNotFound
	}
	delete(t.s.applications, id)

	kept := t.s.actions[:0]
	for _, a := range t.s.actions {
		if a.ApplicationID != id {
			kept = append(kept, a)
		}
	}
	t.s.actions = kept
	for oid, o := range t.s.orders {
		if o.ApplicationID == id {
			delete(t.s.orders, oid)
			delete(t.s.reports, oid)
		}
	}
	return nil
}

func (t *memTx) AppendAction(_ context.Context, a *models.ApplicationAction) error {
	if _, ok := t.s.applications[a.ApplicationID]; !ok {
		return ErrNotFound
	}
	if a.IdempotencyKey != "" {
		if _, err := t.r().FindActionByKey(context.Background(), a.ApplicationID, a.ActionKind, a.IdempotencyKey); err == nil {
			return ErrDuplicateAction
		}
	}
	row := *a
	row.IssuesFound = append([]string(nil), a.IssuesFound...)
	t.s.actions = append(t.s.actions, row)
	return nil
}

func (t *memTx) InsertInspectionOrder(_ context.Context, o *models.InspectionOrder) error {
	if _, ok := t.s.applications[o.ApplicationID]; !ok {
		return ErrNotFound
	}
	if o.Status.Active() {
		for _, existing := range t.s.orders {
			if existing.ApplicationID == o.ApplicationID && existing.Status.Active() {
				return ErrActiveOrderExists
			}
		}
	}
	row := *o
	t.s.orders[o.ID] = &row
	return nil
}

func (t *memTx) LockInspectionOrder(ctx context.Context, id string) (*models.InspectionOrder, error) {
	return t.GetInspectionOrder(ctx, id)
}

func (t *memTx) UpdateInspectionOrder(_ context.Context, o *models.InspectionOrder) error {
	current, ok := t.s.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	current.Status = o.Status
	current.UpdatedAt = o.UpdatedAt
	return nil
}

func (t *memTx) InsertInspectionReport(_ context.Context, rep *models.InspectionReport) error {
	if _, ok := t.s.orders[rep.InspectionOrderID]; !ok {
		return ErrNotFound
	}
	if _, ok := t.s.reports[rep.InspectionOrderID]; ok {
		return ErrReportExists
	}
	row := *rep
	t.s.reports[rep.InspectionOrderID] = &row
	return nil
}

func (t *memTx) InsertCertificate(_ context.Context, c *models.Certificate) error {
	if _, ok := t.s.applications[c.ApplicationID]; !ok {
		return ErrNotFound
	}
	for _, existing := range t.s.certificates {
		if existing.Serial == c.Serial || existing.CertificateNumber == c.CertificateNumber {
			return ErrSerialTaken
		}
		if existing.ApplicationID == c.ApplicationID {
			return ErrCertificateExists
		}
	}
	row := *c
	t.s.certificates[c.ID] = &row
	return nil
}

func (t *memTx) InsertAudit(_ context.Context, eventType, resourceType, resourceID string, details map[string]interface{}) error {
	t.s.audit = append(t.s.audit, AuditEntry{
		EventType:    eventType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		CreatedAt:    time.Now().UTC(),
	})
	return nil
}
