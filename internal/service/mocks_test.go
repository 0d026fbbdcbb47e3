package service_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Strob0t/DealWatch/internal/domain"
	"github.com/Strob0t/DealWatch/internal/domain/alert"
	"github.com/Strob0t/DealWatch/internal/domain/deal"
	"github.com/Strob0t/DealWatch/internal/domain/joblog"
	"github.com/Strob0t/DealWatch/internal/domain/rule"
	"github.com/Strob0t/DealWatch/internal/port/database"
	"github.com/Strob0t/DealWatch/internal/port/messagequeue"
	"github.com/Strob0t/DealWatch/internal/port/notifier"
	"github.com/Strob0t/DealWatch/internal/port/offersource"
)

var errMockNotFound = fmt.Errorf("mock: %w", domain.ErrNotFound)

// --- memStore ---

// memStore is an in-memory database.Store.
type memStore struct {
	mu     sync.Mutex
	nextID int64

	rules  []rule.Rule
	deals  []deal.Deal
	alerts []alert.PushAlert
	logs   []joblog.JobLog

	listRulesErr  error
	listAlertsErr error
	createLogErr  error
	// failDeal rejects deals whose title matches.
	failDeal string
	// onListRules runs inside ListActiveRules, before it returns.
	onListRules func()
}

var _ database.Store = (*memStore)(nil)

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) ListRules(_ context.Context, userID int64) ([]rule.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []rule.Rule
	for _, r := range m.rules {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ListActiveRules(_ context.Context) ([]rule.Rule, error) {
	if m.onListRules != nil {
		m.onListRules()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listRulesErr != nil {
		return nil, m.listRulesErr
	}
	var out []rule.Rule
	for _, r := range m.rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) GetRule(_ context.Context, id, userID int64) (*rule.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == id && m.rules[i].UserID == userID {
			r := m.rules[i]
			return &r, nil
		}
	}
	return nil, errMockNotFound
}

func (m *memStore) CreateRule(_ context.Context, r *rule.Rule) (*rule.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := *r
	out.ID = m.id()
	m.rules = append(m.rules, out)
	return &out, nil
}

func (m *memStore) UpdateRule(_ context.Context, r *rule.Rule) (*rule.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == r.ID && m.rules[i].UserID == r.UserID {
			m.rules[i] = *r
			out := *r
			return &out, nil
		}
	}
	return nil, errMockNotFound
}

func (m *memStore) DeleteRule(_ context.Context, id, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == id && m.rules[i].UserID == userID {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return nil
		}
	}
	return errMockNotFound
}

func (m *memStore) SetRuleActive(_ context.Context, id, userID int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == id && m.rules[i].UserID == userID {
			m.rules[i].IsActive = active
			return nil
		}
	}
	return errMockNotFound
}

func (m *memStore) CreateDeal(_ context.Context, f *deal.Found) (*deal.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDeal != "" && f.Title == m.failDeal {
		return nil, errors.New("mock: insert failed")
	}
	d := deal.Deal{ID: m.id(), Found: *f, IsValid: true, CreatedAt: time.Now()}
	m.deals = append(m.deals, d)
	return &d, nil
}

func (m *memStore) ListDealsByUser(_ context.Context, userID int64, limit int) ([]deal.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []deal.Deal
	for _, d := range m.deals {
		if d.UserID == userID && len(out) < limit {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStore) ListDealsByRule(_ context.Context, ruleID, userID int64) ([]deal.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []deal.Deal
	for _, d := range m.deals {
		if d.RuleID == ruleID && d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStore) MarkDealsNotified(_ context.Context, ids []int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		for i := range m.deals {
			if m.deals[i].ID == id {
				t := at
				m.deals[i].NotifiedAt = &t
			}
		}
	}
	return nil
}

func (m *memStore) notified() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int64
	for _, d := range m.deals {
		if d.NotifiedAt != nil {
			out = append(out, d.ID)
		}
	}
	return out
}

func (m *memStore) ListAlerts(_ context.Context, userID int64) ([]alert.PushAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []alert.PushAlert
	for _, a := range m.alerts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) ListActiveAlerts(_ context.Context) ([]alert.PushAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listAlertsErr != nil {
		return nil, m.listAlertsErr
	}
	var out []alert.PushAlert
	for _, a := range m.alerts {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) GetAlert(_ context.Context, id int64) (*alert.PushAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			a := m.alerts[i]
			return &a, nil
		}
	}
	return nil, errMockNotFound
}

func (m *memStore) CreateAlert(_ context.Context, a *alert.PushAlert) (*alert.PushAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := *a
	out.ID = m.id()
	m.alerts = append(m.alerts, out)
	return &out, nil
}

func (m *memStore) UpdateAlert(_ context.Context, a *alert.PushAlert) (*alert.PushAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == a.ID {
			m.alerts[i] = *a
			out := *a
			return &out, nil
		}
	}
	return nil, errMockNotFound
}

func (m *memStore) DeleteAlert(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			m.alerts = append(m.alerts[:i], m.alerts[i+1:]...)
			return nil
		}
	}
	return errMockNotFound
}

func (m *memStore) SetAlertActive(_ context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			m.alerts[i].IsActive = active
			return nil
		}
	}
	return errMockNotFound
}

func (m *memStore) CreateJobLog(_ context.Context, jobType string) (*joblog.JobLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createLogErr != nil {
		return nil, m.createLogErr
	}
	l := joblog.JobLog{ID: m.id(), JobType: jobType, Status: joblog.StatusRunning, StartedAt: time.Now()}
	m.logs = append(m.logs, l)
	return &l, nil
}

func (m *memStore) CompleteJobLog(_ context.Context, id int64, c joblog.Completion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.logs {
		if m.logs[i].ID == id {
			l := &m.logs[i]
			l.Status = c.Status
			l.RulesProcessed = c.RulesProcessed
			l.DealsFound = c.DealsFound
			l.NotificationsSent = c.NotificationsSent
			l.ErrorMessage = c.ErrorMessage
			ms := c.ExecutionTime.Milliseconds()
			l.ExecutionTimeMS = &ms
			at := c.CompletedAt
			l.CompletedAt = &at
			return nil
		}
	}
	return errMockNotFound
}

func (m *memStore) ListJobLogs(_ context.Context, limit int) ([]joblog.JobLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]joblog.JobLog(nil), m.logs...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) LastJobStart(_ context.Context, jobType string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last time.Time
	for _, l := range m.logs {
		if l.JobType == jobType && l.StartedAt.After(last) {
			last = l.StartedAt
		}
	}
	return last, nil
}

func (m *memStore) jobLog(id int64) joblog.JobLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.logs {
		if l.ID == id {
			return l
		}
	}
	return joblog.JobLog{}
}

// --- fakeSource ---

// fakeSource returns canned offers keyed by "ORIGIN-DEST".
type fakeSource struct {
	mu     sync.Mutex
	offers map[string][]offersource.Offer
	err    error
	calls  []offersource.SearchParams
}

func (f *fakeSource) SearchFlights(_ context.Context, p offersource.SearchParams) ([]offersource.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, p)
	if f.err != nil {
		return nil, f.err
	}
	return f.offers[p.Origin+"-"+p.Destination], nil
}

func (f *fakeSource) ValidateCredentials(context.Context) bool { return f.err == nil }

// --- mockNotifier ---

type mockNotifier struct {
	mu      sync.Mutex
	name    string
	sent    []notifier.Notification
	sendErr error
}

func (m *mockNotifier) Name() string                        { return m.name }
func (m *mockNotifier) Capabilities() notifier.Capabilities { return notifier.Capabilities{} }
func (m *mockNotifier) Send(_ context.Context, n notifier.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, n)
	return nil
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// --- fakeBroadcaster ---

type pushed struct {
	userID    int64
	eventType string
	payload   any
}

type fakeBroadcaster struct {
	mu        sync.Mutex
	pushes    []pushed
	broadcast []string
	pushErr   error
}

func (b *fakeBroadcaster) BroadcastEvent(_ context.Context, eventType string, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcast = append(b.broadcast, eventType)
}

func (b *fakeBroadcaster) PushToUser(_ context.Context, userID int64, eventType string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pushErr != nil {
		return b.pushErr
	}
	b.pushes = append(b.pushes, pushed{userID: userID, eventType: eventType, payload: payload})
	return nil
}

// --- fakeQueue ---

type published struct {
	subject string
	data    []byte
}

type fakeQueue struct {
	mu       sync.Mutex
	msgs     []published
	handlers map[string]messagequeue.Handler
}

func (q *fakeQueue) Publish(_ context.Context, subject string, data []byte) error {
	if err := messagequeue.Validate(subject, data); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, published{subject: subject, data: data})
	return nil
}

func (q *fakeQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handlers == nil {
		q.handlers = make(map[string]messagequeue.Handler)
	}
	q.handlers[subject] = h
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.handlers, subject)
	}, nil
}

func (q *fakeQueue) Drain() error      { return nil }
func (q *fakeQueue) Close() error      { return nil }
func (q *fakeQueue) IsConnected() bool { return true }

func (q *fakeQueue) subjects() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.msgs))
	for i, m := range q.msgs {
		out[i] = m.subject
	}
	return out
}

func (q *fakeQueue) find(subject string) []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.msgs {
		if m.subject == subject {
			return m.data
		}
	}
	return nil
}
