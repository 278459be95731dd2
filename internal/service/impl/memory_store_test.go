package impl

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"willvault/internal/domain"
	"willvault/internal/service"
	"willvault/internal/store"

	"github.com/google/uuid"
)

// memoryStore implements dataStore/storeTx in memory so the service impls
// can be exercised without postgres. WithTx snapshots all tables and
// restores them when the callback errors, mirroring transaction rollback.
type memoryStore struct {
	mu sync.Mutex

	testators   map[uuid.UUID]domain.Testator
	checkins    map[uuid.UUID]domain.CheckIn
	requests    map[uuid.UUID]domain.VerificationRequest
	parties     map[uuid.UUID]domain.VerificationParty
	credentials map[uuid.UUID]domain.UnlockCredential
	otps        map[uuid.UUID]domain.OtpChallenge
	sessions    map[uuid.UUID]domain.UnlockSession
	releases    map[uuid.UUID]domain.ReleasePackage
	audit       []domain.AuditEntry
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		testators:   make(map[uuid.UUID]domain.Testator),
		checkins:    make(map[uuid.UUID]domain.CheckIn),
		requests:    make(map[uuid.UUID]domain.VerificationRequest),
		parties:     make(map[uuid.UUID]domain.VerificationParty),
		credentials: make(map[uuid.UUID]domain.UnlockCredential),
		otps:        make(map[uuid.UUID]domain.OtpChallenge),
		sessions:    make(map[uuid.UUID]domain.UnlockSession),
		releases:    make(map[uuid.UUID]domain.ReleasePackage),
	}
}

type memorySnapshot struct {
	testators   map[uuid.UUID]domain.Testator
	checkins    map[uuid.UUID]domain.CheckIn
	requests    map[uuid.UUID]domain.VerificationRequest
	parties     map[uuid.UUID]domain.VerificationParty
	credentials map[uuid.UUID]domain.UnlockCredential
	otps        map[uuid.UUID]domain.OtpChallenge
	sessions    map[uuid.UUID]domain.UnlockSession
	releases    map[uuid.UUID]domain.ReleasePackage
	audit       []domain.AuditEntry
}

func cloneTable[V any](src map[uuid.UUID]V) map[uuid.UUID]V {
	dst := make(map[uuid.UUID]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (m *memoryStore) snapshot() memorySnapshot {
	return memorySnapshot{
		testators:   cloneTable(m.testators),
		checkins:    cloneTable(m.checkins),
		requests:    cloneTable(m.requests),
		parties:     cloneTable(m.parties),
		credentials: cloneTable(m.credentials),
		otps:        cloneTable(m.otps),
		sessions:    cloneTable(m.sessions),
		releases:    cloneTable(m.releases),
		audit:       append([]domain.AuditEntry(nil), m.audit...),
	}
}

func (m *memoryStore) restore(s memorySnapshot) {
	m.testators = s.testators
	m.checkins = s.checkins
	m.requests = s.requests
	m.parties = s.parties
	m.credentials = s.credentials
	m.otps = s.otps
	m.sessions = s.sessions
	m.releases = s.releases
	m.audit = s.audit
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(tx storeTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	if err := fn(memoryTx{m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memoryTx struct{ m *memoryStore }

func (t memoryTx) Testators() testatorStore         { return memoryTestators{t.m} }
func (t memoryTx) CheckIns() checkinStore           { return memoryCheckIns{t.m} }
func (t memoryTx) Verifications() verificationStore { return memoryVerifications{t.m} }
func (t memoryTx) Credentials() credentialStore     { return memoryCredentials{t.m} }
func (t memoryTx) Sessions() sessionStore           { return memorySessions{t.m} }
func (t memoryTx) Releases() releaseStore           { return memoryReleases{t.m} }
func (t memoryTx) Audit() auditStore                { return memoryAudit{t.m} }

type memoryTestators struct{ m *memoryStore }

func (s memoryTestators) Create(ctx context.Context, t *domain.Testator) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	s.m.testators[t.ID] = *t
	return nil
}

func (s memoryTestators) GetByID(ctx context.Context, id uuid.UUID) (*domain.Testator, error) {
	t, ok := s.m.testators[id]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	return &t, nil
}

func (s memoryTestators) GetByEmail(ctx context.Context, email string) (*domain.Testator, error) {
	for _, t := range s.m.testators {
		if strings.EqualFold(t.Email, email) {
			out := t
			return &out, nil
		}
	}
	return nil, store.ErrRecordNotFound
}

func (s memoryTestators) ListCheckInEnabled(ctx context.Context) ([]domain.Testator, error) {
	var out []domain.Testator
	for _, t := range s.m.testators {
		if t.CheckInEnabled && !t.Frozen {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s memoryTestators) UpdateSettings(ctx context.Context, id uuid.UUID, enabled bool, interval, grace time.Duration, at time.Time) error {
	t, ok := s.m.testators[id]
	if !ok {
		return store.ErrRecordNotFound
	}
	t.CheckInEnabled = enabled
	t.CheckInInterval = interval
	t.GracePeriod = grace
	t.UpdatedAt = at
	s.m.testators[id] = t
	return nil
}

func (s memoryTestators) Freeze(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	t, ok := s.m.testators[id]
	if !ok || t.Frozen {
		return 0, nil
	}
	t.Frozen = true
	t.UpdatedAt = at
	s.m.testators[id] = t
	return 1, nil
}

type memoryCheckIns struct{ m *memoryStore }

func (s memoryCheckIns) Create(ctx context.Context, ci *domain.CheckIn) error {
	if ci.ID == uuid.Nil {
		ci.ID = uuid.New()
	}
	s.m.checkins[ci.ID] = *ci
	return nil
}

func (s memoryCheckIns) GetCurrent(ctx context.Context, testatorID uuid.UUID) (*domain.CheckIn, error) {
	var current *domain.CheckIn
	for _, ci := range s.m.checkins {
		if ci.TestatorID != testatorID {
			continue
		}
		c := ci
		if current == nil || c.CheckedInAt.After(current.CheckedInAt) {
			current = &c
		}
	}
	if current == nil {
		return nil, store.ErrRecordNotFound
	}
	return current, nil
}

func (s memoryCheckIns) AdvanceStatus(ctx context.Context, id uuid.UUID, from, to domain.CheckInStatus, at time.Time) (int64, error) {
	if !from.CanAdvanceTo(to) {
		return 0, nil
	}
	ci, ok := s.m.checkins[id]
	if !ok || ci.Status != from {
		return 0, nil
	}
	ci.Status = to
	ci.UpdatedAt = at
	s.m.checkins[id] = ci
	return 1, nil
}

type memoryVerifications struct{ m *memoryStore }

func (s memoryVerifications) Create(ctx context.Context, vr *domain.VerificationRequest) error {
	if vr.ID == uuid.Nil {
		vr.ID = uuid.New()
	}
	s.m.requests[vr.ID] = *vr
	return nil
}

func (s memoryVerifications) GetByID(ctx context.Context, id uuid.UUID) (*domain.VerificationRequest, error) {
	vr, ok := s.m.requests[id]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	return &vr, nil
}

func (s memoryVerifications) GetActiveByTestator(ctx context.Context, testatorID uuid.UUID) (*domain.VerificationRequest, error) {
	for _, vr := range s.m.requests {
		if vr.TestatorID == testatorID && vr.Status == domain.RequestPending {
			out := vr
			return &out, nil
		}
	}
	return nil, store.ErrRecordNotFound
}

func (s memoryVerifications) Transition(ctx context.Context, id uuid.UUID, from, to domain.RequestStatus, at time.Time) (int64, error) {
	vr, ok := s.m.requests[id]
	if !ok || vr.Status != from {
		return 0, nil
	}
	vr.Status = to
	vr.ClosedAt = &at
	vr.UpdatedAt = at
	s.m.requests[id] = vr
	return 1, nil
}

func (s memoryVerifications) CreateParty(ctx context.Context, p *domain.VerificationParty) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.m.parties[p.ID] = *p
	return nil
}

func (s memoryVerifications) ListParties(ctx context.Context, requestID uuid.UUID) ([]domain.VerificationParty, error) {
	var out []domain.VerificationParty
	for _, p := range s.m.parties {
		if p.RequestID == requestID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s memoryVerifications) FindParty(ctx context.Context, requestID uuid.UUID, fullName, email string) (*domain.VerificationParty, error) {
	for _, p := range s.m.parties {
		if p.RequestID == requestID && strings.EqualFold(p.FullName, fullName) && strings.EqualFold(p.Email, email) {
			out := p
			return &out, nil
		}
	}
	return nil, store.ErrRecordNotFound
}

type memoryCredentials struct{ m *memoryStore }

func (s memoryCredentials) Create(ctx context.Context, c *domain.UnlockCredential) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	s.m.credentials[c.ID] = *c
	return nil
}

func (s memoryCredentials) GetByParty(ctx context.Context, requestID, partyID uuid.UUID) (*domain.UnlockCredential, error) {
	for _, c := range s.m.credentials {
		if c.RequestID == requestID && c.PartyID == partyID {
			out := c
			return &out, nil
		}
	}
	return nil, store.ErrRecordNotFound
}

func (s memoryCredentials) MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	c, ok := s.m.credentials[id]
	if !ok || c.Used {
		return 0, nil
	}
	c.Used = true
	c.UsedAt = &at
	s.m.credentials[id] = c
	return 1, nil
}

func (s memoryCredentials) ReplaceOtp(ctx context.Context, o *domain.OtpChallenge) error {
	for id, existing := range s.m.otps {
		if existing.SessionID == o.SessionID {
			delete(s.m.otps, id)
		}
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	s.m.otps[o.ID] = *o
	return nil
}

func (s memoryCredentials) GetOtpBySession(ctx context.Context, sessionID uuid.UUID) (*domain.OtpChallenge, error) {
	for _, o := range s.m.otps {
		if o.SessionID == sessionID {
			out := o
			return &out, nil
		}
	}
	return nil, store.ErrRecordNotFound
}

func (s memoryCredentials) ConsumeOtp(ctx context.Context, id uuid.UUID) (int64, error) {
	o, ok := s.m.otps[id]
	if !ok || o.Consumed {
		return 0, nil
	}
	o.Consumed = true
	s.m.otps[id] = o
	return 1, nil
}

type memorySessions struct{ m *memoryStore }

func (s memorySessions) Create(ctx context.Context, sess *domain.UnlockSession) error {
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	s.m.sessions[sess.ID] = *sess
	return nil
}

func (s memorySessions) GetByID(ctx context.Context, id uuid.UUID) (*domain.UnlockSession, error) {
	sess, ok := s.m.sessions[id]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	return &sess, nil
}

func (s memorySessions) Advance(ctx context.Context, id uuid.UUID, from, to domain.SessionStatus, at time.Time) (int64, error) {
	if !from.CanAdvanceTo(to) {
		return 0, nil
	}
	sess, ok := s.m.sessions[id]
	if !ok || sess.Status != from {
		return 0, nil
	}
	sess.Status = to
	if to == domain.SessionOtpVerified {
		sess.OtpVerifiedAt = &at
	}
	sess.UpdatedAt = at
	s.m.sessions[id] = sess
	return 1, nil
}

func (s memorySessions) Supersede(ctx context.Context, requestID, partyID uuid.UUID, at time.Time) (int64, error) {
	var n int64
	for id, sess := range s.m.sessions {
		if sess.RequestID != requestID || sess.PartyID != partyID {
			continue
		}
		if sess.Status == domain.SessionFinalized || !sess.ExpiresAt.After(at) {
			continue
		}
		sess.ExpiresAt = at
		sess.UpdatedAt = at
		s.m.sessions[id] = sess
		n++
	}
	return n, nil
}

func (s memorySessions) Rewind(ctx context.Context, id uuid.UUID, at time.Time) error {
	sess, ok := s.m.sessions[id]
	if !ok {
		return store.ErrRecordNotFound
	}
	sess.Status = domain.SessionIdentified
	sess.OtpVerifiedAt = nil
	sess.UpdatedAt = at
	s.m.sessions[id] = sess
	return nil
}

type memoryReleases struct{ m *memoryStore }

func (s memoryReleases) Create(ctx context.Context, r *domain.ReleasePackage) error {
	for _, existing := range s.m.releases {
		if existing.RequestID == r.RequestID {
			return fmt.Errorf("duplicate release for request %s", r.RequestID)
		}
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	s.m.releases[r.ID] = *r
	return nil
}

func (s memoryReleases) GetByRequestID(ctx context.Context, requestID uuid.UUID) (*domain.ReleasePackage, error) {
	for _, r := range s.m.releases {
		if r.RequestID == requestID {
			out := r
			return &out, nil
		}
	}
	return nil, store.ErrRecordNotFound
}

type memoryAudit struct{ m *memoryStore }

func (s memoryAudit) Append(ctx context.Context, e *domain.AuditEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	s.m.audit = append(s.m.audit, *e)
	return nil
}

func (s memoryAudit) ListByTestator(ctx context.Context, testatorID uuid.UUID, limit int) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	for i := len(s.m.audit) - 1; i >= 0; i-- {
		e := s.m.audit[i]
		if e.TestatorID != nil && *e.TestatorID == testatorID {
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// auditActions returns the recorded actions for a testator, oldest first.
func (m *memoryStore) auditActions(testatorID uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.audit {
		if e.TestatorID != nil && *e.TestatorID == testatorID {
			out = append(out, e.Action)
		}
	}
	return out
}

func (m *memoryStore) requestByTestator(testatorID uuid.UUID) *domain.VerificationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, vr := range m.requests {
		if vr.TestatorID == testatorID {
			out := vr
			return &out
		}
	}
	return nil
}

func (m *memoryStore) sessionByID(id uuid.UUID) *domain.UnlockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil
	}
	return &sess
}

// ---- collaborator stubs ----

type sentMessage struct {
	Recipient string
	Kind      service.TemplateKind
	Payload   map[string]string
}

type stubNotifier struct {
	mu    sync.Mutex
	sends []sentMessage
	// failKinds makes Send error for the given template kinds.
	failKinds map[service.TemplateKind]error
}

func (n *stubNotifier) Send(ctx context.Context, recipient string, kind service.TemplateKind, payload map[string]string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err, ok := n.failKinds[kind]; ok {
		return "", err
	}
	n.sends = append(n.sends, sentMessage{Recipient: recipient, Kind: kind, Payload: payload})
	return fmt.Sprintf("dlv-%d", len(n.sends)), nil
}

func (n *stubNotifier) byKind(kind service.TemplateKind) []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentMessage
	for _, s := range n.sends {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func (n *stubNotifier) lastTo(recipient string) *sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sends) - 1; i >= 0; i-- {
		if n.sends[i].Recipient == recipient {
			s := n.sends[i]
			return &s
		}
	}
	return nil
}

type stubRegistry struct {
	snapshot domain.PartySnapshot
	err      error
}

func (r *stubRegistry) ListParties(ctx context.Context, testatorID domain.TestatorID) (domain.PartySnapshot, error) {
	if r.err != nil {
		return domain.PartySnapshot{}, r.err
	}
	return r.snapshot, nil
}

type stubWillStore struct {
	content []byte
	err     error
}

func (w *stubWillStore) GetSealedContent(ctx context.Context, testatorID domain.TestatorID) ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.content, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock { return &fakeClock{now: at} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
