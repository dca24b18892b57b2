package auth

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/hitoshi/projvault/internal/identity"
	"github.com/hitoshi/projvault/internal/model"
	"github.com/hitoshi/projvault/internal/repository"
)

// clock はテスト用の可変時計。
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memPasscodes はPasscodeRepositoryのインメモリ実装。
type memPasscodes struct {
	mu    sync.Mutex
	rows  []*model.Passcode
	now   func() time.Time
	seq   int
	errOn map[string]error
}

func newMemPasscodes(now func() time.Time) *memPasscodes {
	return &memPasscodes{now: now, errOn: map[string]error{}}
}

func (m *memPasscodes) Create(_ context.Context, email, code string, expiresAt time.Time) (*model.Passcode, error) {
	if err := m.errOn["create"]; err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	p := &model.Passcode{
		ID: "pc-" + strconv.Itoa(m.seq), Email: email, Code: code,
		CreatedAt: m.now(), ExpiresAt: expiresAt,
	}
	m.rows = append(m.rows, p)
	return p, nil
}

func (m *memPasscodes) FindRecent(_ context.Context, email string, since time.Time) ([]*model.Passcode, error) {
	if err := m.errOn["findRecent"]; err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Passcode
	for _, p := range m.rows {
		if p.Email == email && !p.CreatedAt.Before(since) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memPasscodes) VerifyAndConsume(_ context.Context, email, code string) (*model.Passcode, error) {
	if err := m.errOn["verify"]; err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var match *model.Passcode
	for _, p := range m.rows {
		if p.Email == email && p.Code == code && !p.Consumed && p.ExpiresAt.After(now) {
			if match == nil || p.CreatedAt.After(match.CreatedAt) {
				match = p
			}
		}
	}
	if match == nil {
		return nil, nil
	}
	match.Consumed = true
	cp := *match
	return &cp, nil
}

func (m *memPasscodes) PurgeExpiredOrConsumed(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	kept := m.rows[:0]
	var n int64
	for _, p := range m.rows {
		if p.Consumed || !p.ExpiresAt.After(now) {
			n++
			continue
		}
		kept = append(kept, p)
	}
	m.rows = kept
	return n, nil
}

func (m *memPasscodes) all() []model.Passcode {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Passcode, 0, len(m.rows))
	for _, p := range m.rows {
		out = append(out, *p)
	}
	return out
}

var _ repository.PasscodeRepository = (*memPasscodes)(nil)

// seqGenerator は決まった順にコードを返すGenerator。
type seqGenerator struct {
	mu    sync.Mutex
	codes []string
	i     int
	err   error
}

func (g *seqGenerator) Generate() (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	code := g.codes[g.i%len(g.codes)]
	g.i++
	return code, nil
}

// recordingNotifier は送信内容を記録するNotifier。
type recordingNotifier struct {
	mu    sync.Mutex
	sent  []string
	err   error
	calls int
}

func (n *recordingNotifier) SendPasscode(_ context.Context, email, code string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, email+":"+code)
	return nil
}

// memProfiles はProfileResolverのインメモリ実装。
type memProfiles struct {
	mu      sync.Mutex
	byEmail map[string]*model.Profile
	err     error
	getErr  error
}

func newMemProfiles() *memProfiles {
	return &memProfiles{byEmail: map[string]*model.Profile{}}
}

func (m *memProfiles) ResolveOrCreate(_ context.Context, id identity.Identity) (*model.Profile, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.byEmail[id.Email]; ok {
		return p, nil
	}
	p := &model.Profile{
		ID:              "prof-" + strconv.Itoa(len(m.byEmail)+1),
		Email:           id.Email,
		AdmissionYear:   id.AdmissionYear,
		StudentSequence: id.StudentSequence,
	}
	m.byEmail[id.Email] = p
	return p, nil
}

func (m *memProfiles) Get(_ context.Context, profileID string) (*model.Profile, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byEmail {
		if p.ID == profileID {
			return p, nil
		}
	}
	return nil, nil
}

// failingSessions はエラーを返すsession.Store。
type failingSessions struct {
	createErr error
	findErr   error
	deleteErr error
	found     *model.Session
}

func (f *failingSessions) Create(context.Context, *model.Session) error { return f.createErr }

func (f *failingSessions) FindByID(context.Context, string) (*model.Session, error) {
	return f.found, f.findErr
}

func (f *failingSessions) DeleteByID(context.Context, string) error { return f.deleteErr }

var errBoom = errors.New("boom")
