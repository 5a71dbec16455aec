package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/foxzi/rollcall/internal/store"
	"github.com/foxzi/rollcall/internal/transport"
)

// mockTransport records calls and delegates to optional func fields.
type mockTransport struct {
	mu sync.Mutex

	resolveFn func(community, userID string) (*transport.Member, error)
	sendFn    func(community string, member *transport.Member, content string, prompt *transport.Prompt) error

	sends []string
	posts []string
}

func (m *mockTransport) ResolveMember(ctx context.Context, community, userID string) (*transport.Member, error) {
	if m.resolveFn != nil {
		return m.resolveFn(community, userID)
	}
	return &transport.Member{ID: userID}, nil
}

func (m *mockTransport) MembersWithRole(ctx context.Context, community, roleID string) ([]*transport.Member, error) {
	return nil, nil
}

func (m *mockTransport) SendDirectMessage(ctx context.Context, community string, member *transport.Member, content string, prompt *transport.Prompt) error {
	if m.sendFn != nil {
		if err := m.sendFn(community, member, content, prompt); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, member.ID)
	return nil
}

func (m *mockTransport) AddRole(ctx context.Context, community, userID, roleID, reason string) error {
	return nil
}

func (m *mockTransport) RemoveRole(ctx context.Context, community, userID, roleID, reason string) error {
	return nil
}

func (m *mockTransport) PostToChannel(ctx context.Context, community, channelID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = append(m.posts, text)
	return nil
}

func newTestScheduler(t *testing.T, tr transport.Transport) (*Scheduler, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "rollcall.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pacer := NewPacer(1000, 1000, 0, 0)
	s := New(st, tr, pacer, Config{Interval: time.Minute, Backoff: 24 * time.Hour}, logger)
	return s, st
}

func seedCampaign(t *testing.T, st *store.Store, deadline time.Time, recipients map[string]*store.Recipient) {
	t.Helper()
	err := st.Update(context.Background(), "guild-1", func(rec *store.Record) error {
		rec.Active = true
		rec.CampaignID = "c1"
		rec.LogChannelID = "chan-log"
		rec.Deadline = store.NewTime(deadline)
		rec.Recipients = recipients
		return nil
	})
	if err != nil {
		t.Fatalf("failed to seed campaign: %v", err)
	}
}

func TestRunSendsInitialDM(t *testing.T) {
	tr := &mockTransport{}
	s, st := newTestScheduler(t, tr)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	seedCampaign(t, st, now.Add(7*24*time.Hour), map[string]*store.Recipient{
		"u1": {Status: store.StatusPending},
	})

	sent, err := s.Run(ctx, "guild-1", false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}

	rec, _ := st.Get(ctx, "guild-1")
	rcpt := rec.Recipients["u1"]
	if rcpt.Status != store.StatusPending {
		t.Errorf("status = %s, want PENDING", rcpt.Status)
	}
	if rcpt.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", rcpt.Attempts)
	}
	if rcpt.LastSentAt == nil || !rcpt.LastSentAt.Equal(now) {
		t.Errorf("LastSentAt = %v, want %v", rcpt.LastSentAt, now)
	}
}

func TestRunBackoffGate(t *testing.T) {
	tr := &mockTransport{}
	s, st := newTestScheduler(t, tr)
	ctx := context.Background()

	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	seedCampaign(t, st, now.Add(7*24*time.Hour), map[string]*store.Recipient{
		"recent": {Status: store.StatusPending, Attempts: 1, LastSentAt: store.NewTime(now.Add(-time.Hour))},
		"due":    {Status: store.StatusPending, Attempts: 1, LastSentAt: store.NewTime(now.Add(-25 * time.Hour))},
	})

	sent, err := s.Run(ctx, "guild-1", false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1 (only the recipient past backoff)", sent)
	}
	if len(tr.sends) != 1 || tr.sends[0] != "due" {
		t.Errorf("sends = %v, want [due]", tr.sends)
	}
}

func TestRunForceBypassesBackoffOnly(t *testing.T) {
	tr := &mockTransport{}
	s, st := newTestScheduler(t, tr)
	ctx := context.Background()

	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	seedCampaign(t, st, now.Add(7*24*time.Hour), map[string]*store.Recipient{
		"recent": {Status: store.StatusPending, Attempts: 1, LastSentAt: store.NewTime(now.Add(-time.Hour))},
		"capped": {Status: store.StatusPending, Attempts: store.DefaultAttemptsMax, LastSentAt: store.NewTime(now.Add(-48 * time.Hour))},
	})

	sent, err := s.Run(ctx, "guild-1", true)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// force ignores backoff but never the attempts cap.
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	if len(tr.sends) != 1 || tr.sends[0] != "recent" {
		t.Errorf("sends = %v, want [recent]", tr.sends)
	}
}

func TestRunExpiresAfterDeadline(t *testing.T) {
	tr := &mockTransport{}
	s, st := newTestScheduler(t, tr)
	ctx := context.Background()

	now := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	seedCampaign(t, st, now.Add(-time.Hour), map[string]*store.Recipient{
		"pending":  {Status: store.StatusPending, Attempts: 1},
		"failed":   {Status: store.StatusDMFailed, Attempts: 1},
		"answered": {Status: store.StatusYes, Attempts: 1},
	})

	sent, err := s.Run(ctx, "guild-1", false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sent != 0 {
		t.Errorf("sent = %d, want 0", sent)
	}

	rec, _ := st.Get(ctx, "guild-1")
	if got := rec.Recipients["pending"].Status; got != store.StatusExpired {
		t.Errorf("pending recipient = %s, want EXPIRED", got)
	}
	if got := rec.Recipients["failed"].Status; got != store.StatusExpired {
		t.Errorf("failed recipient = %s, want EXPIRED", got)
	}
	if got := rec.Recipients["answered"].Status; got != store.StatusYes {
		t.Errorf("answered recipient = %s, want YES", got)
	}
	if len(tr.sends) != 0 {
		t.Errorf("no DMs expected past the deadline, got %v", tr.sends)
	}
}

func TestRunBlockedRecipient(t *testing.T) {
	tr := &mockTransport{
		sendFn: func(community string, member *transport.Member, content string, prompt *transport.Prompt) error {
			return fmt.Errorf("POST dm: %w", transport.ErrBlocked)
		},
	}
	s, st := newTestScheduler(t, tr)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	seedCampaign(t, st, now.Add(7*24*time.Hour), map[string]*store.Recipient{
		"u1": {Status: store.StatusPending},
	})

	sent, err := s.Run(ctx, "guild-1", false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sent != 0 {
		t.Errorf("sent = %d, want 0", sent)
	}

	rec, _ := st.Get(ctx, "guild-1")
	rcpt := rec.Recipients["u1"]
	if rcpt.Status != store.StatusDMFailed {
		t.Errorf("status = %s, want DM_FAILED", rcpt.Status)
	}
	if rcpt.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", rcpt.Attempts)
	}
	// The log channel gets the unreachable notice.
	if len(tr.posts) != 1 {
		t.Errorf("posts = %d, want 1", len(tr.posts))
	}

	// A known-unreachable recipient is not probed again, forced or not.
	if _, err := s.Run(ctx, "guild-1", true); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	rec, _ = st.Get(ctx, "guild-1")
	if rec.Recipients["u1"].Attempts != 1 {
		t.Errorf("attempts = %d after forced pass, want 1", rec.Recipients["u1"].Attempts)
	}
}

func TestRunTransientFailureKeepsState(t *testing.T) {
	tr := &mockTransport{
		sendFn: func(community string, member *transport.Member, content string, prompt *transport.Prompt) error {
			return fmt.Errorf("gateway returned status 503")
		},
	}
	s, st := newTestScheduler(t, tr)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	seedCampaign(t, st, now.Add(7*24*time.Hour), map[string]*store.Recipient{
		"u1": {Status: store.StatusPending},
	})

	sent, err := s.Run(ctx, "guild-1", false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sent != 0 {
		t.Errorf("sent = %d, want 0", sent)
	}

	rec, _ := st.Get(ctx, "guild-1")
	rcpt := rec.Recipients["u1"]
	if rcpt.Status != store.StatusPending || rcpt.Attempts != 0 || rcpt.LastSentAt != nil {
		t.Errorf("transient failure must not change state: %+v", rcpt)
	}
}

func TestRunSkipsDepartedMembers(t *testing.T) {
	tr := &mockTransport{
		resolveFn: func(community, userID string) (*transport.Member, error) {
			return nil, fmt.Errorf("GET member: %w", transport.ErrNotFound)
		},
	}
	s, st := newTestScheduler(t, tr)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	seedCampaign(t, st, now.Add(7*24*time.Hour), map[string]*store.Recipient{
		"gone": {Status: store.StatusPending},
	})

	sent, err := s.Run(ctx, "guild-1", false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sent != 0 || len(tr.sends) != 0 {
		t.Errorf("departed member must be skipped, sent=%d sends=%v", sent, tr.sends)
	}

	rec, _ := st.Get(ctx, "guild-1")
	if rec.Recipients["gone"].Attempts != 0 {
		t.Error("skipping must not consume an attempt")
	}
}

func TestRunSkipsInactivePausedLocked(t *testing.T) {
	cases := []struct {
		name string
		mut  func(rec *store.Record)
	}{
		{"inactive", func(rec *store.Record) { rec.Active = false }},
		{"paused", func(rec *store.Record) { rec.Paused = true }},
		{"locked", func(rec *store.Record) { rec.Locked = true }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := &mockTransport{}
			s, st := newTestScheduler(t, tr)
			ctx := context.Background()

			now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
			s.now = func() time.Time { return now }

			seedCampaign(t, st, now.Add(7*24*time.Hour), map[string]*store.Recipient{
				"u1": {Status: store.StatusPending},
			})
			if err := st.Update(ctx, "guild-1", func(rec *store.Record) error {
				tc.mut(rec)
				return nil
			}); err != nil {
				t.Fatal(err)
			}

			sent, err := s.Run(ctx, "guild-1", true)
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if sent != 0 || len(tr.sends) != 0 {
				t.Errorf("pass should be a no-op, sent=%d sends=%v", sent, tr.sends)
			}
		})
	}
}

func TestRunAttemptsCapAcrossPasses(t *testing.T) {
	tr := &mockTransport{}
	s, st := newTestScheduler(t, tr)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	seedCampaign(t, st, now.Add(30*24*time.Hour), map[string]*store.Recipient{
		"u1": {Status: store.StatusPending},
	})

	// Each pass runs a day later, so backoff never gates.
	for i := 0; i < store.DefaultAttemptsMax+2; i++ {
		day := now.Add(time.Duration(i) * 25 * time.Hour)
		s.now = func() time.Time { return day }
		if _, err := s.Run(ctx, "guild-1", false); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	}

	rec, _ := st.Get(ctx, "guild-1")
	if got := rec.Recipients["u1"].Attempts; got != store.DefaultAttemptsMax {
		t.Errorf("attempts = %d, want %d", got, store.DefaultAttemptsMax)
	}
	if len(tr.sends) != store.DefaultAttemptsMax {
		t.Errorf("sends = %d, want %d", len(tr.sends), store.DefaultAttemptsMax)
	}
}

func TestTickCoversAllCommunities(t *testing.T) {
	tr := &mockTransport{}
	s, st := newTestScheduler(t, tr)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for _, community := range []string{"guild-a", "guild-b"} {
		err := st.Update(ctx, community, func(rec *store.Record) error {
			rec.Active = true
			rec.CampaignID = "c-" + community
			rec.Deadline = store.NewTime(now.Add(7 * 24 * time.Hour))
			rec.Recipients = map[string]*store.Recipient{
				community + "-u1": {Status: store.StatusPending},
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	s.Tick(ctx)

	if len(tr.sends) != 2 {
		t.Errorf("sends = %v, want one per community", tr.sends)
	}
}

func TestComposeDM(t *testing.T) {
	deadline := time.Date(2025, 6, 8, 10, 0, 0, 0, time.UTC)

	invitation := composeDM(0, deadline)
	reminder := composeDM(1, deadline)

	if invitation == reminder {
		t.Error("invitation and reminder should differ")
	}
	for name, msg := range map[string]string{"invitation": invitation, "reminder": reminder} {
		if want := "2025-06-08 10:00 UTC"; !strings.Contains(msg, want) {
			t.Errorf("%s is missing the deadline %q", name, want)
		}
	}

	if dmKind(0) != "invitation" || dmKind(2) != "reminder" {
		t.Error("dmKind mislabels attempts")
	}
}
