package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/foxzi/rollcall/internal/metrics"
	"github.com/foxzi/rollcall/internal/store"
	"github.com/foxzi/rollcall/internal/transport"
)

// Config contains delivery scheduler settings
type Config struct {
	// Interval between periodic ticks over all communities.
	Interval time.Duration

	// Backoff is the minimum gap between contact attempts to the same
	// recipient. Forced passes bypass it.
	Backoff time.Duration
}

// Scheduler decides, per recipient, whether a (re)send is due and drives
// the gateway to deliver roll-call DMs. It runs periodically and
// on-demand in force mode.
type Scheduler struct {
	store     *store.Store
	transport transport.Transport
	pacer     *Pacer
	interval  time.Duration
	backoff   time.Duration
	logger    *slog.Logger

	now func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a delivery scheduler
func New(st *store.Store, tr transport.Transport, pacer *Pacer, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 24 * time.Hour
	}
	return &Scheduler{
		store:     st,
		transport: tr,
		pacer:     pacer,
		interval:  cfg.Interval,
		backoff:   cfg.Backoff,
		logger:    logger,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the periodic tick loop
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("starting delivery scheduler", "interval", s.interval, "backoff", s.backoff)
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("delivery scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one unforced delivery pass over every known community.
// A failed pass is logged and never aborts the loop.
func (s *Scheduler) Tick(ctx context.Context) {
	started := s.now()

	communities, err := s.store.Communities(ctx)
	if err != nil {
		s.logger.Error("failed to list communities", "error", err)
		metrics.IncSchedulerErrors()
		return
	}

	for _, community := range communities {
		if _, err := s.Run(ctx, community, false); err != nil {
			s.logger.Error("delivery pass failed", "community", community, "error", err)
			metrics.IncSchedulerErrors()
		}
	}

	metrics.ObserveSchedulerPass(s.now().Sub(started).Seconds())
}

// Run executes one delivery pass for a community and returns the number
// of DMs delivered. force bypasses the backoff gate, never the deadline
// or attempts gates. The pass is a no-op while the campaign is inactive,
// paused, or a start is in flight. State is persisted once per pass.
func (s *Scheduler) Run(ctx context.Context, community string, force bool) (int, error) {
	sent := 0
	err := s.store.Update(ctx, community, func(rec *store.Record) error {
		if !rec.Active || rec.Paused || rec.Locked {
			return nil
		}
		sent = s.pass(ctx, community, rec, force)
		return nil
	})
	if err != nil {
		return sent, fmt.Errorf("delivery pass for %s: %w", community, err)
	}

	s.publishGauges(ctx, community)
	return sent, nil
}

// pass mutates rec in place; the store persists it afterwards.
func (s *Scheduler) pass(ctx context.Context, community string, rec *store.Record, force bool) int {
	var deadline time.Time
	if rec.Deadline != nil {
		deadline = rec.Deadline.UTC()
	}

	// Randomized order prevents systematic bias toward any member when
	// rate limiting cuts a pass short.
	ids := make([]string, 0, len(rec.Recipients))
	for id := range rec.Recipients {
		ids = append(ids, id)
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	sent := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}

		rcpt := rec.Recipients[id]
		if rcpt.Status.Terminal() {
			continue
		}

		now := s.now().UTC()
		if !deadline.IsZero() && now.After(deadline) {
			rcpt.Status = store.StatusExpired
			metrics.IncExpired(community)
			continue
		}

		if rcpt.Attempts >= rec.AttemptsMax {
			continue
		}
		if !force && !s.due(rcpt, now) {
			continue
		}
		// A known-unreachable recipient is not re-probed automatically;
		// the log-channel notice at failure time asks staff to step in.
		if rcpt.Status == store.StatusDMFailed && rcpt.Attempts >= 1 {
			continue
		}

		member, err := s.transport.ResolveMember(ctx, community, id)
		if err != nil {
			if !transport.IsNotFound(err) {
				s.logger.Debug("member resolution failed",
					"community", community, "user", id, "error", err)
			}
			continue
		}

		content := composeDM(rcpt.Attempts, deadline)
		prompt := &transport.Prompt{
			CampaignID: rec.CampaignID,
			UserID:     id,
			Deadline:   deadline,
		}

		err = s.transport.SendDirectMessage(ctx, community, member, content, prompt)
		switch {
		case err == nil:
			metrics.IncSends(community, dmKind(rcpt.Attempts))
			rcpt.Status = store.StatusPending
			rcpt.Attempts++
			rcpt.LastSentAt = store.NewTime(now)
			sent++

		case transport.IsBlocked(err):
			metrics.IncSendFailures(community, "blocked")
			rcpt.Status = store.StatusDMFailed
			rcpt.Attempts++
			rcpt.LastSentAt = store.NewTime(now)
			s.notifyUnreachable(ctx, community, rec.LogChannelID, id)

		default:
			// Transient: no state change, retried on the next pass.
			metrics.IncSendFailures(community, "transient")
			s.logger.Warn("DM delivery failed, will retry",
				"community", community, "user", id, "error", err)
		}

		if err := s.pacer.Wait(ctx); err != nil {
			break
		}
	}

	if sent > 0 {
		s.logger.Info("delivery pass complete",
			"community", community, "sent", sent, "forced", force)
	}
	return sent
}

// due reports whether enough time has passed since the last contact.
func (s *Scheduler) due(rcpt *store.Recipient, now time.Time) bool {
	if rcpt.LastSentAt == nil {
		return true
	}
	return now.Sub(rcpt.LastSentAt.UTC()) >= s.backoff
}

func (s *Scheduler) notifyUnreachable(ctx context.Context, community, channelID, userID string) {
	if channelID == "" {
		return
	}
	text := fmt.Sprintf("🚫 <@%s> — could not deliver a DM (direct messages closed). "+
		"📌 They must confirm with the staff before the deadline.", userID)
	if err := s.transport.PostToChannel(ctx, community, channelID, text); err != nil {
		s.logger.Warn("failed to post unreachable notice",
			"community", community, "user", userID, "error", err)
	}
}

// publishGauges refreshes the per-community campaign gauges.
func (s *Scheduler) publishGauges(ctx context.Context, community string) {
	rec, err := s.store.Get(ctx, community)
	if err != nil {
		return
	}
	metrics.SetCampaignActive(community, rec.Active)
	counts := make(map[string]int)
	for status, n := range rec.Counts() {
		counts[string(status)] = n
	}
	metrics.SetRecipients(community, counts)
}
