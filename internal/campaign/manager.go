package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/rollcall/internal/store"
	"github.com/foxzi/rollcall/internal/transport"
)

// Runner triggers a delivery pass; satisfied by *scheduler.Scheduler.
type Runner interface {
	Run(ctx context.Context, community string, force bool) (int, error)
}

// Pacer spaces consecutive transport calls; satisfied by *scheduler.Pacer.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Manager owns campaign lifecycle transitions and answer application.
type Manager struct {
	store     *store.Store
	transport transport.Transport
	runner    Runner
	pacer     Pacer
	logger    *slog.Logger

	now func() time.Time
}

// NewManager creates a lifecycle manager.
func NewManager(st *store.Store, tr transport.Transport, runner Runner, pacer Pacer, logger *slog.Logger) *Manager {
	return &Manager{
		store:     st,
		transport: tr,
		runner:    runner,
		pacer:     pacer,
		logger:    logger,
		now:       time.Now,
	}
}

// Config is the out-of-band campaign configuration for a community.
// Nil fields are left unchanged; empty strings clear the value.
type Config struct {
	TargetRoleID  *string
	FormerRoleID  *string
	PendingRoleID *string
	LogChannelID  *string
	AttemptsMax   *int
}

// Configure updates a community's campaign configuration.
func (m *Manager) Configure(ctx context.Context, community string, cfg Config) error {
	return m.store.Update(ctx, community, func(rec *store.Record) error {
		if cfg.TargetRoleID != nil {
			rec.TargetRoleID = *cfg.TargetRoleID
		}
		if cfg.FormerRoleID != nil {
			rec.FormerRoleID = *cfg.FormerRoleID
		}
		if cfg.PendingRoleID != nil {
			rec.PendingRoleID = *cfg.PendingRoleID
		}
		if cfg.LogChannelID != nil {
			rec.LogChannelID = *cfg.LogChannelID
		}
		if cfg.AttemptsMax != nil && *cfg.AttemptsMax > 0 {
			rec.AttemptsMax = *cfg.AttemptsMax
		}
		return nil
	})
}

// Start begins a fresh campaign: archives the previous recipient table,
// seeds one PENDING recipient per current target-role member, posts the
// announcement, then triggers one forced delivery pass and returns its
// send count. Fails with ErrBusy while another start is in flight and
// with ErrMisconfigured when roles or log channel are unset.
func (m *Manager) Start(ctx context.Context, community string, deadlineDays int) (int, error) {
	// Acquire the advisory flag before any validation. Every exit path
	// below releases it.
	err := m.store.Update(ctx, community, func(rec *store.Record) error {
		if rec.Locked {
			return ErrBusy
		}
		rec.Locked = true
		return nil
	})
	if err != nil {
		return 0, err
	}
	defer m.release(community)

	rec, err := m.store.Get(ctx, community)
	if err != nil {
		return 0, err
	}
	if !rec.Configured() {
		return 0, ErrMisconfigured
	}

	members, err := m.transport.MembersWithRole(ctx, community, rec.TargetRoleID)
	if err != nil {
		return 0, fmt.Errorf("failed to list target role members: %w", err)
	}

	now := m.now().UTC()
	// The uuid suffix keeps ids unique even when a campaign is closed
	// and restarted within the same second.
	campaignID := fmt.Sprintf("%s-%d-%.8s", community, now.Unix(), uuid.NewString())
	deadline := now.Add(time.Duration(deadlineDays) * 24 * time.Hour)

	err = m.store.Update(ctx, community, func(rec *store.Record) error {
		rec.Archive()
		rec.CampaignID = campaignID
		rec.Active = true
		rec.Paused = false
		rec.Deadline = store.NewTime(deadline)
		rec.AnswerLog = nil

		// A fresh campaign never seeds a recipient as terminal.
		recipients := make(map[string]*store.Recipient, len(members))
		for _, mem := range members {
			recipients[mem.ID] = &store.Recipient{Status: store.StatusPending}
		}
		rec.Recipients = recipients
		return nil
	})
	if err != nil {
		return 0, err
	}

	m.logger.Info("campaign started",
		"community", community,
		"campaign_id", campaignID,
		"recipients", len(members),
		"deadline", deadline,
	)

	if rec.PendingRoleID != "" {
		m.assignPendingRole(ctx, community, rec.PendingRoleID, members)
	}

	announcement := fmt.Sprintf(
		"📣 Activity roll-call started for <@&%s>.\n⏰ Deadline: %s.\n📨 Members will receive a DM with up to %d contact attempts.",
		rec.TargetRoleID, deadline.Format("2006-01-02 15:04 UTC"), rec.AttemptsMax,
	)
	m.post(ctx, community, rec.LogChannelID, announcement)

	// The scheduler skips locked campaigns, so release before the
	// initial forced pass.
	m.release(community)

	sent, err := m.runner.Run(ctx, community, true)
	if err != nil {
		m.logger.Error("initial delivery pass failed", "community", community, "error", err)
	}
	return sent, nil
}

// assignPendingRole sweeps the pending role over the seeded members,
// paced to respect gateway rate limits.
func (m *Manager) assignPendingRole(ctx context.Context, community, roleID string, members []*transport.Member) {
	for _, mem := range members {
		if err := m.transport.AddRole(ctx, community, mem.ID, roleID, "roll-call: awaiting confirmation"); err != nil {
			m.logger.Warn("failed to assign pending role",
				"community", community, "user", mem.ID, "error", err)
		}
		if err := m.pacer.Wait(ctx); err != nil {
			return
		}
	}
}

// release clears the advisory lock. Idempotent.
func (m *Manager) release(community string) {
	err := m.store.Update(context.Background(), community, func(rec *store.Record) error {
		rec.Locked = false
		return nil
	})
	if err != nil {
		m.logger.Error("failed to release campaign lock", "community", community, "error", err)
	}
}

// Pause suspends delivery from the next scheduler evaluation. In-flight
// sends are not interrupted.
func (m *Manager) Pause(ctx context.Context, community string) error {
	return m.store.Update(ctx, community, func(rec *store.Record) error {
		if !rec.Active {
			return ErrNoActiveCampaign
		}
		rec.Paused = true
		return nil
	})
}

// Resume lifts a pause.
func (m *Manager) Resume(ctx context.Context, community string) error {
	return m.store.Update(ctx, community, func(rec *store.Record) error {
		if !rec.Active {
			return ErrNoActiveCampaign
		}
		rec.Paused = false
		return nil
	})
}

// Extend pushes the deadline by the given number of days. The stored
// deadline is normalized to UTC before the arithmetic.
func (m *Manager) Extend(ctx context.Context, community string, days int) error {
	return m.store.Update(ctx, community, func(rec *store.Record) error {
		if !rec.Active || rec.Deadline == nil {
			return ErrNoActiveCampaign
		}
		extended := rec.Deadline.UTC().Add(time.Duration(days) * 24 * time.Hour)
		rec.Deadline = store.NewTime(extended)
		return nil
	})
}

// Close deactivates the campaign. It clears paused and locked
// unconditionally, which doubles as the safety valve for a stuck lock.
// Sent messages are not recalled.
func (m *Manager) Close(ctx context.Context, community string) error {
	return m.store.Update(ctx, community, func(rec *store.Record) error {
		rec.Active = false
		rec.Paused = false
		rec.Locked = false
		return nil
	})
}

// post is a best-effort log-channel message.
func (m *Manager) post(ctx context.Context, community, channelID, text string) {
	if channelID == "" {
		return
	}
	if err := m.transport.PostToChannel(ctx, community, channelID, text); err != nil {
		m.logger.Warn("failed to post to log channel",
			"community", community, "channel", channelID, "error", err)
	}
}
