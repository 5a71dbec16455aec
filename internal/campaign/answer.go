package campaign

import (
	"context"
	"errors"
	"fmt"

	"github.com/foxzi/rollcall/internal/metrics"
	"github.com/foxzi/rollcall/internal/store"
)

// Answer is a recipient's yes/no choice.
type Answer string

const (
	AnswerYes Answer = "YES"
	AnswerNo  Answer = "NO"
)

// ParseAnswer validates a wire-level answer value.
func ParseAnswer(s string) (Answer, error) {
	switch Answer(s) {
	case AnswerYes, AnswerNo:
		return Answer(s), nil
	}
	return "", fmt.Errorf("invalid answer %q", s)
}

func (a Answer) status() store.Status {
	if a == AnswerYes {
		return store.StatusYes
	}
	return store.StatusNo
}

// ApplyAnswer records a recipient's answer, idempotently, and then runs
// the role-transition side effects. The recorded answer is authoritative:
// side-effect failures are logged and never roll it back.
//
// responderID is the identity that clicked; userID is the member the
// prompt was addressed to. They must match, the campaign id must match
// the community's current campaign, and the recipient must not already
// hold a terminal status.
func (m *Manager) ApplyAnswer(ctx context.Context, community, campaignID, userID, responderID string, answer Answer) error {
	if responderID != userID {
		metrics.IncAnswersRejected(community, "wrong_recipient")
		return ErrWrongRecipient
	}

	var pendingRole, targetRole, formerRole, logChannel string

	err := m.store.Update(ctx, community, func(rec *store.Record) error {
		if !rec.Active || rec.CampaignID != campaignID {
			return ErrStaleCampaign
		}

		rcpt := rec.Recipients[userID]
		if rcpt == nil {
			rcpt = &store.Recipient{Status: store.StatusPending}
			rec.Recipients[userID] = rcpt
		}
		switch rcpt.Status {
		case store.StatusYes, store.StatusNo:
			return ErrAlreadyAnswered
		case store.StatusExpired:
			// Terminal: the deadline already passed for this recipient.
			return ErrStaleCampaign
		}

		now := m.now().UTC()
		rcpt.Status = answer.status()
		rcpt.RespondedAt = store.NewTime(now)
		rec.AppendAnswer(store.AnswerEvent{
			Timestamp: store.Time{Time: now},
			UserID:    userID,
			Answer:    rcpt.Status,
		})

		pendingRole = rec.PendingRoleID
		targetRole = rec.TargetRoleID
		formerRole = rec.FormerRoleID
		logChannel = rec.LogChannelID
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrStaleCampaign):
			metrics.IncAnswersRejected(community, "stale")
		case errors.Is(err, ErrAlreadyAnswered):
			metrics.IncAnswersRejected(community, "duplicate")
		}
		return err
	}

	metrics.IncAnswers(community, string(answer))
	m.logger.Info("answer recorded",
		"community", community, "campaign_id", campaignID,
		"user", userID, "answer", answer,
	)

	m.applyRoleTransitions(ctx, community, userID, answer, pendingRole, targetRole, formerRole, logChannel)
	return nil
}

// applyRoleTransitions performs the best-effort side effects of an
// answer: drop the pending role, and on NO swap the target role for the
// former-member role. Every failure is logged, none is propagated.
func (m *Manager) applyRoleTransitions(ctx context.Context, community, userID string, answer Answer, pendingRole, targetRole, formerRole, logChannel string) {
	if pendingRole != "" {
		if err := m.transport.RemoveRole(ctx, community, userID, pendingRole, "roll-call: answered"); err != nil {
			m.logger.Warn("failed to remove pending role",
				"community", community, "user", userID, "error", err)
		}
	}

	stamp := m.now().UTC().Format("2006-01-02 15:04 UTC")

	if answer == AnswerYes {
		m.post(ctx, community, logChannel,
			fmt.Sprintf("✅ <@%s> confirmed they are staying active. 🕒 %s", userID, stamp))
		return
	}

	if err := m.transport.RemoveRole(ctx, community, userID, targetRole, "roll-call: declined to continue"); err != nil {
		m.logger.Warn("failed to remove target role",
			"community", community, "user", userID, "error", err)
	}
	if err := m.transport.AddRole(ctx, community, userID, formerRole, "roll-call: former member"); err != nil {
		m.logger.Warn("failed to add former-member role",
			"community", community, "user", userID, "error", err)
	}
	m.post(ctx, community, logChannel,
		fmt.Sprintf("❌ <@%s> is not continuing → roles updated. 🕒 %s", userID, stamp))
}
