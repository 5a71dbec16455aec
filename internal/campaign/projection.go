package campaign

import (
	"context"
	"time"

	"github.com/foxzi/rollcall/internal/store"
)

// DefaultRecentAnswers is how many answer-log entries a summary renders.
const DefaultRecentAnswers = 10

// Summary is the read-only projection of a community's campaign state.
type Summary struct {
	Active     bool   `json:"active"`
	Paused     bool   `json:"paused"`
	Locked     bool   `json:"locked"`
	CampaignID string `json:"campaign_id,omitempty"`

	TargetRoleID  string `json:"role_target_id,omitempty"`
	FormerRoleID  string `json:"role_former_member_id,omitempty"`
	PendingRoleID string `json:"role_pending_id,omitempty"`
	LogChannelID  string `json:"log_channel_id,omitempty"`

	Deadline    *time.Time `json:"deadline,omitempty"`
	AttemptsMax int        `json:"attempts_max"`

	Counts        map[store.Status]int `json:"counts"`
	RecentAnswers []store.AnswerEvent  `json:"recent_answers,omitempty"`
}

// Project derives a summary from a record. Pure; the record is not
// mutated and no I/O happens.
func Project(rec *store.Record, recentN int) *Summary {
	s := &Summary{
		Active:        rec.Active,
		Paused:        rec.Paused,
		Locked:        rec.Locked,
		CampaignID:    rec.CampaignID,
		TargetRoleID:  rec.TargetRoleID,
		FormerRoleID:  rec.FormerRoleID,
		PendingRoleID: rec.PendingRoleID,
		LogChannelID:  rec.LogChannelID,
		AttemptsMax:   rec.AttemptsMax,
		Counts:        rec.Counts(),
	}
	if rec.Deadline != nil {
		d := rec.Deadline.UTC()
		s.Deadline = &d
	}
	if recentN > 0 && len(rec.AnswerLog) > 0 {
		start := len(rec.AnswerLog) - recentN
		if start < 0 {
			start = 0
		}
		s.RecentAnswers = append([]store.AnswerEvent{}, rec.AnswerLog[start:]...)
	}
	return s
}

// Status loads the community's record and projects it. Safe to call
// concurrently with any other operation.
func (m *Manager) Status(ctx context.Context, community string) (*Summary, error) {
	rec, err := m.store.Get(ctx, community)
	if err != nil {
		return nil, err
	}
	return Project(rec, DefaultRecentAnswers), nil
}
