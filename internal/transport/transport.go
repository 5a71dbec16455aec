package transport

import (
	"context"
	"errors"
	"time"
)

// Member is a resolved community member.
type Member struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
}

// Prompt is the interactive yes/no affordance attached to a roll-call DM.
// The gateway echoes the campaign and user ids back on the answer webhook,
// which lets the response handler reject stale or spoofed answers.
type Prompt struct {
	CampaignID string    `json:"campaign_id"`
	UserID     string    `json:"user_id"`
	Deadline   time.Time `json:"deadline"`
}

var (
	// ErrBlocked marks a permanent per-recipient delivery failure: the
	// member has direct messages closed or has blocked the bot. Every
	// other transport error is treated as transient.
	ErrBlocked = errors.New("recipient blocked direct messages")

	// ErrNotFound marks an id the gateway cannot resolve, typically a
	// member who left the community.
	ErrNotFound = errors.New("not found")
)

// IsBlocked reports whether err is a permanent per-recipient failure.
func IsBlocked(err error) bool {
	return errors.Is(err, ErrBlocked)
}

// IsNotFound reports whether err means the target does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Transport is the chat-gateway boundary. Implementations classify
// failures: SendDirectMessage returns ErrBlocked for unreachable
// recipients and any other error for transient conditions; role and
// channel operations are best-effort and callers only log their errors.
type Transport interface {
	// ResolveMember looks up a current member. Returns ErrNotFound when
	// the member is no longer part of the community.
	ResolveMember(ctx context.Context, community, userID string) (*Member, error)

	// MembersWithRole lists the current holders of a role.
	MembersWithRole(ctx context.Context, community, roleID string) ([]*Member, error)

	// SendDirectMessage delivers a DM with an optional interactive prompt.
	SendDirectMessage(ctx context.Context, community string, member *Member, content string, prompt *Prompt) error

	// AddRole assigns a role to a member.
	AddRole(ctx context.Context, community, userID, roleID, reason string) error

	// RemoveRole removes a role from a member.
	RemoveRole(ctx context.Context, community, userID, roleID, reason string) error

	// PostToChannel posts text to a community channel.
	PostToChannel(ctx context.Context, community, channelID, text string) error
}
