package campaign

import "errors"

// User-facing failures. Callers surface these as short advisory
// messages, never as stack traces.
var (
	// ErrBusy means a structural operation (start) already holds the
	// campaign lock.
	ErrBusy = errors.New("a campaign operation is already in flight, try again shortly")

	// ErrMisconfigured means the roles or log channel required to start
	// are not set.
	ErrMisconfigured = errors.New("target role, former-member role and log channel must be configured")

	// ErrNoActiveCampaign guards pause/resume/extend on an idle community.
	ErrNoActiveCampaign = errors.New("no active campaign")

	// ErrWrongRecipient rejects an answer whose responder does not match
	// the member the prompt was addressed to.
	ErrWrongRecipient = errors.New("this prompt belongs to another member")

	// ErrStaleCampaign rejects answers to a campaign that has been
	// closed, restarted, or that already expired for the recipient.
	ErrStaleCampaign = errors.New("this roll-call is no longer active")

	// ErrAlreadyAnswered rejects a second answer; the first one stands.
	ErrAlreadyAnswered = errors.New("answer already recorded")
)
