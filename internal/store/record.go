package store

// Status is a recipient's position in the roll-call state machine.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusYes      Status = "YES"
	StatusNo       Status = "NO"
	StatusDMFailed Status = "DM_FAILED"
	StatusExpired  Status = "EXPIRED"
)

// Terminal reports whether the status can no longer change within the
// same campaign. DM_FAILED is not terminal: staff intervention may still
// produce an answer.
func (s Status) Terminal() bool {
	switch s {
	case StatusYes, StatusNo, StatusExpired:
		return true
	}
	return false
}

const (
	// DefaultAttemptsMax is the total number of contact attempts per
	// recipient, including the initial DM.
	DefaultAttemptsMax = 3

	// MaxAnswerLog caps the per-community answer log, newest last.
	MaxAnswerLog = 20

	// MaxHistory caps the retained snapshots of prior campaigns.
	MaxHistory = 5
)

// Recipient tracks one member swept into a campaign.
type Recipient struct {
	Status      Status `json:"status"`
	Attempts    int    `json:"attempts"`
	LastSentAt  *Time  `json:"last_sent_at"`
	RespondedAt *Time  `json:"responded_at"`
}

// AnswerEvent is one recorded answer, append-only.
type AnswerEvent struct {
	Timestamp Time   `json:"ts"`
	UserID    string `json:"user_id"`
	Answer    Status `json:"answer"`
}

// Snapshot is a prior campaign's recipient table, retained for audit.
type Snapshot struct {
	CampaignID string                `json:"campaign_id"`
	Deadline   *Time                 `json:"deadline"`
	Recipients map[string]*Recipient `json:"recipients"`
}

// Record is the root aggregate for one community: campaign configuration,
// lifecycle flags and the recipient table. All mutation is read-modify-write
// over the whole record.
type Record struct {
	Active bool `json:"active"`
	Paused bool `json:"paused"`

	// Locked mirrors the start-in-flight lock for observability and for
	// the scheduler's skip check. The store's per-community mutex is the
	// actual mutual exclusion.
	Locked bool `json:"locked"`

	CampaignID string `json:"campaign_id,omitempty"`

	TargetRoleID  string `json:"role_target_id,omitempty"`
	FormerRoleID  string `json:"role_former_member_id,omitempty"`
	PendingRoleID string `json:"role_pending_id,omitempty"`
	LogChannelID  string `json:"log_channel_id,omitempty"`

	Deadline    *Time `json:"deadline"`
	AttemptsMax int   `json:"attempts_max"`

	Recipients map[string]*Recipient `json:"recipients"`
	AnswerLog  []AnswerEvent         `json:"answer_log"`
	History    []Snapshot            `json:"history"`
}

// NewRecord returns a record with all fields defaulted.
func NewRecord() *Record {
	r := &Record{}
	r.ensureDefaults()
	return r
}

func (r *Record) ensureDefaults() {
	if r.AttemptsMax <= 0 {
		r.AttemptsMax = DefaultAttemptsMax
	}
	if r.Recipients == nil {
		r.Recipients = make(map[string]*Recipient)
	}
}

// Configured reports whether the roles and log channel required to start
// a campaign are set. The pending role is optional.
func (r *Record) Configured() bool {
	return r.TargetRoleID != "" && r.FormerRoleID != "" && r.LogChannelID != ""
}

// AppendAnswer appends to the bounded answer log, dropping the oldest
// entries beyond the cap.
func (r *Record) AppendAnswer(ev AnswerEvent) {
	r.AnswerLog = append(r.AnswerLog, ev)
	if n := len(r.AnswerLog); n > MaxAnswerLog {
		r.AnswerLog = r.AnswerLog[n-MaxAnswerLog:]
	}
}

// Archive pushes the current campaign's recipient table into history and
// trims to the cap. No-op when the table is empty.
func (r *Record) Archive() {
	if len(r.Recipients) == 0 {
		return
	}
	r.History = append(r.History, Snapshot{
		CampaignID: r.CampaignID,
		Deadline:   r.Deadline,
		Recipients: r.Recipients,
	})
	if n := len(r.History); n > MaxHistory {
		r.History = r.History[n-MaxHistory:]
	}
}

// Counts aggregates recipients per status.
func (r *Record) Counts() map[Status]int {
	counts := map[Status]int{
		StatusPending:  0,
		StatusYes:      0,
		StatusNo:       0,
		StatusDMFailed: 0,
		StatusExpired:  0,
	}
	for _, rcpt := range r.Recipients {
		counts[rcpt.Status]++
	}
	return counts
}
