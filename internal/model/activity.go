// internal/model/activity.go
package model

import "time"

type AccountStats struct {
	Email      string    `json:"email"`
	SenderName string    `json:"senderName"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	LastSentAt time.Time `json:"lastSentAt,omitempty"`
}

// Stats holds monotonically increasing per-campaign counters. TotalFailed
// counts failed attempts, TotalDropped counts contacts given up on.
type Stats struct {
	CampaignID   string                   `json:"campaignId"`
	TotalSent    int                      `json:"totalSent"`
	TotalFailed  int                      `json:"totalFailed"`
	TotalDropped int                      `json:"totalDropped"`
	ByAccount    map[string]*AccountStats `json:"byAccount"`
}

func NewStats(campaignID string) *Stats {
	return &Stats{CampaignID: campaignID, ByAccount: map[string]*AccountStats{}}
}

// Account returns the per-account counters, creating them on first use.
func (s *Stats) Account(a Account) *AccountStats {
	if s.ByAccount == nil {
		s.ByAccount = map[string]*AccountStats{}
	}
	st, ok := s.ByAccount[a.ID]
	if !ok {
		st = &AccountStats{Email: a.Email, SenderName: a.SenderName}
		s.ByAccount[a.ID] = st
	}
	return st
}

type EventStatus string

const (
	EventSent              EventStatus = "sent"
	EventFailed            EventStatus = "failed"
	EventCampaignStarted   EventStatus = "campaign_started"
	EventCampaignResumed   EventStatus = "campaign_resumed"
	EventCampaignStopped   EventStatus = "campaign_stopped"
	EventCampaignCompleted EventStatus = "campaign_completed"
)

// Event notes attached to failed sends.
const (
	NoteAccountDisabled  = "account_disabled"
	NotePermanentDropped = "permanent_recipient_failure_dropped"
	NoteTransientRetry   = "transient_moved_to_retry"
	NoteRetryExhausted   = "retry_exhausted_dropped"
	NoteMissingEmail     = "missing_email"
)

type Event struct {
	Ts         time.Time   `json:"ts"`
	Status     EventStatus `json:"status"`
	CampaignID string      `json:"campaignId,omitempty"`
	AccountID  string      `json:"accountId,omitempty"`
	From       string      `json:"from,omitempty"`
	SenderName string      `json:"senderName,omitempty"`
	To         string      `json:"to,omitempty"`
	Error      string      `json:"error,omitempty"`
	Note       string      `json:"note,omitempty"`
}

type LiveStateKind string

const (
	LiveIdle                LiveStateKind = "idle"
	LiveSending             LiveStateKind = "sending"
	LiveIdleWaitingNextTick LiveStateKind = "idle_waiting_next_tick"
	LiveIdleNoAccounts      LiveStateKind = "idle_no_accounts"
	LiveCompleted           LiveStateKind = "completed"
	LiveStopped             LiveStateKind = "stopped"
)

// LiveState is the current-activity snapshot, overwritten on every transition.
type LiveState struct {
	State             LiveStateKind `json:"state"`
	CurrentAccountID  string        `json:"currentAccountId,omitempty"`
	CurrentEmail      string        `json:"currentEmail,omitempty"`
	CurrentSenderName string        `json:"currentSenderName,omitempty"`
	CurrentTo         string        `json:"currentTo,omitempty"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}
