// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	StatusRunning   CampaignStatus = "running"
	StatusStopped   CampaignStatus = "stopped"
	StatusCompleted CampaignStatus = "completed"
)

// Template is one subject/body variant. Several variants on a campaign are
// picked uniformly at random per send.
type Template struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Campaign struct {
	ID                      string         `json:"id"`
	Name                    string         `json:"name,omitempty"`
	Status                  CampaignStatus `json:"status"`
	Contacts                []Contact      `json:"contacts"`
	ContactsDigest          string         `json:"contactsDigest"`
	Brands                  []string       `json:"brands"`
	Templates               []Template     `json:"templates"`
	Cursor                  int            `json:"cursor"`
	Total                   int            `json:"total"`
	EmailsPerAccountPerHour int            `json:"emailsPerAccountPerHour"`
	PerEmailDelayMs         int            `json:"perEmailDelayMs"`
	CreatedAt               time.Time      `json:"createdAt"`
	UpdatedAt               time.Time      `json:"updatedAt"`
}

// Remaining is the size of the unconsumed contact suffix.
func (c *Campaign) Remaining() int {
	if c.Cursor >= len(c.Contacts) {
		return 0
	}
	return len(c.Contacts) - c.Cursor
}

// Exhausted reports whether every original contact has been pulled into the working set.
func (c *Campaign) Exhausted() bool {
	return c.Cursor >= len(c.Contacts)
}

// CampaignSummary is a campaign without its contact snapshot, used for listings.
type CampaignSummary struct {
	ID        string         `json:"id"`
	Name      string         `json:"name,omitempty"`
	Status    CampaignStatus `json:"status"`
	Cursor    int            `json:"cursor"`
	Total     int            `json:"total"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (c *Campaign) Summary() CampaignSummary {
	return CampaignSummary{
		ID:        c.ID,
		Name:      c.Name,
		Status:    c.Status,
		Cursor:    c.Cursor,
		Total:     c.Total,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
