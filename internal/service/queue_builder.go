package service

import "github.com/unclebandit/campaign-dispatcher/internal/model"

// WorkQueue is the output of BuildWorkQueue.
type WorkQueue struct {
	Items []model.WorkItem
	// FromRetry and FromContacts count where Items came from, in that order.
	FromRetry    int
	FromContacts int
	// Remaining is the part of the retry backlog that did not fit.
	Remaining []model.WorkItem
	// NextCursor is the campaign cursor after the fresh pull.
	NextCursor int
}

// BuildWorkQueue drains up to capacity items from the retry backlog, oldest
// first, then fills the rest from contacts starting at cursor.
func BuildWorkQueue(capacity int, backlog []model.WorkItem, contacts []model.Contact, cursor int) WorkQueue {
	if capacity < 0 {
		capacity = 0
	}
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(contacts) {
		cursor = len(contacts)
	}

	fromRetry := min(capacity, len(backlog))
	items := make([]model.WorkItem, 0, capacity)
	items = append(items, backlog[:fromRetry]...)

	fromContacts := min(capacity-fromRetry, len(contacts)-cursor)
	for _, c := range contacts[cursor : cursor+fromContacts] {
		items = append(items, model.WorkItem{Contact: c})
	}

	remaining := make([]model.WorkItem, len(backlog)-fromRetry)
	copy(remaining, backlog[fromRetry:])

	return WorkQueue{
		Items:        items,
		FromRetry:    fromRetry,
		FromContacts: fromContacts,
		Remaining:    remaining,
		NextCursor:   cursor + fromContacts,
	}
}

// Partition hands items to accounts in order, perAccount each. Items beyond
// len(accounts)*perAccount are returned as overflow.
func Partition(items []model.WorkItem, accounts []model.Account, perAccount int) (map[string][]model.WorkItem, []model.WorkItem) {
	batches := make(map[string][]model.WorkItem, len(accounts))
	if perAccount <= 0 {
		return batches, items
	}
	next := 0
	for _, a := range accounts {
		if next >= len(items) {
			break
		}
		end := min(next+perAccount, len(items))
		batches[a.ID] = items[next:end]
		next = end
	}
	return batches, items[next:]
}

// MergeBacklog appends leftovers after the existing backlog and trims the
// oldest entries beyond limit.
func MergeBacklog(existing, leftovers []model.WorkItem, limit int) []model.WorkItem {
	merged := make([]model.WorkItem, 0, len(existing)+len(leftovers))
	merged = append(merged, existing...)
	merged = append(merged, leftovers...)
	if limit > 0 && len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}
	return merged
}
