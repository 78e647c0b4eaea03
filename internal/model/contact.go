// internal/model/contact.go
package model

import "strings"

// Contact is one CSV row: arbitrary named fields used both as the send target
// and as merge-field source.
type Contact map[string]string

// emailFields lists the header spellings accepted for the address column, in
// lookup order.
var emailFields = []string{"email", "Email", "EMAIL", "Email Address", "email_address", "mail", "Mail"}

// Email returns the recipient address, or "" when no address column is set.
func (c Contact) Email() string {
	for _, f := range emailFields {
		if v := strings.TrimSpace(c[f]); v != "" {
			return v
		}
	}
	return ""
}

// WorkItem is a contact pulled into the working set together with the number
// of transient failures it has accumulated.
type WorkItem struct {
	Contact    Contact `json:"contact"`
	RetryCount int     `json:"retryCount"`
}
