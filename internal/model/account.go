// internal/model/account.go
package model

import "encoding/json"

// Account is a sending identity resolved from the account directory.
type Account struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	SenderName string `json:"senderName"`
	Secret     string `json:"-"`
}

// From renders the RFC 5322 from header value.
func (a Account) From() string {
	if a.SenderName == "" {
		return "<" + a.Email + ">"
	}
	return a.SenderName + " <" + a.Email + ">"
}

type AccountHealth struct {
	Connected bool   `json:"connected"`
	LastError string `json:"lastError"`
}

// UnmarshalJSON treats a record without "connected" as connected.
func (h *AccountHealth) UnmarshalJSON(data []byte) error {
	var raw struct {
		Connected *bool  `json:"connected"`
		LastError string `json:"lastError"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	h.Connected = raw.Connected == nil || *raw.Connected
	h.LastError = raw.LastError
	return nil
}

// HealthRegistry maps account id to health. Accounts without an entry are connected.
type HealthRegistry map[string]AccountHealth

func (h HealthRegistry) Connected(accountID string) bool {
	entry, ok := h[accountID]
	if !ok {
		return true
	}
	return entry.Connected
}

// AccountView is an account merged with its health, safe to expose.
type AccountView struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	SenderName string `json:"senderName"`
	Connected  bool   `json:"connected"`
	LastError  string `json:"lastError"`
}
