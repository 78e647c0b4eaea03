package service

import "strings"

type FailureClass int

const (
	Transient FailureClass = iota
	PermanentRecipient
	AccountLevel
)

func (c FailureClass) String() string {
	switch c {
	case AccountLevel:
		return "account_level"
	case PermanentRecipient:
		return "permanent_recipient"
	default:
		return "transient"
	}
}

var accountLevelSignals = []string{
	"invalid login",
	"username and password not accepted",
	"authentication failed",
	"daily user sending limit exceeded",
	"rate limit",
	"too many login attempts",
	"account disabled",
	"bad credentials",
	"application-specific password",
	"5.7.8",
	"5.7.9",
}

var permanentRecipientSignals = []string{
	"5.1.1",
	"no such user",
	"recipient address rejected",
	"mailbox unavailable",
	"address not found",
	"invalid recipient",
	"domain not found",
}

// Classify maps transport error text to a failure class. Account-level signals
// are checked first; anything unmatched is transient.
func Classify(err error) FailureClass {
	if err == nil {
		return Transient
	}
	return ClassifyMessage(err.Error())
}

func ClassifyMessage(msg string) FailureClass {
	msg = strings.ToLower(msg)
	if containsAny(msg, accountLevelSignals) || (strings.Contains(msg, "auth") && strings.Contains(msg, "failed")) {
		return AccountLevel
	}
	if containsAny(msg, permanentRecipientSignals) {
		return PermanentRecipient
	}
	return Transient
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
