// Package mailer is the Mail Transport: it delivers one fully rendered message
// through one account and reports failures as natural-language errors.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/campaign-dispatcher/internal/model"
)

type Message struct {
	To      string
	Subject string
	HTML    string
}

// Transport sends msg as account and returns the Message-ID. Implementations
// own their timeouts.
type Transport interface {
	Send(ctx context.Context, account model.Account, msg Message) (string, error)
}

// Verifier checks that an account can authenticate without sending.
type Verifier interface {
	Verify(ctx context.Context, account model.Account) error
}

// buildMessage renders the RFC 5322 message for msg and returns it with its Message-ID.
func buildMessage(account model.Account, msg Message, now time.Time) ([]byte, string, error) {
	domain := "localhost"
	if at := strings.LastIndex(account.Email, "@"); at >= 0 && at < len(account.Email)-1 {
		domain = account.Email[at+1:]
	}
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)

	from := "<" + account.Email + ">"
	if account.SenderName != "" {
		from = mime.QEncoding.Encode("utf-8", account.SenderName) + " " + from
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: <%s>\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: %s\r\n", messageID)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(msg.HTML)); err != nil {
		return nil, "", fmt.Errorf("encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, "", fmt.Errorf("encode body: %w", err)
	}
	buf.WriteString("\r\n")
	return buf.Bytes(), messageID, nil
}
