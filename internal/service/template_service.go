// internal/service/template_service.go
package service

import (
	"regexp"
	"strings"

	"github.com/unclebandit/campaign-dispatcher/internal/model"
)

var placeholder = regexp.MustCompile(`\{\{([^}]*)\}\}`)

// RenderTemplate replaces every {{ key }} with data[key]. Placeholders with no
// value are removed. Inserted values are not re-scanned.
func RenderTemplate(template string, data map[string]string) string {
	if template == "" {
		return ""
	}
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		key := strings.TrimSpace(m[2 : len(m)-2])
		return data[key]
	})
}

// MergeVars builds the substitution set for one send. Contact fields win over
// brandName and senderName.
func MergeVars(contact model.Contact, brand, senderName string) map[string]string {
	vars := make(map[string]string, len(contact)+2)
	vars["brandName"] = brand
	vars["senderName"] = senderName
	for k, v := range contact {
		vars[k] = v
	}
	return vars
}

const htmlEnvelopeOpen = `<div style="white-space: pre-wrap; font-family: Arial, sans-serif; line-height: 1.6; color: #333;">`

var (
	lineBreak = regexp.MustCompile(`\r?\n`)
	spaceRuns = regexp.MustCompile(` {2,}`)
)

// TextToHTML wraps plain text in a minimal HTML envelope, keeping line breaks
// and runs of spaces.
func TextToHTML(text string) string {
	if text == "" {
		return ""
	}
	out := lineBreak.ReplaceAllString(text, "<br>")
	out = spaceRuns.ReplaceAllStringFunc(out, func(s string) string {
		return strings.Repeat("&nbsp;", len(s))
	})
	return htmlEnvelopeOpen + out + "</div>"
}

// RenderedMessage is the personalized content of one send.
type RenderedMessage struct {
	To      string `json:"to"`
	Brand   string `json:"brand"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// Render personalizes tpl for contact using the given brand and sender name.
func Render(tpl model.Template, contact model.Contact, brand, senderName string) RenderedMessage {
	vars := MergeVars(contact, brand, senderName)
	text := RenderTemplate(tpl.Body, vars)
	return RenderedMessage{
		To:      contact.Email(),
		Brand:   brand,
		Subject: RenderTemplate(tpl.Subject, vars),
		Text:    text,
		HTML:    TextToHTML(text),
	}
}
