package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/unclebandit/campaign-dispatcher/internal/model"
)

// readContacts parses a CSV with a header row. Every column becomes a merge
// field; blank rows are skipped.
func readContacts(r io.Reader) ([]model.Contact, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("contacts file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var contacts []model.Contact
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read contacts: %w", err)
		}
		c := model.Contact{}
		for i, v := range row {
			if i < len(header) && header[i] != "" {
				c[header[i]] = strings.TrimSpace(v)
			}
		}
		if isBlank(c) {
			continue
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

func isBlank(c model.Contact) bool {
	for _, v := range c {
		if v != "" {
			return false
		}
	}
	return true
}
