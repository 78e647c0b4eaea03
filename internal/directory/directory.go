// Package directory resolves the sending identities from the accounts file
// and per-account secrets in the environment.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	appErrors "github.com/unclebandit/campaign-dispatcher/internal/errors"
	"github.com/unclebandit/campaign-dispatcher/internal/model"
)

// Directory lists the configured sending accounts. It is read-only.
type Directory interface {
	ListAccounts(ctx context.Context) ([]model.Account, error)
}

// FileDirectory reads a JSON or YAML array of accounts. A secret in the file
// wins over PASS_<id> from the environment.
type FileDirectory struct {
	Path   string
	Getenv func(string) string
}

func NewFileDirectory(path string) *FileDirectory {
	return &FileDirectory{Path: path, Getenv: os.Getenv}
}

type accountRecord struct {
	ID         accountID `json:"id" yaml:"id"`
	Email      string    `json:"email" yaml:"email"`
	SenderName string    `json:"senderName" yaml:"senderName"`
	Pass       string    `json:"pass" yaml:"pass"`
	Password   string    `json:"password" yaml:"password"`
}

// accountID accepts both numeric and string ids.
type accountID string

func (a *accountID) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*a = accountID(formatID(v))
	return nil
}

func (a *accountID) UnmarshalYAML(node *yaml.Node) error {
	*a = accountID(strings.TrimSpace(node.Value))
	return nil
}

func formatID(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func (d *FileDirectory) ListAccounts(_ context.Context) ([]model.Account, error) {
	raw, err := os.ReadFile(d.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, appErrors.NewConfigError("ACCOUNTS_FILE", d.Path+" not found")
	}
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}

	var records []accountRecord
	switch strings.ToLower(filepath.Ext(d.Path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &records)
	default:
		err = json.Unmarshal(raw, &records)
	}
	if err != nil {
		return nil, appErrors.NewConfigError("ACCOUNTS_FILE", "must be an array of accounts: "+err.Error())
	}

	getenv := d.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	accounts := make([]model.Account, 0, len(records))
	seen := map[string]bool{}
	for i, r := range records {
		id := string(r.ID)
		if id == "" {
			return nil, appErrors.NewConfigError("ACCOUNTS_FILE", fmt.Sprintf("account #%d has no id", i))
		}
		if seen[id] {
			return nil, appErrors.NewConfigError("ACCOUNTS_FILE", "duplicate account id "+id)
		}
		seen[id] = true

		secret := strings.TrimSpace(r.Pass)
		if secret == "" {
			secret = strings.TrimSpace(r.Password)
		}
		if secret == "" {
			secret = strings.TrimSpace(getenv("PASS_" + id))
		}
		accounts = append(accounts, model.Account{
			ID:         id,
			Email:      strings.TrimSpace(r.Email),
			SenderName: strings.TrimSpace(r.SenderName),
			Secret:     secret,
		})
	}
	return accounts, nil
}

// Static is a fixed in-memory directory.
type Static []model.Account

func (s Static) ListAccounts(context.Context) ([]model.Account, error) {
	out := make([]model.Account, len(s))
	copy(out, s)
	return out, nil
}

var (
	_ Directory = (*FileDirectory)(nil)
	_ Directory = Static(nil)
)
