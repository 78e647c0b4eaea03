// internal/service/account_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/unclebandit/campaign-dispatcher/internal/directory"
	appErrors "github.com/unclebandit/campaign-dispatcher/internal/errors"
	"github.com/unclebandit/campaign-dispatcher/internal/mailer"
	"github.com/unclebandit/campaign-dispatcher/internal/model"
	"github.com/unclebandit/campaign-dispatcher/internal/repository"
)

// ResolveAccounts returns the accounts whose health does not mark them
// disconnected, in directory order.
func ResolveAccounts(accounts []model.Account, health model.HealthRegistry) []model.Account {
	connected := make([]model.Account, 0, len(accounts))
	for _, a := range accounts {
		if health.Connected(a.ID) {
			connected = append(connected, a)
		}
	}
	return connected
}

// missingCredentials reports why an account cannot authenticate, or "".
func missingCredentials(a model.Account) string {
	if strings.TrimSpace(a.Email) == "" || strings.TrimSpace(a.Secret) == "" {
		return fmt.Sprintf("Missing email/pass for account id=%s", a.ID)
	}
	return ""
}

// AccountService owns the account health registry. Every mutation goes
// through update so concurrent account workers never lose each other's writes.
type AccountService struct {
	Directory  directory.Directory
	HealthRepo repository.HealthRepositoryInterface
	Verifier   mailer.Verifier
	Logger     *slog.Logger

	mu sync.Mutex
}

func NewAccountService(dir directory.Directory, health repository.HealthRepositoryInterface, verifier mailer.Verifier, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		Directory:  dir,
		HealthRepo: health,
		Verifier:   verifier,
		Logger:     logger.With("component", "accounts"),
	}
}

// Resolve loads the directory and health registry and returns the connected accounts.
func (s *AccountService) Resolve(ctx context.Context) ([]model.Account, model.HealthRegistry, error) {
	accounts, err := s.Directory.ListAccounts(ctx)
	if err != nil {
		return nil, nil, err
	}
	health, err := s.HealthRepo.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load account health: %w", err)
	}
	return ResolveAccounts(accounts, health), health, nil
}

// Disable marks the account disconnected with reason as its last error.
func (s *AccountService) Disable(ctx context.Context, accountID, reason string) error {
	return s.update(ctx, accountID, model.AccountHealth{Connected: false, LastError: reason})
}

func (s *AccountService) update(ctx context.Context, accountID string, entry model.AccountHealth) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	health, err := s.HealthRepo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load account health: %w", err)
	}
	health[accountID] = entry
	if err := s.HealthRepo.Save(ctx, health); err != nil {
		return fmt.Errorf("save account health: %w", err)
	}
	return nil
}

// List merges the directory with the health registry.
func (s *AccountService) List(ctx context.Context) ([]model.AccountView, error) {
	accounts, err := s.Directory.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	health, err := s.HealthRepo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load account health: %w", err)
	}

	views := make([]model.AccountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, view(a, health))
	}
	return views, nil
}

// SetStatus is the operator override used to reconnect or bench an account.
// Disabling without a reason records "Disconnected".
func (s *AccountService) SetStatus(ctx context.Context, accountID string, connected bool, lastError string) (*model.AccountView, error) {
	account, err := s.find(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !connected && strings.TrimSpace(lastError) == "" {
		lastError = "Disconnected"
	}
	if connected {
		lastError = ""
	}
	entry := model.AccountHealth{Connected: connected, LastError: lastError}
	if err := s.update(ctx, accountID, entry); err != nil {
		return nil, err
	}

	s.Logger.Info("account status updated", "account", accountID, "connected", connected, "lastError", lastError)
	v := view(account, model.HealthRegistry{accountID: entry})
	return &v, nil
}

// Verify authenticates as the account without sending. A failure is returned,
// not recorded.
func (s *AccountService) Verify(ctx context.Context, accountID string) error {
	account, err := s.find(ctx, accountID)
	if err != nil {
		return err
	}
	if reason := missingCredentials(account); reason != "" {
		return errors.New(reason)
	}
	if s.Verifier == nil {
		return appErrors.NewConfigError("SMTP_HOST", "no transport configured")
	}
	return s.Verifier.Verify(ctx, account)
}

func (s *AccountService) find(ctx context.Context, accountID string) (model.Account, error) {
	accounts, err := s.Directory.ListAccounts(ctx)
	if err != nil {
		return model.Account{}, err
	}
	for _, a := range accounts {
		if a.ID == accountID {
			return a, nil
		}
	}
	return model.Account{}, appErrors.NewValidation("unknown account id %q", accountID)
}

func view(a model.Account, health model.HealthRegistry) model.AccountView {
	entry, ok := health[a.ID]
	if !ok {
		entry = model.AccountHealth{Connected: true}
	}
	return model.AccountView{
		ID:         a.ID,
		Email:      a.Email,
		SenderName: a.SenderName,
		Connected:  entry.Connected,
		LastError:  entry.LastError,
	}
}
