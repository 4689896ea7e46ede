package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mailpipe/mailpipe/internal/core/domain"
	"github.com/mailpipe/mailpipe/internal/core/ports"
)

// PollProviderUseCase runs one provider account's poll cycle: advance from
// the last-sync cursor, skip already-seen messages, and fan the rest out
// as queue events. The cursor moves only after the whole cycle completes,
// so a failed cycle retries the same window (dedup makes that safe).
type PollProviderUseCase struct {
	accounts ports.AccountRepository
	registry ports.ProviderRegistry
	sync     ports.SyncState
	queue    ports.MessageQueue
	logger   *slog.Logger
	now      func() time.Time

	// AccountTimeout bounds one account's cycle so a hanging provider
	// cannot stall its siblings.
	AccountTimeout time.Duration
}

const defaultAccountTimeout = 2 * time.Minute

// defaultLookback seeds the cursor for accounts that have never synced.
const defaultLookback = time.Hour

func NewPollProviderUseCase(
	accounts ports.AccountRepository,
	registry ports.ProviderRegistry,
	syncState ports.SyncState,
	queue ports.MessageQueue,
	logger *slog.Logger,
) *PollProviderUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &PollProviderUseCase{
		accounts:       accounts,
		registry:       registry,
		sync:           syncState,
		queue:          queue,
		logger:         logger,
		now:            time.Now,
		AccountTimeout: defaultAccountTimeout,
	}
}

// PollAll fans one poll cycle out to every active account. Each account
// runs in its own goroutine with its own deadline; one slow or failing
// provider never blocks the others.
func (uc *PollProviderUseCase) PollAll(ctx context.Context) error {
	accounts, err := uc.accounts.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active accounts: %w", err)
	}

	var wg sync.WaitGroup
	for _, account := range accounts {
		wg.Add(1)
		go func(accountID string) {
			defer wg.Done()
			accountCtx, cancel := context.WithTimeout(ctx, uc.AccountTimeout)
			defer cancel()
			if err := uc.PollAccount(accountCtx, accountID); err != nil {
				uc.logger.Error("poll cycle failed", "account_id", accountID, "error", err)
			}
		}(account.ID)
	}
	wg.Wait()
	return nil
}

// PollAccount runs the cycle for one account. Messages are handled in the
// order the provider returned them; the dedup check happens before any
// side effect for a message.
func (uc *PollProviderUseCase) PollAccount(ctx context.Context, accountID string) error {
	account, err := uc.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if !account.Active {
		return nil
	}

	provider, err := uc.registry.ProviderFor(*account)
	if err != nil {
		return fmt.Errorf("resolve provider adapter: %w", err)
	}

	cycleStart := uc.now()
	since, err := uc.cursorFor(ctx, account, cycleStart)
	if err != nil {
		return err
	}

	messages, err := provider.ListNewSince(ctx, since)
	if err != nil {
		// Transient provider failure: skip the cycle, leave the cursor
		// where it was, retry the same window next time.
		return fmt.Errorf("list new messages since %s: %w", since.Format(time.RFC3339), err)
	}

	published := 0
	for i := range messages {
		msg := messages[i]
		msg.ProviderID = account.ID
		msg.UserID = account.UserID

		seen, err := uc.sync.HasSeen(ctx, account.ID, msg.ExternalID)
		if err != nil {
			return fmt.Errorf("dedup check %s: %w", msg.ExternalID, err)
		}
		if seen {
			continue
		}

		event := domain.MessageEvent{
			UserID:     account.UserID,
			ProviderID: account.ID,
			Message:    msg,
		}
		if err := uc.queue.PublishMessageFound(ctx, event); err != nil {
			// The message may be lost in flight; do not advance the cursor
			// past it. Redelivery next cycle is absorbed by the dedup check.
			return fmt.Errorf("publish message event %s: %w", msg.ExternalID, err)
		}
		published++
	}

	if published > 0 {
		uc.logger.Info("poll cycle published messages",
			"account_id", account.ID,
			"provider", string(account.Kind),
			"count", published,
		)
	}

	if err := uc.sync.AdvanceCursor(ctx, account.ID, cycleStart); err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	return nil
}

func (uc *PollProviderUseCase) cursorFor(ctx context.Context, account *domain.ProviderAccount, cycleStart time.Time) (time.Time, error) {
	cursor, err := uc.sync.GetCursor(ctx, account.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("get cursor: %w", err)
	}
	if cursor == nil {
		return cycleStart.Add(-defaultLookback), nil
	}
	return *cursor, nil
}
