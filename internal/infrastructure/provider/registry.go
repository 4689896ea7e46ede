package provider

import (
	"fmt"

	"github.com/mailpipe/mailpipe/internal/core/domain"
	"github.com/mailpipe/mailpipe/internal/core/ports"
	"github.com/mailpipe/mailpipe/internal/infrastructure/provider/gmail"
	"github.com/mailpipe/mailpipe/internal/infrastructure/provider/outlook"
	"github.com/mailpipe/mailpipe/internal/infrastructure/resilience"
)

// Factory builds a vendor adapter bound to one account's credentials.
// Instances are per-account: adapters never share token or connection
// state across accounts.
type Factory func(account domain.ProviderAccount) ports.MailProvider

// Registry resolves mail provider adapters from a closed, enum-keyed set
// of vendors.
type Registry struct {
	factories map[domain.ProviderKind]Factory
}

func NewRegistry(executor *resilience.Executor) *Registry {
	return &Registry{
		factories: map[domain.ProviderKind]Factory{
			domain.ProviderGmail: func(account domain.ProviderAccount) ports.MailProvider {
				return gmail.New(account.AccessToken, executor)
			},
			domain.ProviderOutlook: func(account domain.ProviderAccount) ports.MailProvider {
				return outlook.New(account.AccessToken, executor)
			},
		},
	}
}

func (r *Registry) ProviderFor(account domain.ProviderAccount) (ports.MailProvider, error) {
	factory, ok := r.factories[account.Kind]
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "resolve provider",
			fmt.Errorf("unsupported provider kind %q", account.Kind))
	}
	return factory(account), nil
}

// Kinds lists the supported vendors.
func (r *Registry) Kinds() []domain.ProviderKind {
	return []domain.ProviderKind{domain.ProviderGmail, domain.ProviderOutlook}
}
