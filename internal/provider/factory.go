package provider

import (
	"context"
	"fmt"

	"github.com/ignite/collection-dispatcher/internal/config"
	"github.com/ignite/collection-dispatcher/internal/pkg/httpretry"
)

// New selects and constructs a Provider from configuration, defaulting to
// SES when Provider.Name is unset.
func New(ctx context.Context, cfg *config.Config, httpClient httpretry.HTTPDoer) (Provider, error) {
	name := cfg.Provider.Name
	if name == "" {
		name = "ses"
	}

	switch name {
	case "ses":
		return NewSESProvider(ctx, cfg.SES)
	case "brevo":
		return NewBrevoProvider(httpClient, cfg.Brevo), nil
	default:
		return nil, fmt.Errorf("provider: unknown provider %q", name)
	}
}
