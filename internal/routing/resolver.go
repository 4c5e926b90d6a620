// Package routing resolves a requested model string and project billing mode
// to a concrete upstream destination with a usable credential.
package routing

import (
	"context"

	"github.com/dban0001/llmgateway/internal/catalog"
	"github.com/dban0001/llmgateway/internal/store"
	"github.com/dban0001/llmgateway/pkg/apierr"
)

// Credential is a resolved upstream secret plus its origin.
type Credential struct {
	Token         string
	BaseURL       string // non-empty only for custom providers
	ProviderKeyID string // set when a stored key was chosen
	FromEnv       bool
}

// Resolver picks the credential for (org, provider) under the project's
// billing mode. env maps provider id to its default platform credential.
type Resolver struct {
	store store.Store
	env   map[string]string
}

func NewResolver(st store.Store, env map[string]string) *Resolver {
	return &Resolver{store: st, env: env}
}

// Resolve chooses the credential path for a catalog provider.
// Custom providers go through ResolveCustom instead.
func (r *Resolver) Resolve(ctx context.Context, project *store.Project, org *store.Organization, providerID string) (*Credential, error) {
	switch project.Mode {
	case store.ModeAPIKeys:
		key, err := r.store.GetProviderKey(ctx, org.ID, providerID)
		if err != nil {
			return nil, apierr.Newf(apierr.KindNoProviderKey,
				"no API key configured for provider %q; add one in your organization settings", providerID)
		}
		return &Credential{Token: key.Token, ProviderKeyID: key.ID}, nil

	case store.ModeCredits:
		return r.resolveEnv(project, org, providerID)

	default: // hybrid
		if key, err := r.store.GetProviderKey(ctx, org.ID, providerID); err == nil {
			return &Credential{Token: key.Token, ProviderKeyID: key.ID}, nil
		}
		return r.resolveEnv(project, org, providerID)
	}
}

// resolveEnv is the platform-credential path: requires a configured env
// credential and a positive credit balance.
func (r *Resolver) resolveEnv(project *store.Project, org *store.Organization, providerID string) (*Credential, error) {
	token, ok := r.env[providerID]
	if !ok || token == "" {
		return nil, apierr.Newf(apierr.KindNoProviderEnv,
			"provider %q is not available on platform credits", providerID)
	}
	if !org.Credits.IsPositive() {
		return nil, apierr.New(apierr.KindInsufficientCredits,
			"insufficient credits; top up your balance or configure a provider API key")
	}
	return &Credential{Token: token, FromEnv: true}, nil
}

// ResolveCustom finds the stored definition of a named custom provider.
// Custom providers always use stored keys, so they are rejected outright in
// credits mode.
func (r *Resolver) ResolveCustom(ctx context.Context, project *store.Project, org *store.Organization, name string) (*Credential, error) {
	if project.Mode == store.ModeCredits {
		return nil, apierr.New(apierr.KindCustomInCreditsMode,
			"custom providers are not available in credits mode")
	}
	key, err := r.store.GetCustomProviderKey(ctx, org.ID, name)
	if err != nil {
		return nil, apierr.Newf(apierr.KindCustomProviderNotFound,
			"custom provider %q is not configured for this organization", name)
	}
	return &Credential{Token: key.Token, BaseURL: key.BaseURL, ProviderKeyID: key.ID}, nil
}

// available returns the provider ids the project can route through.
func (r *Resolver) available(ctx context.Context, project *store.Project, org *store.Organization) (map[string]bool, error) {
	out := make(map[string]bool)

	if project.Mode == store.ModeAPIKeys || project.Mode == store.ModeHybrid {
		keys, err := r.store.ListProviderKeys(ctx, org.ID)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			if k.ProviderID != catalog.CustomProviderID {
				out[k.ProviderID] = true
			}
		}
	}

	if project.Mode == store.ModeCredits || project.Mode == store.ModeHybrid {
		for id, token := range r.env {
			if token != "" && id != catalog.MetaProviderID {
				out[id] = true
			}
		}
	}

	return out, nil
}
