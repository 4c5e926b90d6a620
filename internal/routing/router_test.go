package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dban0001/llmgateway/internal/catalog"
	"github.com/dban0001/llmgateway/internal/providers"
	"github.com/dban0001/llmgateway/internal/store"
	"github.com/dban0001/llmgateway/pkg/apierr"
)

type fixture struct {
	router *Router
	store  *store.Memory
	org    *store.Organization
	proj   *store.Project
}

// newFixture builds a hybrid-mode org with credits and the given platform
// credentials.
func newFixture(t *testing.T, mode string, env map[string]string) *fixture {
	t.Helper()

	st := store.NewMemory()
	org := &store.Organization{ID: "org_1", Credits: decimal.NewFromInt(10)}
	proj := &store.Project{ID: "proj_1", OrganizationID: "org_1", Mode: mode}
	st.PutOrganization(org)
	st.PutProject(proj)

	cat := catalog.New()
	return &fixture{
		router: NewRouter(cat, NewResolver(st, env)),
		store:  st,
		org:    org,
		proj:   proj,
	}
}

func (f *fixture) route(t *testing.T, req *providers.ChatRequest) (*Route, *apierr.Error) {
	t.Helper()
	rt, err := f.router.Route(context.Background(), req, f.proj, f.org)
	if err == nil {
		return rt, nil
	}
	var ae *apierr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("routing error is not *apierr.Error: %v", err)
	}
	return nil, ae
}

func mustKind(t *testing.T, ae *apierr.Error, want apierr.Kind) {
	t.Helper()
	if ae == nil {
		t.Fatalf("expected %s error, got success", want)
	}
	if ae.Kind != want {
		t.Fatalf("kind = %s, want %s (%s)", ae.Kind, want, ae.Message)
	}
}

func TestRouteAuto_PicksFirstAvailableModel(t *testing.T) {
	f := newFixture(t, store.ModeHybrid, map[string]string{"openai": "sk-env"})

	rt, ae := f.route(t, &providers.ChatRequest{Model: "auto"})
	if ae != nil {
		t.Fatalf("route: %v", ae)
	}
	if rt.ModelID != "gpt-4o-mini" || rt.Provider.ID != "openai" {
		t.Fatalf("auto routed to %s on %s", rt.ModelID, rt.Provider.ID)
	}
	if rt.Credential == nil || !rt.Credential.FromEnv {
		t.Fatalf("credential = %+v, want env credential", rt.Credential)
	}
}

func TestRouteAuto_SkipsUnavailableProviders(t *testing.T) {
	// Only Anthropic is configured, so auto must skip the OpenAI models.
	f := newFixture(t, store.ModeHybrid, map[string]string{"anthropic": "sk-ant"})

	rt, ae := f.route(t, &providers.ChatRequest{Model: "auto"})
	if ae != nil {
		t.Fatalf("route: %v", ae)
	}
	if rt.Provider.ID != "anthropic" {
		t.Fatalf("provider = %s, want anthropic", rt.Provider.ID)
	}
}

func TestRouteAuto_NoProvidersIsAnError(t *testing.T) {
	f := newFixture(t, store.ModeHybrid, nil)

	_, ae := f.route(t, &providers.ChatRequest{Model: "auto"})
	mustKind(t, ae, apierr.KindNoAvailableProvider)
}

func TestRouteBare_CanonicalID(t *testing.T) {
	f := newFixture(t, store.ModeHybrid, map[string]string{"openai": "sk-env"})

	rt, ae := f.route(t, &providers.ChatRequest{Model: "gpt-4o"})
	if ae != nil {
		t.Fatalf("route: %v", ae)
	}
	if rt.ModelID != "gpt-4o" || rt.ModelName != "gpt-4o" || rt.Provider.ID != "openai" {
		t.Fatalf("route = %+v", rt)
	}
}

func TestRouteBare_ProviderNativeNameNeedsPrefix(t *testing.T) {
	f := newFixture(t, store.ModeHybrid, map[string]string{"anthropic": "sk-ant"})

	_, ae := f.route(t, &providers.ChatRequest{Model: "claude-3-5-haiku-20241022"})
	mustKind(t, ae, apierr.KindModelProviderPrefix)
}

func TestRouteBare_UnknownModel(t *testing.T) {
	f := newFixture(t, store.ModeHybrid, map[string]string{"openai": "sk-env"})

	_, ae := f.route(t, &providers.ChatRequest{Model: "made-up-model"})
	mustKind(t, ae, apierr.KindUnsupportedModel)
}

func TestRouteBare_MultiMappingPicksCheapestAvailable(t *testing.T) {
	f := newFixture(t, store.ModeHybrid, map[string]string{"together": "sk-tg"})

	rt, ae := f.route(t, &providers.ChatRequest{Model: "llama-3.3-70b"})
	if ae != nil {
		t.Fatalf("route: %v", ae)
	}
	// groq is declared first but has no credential here.
	if rt.Provider.ID != "together" {
		t.Fatalf("provider = %s, want together", rt.Provider.ID)
	}
}

func TestRoutePrefixed(t *testing.T) {
	f := newFixture(t, store.ModeHybrid, map[string]string{"anthropic": "sk-ant"})

	rt, ae := f.route(t, &providers.ChatRequest{Model: "anthropic/claude-3-5-haiku"})
	if ae != nil {
		t.Fatalf("route: %v", ae)
	}
	if rt.ModelID != "claude-3-5-haiku" || rt.ModelName != "claude-3-5-haiku-20241022" {
		t.Fatalf("route = %+v", rt)
	}
	if rt.RequestedProvider != "anthropic" {
		t.Fatalf("requested provider = %q", rt.RequestedProvider)
	}
}

func TestRoutePrefixed_NativeNameAfterPrefix(t *testing.T) {
	f := newFixture(t, store.ModeHybrid, map[string]string{"anthropic": "sk-ant"})

	rt, ae := f.route(t, &providers.ChatRequest{Model: "anthropic/claude-3-5-haiku-20241022"})
	if ae != nil {
		t.Fatalf("route: %v", ae)
	}
	if rt.ModelID != "claude-3-5-haiku" {
		t.Fatalf("model id = %q", rt.ModelID)
	}
}

func TestRoutePrefixed_ModelNotOnProvider(t *testing.T) {
	f := newFixture(t, store.ModeHybrid, map[string]string{"anthropic": "sk-ant"})

	_, ae := f.route(t, &providers.ChatRequest{Model: "anthropic/gpt-4o"})
	mustKind(t, ae, apierr.KindProviderUnsupported)
}

func TestRouteCustomProvider(t *testing.T) {
	f := newFixture(t, store.ModeAPIKeys, nil)
	f.store.PutProviderKey(&store.ProviderKey{
		ID:             "pk_1",
		OrganizationID: "org_1",
		ProviderID:     catalog.CustomProviderID,
		Name:           "mycorp",
		Token:          "sk-custom",
		BaseURL:        "https://llm.mycorp.example/v1",
		Status:         store.StatusActive,
	})

	rt, ae := f.route(t, &providers.ChatRequest{Model: "mycorp/internal-model-v2"})
	if ae != nil {
		t.Fatalf("route: %v", ae)
	}
	if rt.ModelID != "" {
		t.Fatalf("custom route must have no catalog model id, got %q", rt.ModelID)
	}
	if rt.ModelName != "internal-model-v2" {
		t.Fatalf("model name = %q", rt.ModelName)
	}
	if got := rt.Endpoint(false); got != "https://llm.mycorp.example/v1/chat/completions" {
		t.Fatalf("endpoint = %q", got)
	}
}

func TestRouteCustom_RejectedInCreditsMode(t *testing.T) {
	f := newFixture(t, store.ModeCredits, map[string]string{"openai": "sk-env"})

	_, ae := f.route(t, &providers.ChatRequest{Model: "mycorp/internal-model-v2"})
	mustKind(t, ae, apierr.KindCustomInCreditsMode)
}

func TestRouteCustom_NotConfigured(t *testing.T) {
	f := newFixture(t, store.ModeAPIKeys, nil)

	_, ae := f.route(t, &providers.ChatRequest{Model: "nosuch/model"})
	mustKind(t, ae, apierr.KindCustomProviderNotFound)
}

func TestGate_DeactivatedModel(t *testing.T) {
	f := newFixture(t, store.ModeHybrid, map[string]string{"openai": "sk-env"})

	_, ae := f.route(t, &providers.ChatRequest{Model: "gpt-3.5-turbo"})
	mustKind(t, ae, apierr.KindModelDeactivated)
}

func TestGate_JSONOutputUnsupported(t *testing.T) {
	f := newFixture(t, store.ModeHybrid, map[string]string{"perplexity": "sk-pplx"})

	_, ae := f.route(t, &providers.ChatRequest{
		Model:          "sonar",
		ResponseFormat: &providers.ResponseFormat{Type: "json_object"},
	})
	mustKind(t, ae, apierr.KindJSONOutputUnsupported)
}

func TestGate_ReasoningUnsupported(t *testing.T) {
	f := newFixture(t, store.ModeHybrid, map[string]string{"openai": "sk-env"})

	_, ae := f.route(t, &providers.ChatRequest{
		Model:           "gpt-4o-mini",
		ReasoningEffort: "high",
	})
	mustKind(t, ae, apierr.KindReasoningUnsupported)
}

func TestGate_MaxTokensExceedsLimit(t *testing.T) {
	f := newFixture(t, store.ModeHybrid, map[string]string{"openai": "sk-env"})

	over := 20_000 // gpt-4o-mini caps at 16384
	_, ae := f.route(t, &providers.ChatRequest{Model: "gpt-4o-mini", MaxTokens: &over})
	mustKind(t, ae, apierr.KindMaxTokensExceedsMaxOutput)
}

func TestResolver_APIKeysModeRequiresStoredKey(t *testing.T) {
	f := newFixture(t, store.ModeAPIKeys, map[string]string{"openai": "sk-env"})

	// Env credentials must not apply in api-keys mode.
	_, ae := f.route(t, &providers.ChatRequest{Model: "gpt-4o"})
	mustKind(t, ae, apierr.KindNoProviderKey)
}

func TestResolver_StoredKeyPreferredInHybrid(t *testing.T) {
	f := newFixture(t, store.ModeHybrid, map[string]string{"openai": "sk-env"})
	f.store.PutProviderKey(&store.ProviderKey{
		ID:             "pk_oai",
		OrganizationID: "org_1",
		ProviderID:     "openai",
		Token:          "sk-stored",
		Status:         store.StatusActive,
	})

	rt, ae := f.route(t, &providers.ChatRequest{Model: "gpt-4o"})
	if ae != nil {
		t.Fatalf("route: %v", ae)
	}
	if rt.Credential.Token != "sk-stored" || rt.Credential.FromEnv {
		t.Fatalf("credential = %+v, want the stored key", rt.Credential)
	}
}

func TestResolver_CreditsModeNeedsPositiveBalance(t *testing.T) {
	f := newFixture(t, store.ModeCredits, map[string]string{"openai": "sk-env"})
	f.org.Credits = decimal.Zero
	f.store.PutOrganization(f.org)

	_, ae := f.route(t, &providers.ChatRequest{Model: "gpt-4o"})
	mustKind(t, ae, apierr.KindInsufficientCredits)
}
