// Package catalog holds the static tables of upstream providers and models:
// endpoints, auth schemes, capabilities, prices, and lifecycle dates.
//
// The catalog is read-only after New — all lookups are safe for concurrent
// use with no locking.
package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AuthScheme selects how the upstream credential is transmitted.
type AuthScheme string

const (
	// AuthBearer sends "Authorization: Bearer <token>".
	AuthBearer AuthScheme = "bearer"
	// AuthHeader sends the token in a provider-specific header (AuthHeader field).
	AuthHeader AuthScheme = "header"
	// AuthQuery appends the token as a URL query parameter (AuthParam field).
	AuthQuery AuthScheme = "query"
)

// Response families. Every provider speaks one of these wire dialects.
const (
	FamilyOpenAI    = "openai"
	FamilyAnthropic = "anthropic"
	FamilyGoogle    = "google"
	FamilyMistral   = "mistral"
)

// MetaProviderID is the internal meta-provider used for "auto" and "custom"
// routing. It never appears as a dispatch target.
const MetaProviderID = "llmgateway"

// CustomProviderID is the internal id under which operator-defined
// OpenAI-compatible endpoints are dispatched.
const CustomProviderID = "custom"

// Provider describes one upstream endpoint.
type Provider struct {
	ID   string
	Name string

	// BaseURL plus ChatPath/StreamPath form the chat-completion endpoint.
	// Paths may contain the "{model}" placeholder (Google-style URLs).
	BaseURL    string
	ChatPath   string
	StreamPath string

	AuthScheme AuthScheme
	AuthHeader string // header name when AuthScheme == AuthHeader
	AuthParam  string // query parameter when AuthScheme == AuthQuery

	// ExtraHeaders are protocol headers sent on every request (e.g. the
	// Anthropic API version header).
	ExtraHeaders map[string]string

	// EnvKey names the environment variable holding the platform credential.
	EnvKey string

	// Family is the response dialect: openai | anthropic | google | mistral.
	Family string

	// CancelSafe reports whether an in-flight streaming request may be
	// aborted when the client disconnects.
	CancelSafe bool
}

// PriceTier is a context-size-dependent price override.
type PriceTier struct {
	MinContextSize int
	MaxContextSize int
	InputPrice     decimal.Decimal
	OutputPrice    decimal.Decimal
}

// ProviderMapping binds a canonical model to one provider's native name,
// prices, and capability flags.
type ProviderMapping struct {
	ProviderID string
	ModelName  string

	// Per-token prices in USD. Zero means free / not billed for that bucket.
	InputPrice       decimal.Decimal
	OutputPrice      decimal.Decimal
	CachedInputPrice decimal.Decimal
	ImagePrice       decimal.Decimal
	RequestPrice     decimal.Decimal

	// Tiers, when present, override the flat prices for prompts whose token
	// count falls inside [MinContextSize, MaxContextSize].
	Tiers []PriceTier

	ContextSize int
	MaxOutput   int

	Streaming bool
	Vision    bool
	Reasoning bool
}

// Model is a canonical model definition with its ordered provider mappings.
type Model struct {
	ID            string
	JSONOutput    bool
	DeprecatedAt  *time.Time
	DeactivatedAt *time.Time
	Mappings      []ProviderMapping
}

// Price is the result of a pricing lookup: either a matched tier or the
// mapping's flat prices.
type Price struct {
	InputPrice       decimal.Decimal
	OutputPrice      decimal.Decimal
	CachedInputPrice decimal.Decimal
	RequestPrice     decimal.Decimal
}

// Catalog indexes the provider and model tables.
type Catalog struct {
	providers     map[string]*Provider
	models        map[string]*Model
	modelOrder    []string
	byNativeName  map[string]*Model
	nativeNameSet map[string]string // provider model name -> provider id (first declared)
}

// New builds the default catalog from the static tables and validates the
// cross-references. It panics on table inconsistencies since those are
// programmer errors caught at startup.
func New() *Catalog {
	c, err := build(defaultProviders, defaultModels)
	if err != nil {
		panic(fmt.Sprintf("catalog: %v", err))
	}
	return c
}

func build(provs []*Provider, models []*Model) (*Catalog, error) {
	c := &Catalog{
		providers:     make(map[string]*Provider, len(provs)),
		models:        make(map[string]*Model, len(models)),
		byNativeName:  make(map[string]*Model),
		nativeNameSet: make(map[string]string),
	}

	for _, p := range provs {
		if _, dup := c.providers[p.ID]; dup {
			return nil, fmt.Errorf("duplicate provider id %q", p.ID)
		}
		c.providers[p.ID] = p
	}

	for _, m := range models {
		if _, dup := c.models[m.ID]; dup {
			return nil, fmt.Errorf("duplicate model id %q", m.ID)
		}
		if len(m.Mappings) == 0 {
			return nil, fmt.Errorf("model %q has no provider mappings", m.ID)
		}
		for _, pm := range m.Mappings {
			if _, ok := c.providers[pm.ProviderID]; !ok {
				return nil, fmt.Errorf("model %q references unknown provider %q", m.ID, pm.ProviderID)
			}
			if _, seen := c.byNativeName[pm.ModelName]; !seen {
				c.byNativeName[pm.ModelName] = m
				c.nativeNameSet[pm.ModelName] = pm.ProviderID
			}
		}
		c.models[m.ID] = m
		c.modelOrder = append(c.modelOrder, m.ID)
	}

	return c, nil
}

// LookupModel returns the model with the given canonical id, or nil.
func (c *Catalog) LookupModel(id string) *Model {
	return c.models[id]
}

// LookupModelByProviderModelName returns the model that lists name as one of
// its provider-native model names, or nil.
func (c *Catalog) LookupModelByProviderModelName(name string) *Model {
	return c.byNativeName[name]
}

// FindProvider returns the provider with the given id, or nil.
func (c *Catalog) FindProvider(id string) *Provider {
	return c.providers[id]
}

// Providers returns every registered provider in unspecified order.
func (c *Catalog) Providers() []*Provider {
	out := make([]*Provider, 0, len(c.providers))
	for _, p := range c.providers {
		out = append(out, p)
	}
	return out
}

// Models returns the canonical model ids in declared order.
func (c *Catalog) Models() []string {
	return c.modelOrder
}

// Mapping returns the mapping of model onto providerID, or nil.
func (c *Catalog) Mapping(modelID, providerID string) *ProviderMapping {
	m := c.models[modelID]
	if m == nil {
		return nil
	}
	for i := range m.Mappings {
		if m.Mappings[i].ProviderID == providerID {
			return &m.Mappings[i]
		}
	}
	return nil
}

// StreamingSupported reports whether (model, provider) supports streaming.
func (c *Catalog) StreamingSupported(modelID, providerID string) bool {
	pm := c.Mapping(modelID, providerID)
	return pm != nil && pm.Streaming
}

// ReasoningSupported reports whether any provider mapping of the model is
// reasoning-capable.
func (c *Catalog) ReasoningSupported(modelID string) bool {
	m := c.models[modelID]
	if m == nil {
		return false
	}
	for _, pm := range m.Mappings {
		if pm.Reasoning {
			return true
		}
	}
	return false
}

// JSONOutputSupported reports whether the model supports
// response_format=json_object.
func (c *Catalog) JSONOutputSupported(modelID string) bool {
	m := c.models[modelID]
	return m != nil && m.JSONOutput
}

// IsDeactivated reports whether the model is past its deactivation date.
func (c *Catalog) IsDeactivated(modelID string, now time.Time) bool {
	m := c.models[modelID]
	return m != nil && m.DeactivatedAt != nil && !m.DeactivatedAt.After(now)
}

// IsDeprecated reports whether the model is past its deprecation date.
func (c *Catalog) IsDeprecated(modelID string, now time.Time) bool {
	m := c.models[modelID]
	return m != nil && m.DeprecatedAt != nil && !m.DeprecatedAt.After(now)
}

// PriceFor returns the pricing for (model, provider) given the prompt token
// count. The tier whose [min,max] range contains contextSize wins; otherwise
// the flat mapping prices apply. Returns nil when the mapping is unknown.
func (c *Catalog) PriceFor(modelID, providerID string, contextSize int) *Price {
	pm := c.Mapping(modelID, providerID)
	if pm == nil {
		return nil
	}
	for _, t := range pm.Tiers {
		if contextSize >= t.MinContextSize && contextSize <= t.MaxContextSize {
			return &Price{
				InputPrice:       t.InputPrice,
				OutputPrice:      t.OutputPrice,
				CachedInputPrice: pm.CachedInputPrice,
				RequestPrice:     pm.RequestPrice,
			}
		}
	}
	return &Price{
		InputPrice:       pm.InputPrice,
		OutputPrice:      pm.OutputPrice,
		CachedInputPrice: pm.CachedInputPrice,
		RequestPrice:     pm.RequestPrice,
	}
}

// Endpoint builds the chat-completion URL for a provider and native model
// name. Streaming requests may use a distinct path template (Google).
func Endpoint(p *Provider, modelName string, stream bool) string {
	path := p.ChatPath
	if stream && p.StreamPath != "" {
		path = p.StreamPath
	}
	path = strings.ReplaceAll(path, "{model}", modelName)
	return strings.TrimSuffix(p.BaseURL, "/") + path
}

// price converts a per-million-token USD amount into a per-token decimal.
// Tables are written per million tokens for readability.
func price(perMillion string) decimal.Decimal {
	return decimal.RequireFromString(perMillion).Div(decimal.NewFromInt(1_000_000))
}

func tsPtr(t time.Time) *time.Time { return &t }
