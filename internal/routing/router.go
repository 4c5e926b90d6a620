package routing

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dban0001/llmgateway/internal/catalog"
	"github.com/dban0001/llmgateway/internal/providers"
	"github.com/dban0001/llmgateway/internal/providers/registry"
	"github.com/dban0001/llmgateway/internal/store"
	"github.com/dban0001/llmgateway/pkg/apierr"
)

// Route is a fully resolved dispatch target.
type Route struct {
	Provider *catalog.Provider
	Family   providers.Family

	// ModelID is the canonical catalog id; empty for opaque custom models.
	ModelID string
	// ModelName is the provider-native model name sent upstream.
	ModelName string
	Mapping   *catalog.ProviderMapping

	Credential *Credential

	// RequestedProvider is the provider prefix the caller supplied, if any.
	RequestedProvider string
}

// Endpoint returns the upstream URL for this route.
func (rt *Route) Endpoint(stream bool) string {
	if rt.Credential != nil && rt.Credential.BaseURL != "" {
		return strings.TrimSuffix(rt.Credential.BaseURL, "/") + rt.Provider.ChatPath
	}
	return catalog.Endpoint(rt.Provider, rt.ModelName, stream)
}

// Router maps a requested model string to a Route under the project's
// billing mode, then applies the capability gates.
type Router struct {
	cat      *catalog.Catalog
	resolver *Resolver
	now      func() time.Time
}

func NewRouter(cat *catalog.Catalog, resolver *Resolver) *Router {
	return &Router{cat: cat, resolver: resolver, now: time.Now}
}

// Route resolves the requested model. Resolution rules run in order: auto,
// custom, provider/model prefix, canonical id, provider-native name, unknown.
func (r *Router) Route(ctx context.Context, req *providers.ChatRequest, project *store.Project, org *store.Organization) (*Route, error) {
	m := strings.TrimSpace(req.Model)

	var (
		route *Route
		err   error
	)
	switch {
	case m == "auto":
		route, err = r.routeAuto(ctx, project, org)
	case m == "custom":
		route, err = r.routeCustom(ctx, project, org, "custom", m)
	case strings.Contains(m, "/"):
		route, err = r.routePrefixed(ctx, project, org, m)
	default:
		route, err = r.routeBare(ctx, project, org, m)
	}
	if err != nil {
		return nil, err
	}

	if err := r.applyGates(req, route); err != nil {
		return nil, err
	}
	return route, nil
}

// routeAuto walks the catalog in declared order and picks the first
// non-deprecated model with an available provider mapping. No qualifying
// model is an error, not a blind default: a route the caller has no
// credentials for would fail downstream anyway.
func (r *Router) routeAuto(ctx context.Context, project *store.Project, org *store.Organization) (*Route, error) {
	avail, err := r.resolver.available(ctx, project, org)
	if err != nil {
		return nil, apierr.New(apierr.KindInternal, "failed to list available providers")
	}

	now := r.now()
	for _, id := range r.cat.Models() {
		if r.cat.IsDeprecated(id, now) || r.cat.IsDeactivated(id, now) {
			continue
		}
		model := r.cat.LookupModel(id)
		for i := range model.Mappings {
			pm := &model.Mappings[i]
			if !avail[pm.ProviderID] {
				continue
			}
			return r.finish(ctx, project, org, model.ID, pm, "")
		}
	}
	return nil, apierr.New(apierr.KindNoAvailableProvider,
		"no provider is available for automatic routing; configure a provider API key or enable credits")
}

// routeCustom targets a stored custom-provider definition by name.
func (r *Router) routeCustom(ctx context.Context, project *store.Project, org *store.Organization, name, modelName string) (*Route, error) {
	cred, err := r.resolver.ResolveCustom(ctx, project, org, name)
	if err != nil {
		return nil, err
	}
	prov := r.cat.FindProvider(catalog.CustomProviderID)
	family, ferr := registry.FamilyFor(prov.Family)
	if ferr != nil {
		return nil, apierr.New(apierr.KindInternal, ferr.Error())
	}
	return &Route{
		Provider:          prov,
		Family:            family,
		ModelName:         modelName,
		Credential:        cred,
		RequestedProvider: name,
	}, nil
}

// routePrefixed handles "provider/model" and "customName/model" forms.
func (r *Router) routePrefixed(ctx context.Context, project *store.Project, org *store.Organization, m string) (*Route, error) {
	prefix, suffix, _ := strings.Cut(m, "/")

	prov := r.cat.FindProvider(prefix)
	if prov == nil {
		// Unknown prefix: a per-org custom provider name.
		return r.routeCustom(ctx, project, org, prefix, suffix)
	}

	model := r.cat.LookupModel(suffix)
	if model == nil {
		model = r.cat.LookupModelByProviderModelName(suffix)
	}
	if model == nil {
		return nil, apierr.Newf(apierr.KindUnsupportedModel,
			"model %q is not supported", suffix)
	}
	pm := r.cat.Mapping(model.ID, prov.ID)
	if pm == nil {
		return nil, apierr.Newf(apierr.KindProviderUnsupported,
			"model %q is not available on provider %q", model.ID, prov.ID)
	}
	route, err := r.finish(ctx, project, org, model.ID, pm, prov.ID)
	if err != nil {
		return nil, err
	}
	return route, nil
}

// routeBare handles a bare canonical model id.
func (r *Router) routeBare(ctx context.Context, project *store.Project, org *store.Organization, m string) (*Route, error) {
	model := r.cat.LookupModel(m)
	if model == nil {
		if r.cat.LookupModelByProviderModelName(m) != nil {
			return nil, apierr.Newf(apierr.KindModelProviderPrefix,
				"model %q must be requested as provider/model", m)
		}
		return nil, apierr.Newf(apierr.KindUnsupportedModel,
			"model %q is not supported", m)
	}

	if len(model.Mappings) == 1 {
		return r.finish(ctx, project, org, model.ID, &model.Mappings[0], "")
	}

	avail, err := r.resolver.available(ctx, project, org)
	if err != nil {
		return nil, apierr.New(apierr.KindInternal, "failed to list available providers")
	}
	var best *catalog.ProviderMapping
	var bestPrice decimal.Decimal
	for i := range model.Mappings {
		pm := &model.Mappings[i]
		if !avail[pm.ProviderID] {
			continue
		}
		price := pm.InputPrice.Add(pm.OutputPrice)
		if best == nil || price.LessThan(bestPrice) {
			best, bestPrice = pm, price
		}
	}
	if best == nil {
		return nil, apierr.Newf(apierr.KindNoAvailableProvider,
			"no available provider for model %q", m)
	}
	return r.finish(ctx, project, org, model.ID, best, "")
}

// finish resolves the credential and builds the Route for a catalog mapping.
func (r *Router) finish(ctx context.Context, project *store.Project, org *store.Organization, modelID string, pm *catalog.ProviderMapping, requestedProvider string) (*Route, error) {
	prov := r.cat.FindProvider(pm.ProviderID)
	cred, err := r.resolver.Resolve(ctx, project, org, pm.ProviderID)
	if err != nil {
		return nil, err
	}
	family, ferr := registry.FamilyFor(prov.Family)
	if ferr != nil {
		return nil, apierr.New(apierr.KindInternal, ferr.Error())
	}
	return &Route{
		Provider:          prov,
		Family:            family,
		ModelID:           modelID,
		ModelName:         pm.ModelName,
		Mapping:           pm,
		Credential:        cred,
		RequestedProvider: requestedProvider,
	}, nil
}

// applyGates enforces the model's capability limits for this request.
// Opaque custom routes have no catalog entry and skip capability gating.
func (r *Router) applyGates(req *providers.ChatRequest, route *Route) error {
	if route.ModelID == "" {
		return nil
	}

	if r.cat.IsDeactivated(route.ModelID, r.now()) {
		return apierr.Newf(apierr.KindModelDeactivated,
			"model %q has been deactivated", route.ModelID)
	}
	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object" &&
		!r.cat.JSONOutputSupported(route.ModelID) {
		return apierr.Newf(apierr.KindJSONOutputUnsupported,
			"model %q does not support json_object response format", route.ModelID)
	}
	if req.ReasoningEffort != "" && !r.cat.ReasoningSupported(route.ModelID) {
		return apierr.Newf(apierr.KindReasoningUnsupported,
			"model %q does not support reasoning_effort", route.ModelID)
	}
	if req.Stream && !r.cat.StreamingSupported(route.ModelID, route.Provider.ID) {
		return apierr.Newf(apierr.KindStreamingUnsupported,
			"model %q does not support streaming on provider %q", route.ModelID, route.Provider.ID)
	}
	if req.MaxTokens != nil && route.Mapping != nil && route.Mapping.MaxOutput > 0 &&
		*req.MaxTokens > route.Mapping.MaxOutput {
		return apierr.Newf(apierr.KindMaxTokensExceedsMaxOutput,
			"max_tokens %d exceeds the model limit of %d", *req.MaxTokens, route.Mapping.MaxOutput)
	}
	return nil
}
