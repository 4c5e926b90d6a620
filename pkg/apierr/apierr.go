// Package apierr provides structured API error types and HTTP status mapping
// compatible with the OpenAI error format.
package apierr

import (
	"encoding/json"
	"fmt"

	"github.com/valyala/fasthttp"
)

// Kind identifies a terminal failure class. Each kind carries a fixed HTTP
// status, error type, and error code.
type Kind string

const (
	KindAuthMissing               Kind = "auth_missing"
	KindAuthMalformed             Kind = "auth_malformed"
	KindAuthInvalid               Kind = "auth_invalid"
	KindUnsupportedModel          Kind = "unsupported_model"
	KindModelProviderPrefix       Kind = "model_provider_prefix_required"
	KindProviderUnsupported       Kind = "provider_unsupported"
	KindCustomProviderNotFound    Kind = "custom_provider_not_found"
	KindModelDeactivated          Kind = "model_deactivated"
	KindJSONOutputUnsupported     Kind = "json_output_unsupported"
	KindReasoningUnsupported      Kind = "reasoning_unsupported"
	KindStreamingUnsupported      Kind = "streaming_unsupported"
	KindMaxTokensExceedsMaxOutput Kind = "max_tokens_exceeds_max_output"
	KindNoProviderKey             Kind = "no_provider_key"
	KindNoProviderEnv             Kind = "no_provider_env"
	KindCustomInCreditsMode       Kind = "custom_in_credits_mode"
	KindInsufficientCredits       Kind = "insufficient_credits"
	KindNoAvailableProvider       Kind = "no_available_provider"
	KindUpstreamHTTP              Kind = "upstream_http_error"
	KindUpstreamTransport         Kind = "upstream_transport_error"
	KindClientCanceled            Kind = "request_canceled"
	KindInvalidRequest            Kind = "invalid_request"
	KindInternal                  Kind = "internal_error"
)

// ErrorType constants (OpenAI-compatible "type" field values).
const (
	TypeInvalidRequest    = "invalid_request_error"
	TypeAuthenticationErr = "authentication_error"
	TypeInsufficientQuota = "insufficient_quota"
	TypeUpstreamError     = "upstream_error"
	TypeGatewayError      = "gateway_error"
	TypeServerError       = "server_error"
)

// kindMeta maps a Kind to its wire representation.
var kindMeta = map[Kind]struct {
	status int
	typ    string
	code   string
}{
	KindAuthMissing:               {fasthttp.StatusUnauthorized, TypeAuthenticationErr, "missing_authorization"},
	KindAuthMalformed:             {fasthttp.StatusUnauthorized, TypeAuthenticationErr, "malformed_authorization"},
	KindAuthInvalid:               {fasthttp.StatusUnauthorized, TypeAuthenticationErr, "invalid_api_key"},
	KindUnsupportedModel:          {fasthttp.StatusBadRequest, TypeInvalidRequest, "unsupported_model"},
	KindModelProviderPrefix:       {fasthttp.StatusBadRequest, TypeInvalidRequest, "model_provider_prefix_required"},
	KindProviderUnsupported:       {fasthttp.StatusBadRequest, TypeInvalidRequest, "provider_unsupported"},
	KindCustomProviderNotFound:    {fasthttp.StatusBadRequest, TypeInvalidRequest, "custom_provider_not_found"},
	KindModelDeactivated:          {fasthttp.StatusGone, TypeInvalidRequest, "model_deactivated"},
	KindJSONOutputUnsupported:     {fasthttp.StatusBadRequest, TypeInvalidRequest, "json_output_unsupported"},
	KindReasoningUnsupported:      {fasthttp.StatusBadRequest, TypeInvalidRequest, "reasoning_unsupported"},
	KindStreamingUnsupported:      {fasthttp.StatusBadRequest, TypeInvalidRequest, "streaming_unsupported"},
	KindMaxTokensExceedsMaxOutput: {fasthttp.StatusBadRequest, TypeInvalidRequest, "max_tokens_exceeds_max_output"},
	KindNoProviderKey:             {fasthttp.StatusBadRequest, TypeInvalidRequest, "no_provider_key"},
	KindNoProviderEnv:             {fasthttp.StatusBadRequest, TypeInvalidRequest, "no_provider_env"},
	KindCustomInCreditsMode:       {fasthttp.StatusBadRequest, TypeInvalidRequest, "custom_in_credits_mode"},
	KindInsufficientCredits:       {fasthttp.StatusPaymentRequired, TypeInsufficientQuota, "insufficient_credits"},
	KindNoAvailableProvider:       {fasthttp.StatusBadRequest, TypeInvalidRequest, "no_available_provider"},
	KindUpstreamHTTP:              {fasthttp.StatusInternalServerError, TypeGatewayError, "upstream_error"},
	KindUpstreamTransport:         {fasthttp.StatusInternalServerError, TypeGatewayError, "upstream_transport_error"},
	KindClientCanceled:            {fasthttp.StatusBadRequest, TypeInvalidRequest, "request_canceled"},
	KindInvalidRequest:            {fasthttp.StatusBadRequest, TypeInvalidRequest, "invalid_request"},
	KindInternal:                  {fasthttp.StatusInternalServerError, TypeServerError, "internal_error"},
}

// Error is the structured error surfaced to clients. The optional routing
// fields are populated once the router has resolved (or failed to resolve)
// a concrete provider/model pair.
type Error struct {
	Kind    Kind    `json:"-"`
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Param   *string `json:"param"`
	Code    string  `json:"code"`

	RequestedProvider string `json:"requestedProvider,omitempty"`
	UsedProvider      string `json:"usedProvider,omitempty"`
	RequestedModel    string `json:"requestedModel,omitempty"`
	UsedModel         string `json:"usedModel,omitempty"`
	ResponseText      string `json:"responseText,omitempty"`

	status int
}

type envelope struct {
	Error *Error `json:"error"`
}

// New builds an Error of the given kind. Unknown kinds map to KindInternal.
func New(kind Kind, message string) *Error {
	m, ok := kindMeta[kind]
	if !ok {
		m = kindMeta[KindInternal]
	}
	return &Error{
		Kind:    kind,
		Message: message,
		Type:    m.typ,
		Code:    m.code,
		status:  m.status,
	}
}

// Newf is New with fmt.Sprintf formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Upstream builds an upstream HTTP failure. Status ≥ 500 maps to
// type="upstream_error"; anything else to type="gateway_error". The gateway
// always answers 500 for upstream failures on the non-streaming path.
func Upstream(upstreamStatus int, responseText string) *Error {
	e := New(KindUpstreamHTTP, fmt.Sprintf("upstream returned status %d", upstreamStatus))
	if upstreamStatus >= 500 {
		e.Type = TypeUpstreamError
	} else {
		e.Type = TypeGatewayError
	}
	e.ResponseText = responseText
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatus returns the HTTP status code for the error.
func (e *Error) HTTPStatus() int {
	if e.status == 0 {
		return fasthttp.StatusInternalServerError
	}
	return e.status
}

// WithRoute annotates the error with the requested/used provider and model.
// Empty values are left unset so they are omitted from the JSON envelope.
func (e *Error) WithRoute(requestedProvider, usedProvider, requestedModel, usedModel string) *Error {
	e.RequestedProvider = requestedProvider
	e.UsedProvider = usedProvider
	e.RequestedModel = requestedModel
	e.UsedModel = usedModel
	return e
}

// Write writes the error as JSON to the fasthttp response.
func Write(ctx *fasthttp.RequestCtx, e *Error) {
	ctx.SetStatusCode(e.HTTPStatus())
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(envelope{Error: e})
	ctx.SetBody(body)
}

// Body returns the JSON envelope without writing it, for SSE error events.
func Body(e *Error) []byte {
	body, _ := json.Marshal(envelope{Error: e})
	return body
}
