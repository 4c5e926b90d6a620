package store

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Billing modes a project can run under.
const (
	ModeAPIKeys = "api-keys"
	ModeCredits = "credits"
	ModeHybrid  = "hybrid"
)

// Retention levels controlling what the log worker persists.
const (
	RetentionFull = "full"
	RetentionNone = "none"
)

// Transaction statuses.
const (
	TxPending   = "pending"
	TxSucceeded = "succeeded"
	TxFailed    = "failed"
)

// TxTypeTopUp marks automatic credit top-up transactions.
const TxTypeTopUp = "credit_topup"

// StatusActive is the live status for api keys and provider keys.
const StatusActive = "active"

type Organization struct {
	ID                     string
	Name                   string
	Credits                decimal.Decimal
	AutoTopUpEnabled       bool
	AutoTopUpThreshold     decimal.Decimal
	AutoTopUpAmount        decimal.Decimal
	DefaultPaymentMethodID string
	Plan                   string
	CustomerID             string
	RetentionLevel         string
}

type Project struct {
	ID             string
	OrganizationID string
	Mode           string
	CachingEnabled bool
	CacheTTL       time.Duration
}

type APIKey struct {
	ID        string
	Token     string
	ProjectID string
	Status    string
}

// ProviderKey is a stored upstream credential. Custom providers are keyed by
// a user-chosen name unique within the organization.
type ProviderKey struct {
	ID             string
	OrganizationID string
	ProviderID     string
	Name           string
	Token          string
	BaseURL        string
	Status         string
}

type Transaction struct {
	ID              string
	OrganizationID  string
	Type            string
	Status          string
	BaseAmount      decimal.Decimal
	TotalFees       decimal.Decimal
	TotalAmount     decimal.Decimal
	PaymentIntentID string
	Error           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LogEntry is one row per request, created on completion (or failure,
// or cancellation). It doubles as the queue message payload.
type LogEntry struct {
	RequestID         string            `json:"requestId"`
	OrganizationID    string            `json:"organizationId"`
	ProjectID         string            `json:"projectId"`
	APIKeyID          string            `json:"apiKeyId"`
	RequestedModel    string            `json:"requestedModel"`
	UsedModel         string            `json:"usedModel"`
	RequestedProvider string            `json:"requestedProvider"`
	UsedProvider      string            `json:"usedProvider"`
	FinishReason      string            `json:"finishReason"`
	PromptTokens      int               `json:"promptTokens"`
	CompletionTokens  int               `json:"completionTokens"`
	ReasoningTokens   int               `json:"reasoningTokens"`
	CachedTokens      int               `json:"cachedTokens"`
	InputCost         decimal.Decimal   `json:"inputCost"`
	OutputCost        decimal.Decimal   `json:"outputCost"`
	CachedInputCost   decimal.Decimal   `json:"cachedInputCost"`
	RequestCost       decimal.Decimal   `json:"requestCost"`
	TotalCost         decimal.Decimal   `json:"totalCost"`
	EstimatedCost     bool              `json:"estimatedCost"`
	DurationMS        int64             `json:"durationMs"`
	ResponseSize      int               `json:"responseSize"`
	Streamed          bool              `json:"streamed"`
	Canceled          bool              `json:"canceled"`
	Cached            bool              `json:"cached"`
	StatusCode        int               `json:"statusCode"`
	ErrorType         string            `json:"errorType,omitempty"`
	ErrorMessage      string            `json:"errorMessage,omitempty"`
	Messages          json.RawMessage   `json:"messages,omitempty"`
	Content           string            `json:"content,omitempty"`
	ToolCalls         json.RawMessage   `json:"toolCalls,omitempty"`
	CustomHeaders     map[string]string `json:"customHeaders,omitempty"`
	Params            *LogParams        `json:"params,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
}

// LogParams records the generation parameters the client supplied.
type LogParams struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        *int     `json:"maxTokens,omitempty"`
	TopP             *float64 `json:"topP,omitempty"`
	FrequencyPenalty *float64 `json:"frequencyPenalty,omitempty"`
	PresencePenalty  *float64 `json:"presencePenalty,omitempty"`
	ResponseFormat   string   `json:"responseFormat,omitempty"`
	ReasoningEffort  string   `json:"reasoningEffort,omitempty"`
	Stream           bool     `json:"stream,omitempty"`
}

type Lock struct {
	Key       string
	UpdatedAt time.Time
}
