package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// defaultProviders is the static provider table. Prices live on the model
// mappings, not here.
var defaultProviders = []*Provider{
	{
		ID: "openai", Name: "OpenAI",
		BaseURL: "https://api.openai.com", ChatPath: "/v1/chat/completions",
		AuthScheme: AuthBearer, EnvKey: "OPENAI_API_KEY",
		Family: FamilyOpenAI, CancelSafe: true,
	},
	{
		ID: "anthropic", Name: "Anthropic",
		BaseURL: "https://api.anthropic.com", ChatPath: "/v1/messages",
		AuthScheme: AuthHeader, AuthHeader: "x-api-key",
		ExtraHeaders: map[string]string{"anthropic-version": "2023-06-01"},
		EnvKey:       "ANTHROPIC_API_KEY",
		Family:       FamilyAnthropic, CancelSafe: true,
	},
	{
		ID: "google-ai-studio", Name: "Google AI Studio",
		BaseURL:    "https://generativelanguage.googleapis.com",
		ChatPath:   "/v1beta/models/{model}:generateContent",
		StreamPath: "/v1beta/models/{model}:streamGenerateContent",
		AuthScheme: AuthQuery, AuthParam: "key",
		EnvKey: "GOOGLE_AI_STUDIO_API_KEY",
		Family: FamilyGoogle, CancelSafe: true,
	},
	{
		ID: "google-vertex", Name: "Google Vertex AI",
		BaseURL:    "https://aiplatform.googleapis.com",
		ChatPath:   "/v1/publishers/google/models/{model}:generateContent",
		StreamPath: "/v1/publishers/google/models/{model}:streamGenerateContent",
		AuthScheme: AuthBearer, EnvKey: "GOOGLE_VERTEX_API_KEY",
		Family: FamilyGoogle, CancelSafe: true,
	},
	{
		ID: "mistral", Name: "Mistral",
		BaseURL: "https://api.mistral.ai", ChatPath: "/v1/chat/completions",
		AuthScheme: AuthBearer, EnvKey: "MISTRAL_API_KEY",
		Family: FamilyMistral, CancelSafe: true,
	},
	{
		ID: "deepseek", Name: "DeepSeek",
		BaseURL: "https://api.deepseek.com", ChatPath: "/v1/chat/completions",
		AuthScheme: AuthBearer, EnvKey: "DEEPSEEK_API_KEY",
		Family: FamilyOpenAI, CancelSafe: true,
	},
	{
		ID: "perplexity", Name: "Perplexity",
		BaseURL: "https://api.perplexity.ai", ChatPath: "/chat/completions",
		AuthScheme: AuthBearer, EnvKey: "PERPLEXITY_API_KEY",
		Family: FamilyOpenAI, CancelSafe: true,
	},
	{
		ID: "groq", Name: "Groq",
		BaseURL: "https://api.groq.com", ChatPath: "/openai/v1/chat/completions",
		AuthScheme: AuthBearer, EnvKey: "GROQ_API_KEY",
		Family: FamilyOpenAI, CancelSafe: true,
	},
	{
		ID: "together", Name: "Together AI",
		BaseURL: "https://api.together.xyz", ChatPath: "/v1/chat/completions",
		AuthScheme: AuthBearer, EnvKey: "TOGETHER_API_KEY",
		Family: FamilyOpenAI, CancelSafe: true,
	},
	{
		ID: "inference", Name: "Inference.net",
		BaseURL: "https://api.inference.net", ChatPath: "/v1/chat/completions",
		AuthScheme: AuthBearer, EnvKey: "INFERENCE_API_KEY",
		Family: FamilyOpenAI, CancelSafe: true,
	},
	{
		ID: "alibaba", Name: "Alibaba Cloud",
		BaseURL: "https://dashscope-intl.aliyuncs.com", ChatPath: "/compatible-mode/v1/chat/completions",
		AuthScheme: AuthBearer, EnvKey: "ALIBABA_API_KEY",
		Family: FamilyOpenAI, CancelSafe: false,
	},
	{
		ID: "xai", Name: "xAI",
		BaseURL: "https://api.x.ai", ChatPath: "/v1/chat/completions",
		AuthScheme: AuthBearer, EnvKey: "XAI_API_KEY",
		Family: FamilyOpenAI, CancelSafe: true,
	},
	{
		ID: "moonshot", Name: "Moonshot AI",
		BaseURL: "https://api.moonshot.ai", ChatPath: "/v1/chat/completions",
		AuthScheme: AuthBearer, EnvKey: "MOONSHOT_API_KEY",
		Family: FamilyOpenAI, CancelSafe: false,
	},
	{
		ID: "meta", Name: "Meta",
		BaseURL: "https://api.llama.com", ChatPath: "/compat/v1/chat/completions",
		AuthScheme: AuthBearer, EnvKey: "META_API_KEY",
		Family: FamilyOpenAI, CancelSafe: true,
	},
	{
		// Operator-defined OpenAI-compatible endpoints. BaseURL comes from the
		// stored provider-key definition at routing time.
		ID: CustomProviderID, Name: "Custom",
		ChatPath:   "/chat/completions",
		AuthScheme: AuthBearer,
		Family:     FamilyOpenAI, CancelSafe: true,
	},
	{
		// Internal meta-provider for "auto"/"custom" model routing. Never a
		// dispatch target and excluded from credits-mode availability.
		ID: MetaProviderID, Name: "LLM Gateway",
		Family: FamilyOpenAI,
	},
}

// defaultModels is the static model table. Declared order matters: "auto"
// routing picks the first non-deprecated model with an available provider.
// Prices are written per million tokens.
var defaultModels = []*Model{
	{
		ID: "gpt-4o-mini", JSONOutput: true,
		Mappings: []ProviderMapping{{
			ProviderID: "openai", ModelName: "gpt-4o-mini",
			InputPrice: price("0.15"), OutputPrice: price("0.60"), CachedInputPrice: price("0.075"),
			ContextSize: 128_000, MaxOutput: 16_384,
			Streaming: true, Vision: true,
		}},
	},
	{
		ID: "gpt-4o", JSONOutput: true,
		Mappings: []ProviderMapping{{
			ProviderID: "openai", ModelName: "gpt-4o",
			InputPrice: price("2.50"), OutputPrice: price("10.00"), CachedInputPrice: price("1.25"),
			ContextSize: 128_000, MaxOutput: 16_384,
			Streaming: true, Vision: true,
		}},
	},
	{
		ID: "o3-mini", JSONOutput: true,
		Mappings: []ProviderMapping{{
			ProviderID: "openai", ModelName: "o3-mini",
			InputPrice: price("1.10"), OutputPrice: price("4.40"), CachedInputPrice: price("0.55"),
			ContextSize: 200_000, MaxOutput: 100_000,
			Streaming: true, Reasoning: true,
		}},
	},
	{
		ID: "gpt-4-turbo", JSONOutput: true,
		DeprecatedAt: tsPtr(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)),
		Mappings: []ProviderMapping{{
			ProviderID: "openai", ModelName: "gpt-4-turbo",
			InputPrice: price("10.00"), OutputPrice: price("30.00"),
			ContextSize: 128_000, MaxOutput: 4_096,
			Streaming: true, Vision: true,
		}},
	},
	{
		ID:           "gpt-3.5-turbo",
		DeprecatedAt: tsPtr(time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)),
		DeactivatedAt: tsPtr(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
		Mappings: []ProviderMapping{{
			ProviderID: "openai", ModelName: "gpt-3.5-turbo",
			InputPrice: price("0.50"), OutputPrice: price("1.50"),
			ContextSize: 16_385, MaxOutput: 4_096,
			Streaming: true,
		}},
	},
	{
		ID: "claude-opus-4-0", JSONOutput: true,
		Mappings: []ProviderMapping{{
			ProviderID: "anthropic", ModelName: "claude-opus-4-0",
			InputPrice: price("15.00"), OutputPrice: price("75.00"), CachedInputPrice: price("1.50"),
			ContextSize: 200_000, MaxOutput: 32_000,
			Streaming: true, Vision: true, Reasoning: true,
		}},
	},
	{
		ID: "claude-sonnet-4-0", JSONOutput: true,
		Mappings: []ProviderMapping{{
			ProviderID: "anthropic", ModelName: "claude-sonnet-4-0",
			InputPrice: price("3.00"), OutputPrice: price("15.00"), CachedInputPrice: price("0.30"),
			ContextSize: 200_000, MaxOutput: 64_000,
			Streaming: true, Vision: true, Reasoning: true,
		}},
	},
	{
		ID: "claude-3-5-haiku", JSONOutput: true,
		Mappings: []ProviderMapping{{
			ProviderID: "anthropic", ModelName: "claude-3-5-haiku-20241022",
			InputPrice: price("0.80"), OutputPrice: price("4.00"), CachedInputPrice: price("0.08"),
			ContextSize: 200_000, MaxOutput: 8_192,
			Streaming: true,
		}},
	},
	{
		ID: "gemini-2.5-flash", JSONOutput: true,
		Mappings: []ProviderMapping{
			{
				ProviderID: "google-ai-studio", ModelName: "gemini-2.5-flash",
				InputPrice: price("0.30"), OutputPrice: price("2.50"), CachedInputPrice: price("0.075"),
				ContextSize: 1_048_576, MaxOutput: 65_536,
				Streaming: true, Vision: true, Reasoning: true,
			},
			{
				ProviderID: "google-vertex", ModelName: "gemini-2.5-flash",
				InputPrice: price("0.30"), OutputPrice: price("2.50"), CachedInputPrice: price("0.075"),
				ContextSize: 1_048_576, MaxOutput: 65_536,
				Streaming: true, Vision: true, Reasoning: true,
			},
		},
	},
	{
		ID: "gemini-2.5-pro", JSONOutput: true,
		Mappings: []ProviderMapping{
			{
				ProviderID: "google-ai-studio", ModelName: "gemini-2.5-pro",
				InputPrice: price("1.25"), OutputPrice: price("10.00"), CachedInputPrice: price("0.31"),
				Tiers: []PriceTier{
					{MinContextSize: 0, MaxContextSize: 200_000, InputPrice: price("1.25"), OutputPrice: price("10.00")},
					{MinContextSize: 200_001, MaxContextSize: 1_048_576, InputPrice: price("2.50"), OutputPrice: price("15.00")},
				},
				ContextSize: 1_048_576, MaxOutput: 65_536,
				Streaming: true, Vision: true, Reasoning: true,
			},
			{
				ProviderID: "google-vertex", ModelName: "gemini-2.5-pro",
				InputPrice: price("1.25"), OutputPrice: price("10.00"), CachedInputPrice: price("0.31"),
				ContextSize: 1_048_576, MaxOutput: 65_536,
				Streaming: true, Vision: true, Reasoning: true,
			},
		},
	},
	{
		ID: "mistral-large", JSONOutput: true,
		Mappings: []ProviderMapping{{
			ProviderID: "mistral", ModelName: "mistral-large-latest",
			InputPrice: price("2.00"), OutputPrice: price("6.00"),
			ContextSize: 128_000, MaxOutput: 8_192,
			Streaming: true,
		}},
	},
	{
		ID: "mistral-small", JSONOutput: true,
		Mappings: []ProviderMapping{{
			ProviderID: "mistral", ModelName: "mistral-small-latest",
			InputPrice: price("0.10"), OutputPrice: price("0.30"),
			ContextSize: 32_000, MaxOutput: 8_192,
			Streaming: true,
		}},
	},
	{
		ID: "deepseek-chat", JSONOutput: true,
		Mappings: []ProviderMapping{{
			ProviderID: "deepseek", ModelName: "deepseek-chat",
			InputPrice: price("0.27"), OutputPrice: price("1.10"), CachedInputPrice: price("0.07"),
			ContextSize: 64_000, MaxOutput: 8_192,
			Streaming: true,
		}},
	},
	{
		ID: "deepseek-reasoner",
		Mappings: []ProviderMapping{{
			ProviderID: "deepseek", ModelName: "deepseek-reasoner",
			InputPrice: price("0.55"), OutputPrice: price("2.19"), CachedInputPrice: price("0.14"),
			ContextSize: 64_000, MaxOutput: 64_000,
			Streaming: true, Reasoning: true,
		}},
	},
	{
		ID: "sonar",
		Mappings: []ProviderMapping{{
			ProviderID: "perplexity", ModelName: "sonar",
			InputPrice: price("1.00"), OutputPrice: price("1.00"),
			RequestPrice: decimal.RequireFromString("0.005"),
			ContextSize:  127_000, MaxOutput: 8_192,
			Streaming: true,
		}},
	},
	{
		ID: "llama-3.3-70b",
		Mappings: []ProviderMapping{
			{
				ProviderID: "groq", ModelName: "llama-3.3-70b-versatile",
				InputPrice: price("0.59"), OutputPrice: price("0.79"),
				ContextSize: 128_000, MaxOutput: 32_768,
				Streaming: true,
			},
			{
				ProviderID: "together", ModelName: "meta-llama/Llama-3.3-70B-Instruct-Turbo",
				InputPrice: price("0.88"), OutputPrice: price("0.88"),
				ContextSize: 128_000, MaxOutput: 4_096,
				Streaming: true,
			},
			{
				ProviderID: "meta", ModelName: "Llama-3.3-70B-Instruct",
				InputPrice: price("0.72"), OutputPrice: price("0.72"),
				ContextSize: 128_000, MaxOutput: 8_192,
				Streaming: true,
			},
		},
	},
	{
		ID: "llama-3.1-8b",
		Mappings: []ProviderMapping{
			{
				ProviderID: "groq", ModelName: "llama-3.1-8b-instant",
				InputPrice: price("0.05"), OutputPrice: price("0.08"),
				ContextSize: 128_000, MaxOutput: 8_192,
				Streaming: true,
			},
			{
				ProviderID: "inference", ModelName: "meta-llama/llama-3.1-8b-instruct/fp-16",
				InputPrice: price("0.03"), OutputPrice: price("0.05"),
				ContextSize: 128_000, MaxOutput: 8_192,
				Streaming: true,
			},
		},
	},
	{
		ID: "grok-2",
		Mappings: []ProviderMapping{{
			ProviderID: "xai", ModelName: "grok-2-1212",
			InputPrice: price("2.00"), OutputPrice: price("10.00"),
			ContextSize: 131_072, MaxOutput: 8_192,
			Streaming: true,
		}},
	},
	{
		ID: "grok-3", JSONOutput: true,
		Mappings: []ProviderMapping{{
			ProviderID: "xai", ModelName: "grok-3",
			InputPrice: price("3.00"), OutputPrice: price("15.00"), CachedInputPrice: price("0.75"),
			ContextSize: 131_072, MaxOutput: 16_384,
			Streaming: true, Reasoning: true,
		}},
	},
	{
		ID: "qwen-max", JSONOutput: true,
		Mappings: []ProviderMapping{{
			ProviderID: "alibaba", ModelName: "qwen-max",
			InputPrice: price("1.60"), OutputPrice: price("6.40"),
			ContextSize: 32_768, MaxOutput: 8_192,
			Streaming: true,
		}},
	},
	{
		ID: "kimi-k2",
		Mappings: []ProviderMapping{{
			ProviderID: "moonshot", ModelName: "kimi-k2-0711-preview",
			InputPrice: price("0.55"), OutputPrice: price("2.21"), CachedInputPrice: price("0.15"),
			ContextSize: 131_072, MaxOutput: 16_384,
			Streaming: true,
		}},
	},
}
