package catalog

import (
	"testing"
	"time"
)

func TestNewValidates(t *testing.T) {
	c := New()
	if len(c.Models()) == 0 || len(c.Providers()) == 0 {
		t.Fatal("default catalog is empty")
	}
}

func TestLookupModel(t *testing.T) {
	c := New()

	m := c.LookupModel("gpt-4o-mini")
	if m == nil || m.ID != "gpt-4o-mini" {
		t.Fatalf("LookupModel = %+v", m)
	}
	if c.LookupModel("nope") != nil {
		t.Fatal("unknown id must return nil")
	}
}

func TestLookupModelByProviderModelName(t *testing.T) {
	c := New()

	m := c.LookupModelByProviderModelName("claude-3-5-haiku-20241022")
	if m == nil || m.ID != "claude-3-5-haiku" {
		t.Fatalf("lookup by native name = %+v", m)
	}
}

func TestEndpoint(t *testing.T) {
	c := New()

	oai := c.FindProvider("openai")
	if got := Endpoint(oai, "gpt-4o", false); got != "https://api.openai.com/v1/chat/completions" {
		t.Fatalf("openai endpoint = %q", got)
	}
	// No stream path defined: the chat path serves both.
	if got := Endpoint(oai, "gpt-4o", true); got != "https://api.openai.com/v1/chat/completions" {
		t.Fatalf("openai stream endpoint = %q", got)
	}

	goog := c.FindProvider("google-ai-studio")
	want := "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-flash:generateContent"
	if got := Endpoint(goog, "gemini-2.5-flash", false); got != want {
		t.Fatalf("google endpoint = %q", got)
	}
	wantStream := "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-flash:streamGenerateContent"
	if got := Endpoint(goog, "gemini-2.5-flash", true); got != wantStream {
		t.Fatalf("google stream endpoint = %q", got)
	}
}

func TestPriceFor_Tiers(t *testing.T) {
	c := New()

	low := c.PriceFor("gemini-2.5-pro", "google-ai-studio", 100_000)
	high := c.PriceFor("gemini-2.5-pro", "google-ai-studio", 500_000)
	if low == nil || high == nil {
		t.Fatal("tiered lookups returned nil")
	}
	if !high.InputPrice.GreaterThan(low.InputPrice) {
		t.Fatalf("long-context tier must cost more: %s vs %s", high.InputPrice, low.InputPrice)
	}

	// The vertex mapping has no tiers; prompt size must not matter.
	flatA := c.PriceFor("gemini-2.5-pro", "google-vertex", 100_000)
	flatB := c.PriceFor("gemini-2.5-pro", "google-vertex", 500_000)
	if !flatA.InputPrice.Equal(flatB.InputPrice) {
		t.Fatal("untiered mapping must price flat")
	}

	if c.PriceFor("gpt-4o", "anthropic", 0) != nil {
		t.Fatal("unknown mapping must return nil")
	}
}

func TestLifecycleDates(t *testing.T) {
	c := New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if !c.IsDeprecated("gpt-4-turbo", now) {
		t.Fatal("gpt-4-turbo must be deprecated")
	}
	if c.IsDeactivated("gpt-4-turbo", now) {
		t.Fatal("gpt-4-turbo is deprecated but not deactivated")
	}
	if !c.IsDeactivated("gpt-3.5-turbo", now) {
		t.Fatal("gpt-3.5-turbo must be deactivated")
	}

	before := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if c.IsDeprecated("gpt-4-turbo", before) {
		t.Fatal("deprecation must not apply before its date")
	}
}

func TestCapabilities(t *testing.T) {
	c := New()

	if !c.JSONOutputSupported("gpt-4o") {
		t.Fatal("gpt-4o supports json output")
	}
	if c.JSONOutputSupported("sonar") {
		t.Fatal("sonar does not support json output")
	}
	if !c.ReasoningSupported("o3-mini") {
		t.Fatal("o3-mini supports reasoning")
	}
	if c.ReasoningSupported("gpt-4o-mini") {
		t.Fatal("gpt-4o-mini does not support reasoning")
	}
	if !c.StreamingSupported("gpt-4o", "openai") {
		t.Fatal("gpt-4o streams on openai")
	}
}

func TestProvidersDeclareFamilies(t *testing.T) {
	known := map[string]bool{
		FamilyOpenAI: true, FamilyAnthropic: true, FamilyGoogle: true, FamilyMistral: true,
	}
	for _, p := range New().Providers() {
		if p.ID == MetaProviderID {
			continue
		}
		if !known[p.Family] {
			t.Errorf("provider %s has unknown family %q", p.ID, p.Family)
		}
	}
}
