package providers

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackzampolin/skim/internal/types"
)

func TestRegistry(t *testing.T) {
	t.Run("register and get", func(t *testing.T) {
		r := NewRegistry()
		mock := NewMockSummarizer()

		r.Register("test", mock)

		s, err := r.Get("test")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if s != mock {
			t.Error("got different summarizer than registered")
		}
	})

	t.Run("get nonexistent", func(t *testing.T) {
		r := NewRegistry()
		if _, err := r.Get("nonexistent"); err == nil {
			t.Error("expected error for nonexistent summarizer")
		}
	})

	t.Run("list and has", func(t *testing.T) {
		r := NewRegistry()
		r.Register("b", NewMockSummarizer())
		r.Register("a", NewMockSummarizer())

		list := r.List()
		if len(list) != 2 || list[0] != "a" || list[1] != "b" {
			t.Errorf("List() = %v, want [a b]", list)
		}
		if !r.Has("a") {
			t.Error("Has(a) = false")
		}
		if r.Has("c") {
			t.Error("Has(c) = true")
		}
	})

	t.Run("first registered becomes default", func(t *testing.T) {
		r := NewRegistry()
		r.Register("first", NewMockSummarizer())
		r.Register("second", NewMockSummarizer())

		if r.DefaultName() != "first" {
			t.Errorf("DefaultName() = %q, want first", r.DefaultName())
		}
		r.SetDefault("second")
		if r.Name() != "second" {
			t.Errorf("Name() = %q, want second", r.Name())
		}
	})

	t.Run("unregister", func(t *testing.T) {
		r := NewRegistry()
		r.Register("x", NewMockSummarizer())
		r.Unregister("x")
		if r.Has("x") {
			t.Error("Has(x) = true after Unregister")
		}
	})

	t.Run("summarize delegates to default", func(t *testing.T) {
		r := NewRegistry()
		first := NewMockSummarizer()
		second := NewMockSummarizer()
		second.ResponseText = "from second"
		r.Register("first", first)
		r.Register("second", second)
		r.SetDefault("second")

		result, err := r.Summarize(context.Background(), "text", 1)
		if err != nil {
			t.Fatalf("Summarize() error = %v", err)
		}
		if result.Text != "from second" {
			t.Errorf("Text = %q, want from second", result.Text)
		}
		if first.RequestCount() != 0 {
			t.Errorf("non-default summarizer was called")
		}
	})

	t.Run("summarize without default", func(t *testing.T) {
		r := NewRegistry()
		result, err := r.Summarize(context.Background(), "text", 1)
		if !errors.Is(err, types.ErrUpstream) {
			t.Fatalf("error = %v, want ErrUpstream", err)
		}
		if result == nil || result.Success {
			t.Errorf("expected failed result, got %+v", result)
		}
	})

	t.Run("concurrent access", func(t *testing.T) {
		r := NewRegistry()
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				r.Register("shared", NewMockSummarizer())
			}()
			go func() {
				defer wg.Done()
				_ = r.List()
				_, _ = r.Summarize(context.Background(), "x", 1)
			}()
		}
		wg.Wait()
	})
}

func TestRegistryReload(t *testing.T) {
	t.Run("registers enabled providers", func(t *testing.T) {
		r := NewRegistryFromConfig(RegistryConfig{
			Default: "dev",
			Providers: map[string]ProviderConfig{
				"dev":      {Type: MockName, Enabled: true},
				"disabled": {Type: MockName, Enabled: false},
				"nokey":    {Type: OpenAIName, Enabled: true},
			},
		})

		if !r.Has("dev") {
			t.Error("expected dev to be registered")
		}
		if r.Has("disabled") {
			t.Error("disabled provider should not be registered")
		}
		if r.Has("nokey") {
			t.Error("provider without API key should not be registered")
		}
		if r.DefaultName() != "dev" {
			t.Errorf("DefaultName() = %q, want dev", r.DefaultName())
		}
	})

	t.Run("unchanged config keeps instance", func(t *testing.T) {
		cfg := RegistryConfig{
			Default:   "dev",
			Providers: map[string]ProviderConfig{"dev": {Type: MockName, Enabled: true}},
		}
		r := NewRegistryFromConfig(cfg)
		before, _ := r.Get("dev")

		r.Reload(cfg)
		after, _ := r.Get("dev")
		if before != after {
			t.Error("unchanged provider was recreated")
		}
	})

	t.Run("changed config replaces instance", func(t *testing.T) {
		r := NewRegistryFromConfig(RegistryConfig{
			Providers: map[string]ProviderConfig{"dev": {Type: MockName, Model: "a", Enabled: true}},
		})
		before, _ := r.Get("dev")

		r.Reload(RegistryConfig{
			Providers: map[string]ProviderConfig{"dev": {Type: MockName, Model: "b", Enabled: true}},
		})
		after, _ := r.Get("dev")
		if before == after {
			t.Error("changed provider was not recreated")
		}
	})

	t.Run("removed providers are unregistered", func(t *testing.T) {
		r := NewRegistryFromConfig(RegistryConfig{
			Providers: map[string]ProviderConfig{
				"a": {Type: MockName, Enabled: true},
				"b": {Type: MockName, Enabled: true},
			},
		})

		r.Reload(RegistryConfig{
			Providers: map[string]ProviderConfig{"a": {Type: MockName, Enabled: true}},
		})
		if r.Has("b") {
			t.Error("b should be unregistered after reload")
		}
		if !r.Has("a") {
			t.Error("a should remain registered")
		}
	})

	t.Run("unknown type is skipped", func(t *testing.T) {
		r := NewRegistryFromConfig(RegistryConfig{
			Providers: map[string]ProviderConfig{"weird": {Type: "nope", APIKey: "k", Enabled: true}},
		})
		if r.Has("weird") {
			t.Error("unknown provider type should not be registered")
		}
	})

	t.Run("openai with key", func(t *testing.T) {
		r := NewRegistryFromConfig(RegistryConfig{
			Default:   "openai",
			Providers: map[string]ProviderConfig{"openai": {Type: OpenAIName, APIKey: "sk-test", Enabled: true}},
		})
		s, err := r.Default()
		if err != nil {
			t.Fatalf("Default() error = %v", err)
		}
		if s.Name() != OpenAIName {
			t.Errorf("Name() = %q, want openai", s.Name())
		}
	})

	t.Run("missing default", func(t *testing.T) {
		r := NewRegistryFromConfig(RegistryConfig{
			Default:   "gemini",
			Providers: map[string]ProviderConfig{"gemini": {Type: GeminiName, Enabled: true}},
		})
		if _, err := r.Default(); !errors.Is(err, types.ErrUpstream) {
			t.Errorf("Default() error = %v, want ErrUpstream", err)
		}
	})
}
