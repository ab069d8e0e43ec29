package httpapi

import (
	"testing"
	"time"
)

func TestSetModelsTimeout_DefaultWhenNonPositive(t *testing.T) {
	SetModelsTimeout(-1)
	if modelsTimeout != 10*time.Second {
		t.Fatalf("expected default, got %s", modelsTimeout)
	}
	SetModelsTimeout(3 * time.Second)
	if modelsTimeout != 3*time.Second {
		t.Fatalf("expected 3s, got %s", modelsTimeout)
	}
	SetModelsTimeout(0)
}

func TestSetCORSOptions_Copies(t *testing.T) {
	origins := []string{"https://a.example"}
	SetCORSOptions(true, origins, nil, nil)
	defer SetCORSOptions(false, nil, nil, nil)
	origins[0] = "mutated"
	if !corsEnabled || corsAllowedOrigins[0] != "https://a.example" {
		t.Fatalf("enabled=%v origins=%v", corsEnabled, corsAllowedOrigins)
	}
}
