package internal

import (
	"strings"
	"testing"
)

func TestKeyNamer_Subjects(t *testing.T) {
	kn := NewKeyNamer()

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"all", kn.All(), "users:all"},
		{"count", kn.Count(), "users:count"},
		{"by id", kn.ByID("42"), "users:id:42"},
		{"by int id", kn.ByIntID(42), "users:id:42"},
		{"by email", kn.ByEmail("ann@example.com"), "users:email:ann@example.com"},
		{"by email normalised", kn.ByEmail("  Ann@Example.COM "), "users:email:ann@example.com"},
		{"missing by id", kn.MissingByID("7"), "users:missing:id:7"},
		{"missing by int id", kn.MissingByIntID(7), "users:missing:id:7"},
		{"id with separator", kn.ByID("1:email"), "users:id:1%3Aemail"},
		{"id with spaces", kn.ByID("a b"), "users:id:a%20b"},
		{"email with plus", kn.ByEmail("a+b@x.io"), "users:email:a%2Bb@x.io"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %q, want %q", tt.got, tt.expected)
			}
		})
	}
}

func TestKeyNamer_Deterministic(t *testing.T) {
	var a, b KeyNamer
	if a.ByID("99") != b.ByID("99") {
		t.Error("same subject and id must yield the same key")
	}
	if a.ByEmail("X@y.z") != b.ByEmail("x@y.z") {
		t.Error("email keys must ignore case")
	}
}

func TestKeyNamer_NoCrossSubjectCollisions(t *testing.T) {
	kn := NewKeyNamer()
	ids := []string{
		"", "all", "count", "1", "id:1", "email:1", "missing:id:1", "1:2",
		"a b", "a_b", "a+b", "a%20b", "x y@z.io", "x_y@z.io",
	}

	seen := make(map[string]string)
	add := func(label, key string) {
		if prev, ok := seen[key]; ok {
			t.Errorf("key %q produced by both %s and %s", key, prev, label)
		}
		seen[key] = label
	}

	add("All", kn.All())
	add("Count", kn.Count())
	for _, id := range ids {
		add("ByID("+id+")", kn.ByID(id))
		add("ByEmail("+id+")", kn.ByEmail(id))
		add("MissingByID("+id+")", kn.MissingByID(id))
	}

	for key := range seen {
		if !strings.HasPrefix(key, kn.Prefix()) {
			t.Errorf("key %q is outside the %q namespace", key, kn.Prefix())
		}
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", "users:id:1", false},
		{"unicode", "users:email:zoë@example.com", false},
		{"empty", "", true},
		{"spaces", "   ", true},
		{"tab", "\t", true},
		{"newline inside", "users:\nid", true},
		{"nul", "users:\x00", true},
		{"max length", strings.Repeat("k", MaxKeyLength), false},
		{"too long", strings.Repeat("k", MaxKeyLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.key)
				}
				if !IsInvalidKeyError(err) {
					t.Errorf("expected InvalidKey error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  MiXed@Case.Org\n"); got != "mixed@case.org" {
		t.Errorf("NormalizeEmail() = %q", got)
	}
}
