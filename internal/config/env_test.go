// FILE: internal/config/env_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func TestGetEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("TK_TEST_MISSING", "")
	if got := getEnv("TK_TEST_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("getEnv = %q, want fallback", got)
	}
	t.Setenv("TK_TEST_PRESENT", "value")
	if got := getEnv("TK_TEST_PRESENT", "fallback"); got != "value" {
		t.Fatalf("getEnv = %q, want value", got)
	}
}

func TestGetEnvFloatInvalidFallsBackToDefault(t *testing.T) {
	t.Setenv("TK_TEST_FLOAT", "not-a-number")
	if got := getEnvFloat("TK_TEST_FLOAT", 1.5); got != 1.5 {
		t.Fatalf("getEnvFloat = %v, want default 1.5", got)
	}
	t.Setenv("TK_TEST_FLOAT", "2.25")
	if got := getEnvFloat("TK_TEST_FLOAT", 1.5); got != 2.25 {
		t.Fatalf("getEnvFloat = %v, want 2.25", got)
	}
}

func TestGetEnvDecimalInvalidFallsBackToDefault(t *testing.T) {
	def := decimal.NewFromInt(10)
	t.Setenv("TK_TEST_DECIMAL", "garbage")
	if got := getEnvDecimal("TK_TEST_DECIMAL", def); !got.Equal(def) {
		t.Fatalf("getEnvDecimal = %s, want default %s", got, def)
	}
	t.Setenv("TK_TEST_DECIMAL", "3.14")
	if got := getEnvDecimal("TK_TEST_DECIMAL", def); got.String() != "3.14" {
		t.Fatalf("getEnvDecimal = %s, want 3.14", got)
	}
}

func TestGetEnvBoolVariants(t *testing.T) {
	truthy := []string{"1", "true", "TRUE", "y", "yes"}
	for _, v := range truthy {
		t.Setenv("TK_TEST_BOOL", v)
		if !getEnvBool("TK_TEST_BOOL", false) {
			t.Fatalf("getEnvBool(%q) = false, want true", v)
		}
	}
	falsy := []string{"0", "false", "n", "no"}
	for _, v := range falsy {
		t.Setenv("TK_TEST_BOOL", v)
		if getEnvBool("TK_TEST_BOOL", true) {
			t.Fatalf("getEnvBool(%q) = true, want false", v)
		}
	}
	t.Setenv("TK_TEST_BOOL", "nonsense")
	if !getEnvBool("TK_TEST_BOOL", true) {
		t.Fatal("getEnvBool with unrecognized value should fall back to default")
	}
}

func TestGetEnvIntInvalidFallsBackToDefault(t *testing.T) {
	t.Setenv("TK_TEST_INT", "abc")
	if got := getEnvInt("TK_TEST_INT", 7); got != 7 {
		t.Fatalf("getEnvInt = %d, want default 7", got)
	}
	t.Setenv("TK_TEST_INT", "42")
	if got := getEnvInt("TK_TEST_INT", 7); got != 42 {
		t.Fatalf("getEnvInt = %d, want 42", got)
	}
}

// LoadDotEnv only injects allowlisted keys, strips quotes and trailing
// comments, skips blank/comment lines, and never overrides a variable
// already present in the process environment.
func TestLoadDotEnvAllowlistAndPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	content := "" +
		"# a comment line\n" +
		"\n" +
		"ANCHOR_SYMBOL=\"BTC-USD\"\n" +
		"LEVERAGE=5 # inline comment\n" +
		"NOT_ALLOWLISTED=should-be-ignored\n" +
		"export TRADED_SYMBOL=ETH-USD\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	t.Setenv("TRADED_SYMBOL", "already-set")
	os.Unsetenv("ANCHOR_SYMBOL")
	os.Unsetenv("LEVERAGE")
	os.Unsetenv("NOT_ALLOWLISTED")

	LoadDotEnv()

	if got := os.Getenv("ANCHOR_SYMBOL"); got != "BTC-USD" {
		t.Fatalf("ANCHOR_SYMBOL = %q, want BTC-USD (quotes stripped)", got)
	}
	if got := os.Getenv("LEVERAGE"); got != "5" {
		t.Fatalf("LEVERAGE = %q, want 5 (inline comment stripped)", got)
	}
	if got := os.Getenv("NOT_ALLOWLISTED"); got != "" {
		t.Fatalf("NOT_ALLOWLISTED = %q, want unset (not in allowlist)", got)
	}
	if got := os.Getenv("TRADED_SYMBOL"); got != "already-set" {
		t.Fatalf("TRADED_SYMBOL = %q, want already-set to survive (no override)", got)
	}
}
