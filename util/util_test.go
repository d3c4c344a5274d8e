package util

import (
	"strings"
	"testing"
)

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	if version == "" {
		t.Error("Version should not be empty")
	}
	if strings.TrimSpace(version) != version {
		t.Error("Version should be trimmed")
	}
}

func TestGetNameAndVersion(t *testing.T) {
	nameAndVersion := GetNameAndVersion()
	if !strings.HasPrefix(nameAndVersion, Name) {
		t.Errorf("Expected prefix %q, got %q", Name, nameAndVersion)
	}
}

func TestNormalizeInput(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"hello\nworld", "hello world"},
		{"<script>alert(1)</script>", "&lt;script&gt;alert(1)&lt;/script&gt;"},
		{"plain", "plain"},
	}

	for _, tc := range cases {
		if got := NormalizeInput(tc.in); got != tc.want {
			t.Errorf("NormalizeInput(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestGeneratePemKeypair(t *testing.T) {
	pair := GeneratePemKeypair()

	if !strings.Contains(pair.Private, "RSA PRIVATE KEY") {
		t.Error("Private key should be PEM encoded PKCS1")
	}
	if !strings.Contains(pair.Public, "PUBLIC KEY") {
		t.Error("Public key should be PEM encoded PKIX")
	}
	if pair.Private == pair.Public {
		t.Error("Keys should differ")
	}
}

func TestDateTimeFormat(t *testing.T) {
	format := DateTimeFormat()
	expected := "2006-01-02 15:04:05 CEST"

	if format != expected {
		t.Errorf("Expected format %q, got %q", expected, format)
	}
}
