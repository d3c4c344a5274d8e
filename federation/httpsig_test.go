package federation

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"strings"
	"testing"

	"github.com/gomphodon/gomphodon/util"
)

func testKeypair(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	return key
}

func TestBuildSigningString(t *testing.T) {
	headers := http.Header{}
	headers.Set("Host", "example.com")
	headers.Set("Date", "Mon, 01 Sep 2025 12:00:00 GMT")
	headers.Set("Digest", "SHA-256=abc")

	msg := BuildSigningString("POST", "/users/alice/inbox", []string{RequestTarget, "host", "date", "digest"}, headers)

	expected := "(request-target): post /users/alice/inbox\n" +
		"host: example.com\n" +
		"date: Mon, 01 Sep 2025 12:00:00 GMT\n" +
		"digest: SHA-256=abc"

	if string(msg) != expected {
		t.Errorf("Signing string mismatch:\ngot:\n%s\nwant:\n%s", msg, expected)
	}
}

func TestBuildSigningStringRepeatedHeaders(t *testing.T) {
	headers := http.Header{}
	headers.Add("X-Custom", "one")
	headers.Add("X-Custom", "two")

	msg := BuildSigningString("GET", "/", []string{"x-custom"}, headers)

	if string(msg) != "x-custom: one, two" {
		t.Errorf("Expected comma-joined repeated headers, got %q", msg)
	}
}

func TestBuildSigningStringIncludesQuery(t *testing.T) {
	msg := BuildSigningString("GET", "/outbox?page=2", []string{RequestTarget}, http.Header{})

	if string(msg) != "(request-target): get /outbox?page=2" {
		t.Errorf("Expected query in request target, got %q", msg)
	}
}

func TestDigest(t *testing.T) {
	// SHA-256 of the empty string
	got := Digest([]byte{})
	want := "SHA-256=47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU="

	if got != want {
		t.Errorf("Digest mismatch: got %q, want %q", got, want)
	}
}

func TestParseSignatureHeader(t *testing.T) {
	value := `keyId="https://example.com/users/alice#main-key",algorithm="rsa-sha256",headers="(request-target) host date",signature="c2ln"`

	sig, err := ParseSignatureHeader(value)
	if err != nil {
		t.Fatalf("Unexpected parse error: %v", err)
	}

	if sig.KeyId != "https://example.com/users/alice#main-key" {
		t.Errorf("Wrong keyId: %q", sig.KeyId)
	}
	if sig.Algorithm != "rsa-sha256" {
		t.Errorf("Wrong algorithm: %q", sig.Algorithm)
	}
	if len(sig.Headers) != 3 || sig.Headers[0] != "(request-target)" {
		t.Errorf("Wrong headers: %v", sig.Headers)
	}
	if sig.Signature != "c2ln" {
		t.Errorf("Wrong signature: %q", sig.Signature)
	}
}

func TestParseSignatureHeaderIgnoresUnknownParams(t *testing.T) {
	value := `keyId="k",created="123",headers="date",signature="c2ln"`

	sig, err := ParseSignatureHeader(value)
	if err != nil {
		t.Fatalf("Unexpected parse error: %v", err)
	}
	if sig.KeyId != "k" || sig.Signature != "c2ln" {
		t.Errorf("Parsed fields wrong: %+v", sig)
	}
}

func TestParseSignatureHeaderMissingFields(t *testing.T) {
	cases := []string{
		``,
		`algorithm="rsa-sha256"`,
		`keyId="k",headers="date"`,
		`keyId="k",signature="c2ln"`,
		`headers="date",signature="c2ln"`,
	}

	for _, value := range cases {
		if _, err := ParseSignatureHeader(value); err != ErrUnparseableSignature {
			t.Errorf("Expected ErrUnparseableSignature for %q, got %v", value, err)
		}
	}
}

func TestSignatureHeaderRoundTrip(t *testing.T) {
	original := &SignatureHeader{
		KeyId:     "https://example.com/users/alice#main-key",
		Headers:   []string{"(request-target)", "host", "date"},
		Signature: "c2lnbmF0dXJl",
	}

	parsed, err := ParseSignatureHeader(original.String())
	if err != nil {
		t.Fatalf("Failed to parse rendered header: %v", err)
	}

	if parsed.KeyId != original.KeyId {
		t.Errorf("KeyId changed: %q", parsed.KeyId)
	}
	if parsed.Algorithm != "rsa-sha256" {
		t.Errorf("Expected default algorithm, got %q", parsed.Algorithm)
	}
	if strings.Join(parsed.Headers, " ") != strings.Join(original.Headers, " ") {
		t.Errorf("Headers changed: %v", parsed.Headers)
	}
	if parsed.Signature != original.Signature {
		t.Errorf("Signature changed: %q", parsed.Signature)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	key := testKeypair(t)
	msg := []byte("(request-target): post /inbox\nhost: example.com")

	sig, err := SignSigningString(msg, key)
	if err != nil {
		t.Fatalf("Failed to sign: %v", err)
	}

	if err := VerifySigningString(msg, sig, &key.PublicKey); err != nil {
		t.Errorf("Verification of valid signature failed: %v", err)
	}
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	key := testKeypair(t)
	msg := []byte("(request-target): post /inbox\nhost: example.com")

	sig, err := SignSigningString(msg, key)
	if err != nil {
		t.Fatalf("Failed to sign: %v", err)
	}

	tampered := []byte("(request-target): post /inbox\nhost: evil.com")
	if err := VerifySigningString(tampered, sig, &key.PublicKey); err != ErrInvalidSignature {
		t.Errorf("Expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRejectsGarbageBase64(t *testing.T) {
	key := testKeypair(t)

	if err := VerifySigningString([]byte("msg"), "not base64!!!", &key.PublicKey); err != ErrInvalidSignature {
		t.Errorf("Expected ErrInvalidSignature, got %v", err)
	}
}

func TestParsePemKeys(t *testing.T) {
	pair := util.GeneratePemKeypair()

	privateKey, err := ParsePrivateKey(pair.Private)
	if err != nil {
		t.Fatalf("Failed to parse private key: %v", err)
	}

	publicKey, err := ParsePublicKey(pair.Public)
	if err != nil {
		t.Fatalf("Failed to parse public key: %v", err)
	}

	if privateKey.PublicKey.N.Cmp(publicKey.N) != 0 {
		t.Error("Parsed public key does not match the private key")
	}
}

func TestParseKeysRejectGarbage(t *testing.T) {
	if _, err := ParsePrivateKey("not a pem"); err == nil {
		t.Error("Expected error for invalid private key PEM")
	}
	if _, err := ParsePublicKey("not a pem"); err == nil {
		t.Error("Expected error for invalid public key PEM")
	}
}
