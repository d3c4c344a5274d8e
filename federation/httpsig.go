package federation

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// RequestTarget is the pseudo-header covering method and path.
const RequestTarget = "(request-target)"

var (
	// ErrUnparseableSignature marks a Signature header missing one of
	// keyId, headers or signature.
	ErrUnparseableSignature = errors.New("unparseable signature header")

	// ErrInvalidSignature marks any cryptographic mismatch. It carries
	// no detail on purpose.
	ErrInvalidSignature = errors.New("invalid signature")
)

// BuildSigningString computes the canonical string that gets signed:
// one lower-cased "name: value" line per header, in the caller's order.
// The (request-target) pseudo-header renders as
// "<lowercased-method> <path>[?query]". Repeated headers are
// comma-joined in their original order.
func BuildSigningString(method, pathAndQuery string, headerNames []string, headers http.Header) []byte {
	lines := make([]string, 0, len(headerNames))
	for _, name := range headerNames {
		lower := strings.ToLower(name)
		if lower == RequestTarget {
			lines = append(lines, fmt.Sprintf("%s: %s %s", RequestTarget, strings.ToLower(method), pathAndQuery))
			continue
		}
		lines = append(lines, lower+": "+strings.Join(headers.Values(name), ", "))
	}
	return []byte(strings.Join(lines, "\n"))
}

// SignSigningString signs the message with RSA-SHA256 (PKCS#1 v1.5) and
// returns the base64-encoded signature.
func SignSigningString(msg []byte, privateKey *rsa.PrivateKey) (string, error) {
	digest := sha256.Sum256(msg)
	sig, err := rsa.SignPKCS1v15(rand.Reader, privateKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifySigningString checks a base64 signature over the message.
func VerifySigningString(msg []byte, signature string, publicKey *rsa.PublicKey) error {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}
	digest := sha256.Sum256(msg)
	if err := rsa.VerifyPKCS1v15(publicKey, crypto.SHA256, digest[:], sig); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

// Digest computes the Digest header value for a request body.
func Digest(body []byte) string {
	hash := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])
}

// SignatureHeader is the parsed form of a Signature header value.
type SignatureHeader struct {
	KeyId     string
	Algorithm string
	Headers   []string
	Signature string
}

func (h *SignatureHeader) String() string {
	algorithm := h.Algorithm
	if algorithm == "" {
		algorithm = "rsa-sha256"
	}
	return fmt.Sprintf(`keyId=%q,algorithm=%q,headers=%q,signature=%q`,
		h.KeyId, algorithm, strings.Join(h.Headers, " "), h.Signature)
}

// ParseSignatureHeader parses `keyId="...",headers="...",signature="..."`.
// Unknown parameters are ignored; a missing required field yields
// ErrUnparseableSignature.
func ParseSignatureHeader(value string) (*SignatureHeader, error) {
	h := &SignatureHeader{}
	for _, part := range strings.Split(value, ",") {
		key, val, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		val = strings.Trim(val, `"`)
		switch key {
		case "keyId":
			h.KeyId = val
		case "algorithm":
			h.Algorithm = val
		case "headers":
			h.Headers = strings.Fields(val)
		case "signature":
			h.Signature = val
		}
	}

	if h.KeyId == "" || len(h.Headers) == 0 || h.Signature == "" {
		return nil, ErrUnparseableSignature
	}
	return h, nil
}

// ParsePrivateKey converts a PEM string to *rsa.PrivateKey
func ParsePrivateKey(pemString string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return privateKey, nil
}

// ParsePublicKey converts a PEM string to *rsa.PublicKey
func ParsePublicKey(pemString string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaPubKey, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}

	return rsaPubKey, nil
}
