package federation

import (
	"crypto/rsa"
	"net/http"
	"time"
)

// SignRequest signs an outgoing HTTP request with the given private key.
// Date and Host are set if missing, a Digest header is attached when a
// body is present, and the Signature header covers
// (request-target) host date [digest].
// keyId format: "https://example.com/users/alice#main-key"
func SignRequest(req *http.Request, body []byte, privateKey *rsa.PrivateKey, keyId string) error {
	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	if req.Header.Get("Host") == "" {
		req.Header.Set("Host", req.URL.Host)
	}

	headerNames := []string{RequestTarget, "host", "date"}
	if body != nil {
		req.Header.Set("Digest", Digest(body))
		headerNames = append(headerNames, "digest")
	}

	msg := BuildSigningString(req.Method, requestPath(req.URL.Path, req.URL.RawQuery), headerNames, req.Header)
	sig, err := SignSigningString(msg, privateKey)
	if err != nil {
		return err
	}

	header := &SignatureHeader{KeyId: keyId, Headers: headerNames, Signature: sig}
	req.Header.Set("Signature", header.String())
	return nil
}

func requestPath(path, rawQuery string) string {
	if rawQuery != "" {
		return path + "?" + rawQuery
	}
	return path
}
