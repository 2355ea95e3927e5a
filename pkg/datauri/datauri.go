// Package datauri splits base64 data URIs of the form data:<mime>;base64,<payload>.
package datauri

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DefaultMIME is assumed when a payload carries no header
const DefaultMIME = "image/jpeg"

// Split returns the MIME type and base64 payload of s. A bare payload without a
// data-URI header is returned as-is with DefaultMIME.
func Split(s string) (mime, payload string) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return DefaultMIME, s
	}

	header, payload, found := strings.Cut(s, ",")
	if !found {
		return DefaultMIME, ""
	}

	mime = strings.TrimPrefix(header, "data:")
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	if mime == "" {
		mime = DefaultMIME
	}
	return mime, payload
}

// Decode returns the raw bytes behind a data URI or bare base64 payload
func Decode(s string) ([]byte, error) {
	_, payload := Split(s)
	if payload == "" {
		return nil, fmt.Errorf("empty image payload")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// some encoders drop the padding
		if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); rawErr == nil {
			return raw, nil
		}
		return nil, fmt.Errorf("decode base64 image: %w", err)
	}
	return data, nil
}

// Encode builds a data URI for data
func Encode(mime string, data []byte) string {
	if mime == "" {
		mime = DefaultMIME
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
