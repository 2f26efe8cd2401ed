// Package request reads entity payloads from request bodies.
package request

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/conduit-lang/datarest/internal/rest"
)

// Media types accepted for entity payloads
const (
	MediaTypeJSON = "application/json"
	MediaTypeCBOR = "application/cbor"
)

// DefaultMaxBodySize bounds request bodies unless configured otherwise
const DefaultMaxBodySize = 10 << 20

// Parser handles parsing of HTTP request bodies
type Parser struct {
	maxBodySize int64
}

// NewParser creates a new request parser with default settings
func NewParser() *Parser {
	return &Parser{maxBodySize: DefaultMaxBodySize}
}

// NewParserWithMaxSize creates a parser with a custom max body size. A
// non-positive size uses the default.
func NewParserWithMaxSize(maxBytes int64) *Parser {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	return &Parser{maxBodySize: maxBytes}
}

// MaxBodySize returns the body limit in bytes
func (p *Parser) MaxBodySize() int64 {
	return p.maxBodySize
}

// ReadBody reads the whole request body within the size limit
func (p *Parser) ReadBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, p.maxBodySize)
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, rest.InvalidPayload(fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return nil, rest.InvalidPayload(err)
	}
	return body, nil
}

// Parse decodes the request body into target based on Content-Type. An
// absent content type is read as JSON.
func (p *Parser) Parse(w http.ResponseWriter, r *http.Request, target any) error {
	mediaType, err := MediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return err
	}

	body, err := p.ReadBody(w, r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return rest.InvalidPayload(errors.New("request body is empty"))
	}

	switch mediaType {
	case MediaTypeCBOR:
		if err := cbor.Unmarshal(body, target); err != nil {
			return rest.InvalidPayload(fmt.Errorf("invalid CBOR: %w", err))
		}
		return nil
	default:
		return decodeJSON(body, target)
	}
}

func decodeJSON(body []byte, target any) error {
	decoder := json.NewDecoder(bytes.NewReader(body))
	if err := decoder.Decode(target); err != nil {
		return rest.InvalidPayload(fmt.Errorf("invalid JSON: %w", err))
	}

	if decoder.More() {
		return rest.InvalidPayload(errors.New("request body contains multiple JSON values"))
	}
	return nil
}

// MediaType resolves the payload media type of a Content-Type header. JSON
// and any +json type read as JSON; other types are unsupported.
func MediaType(contentType string) (string, error) {
	if strings.TrimSpace(contentType) == "" {
		return MediaTypeJSON, nil
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("content type %q: %w", contentType, rest.ErrUnsupportedMediaType)
	}

	switch {
	case mediaType == MediaTypeCBOR:
		return MediaTypeCBOR, nil
	case mediaType == MediaTypeJSON, strings.HasSuffix(mediaType, "+json"):
		return MediaTypeJSON, nil
	default:
		return "", fmt.Errorf("content type %q: %w", mediaType, rest.ErrUnsupportedMediaType)
	}
}
