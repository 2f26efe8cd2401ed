package request

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/datarest/internal/rest"
	"github.com/conduit-lang/datarest/internal/rest/repository"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantErr     error
	}{
		{name: "json", contentType: "application/json", body: `{"name":"x"}`},
		{name: "json with charset", contentType: "application/json; charset=utf-8", body: `{"name":"x"}`},
		{name: "no content type", contentType: "", body: `{"name":"x"}`},
		{name: "vendor json", contentType: "application/hal+json", body: `{"name":"x"}`},
		{name: "empty body", contentType: "application/json", body: "", wantErr: rest.ErrInvalidPayload},
		{name: "whitespace body", contentType: "application/json", body: "  \n", wantErr: rest.ErrInvalidPayload},
		{name: "malformed", contentType: "application/json", body: `{"name":`, wantErr: rest.ErrInvalidPayload},
		{name: "trailing value", contentType: "application/json", body: `{"name":"x"} {}`, wantErr: rest.ErrInvalidPayload},
		{name: "form", contentType: "application/x-www-form-urlencoded", body: "name=x", wantErr: rest.ErrUnsupportedMediaType},
		{name: "bad content type", contentType: "application/", body: `{}`, wantErr: rest.ErrUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/widgets", strings.NewReader(tt.body))
			if tt.contentType != "" {
				r.Header.Set("Content-Type", tt.contentType)
			}

			doc := repository.NewDocument()
			err := NewParser().Parse(httptest.NewRecorder(), r, doc)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "x", doc.Attributes["name"])
		})
	}
}

func TestParseCBOR(t *testing.T) {
	payload, err := cbor.Marshal(map[string]any{"name": "x", "size": 3})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPut, "/api/widgets/1", bytes.NewReader(payload))
	r.Header.Set("Content-Type", MediaTypeCBOR)

	doc := repository.NewDocument()
	require.NoError(t, NewParser().Parse(httptest.NewRecorder(), r, doc))
	assert.Equal(t, "x", doc.Attributes["name"])
}

func TestParseRejectsOversizedBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/widgets", strings.NewReader(`{"name":"`+strings.Repeat("x", 64)+`"}`))
	r.Header.Set("Content-Type", MediaTypeJSON)

	err := NewParserWithMaxSize(16).Parse(httptest.NewRecorder(), r, repository.NewDocument())
	assert.ErrorIs(t, err, rest.ErrInvalidPayload)
	assert.Contains(t, err.Error(), "exceeds 16 bytes")
}

func TestNewParserWithMaxSizeDefaults(t *testing.T) {
	assert.Equal(t, int64(DefaultMaxBodySize), NewParserWithMaxSize(0).MaxBodySize())
	assert.Equal(t, int64(512), NewParserWithMaxSize(512).MaxBodySize())
}
