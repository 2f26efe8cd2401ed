package response

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/conduit-lang/datarest/internal/rest/dispatch"
	"github.com/conduit-lang/datarest/internal/rest/repository"
)

const (
	// MediaTypeJSON is the default representation
	MediaTypeJSON = "application/json"
	// MediaTypeCBOR is the binary representation
	MediaTypeCBOR = "application/cbor"
)

// pageBody is the representation of a repository.Page
type pageBody struct {
	Content []repository.Entity `json:"content"`
	Page    pageInfo            `json:"page"`
}

type pageInfo struct {
	Size          int   `json:"size"`
	Number        int   `json:"number"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

// Negotiate picks JSON or CBOR from an Accept header. CBOR is chosen only
// when it is preferred over JSON.
func Negotiate(accept string) string {
	if accept == "" {
		return MediaTypeJSON
	}

	jsonQ, cborQ := -1.0, -1.0
	for _, part := range strings.Split(accept, ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}

		q := 1.0
		if raw, ok := params["q"]; ok {
			if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
				q = parsed
			}
		}

		switch {
		case mediaType == MediaTypeCBOR:
			cborQ = max(cborQ, q)
		case mediaType == MediaTypeJSON, strings.HasSuffix(mediaType, "+json"),
			mediaType == "*/*", mediaType == "application/*":
			jsonQ = max(jsonQ, q)
		}
	}

	if cborQ > 0 && cborQ > jsonQ {
		return MediaTypeCBOR
	}
	return MediaTypeJSON
}

// Encode marshals a body in the given media type
func Encode(mediaType string, body any) ([]byte, error) {
	if page, ok := body.(repository.Page); ok {
		content := page.Content
		if content == nil {
			content = []repository.Entity{}
		}
		body = pageBody{
			Content: content,
			Page: pageInfo{
				Size:          page.Size,
				Number:        page.Number,
				TotalElements: page.TotalElements,
				TotalPages:    page.TotalPages(),
			},
		}
	}

	if mediaType == MediaTypeCBOR {
		return cbor.Marshal(body)
	}
	return json.Marshal(body)
}

// Write renders a dispatcher response. The body is encoded before anything
// is written so an encoding failure can still become a 500.
func Write(w http.ResponseWriter, r *http.Request, resp dispatch.Response) error {
	resp.Headers.WriteTo(w.Header())

	if !resp.HasBody() || r.Method == http.MethodHead ||
		resp.Status == http.StatusNoContent || resp.Status == http.StatusNotModified {
		w.WriteHeader(resp.Status)
		return nil
	}

	mediaType := Negotiate(r.Header.Get("Accept"))
	data, err := Encode(mediaType, resp.Body)
	if err != nil {
		return fmt.Errorf("encode %s body: %w", mediaType, err)
	}

	contentType := mediaType
	if mediaType == MediaTypeJSON {
		contentType += "; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.Status)
	_, err = w.Write(data)
	return err
}

// JSON writes v as a JSON response
func JSON(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}
