package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Namespace returns the key prefix shared by every cached response of a
// resource
func Namespace(resource string) string {
	return "collection:" + resource + ":"
}

// Key returns the cache key of a collection request. Query parameters are
// sorted so equivalent requests share a key, and the Accept header is part
// of the key because it selects the representation.
func Key(resource string, r *http.Request) string {
	parts := []string{r.URL.Path}

	if r.URL.RawQuery != "" {
		query := r.URL.Query()
		queryParts := make([]string, 0, len(query))
		for key, values := range query {
			for _, value := range values {
				queryParts = append(queryParts, key+"="+value)
			}
		}
		sort.Strings(queryParts)
		parts = append(parts, strings.Join(queryParts, "&"))
	}

	if accept := r.Header.Get("Accept"); accept != "" {
		parts = append(parts, "accept="+accept)
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return Namespace(resource) + hex.EncodeToString(hash[:16])
}

// generationKey lives outside Namespace so DeletePrefix leaves it in place
func generationKey(resource string) string {
	return "generation:" + resource
}

// Generation returns the current cache generation of a resource. Responses
// are stored under the generation read before rendering, so a write that
// races an invalidation lands under a generation nobody reads again.
func Generation(ctx context.Context, c Cache, resource string) (string, error) {
	data, err := c.Get(ctx, generationKey(resource))
	if err != nil {
		if IsCacheMiss(err) {
			return "0", nil
		}
		return "", err
	}
	return string(data), nil
}

// NextGeneration moves a resource to a fresh cache generation. The marker
// never expires.
func NextGeneration(ctx context.Context, c Cache, resource string) error {
	return c.Set(ctx, generationKey(resource), []byte(uuid.NewString()), -1)
}
