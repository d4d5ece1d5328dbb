// Package httpreader implements the HTTP Stream Reader for the in_process
// provider identity: a single HTTP streaming call to the Anthropic Messages
// API, normalized into chatrun.StreamEvent values.
package httpreader

import (
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	domainchatrun "chatrun/internal/domain/services/chatrun"
)

// Reader implements domainchatrun.Reader against the Anthropic Messages API.
type Reader struct {
	client *anthropic.Client
}

// NewReader creates an Anthropic-backed Reader. baseURL is optional; an
// empty value uses the SDK's default.
func NewReader(apiKey, baseURL string) (*Reader, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &Reader{client: &client}, nil
}

// SupportsModel reports whether model looks like an Anthropic model id.
func SupportsModel(model string) bool {
	return strings.HasPrefix(model, "claude-")
}

var _ domainchatrun.Reader = (*Reader)(nil)
