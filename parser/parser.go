package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-product-collector/models"
)

// ErrMalformedResponse is returned when a page body cannot be used.
var ErrMalformedResponse = errors.New("malformed page response")

// ParsePage decodes a search response body and checks the fields the
// paginator relies on. A missing or empty results array is not an error:
// it is how the API signals that there is nothing more to read.
func ParsePage(body []byte) (*models.PageResponse, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}
	if body[0] != '{' {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrMalformedResponse)
	}

	var page models.PageResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if len(page.Results) > 0 {
		if page.Pagination == nil {
			return nil, fmt.Errorf("%w: results without pagination", ErrMalformedResponse)
		}
		if !page.Pagination.NextPage.Present {
			return nil, fmt.Errorf("%w: pagination missing nextPage", ErrMalformedResponse)
		}
	}

	for i := range page.Results {
		NormalizeResult(&page.Results[i])
	}
	return &page, nil
}

// ValidateResult reports results missing the fields the record needs.
func ValidateResult(r *models.SearchResult) error {
	if r == nil {
		return fmt.Errorf("result is nil")
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("result %s missing title", r.ID)
	}
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("result %q missing url", r.Title)
	}
	return nil
}

// NormalizeResult trims surrounding whitespace from the text fields.
func NormalizeResult(r *models.SearchResult) {
	r.Title = strings.TrimSpace(r.Title)
	r.URL = strings.TrimSpace(r.URL)
	r.Images.Small = strings.TrimSpace(r.Images.Small)
	r.Images.Medium = strings.TrimSpace(r.Images.Medium)
	r.Images.Large = strings.TrimSpace(r.Images.Large)
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
}
