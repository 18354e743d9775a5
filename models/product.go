// Package models defines data structures for the collector.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TopRatedSentinel marks an unranked top seller in SearchResult.TotalRatings.
const TopRatedSentinel = -1

// Images holds the product image URLs at each resolution the API returns.
type Images struct {
	Small  string `json:"small"`
	Medium string `json:"medium"`
	Large  string `json:"large"`
}

// SearchResult represents one product returned by the search endpoint.
type SearchResult struct {
	ID            string          `json:"id"`
	URL           string          `json:"url"`
	Title         string          `json:"title"`
	Images        Images          `json:"images"`
	Currency      string          `json:"currency"`
	Price         decimal.Decimal `json:"price"`
	OriginalPrice decimal.Decimal `json:"originalPrice"`
	Stars         float64         `json:"stars"`
	TotalRatings  int             `json:"totalRatings"`
	APIURL        string          `json:"apiUrl"`
}

// Country describes the marketplace the results came from.
type Country struct {
	Code        string `json:"code"`
	Marketplace string `json:"marketplace"`
}

// Meta echoes the result-set metadata of a page.
type Meta struct {
	TotalResults int    `json:"totalResults"`
	Count        int    `json:"count"`
	Page         int    `json:"page"`
	Query        string `json:"query"`
}

// PageToken is a continuation token that may be a string, a number or null.
// Present reports whether the key appeared in the payload at all.
type PageToken struct {
	Present bool
	Null    bool
	Value   string
}

// UnmarshalJSON accepts null, strings and numbers.
func (t *PageToken) UnmarshalJSON(data []byte) error {
	t.Present = true
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		t.Null = true
		t.Value = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode page token: %w", err)
		}
		t.Null = false
		t.Value = s
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("page token must be string, number or null: %w", err)
	}
	t.Null = false
	t.Value = n.String()
	return nil
}

// MarshalJSON writes null for absent or null tokens.
func (t PageToken) MarshalJSON() ([]byte, error) {
	if !t.Present || t.Null {
		return []byte("null"), nil
	}
	return json.Marshal(t.Value)
}

// HasNext reports whether the token points at another page.
func (t PageToken) HasNext() bool {
	return t.Present && !t.Null
}

// Pagination carries the next/previous tokens of a page.
type Pagination struct {
	NextPage     PageToken `json:"nextPage"`
	PreviousPage PageToken `json:"previousPage"`
}

// PageResponse is the decoded body of one search call.
type PageResponse struct {
	Message    string         `json:"message"`
	Country    Country        `json:"country"`
	Meta       Meta           `json:"meta"`
	Pagination *Pagination    `json:"pagination"`
	Results    []SearchResult `json:"results"`
}

// Record is the flattened, display-formatted projection of a SearchResult.
// Field order matches the output file columns.
type Record struct {
	Title    string `json:"title"`
	Price    string `json:"price"`
	Rating   string `json:"rating"`
	Ratings  string `json:"ratings"`
	URL      string `json:"url"`
	ImageURL string `json:"image_url"`
	Source   string `json:"source"`
}

// Fields returns the record's columns in output order.
func (r Record) Fields() []string {
	return []string{r.Title, r.Price, r.Rating, r.Ratings, r.URL, r.ImageURL, r.Source}
}

// StopReason explains why pagination ended for a query.
type StopReason string

const (
	StopNoNextPage StopReason = "no_next_page"
	StopEmptyPage  StopReason = "empty_page"
	StopCapReached StopReason = "cap_reached"
	StopMaxPages   StopReason = "max_pages"
	StopError      StopReason = "error"
	StopCancelled  StopReason = "cancelled"
)

// QueryResult holds what the paginator gathered for a single query.
type QueryResult struct {
	Query      string
	Results    []SearchResult
	Requests   int
	Pages      int
	StopReason StopReason
	ErrorType  string
	Err        error
}

// RunResult holds the overall result of a collection run.
type RunResult struct {
	RunID        string
	Queries      []QueryResult
	Records      []Record
	StartTime    time.Time
	EndTime      time.Time
	RequestCount int
	ErrorCount   int
	ErrorsByType map[string]int
	OutputFiles  []string
}

// TotalRecords returns the number of records written by the run.
func (r *RunResult) TotalRecords() int {
	if r == nil {
		return 0
	}
	return len(r.Records)
}

// FailedQueries lists queries whose pagination ended on an error.
func (r *RunResult) FailedQueries() []string {
	if r == nil {
		return nil
	}
	var out []string
	for _, q := range r.Queries {
		if q.Err != nil {
			out = append(out, q.Query)
		}
	}
	return out
}
