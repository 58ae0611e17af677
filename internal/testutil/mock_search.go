// Package testutil provides testing utilities for the search ingest.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// SearchPath is the endpoint served by MockSearchAPI.
const SearchPath = "/v3/businesses/search"

// ZipPlan describes what the mock returns for one zip code.
type ZipPlan struct {
	// Total is reported in every page body
	Total int

	// FailAtPage makes the n-th request (1-based) for this zip fail
	FailAtPage int

	// FailStatus is the status of the failing page (default 500)
	FailStatus int

	// EmptyAfter stops returning businesses after this many results
	// (0 means never), while still reporting Total
	EmptyAfter int

	// OmitField removes a raw field from every generated business
	OmitField string
}

// MockSearchAPI is a configurable mock of the business search endpoint.
// Businesses are generated deterministically per zip and offset.
type MockSearchAPI struct {
	server *httptest.Server
	apiKey string

	mu      sync.RWMutex
	plans   map[string]ZipPlan
	pages   map[string]int
	offsets map[string][]int

	// Tracking
	RequestCount      int
	UnauthorizedCount int
	LastQuery         string
}

// NewMockSearchAPI creates a mock that accepts apiKey as bearer token.
// Zips without a plan report zero results.
func NewMockSearchAPI(apiKey string) *MockSearchAPI {
	mock := &MockSearchAPI{
		apiKey:  apiKey,
		plans:   make(map[string]ZipPlan),
		pages:   make(map[string]int),
		offsets: make(map[string][]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockSearchAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockSearchAPI) Close() {
	m.server.Close()
}

// SetZip configures the response plan for a zip.
func (m *MockSearchAPI) SetZip(zip string, plan ZipPlan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[zip] = plan
}

// Reset clears all tracking counters.
func (m *MockSearchAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.UnauthorizedCount = 0
	m.LastQuery = ""
	m.pages = make(map[string]int)
	m.offsets = make(map[string][]int)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockSearchAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// Offsets returns the offsets requested for zip, in request order.
func (m *MockSearchAPI) Offsets(zip string) []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int, len(m.offsets[zip]))
	copy(out, m.offsets[zip])
	return out
}

// SearchedZips returns the zips that received at least one request.
func (m *MockSearchAPI) SearchedZips() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.offsets))
	for zip := range m.offsets {
		out[zip] = true
	}
	return out
}

func (m *MockSearchAPI) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != SearchPath {
		http.NotFound(w, r)
		return
	}

	query := r.URL.Query()
	zip := query.Get("location")
	offset, _ := strconv.Atoi(query.Get("offset"))
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 20
	}

	m.mu.Lock()
	m.RequestCount++
	m.LastQuery = r.URL.RawQuery
	if r.Header.Get("Authorization") != "Bearer "+m.apiKey {
		m.UnauthorizedCount++
		m.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error": map[string]string{"code": "TOKEN_INVALID", "description": "Invalid access token"},
		})
		return
	}
	m.pages[zip]++
	page := m.pages[zip]
	m.offsets[zip] = append(m.offsets[zip], offset)
	plan := m.plans[zip]
	m.mu.Unlock()

	if plan.FailAtPage > 0 && page == plan.FailAtPage {
		status := plan.FailStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, map[string]any{
			"error": map[string]string{"code": "INTERNAL_ERROR", "description": "mock failure"},
		})
		return
	}

	available := plan.Total
	if plan.EmptyAfter > 0 && plan.EmptyAfter < available {
		available = plan.EmptyAfter
	}
	end := min(offset+limit, available)

	businesses := make([]map[string]any, 0, max(end-offset, 0))
	for i := offset; i < end; i++ {
		businesses = append(businesses, Business(zip, i, plan.OmitField))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":      plan.Total,
		"businesses": businesses,
		"region":     map[string]any{"center": map[string]float64{"latitude": 34.0, "longitude": -118.2}},
	})
}

// Business renders the i-th generated raw business for zip. A non-empty
// omit drops that key; "coordinates.latitude" and "location.zip_code"
// address nested keys.
func Business(zip string, i int, omit string) map[string]any {
	name := fmt.Sprintf("Restaurant %s-%03d", zip, i)
	b := map[string]any{
		"id":            fmt.Sprintf("id-%s-%d", zip, i),
		"alias":         strings.ToLower(strings.ReplaceAll(name, " ", "-")),
		"name":          name,
		"image_url":     fmt.Sprintf("https://img.example.com/%s/%d.jpg", zip, i),
		"is_closed":     false,
		"review_count":  10 + i,
		"rating":        4.0,
		"price":         "$$",
		"phone":         "+12135550100",
		"display_phone": "(213) 555-0100",
		"categories":    []map[string]string{{"alias": "pizza", "title": "Pizza"}},
		"coordinates":   map[string]any{"latitude": 34.05, "longitude": -118.24},
		"location": map[string]any{
			"address1":        fmt.Sprintf("%d Main St", i+1),
			"address2":        nil,
			"address3":        "",
			"city":            "Los Angeles",
			"zip_code":        zip,
			"country":         "US",
			"state":           "CA",
			"display_address": []string{fmt.Sprintf("%d Main St", i+1), "Los Angeles, CA " + zip},
		},
	}

	if omit != "" {
		parent, child, nested := strings.Cut(omit, ".")
		if nested {
			if sub, ok := b[parent].(map[string]any); ok {
				delete(sub, child)
			}
		} else {
			delete(b, parent)
		}
	}
	return b
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
