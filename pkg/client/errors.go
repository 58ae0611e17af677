package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrBudgetExhausted is returned when the daily call budget is used up.
	ErrBudgetExhausted = errors.New("daily search budget exhausted")

	// ErrMissingAPIKey is returned by New when no credential is configured.
	ErrMissingAPIKey = errors.New("api key is required")
)

// ErrorClass represents a classification of search failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents a 200 body that is not valid search JSON.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassBudget represents a request refused by the local budget.
	ErrorClassBudget ErrorClass = "budget"
)

// ClassifyStatus maps a non-200 status to an ErrorClass. 200 maps to "".
func ClassifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	case status == 200:
		return ""
	default:
		// 1xx/3xx/other 2xx are unexpected for a JSON search endpoint
		return ErrorClassServer
	}
}

// APIError is a failed search request. Any non-200 response is an APIError.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("search %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}
