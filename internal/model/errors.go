package model

import (
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	ErrAuthRequired           = eris.New("authentication required")
	ErrNoExtractorImplemented = eris.New("no extractor implemented for the site")
	ErrEmptyExtraction        = eris.New("all methods exhausted without candidates")
)

// FetchError is a network failure, a timeout or a non-2xx response of one method.
type FetchError struct {
	Method     Method
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s fetch %s: status %d: %v", e.Method, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s fetch %s: %v", e.Method, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
