package faults

import (
	"errors"
	"fmt"
)

// Category groups fault codes by the subsystem that raised them.
type Category string

const (
	CategoryMedia      Category = "MEDIA"
	CategorySession    Category = "SESSION"
	CategoryQueue      Category = "QUEUE"
	CategoryValidation Category = "VALIDATION"
	CategoryNetwork    Category = "NETWORK"
	CategoryPlatform   Category = "PLATFORM"
	CategorySystem     Category = "SYSTEM"
)

// Fault is the typed error carried across component boundaries. Every fault
// has a stable code, an operator-facing message, and a structured details map
// that user-facing formatters and the log sink can pick apart.
type Fault struct {
	Category Category
	Code     string
	Message  string
	Details  map[string]interface{}
	Err      error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Code, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As chains.
func (f *Fault) Unwrap() error {
	return f.Err
}

// WithDetail attaches a key/value pair to the fault's details map and returns
// the fault for chaining.
func (f *Fault) WithDetail(key string, value interface{}) *Fault {
	if f.Details == nil {
		f.Details = make(map[string]interface{})
	}
	f.Details[key] = value
	return f
}

// New creates a fault with no wrapped cause.
func New(category Category, code, message string) *Fault {
	return &Fault{
		Category: category,
		Code:     code,
		Message:  message,
		Details:  make(map[string]interface{}),
	}
}

// Wrap creates a fault around an underlying error.
func Wrap(category Category, code, message string, err error) *Fault {
	return &Fault{
		Category: category,
		Code:     code,
		Message:  message,
		Details:  make(map[string]interface{}),
		Err:      err,
	}
}

// As extracts a *Fault from an error chain.
func As(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// CodeOf returns the fault code in err's chain, or "" for plain errors.
func CodeOf(err error) string {
	if f, ok := As(err); ok {
		return f.Code
	}
	return ""
}

// Is reports whether err carries the given fault code.
func Is(err error, code string) bool {
	return CodeOf(err) == code
}

// CategoryOf returns the fault category in err's chain, or "" for plain errors.
func CategoryOf(err error) Category {
	if f, ok := As(err); ok {
		return f.Category
	}
	return ""
}

// Convert returns err as a *Fault, wrapping plain errors under the given
// fallback category and code so callers always see a typed fault.
func Convert(err error, category Category, code string) *Fault {
	if err == nil {
		return nil
	}
	if f, ok := As(err); ok {
		return f
	}
	return Wrap(category, code, err.Error(), err)
}
