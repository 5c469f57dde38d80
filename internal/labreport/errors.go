package labreport

import (
	"errors"
	"fmt"
)

// Kind classifies why a model response could not be turned into a Record.
type Kind int

const (
	KindNoJSONFound Kind = iota + 1
	KindInvalidJSONInFence
	KindNotAnObject
	KindMalformedResultsArray
)

func (k Kind) String() string {
	switch k {
	case KindNoJSONFound:
		return "no_json_found"
	case KindInvalidJSONInFence:
		return "invalid_json_in_fence"
	case KindNotAnObject:
		return "not_an_object"
	case KindMalformedResultsArray:
		return "malformed_results_array"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinels for errors.Is; every *ParseError matches exactly one of them.
var (
	ErrNoJSONFound           = errors.New("no json object found in model response")
	ErrInvalidJSONInFence    = errors.New("fenced json block is not valid json")
	ErrNotAnObject           = errors.New("top-level json value is not an object")
	ErrMalformedResultsArray = errors.New("analysis_results is not an array of objects")
)

func (k Kind) sentinel() error {
	switch k {
	case KindNoJSONFound:
		return ErrNoJSONFound
	case KindInvalidJSONInFence:
		return ErrInvalidJSONInFence
	case KindNotAnObject:
		return ErrNotAnObject
	case KindMalformedResultsArray:
		return ErrMalformedResultsArray
	}
	return nil
}

// ParseError is returned by Parse. Raw always holds the untouched input;
// Candidate is only set for KindInvalidJSONInFence.
type ParseError struct {
	Kind      Kind
	Raw       string
	Candidate string
	Err       error
}

func (e *ParseError) Error() string {
	msg := e.Kind.String()
	if s := e.Kind.sentinel(); s != nil {
		msg = s.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ParseError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// AsParseError unwraps err to a *ParseError if it carries one.
func AsParseError(err error) (*ParseError, bool) {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
