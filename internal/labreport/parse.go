// Package labreport turns free-form model output into a validated lab report Record.
//
// Parse is a pure function: no I/O, no logging, no shared state. It is safe to
// call from any number of goroutines.
package labreport

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
)

const (
	FenceOpen  = "```json"
	FenceClose = "```"
)

var errTrailingData = errors.New("unexpected data after top-level json value")

// Parse extracts a Record from raw model output. It tries, in order: the whole
// trimmed text as JSON, then the first block opened by FenceOpen. It returns a
// *ParseError on every failure path and never a partial Record.
func Parse(raw string) (*Record, error) {
	direct, directErr := decode(strings.TrimSpace(raw))
	if directErr == nil {
		if obj, ok := direct.(map[string]any); ok {
			return build(raw, obj)
		}
	}

	candidate, found := FencedCandidate(raw)
	if !found {
		if directErr == nil {
			// valid JSON, wrong shape, and nothing fenced to fall back on
			return nil, &ParseError{Kind: KindNotAnObject, Raw: raw}
		}
		return nil, &ParseError{Kind: KindNoJSONFound, Raw: raw, Err: directErr}
	}

	v, err := decode(candidate)
	if err != nil {
		return nil, &ParseError{Kind: KindInvalidJSONInFence, Raw: raw, Candidate: candidate, Err: err}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &ParseError{Kind: KindNotAnObject, Raw: raw}
	}
	return build(raw, obj)
}

// FencedCandidate returns the trimmed text between the first FenceOpen and the
// next FenceClose. An unterminated fence counts only when the response opens
// with it; the block then runs to the end of the text.
func FencedCandidate(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	i := strings.Index(trimmed, FenceOpen)
	if i < 0 {
		return "", false
	}
	rest := trimmed[i+len(FenceOpen):]
	if j := strings.Index(rest, FenceClose); j >= 0 {
		return strings.TrimSpace(rest[:j]), true
	}
	if i != 0 {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

func decode(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}
	return v, nil
}

func build(raw string, obj map[string]any) (*Record, error) {
	if err := resultsShape.Validate(obj); err != nil {
		return nil, &ParseError{Kind: KindMalformedResultsArray, Raw: raw, Err: err}
	}

	rec := &Record{}
	bindSection(obj["report_info"], rec.ReportInfo.bindings())
	bindSection(obj["client_info"], rec.ClientInfo.bindings())
	bindSection(obj["sample_info"], rec.SampleInfo.bindings())
	rec.Conclusion = leaf(obj["conclusion"])

	if v, present := obj["analysis_results"]; present && v != nil {
		items, ok := v.([]any)
		if !ok {
			return nil, &ParseError{Kind: KindMalformedResultsArray, Raw: raw}
		}
		rec.AnalysisResults = make([]AnalysisResult, 0, len(items))
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, &ParseError{Kind: KindMalformedResultsArray, Raw: raw}
			}
			var row AnalysisResult
			bindFields(m, row.bindings())
			rec.AnalysisResults = append(rec.AnalysisResults, row)
		}
	}
	return rec, nil
}

// bindSection fills a section from v; anything other than an object leaves
// the whole section absent.
func bindSection(v any, bs []binding) {
	m, ok := v.(map[string]any)
	if !ok {
		return
	}
	bindFields(m, bs)
}

func bindFields(m map[string]any, bs []binding) {
	for _, b := range bs {
		*b.dst = leaf(m[b.key])
	}
}

// leaf maps a decoded JSON value onto an optional string. Numbers and booleans
// keep their JSON spelling; objects and arrays cannot be a leaf and read as absent.
func leaf(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case bool:
		s = strconv.FormatBool(t)
	default:
		return nil
	}
	return &s
}
