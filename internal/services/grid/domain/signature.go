package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"go.einride.tech/aip/ordering"
)

// maxSignatureLen bounds signatures kept verbatim in fetch keys. Longer
// signatures are replaced by a digest.
const maxSignatureLen = 150

const digestPrefix = "xxh64:"

// Filter is the opaque filter object sent to the data source. Keys and
// values must be JSON-serializable.
type Filter map[string]any

// Signature returns the canonical JSON form of f. Equal filters give equal
// signatures regardless of key order; an empty filter signs as "{}".
func (f Filter) Signature() string {
	if len(f) == 0 {
		return "{}"
	}
	return digest(canonicalJSON(map[string]any(f)))
}

// Clone returns a shallow copy of f.
func (f Filter) Clone() Filter {
	if f == nil {
		return nil
	}
	out := make(Filter, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// SortField orders by one field path.
type SortField struct {
	Field string
	Desc  bool
}

// Sort is an ordered list of sort fields, most significant first.
type Sort []SortField

// ParseSort parses AIP-132 order-by syntax, e.g. "price desc, name".
func ParseSort(s string) (Sort, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var orderBy ordering.OrderBy
	if err := orderBy.UnmarshalString(s); err != nil {
		return nil, fmt.Errorf("parse sort %q: %w", s, err)
	}
	out := make(Sort, 0, len(orderBy.Fields))
	for _, field := range orderBy.Fields {
		out = append(out, SortField{Field: field.Path, Desc: field.Desc})
	}
	return out, nil
}

// OrderBy formats s in AIP-132 order-by syntax.
func (s Sort) OrderBy() string {
	parts := make([]string, 0, len(s))
	for _, field := range s {
		if field.Desc {
			parts = append(parts, field.Field+" desc")
			continue
		}
		parts = append(parts, field.Field)
	}
	return strings.Join(parts, ", ")
}

// Signature returns the canonical order-by string for s, digested when long.
func (s Sort) Signature() string {
	return digest(s.OrderBy())
}

// Validate rejects fields outside allowed. No allowed paths accepts any
// syntactically valid sort.
func (s Sort) Validate(allowed ...string) error {
	if len(s) == 0 || len(allowed) == 0 {
		return nil
	}
	orderBy := ordering.OrderBy{Fields: make([]ordering.Field, 0, len(s))}
	for _, field := range s {
		orderBy.Fields = append(orderBy.Fields, ordering.Field{Path: field.Field, Desc: field.Desc})
	}
	return orderBy.ValidateForPaths(allowed...)
}

// Clone returns a copy of s.
func (s Sort) Clone() Sort {
	if s == nil {
		return nil
	}
	return append(Sort(nil), s...)
}

// ResetKey identifies the dataset a controller is showing. Two keys built
// from equal values compare equal.
type ResetKey string

// NewResetKey derives a ResetKey from v by value.
func NewResetKey(v any) ResetKey {
	if v == nil {
		return ""
	}
	if key, ok := v.(ResetKey); ok {
		return key
	}
	return ResetKey(digest(canonicalJSON(v)))
}

func canonicalJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		// Unencodable values still need a stable key; fmt prints maps sorted.
		return fmt.Sprintf("%#v", v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func digest(signature string) string {
	if len(signature) <= maxSignatureLen {
		return signature
	}
	return digestPrefix + strconv.FormatUint(xxhash.Sum64String(signature), 16)
}
