package domain

import (
	"strconv"
	"strings"
)

// FetchKey identifies one cacheable page request.
type FetchKey struct {
	Page     int
	PageSize int
	Filter   string
	Sort     string
	Dataset  ResetKey
}

// String serializes k deterministically. String fields are quoted so
// separators inside signatures cannot collide.
func (k FetchKey) String() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(k.Page))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(k.PageSize))
	b.WriteByte('|')
	b.WriteString(strconv.Quote(k.Filter))
	b.WriteByte('|')
	b.WriteString(strconv.Quote(k.Sort))
	b.WriteByte('|')
	b.WriteString(strconv.Quote(string(k.Dataset)))
	return b.String()
}
