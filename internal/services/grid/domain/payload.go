package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/tidwall/gjson"
)

// ErrPayloadInvalid marks a remote page whose shape cannot be read.
var ErrPayloadInvalid = errors.New("page payload is invalid")

// DecodePage normalizes a remote page payload into rows and a total.
//
// Accepted shapes are {"rows": [...], "total": n}, {"items": [...],
// "total": n} and a bare array. A missing total means the rows are the whole
// result set.
func DecodePage[R any](raw []byte) ([]R, int, error) {
	if !gjson.ValidBytes(raw) {
		return nil, 0, payloadError("malformed JSON")
	}
	root := gjson.ParseBytes(raw)

	var list gjson.Result
	switch {
	case root.IsArray():
		list = root
	case root.IsObject():
		list = root.Get("rows")
		if !list.Exists() {
			list = root.Get("items")
		}
		if !list.Exists() {
			return nil, 0, payloadError("missing rows")
		}
		if !list.IsArray() {
			return nil, 0, payloadError("rows is not an array")
		}
	default:
		return nil, 0, payloadError(fmt.Sprintf("unexpected %s payload", root.Type))
	}

	elems := list.Array()
	rows := make([]R, 0, len(elems))
	for i, elem := range elems {
		var row R
		if err := json.Unmarshal([]byte(elem.Raw), &row); err != nil {
			return nil, 0, fmt.Errorf("%w: row %d: %v", ErrPayloadInvalid, i, err)
		}
		rows = append(rows, row)
	}

	total := len(rows)
	if root.IsObject() {
		if t := root.Get("total"); t.Exists() {
			if t.Type != gjson.Number {
				return nil, 0, payloadError("total is not a number")
			}
			n := t.Float()
			if n < 0 || n != math.Trunc(n) || n >= float64(math.MaxInt) {
				return nil, 0, payloadError(fmt.Sprintf("total %s is not a non-negative integer", t.Raw))
			}
			total = int(n)
		}
	}
	return rows, total, nil
}

func payloadError(reason string) error {
	return fmt.Errorf("%w: %s", ErrPayloadInvalid, reason)
}
