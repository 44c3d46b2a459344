package port

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// HashInput computes the canonical SHA-256 hex digest of a port input. Two
// inputs hash identically when they are semantically equal under the port's
// contract: object key order never matters, keys listed in HashExcludedKeys
// are dropped at any depth, and arrays under UnorderedArrayKeys compare as
// multisets.
func HashInput(c Contract, raw []byte) (string, error) {
	canon, err := Canonicalize(c, raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Canonicalize renders the input as deterministic JSON: object keys sorted,
// excluded keys removed, unordered arrays sorted by their canonical element
// serialization, numbers re-rendered without float artifacts where possible.
func Canonicalize(c Contract, raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}

	excluded := make(map[string]bool, len(c.HashExcludedKeys))
	for _, k := range c.HashExcludedKeys {
		excluded[k] = true
	}
	unordered := make(map[string]bool, len(c.UnorderedArrayKeys))
	for _, k := range c.UnorderedArrayKeys {
		unordered[k] = true
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, v, "", excluded, unordered); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeCanonical serializes one value. key is the object key the value sits
// under ("" at the root and inside arrays); it decides unordered-array
// treatment.
func writeCanonical(buf *bytes.Buffer, v any, key string, excluded, unordered map[string]bool) error {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			if excluded[k] {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(buf, k)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k], k, excluded, unordered); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		elems := make([][]byte, len(t))
		for i, e := range t {
			var eb bytes.Buffer
			if err := writeCanonical(&eb, e, "", excluded, unordered); err != nil {
				return err
			}
			elems[i] = eb.Bytes()
		}
		if unordered[key] {
			sort.Slice(elems, func(i, j int) bool {
				return bytes.Compare(elems[i], elems[j]) < 0
			})
		}
		buf.WriteByte('[')
		for i, e := range elems {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.Write(e)
		}
		buf.WriteByte(']')
	case json.Number:
		buf.WriteString(canonicalNumber(t))
	case string:
		writeJSONString(buf, t)
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case nil:
		buf.WriteString("null")
	default:
		return fmt.Errorf("canonicalize: unsupported value %T", v)
	}
	return nil
}

// canonicalNumber strips representation noise like "1.0" vs "1" so equal
// values hash equally regardless of how the producer rendered them.
func canonicalNumber(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if f, err := n.Float64(); err == nil {
		if f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10)
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return n.String()
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}
