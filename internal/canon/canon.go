// Package canon implements the deterministic JSON canonicalisation and
// SHA-256 hashing that every hash and json_canonical value in the draft,
// tool-plan, approval, and execution pipeline is derived from (§4.1).
//
// Two callers that feed Marshal equal JSON trees receive byte-identical
// output: object keys are sorted lexicographically at every depth, there is
// no insignificant whitespace, strings are UTF-8, numbers are emitted in
// their shortest round-trip form, and true/false/null are lowercase.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Marshal produces the canonical byte-exact encoding of v. v may be any
// JSON-representable Go value (struct, map, slice, primitive) or already a
// decoded any tree; it is round-tripped through encoding/json first so
// struct tags and custom MarshalJSON implementations are honoured.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: marshal input: %w", err)
	}
	return CanonicalizeJSON(raw)
}

// CanonicalizeJSON re-serialises an arbitrary JSON byte string into its
// canonical form.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("canon: decode json: %w", err)
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash returns the lowercase-hex SHA-256 digest of v's canonical encoding.
func Hash(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the lowercase-hex SHA-256 digest of canonical bytes b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashText returns the lowercase-hex SHA-256 digest of raw text, UTF-8
// encoded, with no canonicalisation applied — used for draft.content, which
// is plain text rather than a JSON tree.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		return writeCanonicalNumber(buf, val)
	case string:
		return writeCanonicalString(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("canon: unsupported type %T", v)
	}
}

func writeCanonicalString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("canon: marshal string: %w", err)
	}
	buf.Write(b)
	return nil
}

// writeCanonicalNumber reformats a decoded json.Number into its shortest
// round-trip form: integers are emitted without a decimal point or exponent,
// floats via strconv's shortest representation.
func writeCanonicalNumber(buf *bytes.Buffer, n json.Number) error {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		if iv, err := strconv.ParseInt(s, 10, 64); err == nil {
			buf.WriteString(strconv.FormatInt(iv, 10))
			return nil
		}
		// Integer too large for int64: the source text is already the
		// minimal decimal representation, so pass it through.
		buf.WriteString(s)
		return nil
	}
	fv, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("canon: parse number %q: %w", s, err)
	}
	buf.WriteString(strconv.FormatFloat(fv, 'g', -1, 64))
	return nil
}
