// Package canon produces canonical JSON and content digests for journal
// records.
//
// The encoding follows RFC 8785 where it matters for stable digests:
//   - object keys sorted by UTF-16 code units
//   - no insignificant whitespace
//   - strings NFC-normalized, escaping only quote, backslash, and control
//     characters (no HTML escaping, U+2028/U+2029 left literal)
//
// Numbers are emitted exactly as encoding/json renders them.
//
// CRITICAL: digests must only ever be computed over Marshal output.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// Domain prefixes for digests. The version suffix allows the algorithm to
// change without colliding with old digests.
const (
	DomainEntry = "scaffolding/journal-entry/v1"
	DomainRun   = "scaffolding/journal-run/v1"
)

// Marshal encodes v as canonical JSON. v is first encoded with
// encoding/json, so struct tags and json.Marshaler are honoured.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("canon: %w", err)
	}

	var buf bytes.Buffer
	if err := encode(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Digest hashes data under domain: hex(SHA-256(domain || 0x00 || data)).
// The null separator keeps domain and data from running together.
func Digest(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func encode(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(val.String())
	case string:
		writeString(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, e); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		return encodeObject(buf, val)
	default:
		return fmt.Errorf("canon: unsupported value %T", v)
	}
	return nil
}

func encodeObject(buf *bytes.Buffer, obj map[string]any) error {
	type member struct {
		key   string
		units []uint16
		val   any
	}
	members := make([]member, 0, len(obj))
	seen := make(map[string]bool, len(obj))
	for k, v := range obj {
		nk := norm.NFC.String(k)
		if seen[nk] {
			return fmt.Errorf("canon: keys collide after NFC normalization: %q", nk)
		}
		seen[nk] = true
		members = append(members, member{key: nk, units: utf16.Encode([]rune(nk)), val: v})
	}
	slices.SortFunc(members, func(a, b member) int {
		return slices.Compare(a.units, b.units)
	})

	buf.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, m.key)
		buf.WriteByte(':')
		if err := encode(buf, m.val); err != nil {
			return fmt.Errorf("%q: %w", m.key, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

const hexDigits = "0123456789abcdef"

func writeString(buf *bytes.Buffer, s string) {
	s = norm.NFC.String(s)
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexDigits[r>>4])
				buf.WriteByte(hexDigits[r&0xf])
				continue
			}
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
}
