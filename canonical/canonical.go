// Package canonical is the single serialization choke point for ledgercore.
//
// All hashing, signing, evidence persistence and chain fingerprints MUST pass
// through Encode. The encoding is a strict JSON subset:
//   - object keys sorted by byte order, no duplicate keys, no whitespace
//   - strings escaped per RFC 8785 (only '"', '\\' and control characters)
//   - integers as integer literals, fixed-point values as 18-digit decimal strings
//   - floating-point values rejected outright
//   - arrays keep their order
//
// Identical logical data therefore yields identical bytes on every runtime.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"unicode/utf8"

	"xdao.co/ledgercore/faults"
	"xdao.co/ledgercore/fixedpoint"
)

// ZeroHash is the all-zero sentinel used where no previous hash exists.
const ZeroHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Valuer is implemented by types that describe themselves as a canonical
// value tree (maps, slices, strings, integers, fixed-point values).
type Valuer interface {
	CanonicalValue() any
}

// Encode returns the canonical bytes for v.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash returns the lowercase hex sha256 of Encode(v).
func Hash(v any) (string, error) {
	b, err := Encode(v)
	if err != nil {
		return "", err
	}
	return SumHex(b), nil
}

// SumHex returns the lowercase hex sha256 of b.
func SumHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

const maxDepth = 64

func encode(buf *bytes.Buffer, v any, depth int) error {
	if depth > maxDepth {
		return faults.New(faults.KindInternal, "CANON-DEPTH-001", "value nested too deeply")
	}
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		return encodeString(buf, val)
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case uint:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint32:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(val, 10))
	case json.Number:
		if !isIntegerLiteral(string(val)) {
			return faults.New(faults.KindInternal, "CANON-NUM-001", fmt.Sprintf("non-integer number %q", string(val)))
		}
		buf.WriteString(string(val))
	case float32, float64:
		return faults.New(faults.KindInternal, "CANON-FLOAT-001", "floating-point values are not canonical")
	case fixedpoint.Value:
		return encodeString(buf, val.CanonicalString())
	case *fixedpoint.Value:
		if val == nil {
			buf.WriteString("null")
			return nil
		}
		return encodeString(buf, val.CanonicalString())
	case Valuer:
		return encode(buf, val.CanonicalValue(), depth+1)
	case map[string]any:
		return encodeMap(buf, len(val), func(yield func(string, any) error) error {
			for k, item := range val {
				if err := yield(k, item); err != nil {
					return err
				}
			}
			return nil
		}, depth)
	case map[string]string:
		return encodeMap(buf, len(val), func(yield func(string, any) error) error {
			for k, item := range val {
				if err := yield(k, item); err != nil {
					return err
				}
			}
			return nil
		}, depth)
	case map[string]fixedpoint.Value:
		return encodeMap(buf, len(val), func(yield func(string, any) error) error {
			for k, item := range val {
				if err := yield(k, item); err != nil {
					return err
				}
			}
			return nil
		}, depth)
	case []any:
		return encodeArray(buf, len(val), func(i int) any { return val[i] }, depth)
	case []string:
		return encodeArray(buf, len(val), func(i int) any { return val[i] }, depth)
	case []fixedpoint.Value:
		return encodeArray(buf, len(val), func(i int) any { return val[i] }, depth)
	case []map[string]any:
		return encodeArray(buf, len(val), func(i int) any { return val[i] }, depth)
	default:
		return faults.New(faults.KindInternal, "CANON-TYPE-001", fmt.Sprintf("unsupported canonical type %T", v))
	}
	return nil
}

type kv struct {
	key string
	val any
}

func encodeMap(buf *bytes.Buffer, n int, each func(func(string, any) error) error, depth int) error {
	pairs := make([]kv, 0, n)
	if err := each(func(k string, v any) error {
		pairs = append(pairs, kv{key: k, val: v})
		return nil
	}); err != nil {
		return err
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })
	buf.WriteByte('{')
	for i, p := range pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeString(buf, p.key); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := encode(buf, p.val, depth+1); err != nil {
			return fmt.Errorf("key %q: %w", p.key, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeArray(buf *bytes.Buffer, n int, at func(int) any, depth int) error {
	buf.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encode(buf, at(i), depth+1); err != nil {
			return fmt.Errorf("index %d: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

const hexDigits = "0123456789abcdef"

func encodeString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return faults.New(faults.KindInternal, "CANON-UTF8-001", "strings must be valid UTF-8")
	}
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
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
			if c < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexDigits[c>>4])
				buf.WriteByte(hexDigits[c&0xF])
				continue
			}
			buf.WriteByte(c)
		}
	}
	buf.WriteByte('"')
	return nil
}

func isIntegerLiteral(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' {
		s = s[1:]
	}
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
