package crypto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxDepth bounds nesting of canonicalized values.
const maxDepth = 64

var (
	ErrInvalidJSON     = errors.New("invalid JSON")
	ErrUnsupportedType = errors.New("unsupported JSON type")
	ErrTooDeep         = errors.New("JSON nesting too deep")
)

// CanonicalizeJSON rewrites a JSON document into its canonical form: object
// keys sorted, no insignificant whitespace, numbers in shortest round-trip
// form.
func CanonicalizeJSON(input []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if err := ensureEOF(dec); err != nil {
		return nil, err
	}

	enc := canonicalEncoder{}
	if err := enc.write(value, 0); err != nil {
		return nil, err
	}
	return enc.buf.Bytes(), nil
}

// CanonicalizeAny canonicalizes primitives and generic maps/slices directly
// and routes everything else through encoding/json first.
func CanonicalizeAny(v any) ([]byte, error) {
	switch value := v.(type) {
	case nil, bool, string, json.Number, float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, map[string]any, []any:
		enc := canonicalEncoder{}
		if err := enc.write(value, 0); err != nil {
			return nil, err
		}
		return enc.buf.Bytes(), nil
	case json.RawMessage:
		return CanonicalizeJSON([]byte(value))
	case []byte:
		return CanonicalizeJSON(value)
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
		}
		return CanonicalizeJSON(b)
	}
}

func ensureEOF(dec *json.Decoder) error {
	var extra any
	if err := dec.Decode(&extra); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return fmt.Errorf("%w: trailing data", ErrInvalidJSON)
}

type canonicalEncoder struct {
	buf bytes.Buffer
}

func (e *canonicalEncoder) write(value any, depth int) error {
	if depth > maxDepth {
		return ErrTooDeep
	}
	switch v := value.(type) {
	case nil:
		e.buf.WriteString("null")
	case bool:
		e.buf.WriteString(strconv.FormatBool(v))
	case string:
		return e.writeString(v)
	case json.Number:
		f, err := strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return fmt.Errorf("%w: number %q", ErrInvalidJSON, v.String())
		}
		return e.writeFloat(f)
	case float64:
		return e.writeFloat(v)
	case float32:
		return e.writeFloat(float64(v))
	case int:
		return e.writeFloat(float64(v))
	case int8:
		return e.writeFloat(float64(v))
	case int16:
		return e.writeFloat(float64(v))
	case int32:
		return e.writeFloat(float64(v))
	case int64:
		return e.writeFloat(float64(v))
	case uint:
		return e.writeFloat(float64(v))
	case uint8:
		return e.writeFloat(float64(v))
	case uint16:
		return e.writeFloat(float64(v))
	case uint32:
		return e.writeFloat(float64(v))
	case uint64:
		return e.writeFloat(float64(v))
	case map[string]any:
		return e.writeObject(v, depth)
	case []any:
		return e.writeArray(v, depth)
	default:
		return fmt.Errorf("%w %T", ErrUnsupportedType, value)
	}
	return nil
}

func (e *canonicalEncoder) writeObject(obj map[string]any, depth int) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e.buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.writeString(k); err != nil {
			return err
		}
		e.buf.WriteByte(':')
		if err := e.write(obj[k], depth+1); err != nil {
			return err
		}
	}
	e.buf.WriteByte('}')
	return nil
}

func (e *canonicalEncoder) writeArray(arr []any, depth int) error {
	e.buf.WriteByte('[')
	for i, item := range arr {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.write(item, depth+1); err != nil {
			return err
		}
	}
	e.buf.WriteByte(']')
	return nil
}

func (e *canonicalEncoder) writeString(s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: string is not valid UTF-8", ErrInvalidJSON)
	}
	e.buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			e.buf.WriteByte('\\')
			e.buf.WriteRune(r)
		case '\b':
			e.buf.WriteString(`\b`)
		case '\f':
			e.buf.WriteString(`\f`)
		case '\n':
			e.buf.WriteString(`\n`)
		case '\r':
			e.buf.WriteString(`\r`)
		case '\t':
			e.buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				e.buf.WriteString(`\u00`)
				e.buf.WriteByte(hexLower[r>>4])
				e.buf.WriteByte(hexLower[r&0x0f])
			} else {
				e.buf.WriteRune(r)
			}
		}
	}
	e.buf.WriteByte('"')
	return nil
}

var hexLower = []byte("0123456789abcdef")

func (e *canonicalEncoder) writeFloat(f float64) error {
	s, err := formatFloat(f)
	if err != nil {
		return err
	}
	e.buf.WriteString(s)
	return nil
}

// formatFloat follows the ECMAScript Number-to-String rules.
func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%w: non-finite number", ErrUnsupportedType)
	}
	if f == 0 {
		return "0", nil
	}

	sign := ""
	if f < 0 {
		sign = "-"
		f = -f
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	mantissa, expPart, ok := strings.Cut(sci, "e")
	if !ok {
		return "", fmt.Errorf("invalid float format: %q", sci)
	}
	exp, err := strconv.Atoi(expPart)
	if err != nil {
		return "", fmt.Errorf("invalid float exponent: %w", err)
	}
	digits := strings.ReplaceAll(mantissa, ".", "")

	if exp <= -7 || exp >= 21 {
		expStr := strconv.Itoa(exp)
		if exp > 0 {
			expStr = "+" + expStr
		}
		if len(digits) == 1 {
			return sign + digits + "e" + expStr, nil
		}
		return sign + digits[:1] + "." + digits[1:] + "e" + expStr, nil
	}

	point := exp + 1
	switch {
	case point >= len(digits):
		return sign + digits + strings.Repeat("0", point-len(digits)), nil
	case point <= 0:
		return sign + "0." + strings.Repeat("0", -point) + digits, nil
	default:
		return sign + digits[:point] + "." + digits[point:], nil
	}
}
