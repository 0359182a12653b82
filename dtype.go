package zarr

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Dtype is a simple zarr data type, written as a NumPy array protocol type
// string (typestr). The format consists of 3 parts:
//  * One character describing the byteorder of the data:
//    "<": little-endian; ">": big-endian; "|": not-relevant)
//  * One character code giving the basic type of the array:
//    "b" boolean, "i" integer, "u" unsigned integer, "f" floating point,
//    "c" complex, "m" timedelta, "M" datetime, "S" string, "U" unicode,
//    "V" other
//  * An integer specifying the number of bytes the type uses.
//
// Within the zarr format byte order MUST be specified.
type Dtype struct {
	ByteOrder ByteOrder
	BasicType BasicType
	ByteSize  int
	Units     string
}

var (
	_ json.Unmarshaler = (*Dtype)(nil)
	_ json.Marshaler   = (*Dtype)(nil)
)

// ParseDtype parses a typestr such as "<u2" or "|b1".
func ParseDtype(s string) (dt Dtype, err error) {
	// the python implementation may HTML-escape the byte order when
	// serializing JSON
	s = strings.Replace(s, "&lt;", "<", 1)
	s = strings.Replace(s, "&gt;", ">", 1)

	if len(s) < 3 {
		return dt, fmt.Errorf("invalid dtype string. %q is too short", s)
	}
	if dt.ByteOrder, err = ParseByteOrder(rune(s[0])); err != nil {
		return dt, err
	}
	if dt.BasicType, err = ParseBasicType(rune(s[1])); err != nil {
		return dt, err
	}

	sizeStr := s[2:]
	if i := strings.IndexByte(sizeStr, '['); i >= 0 {
		sizeStr, dt.Units = sizeStr[:i], sizeStr[i:]
	}
	size, err := strconv.Atoi(sizeStr)
	if err != nil {
		return dt, fmt.Errorf("invalid dtype size in %q: %w", s, err)
	}
	dt.ByteSize = size
	return dt, nil
}

// MustParseDtype is ParseDtype for literals known to be valid.
func MustParseDtype(s string) Dtype {
	dt, err := ParseDtype(s)
	if err != nil {
		panic(err)
	}
	return dt
}

func (dt Dtype) String() string {
	return fmt.Sprintf("%c%c%d%s", dt.ByteOrder, dt.BasicType, dt.ByteSize, dt.Units)
}

func (dt Dtype) MarshalJSON() ([]byte, error) {
	return json.Marshal(dt.String())
}

func (dt *Dtype) UnmarshalJSON(d []byte) error {
	var s string
	if err := json.Unmarshal(d, &s); err != nil {
		return err
	}
	t, err := ParseDtype(s)
	if err != nil {
		return err
	}
	*dt = t
	return nil
}

func (dt Dtype) byteOrder() binary.ByteOrder {
	if dt.ByteOrder == BOBigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Numeric reports whether elements of dt can be decoded to float64 values.
func (dt Dtype) Numeric() bool {
	switch dt.BasicType {
	case BTBoolean:
		return dt.ByteSize == 1
	case BTInteger, BTUnsigned:
		return dt.ByteSize == 1 || dt.ByteSize == 2 || dt.ByteSize == 4 || dt.ByteSize == 8
	case BTFloatingPoint:
		return dt.ByteSize == 4 || dt.ByteSize == 8
	}
	return false
}

// Decode converts raw little/big-endian elements in b into out. b must hold
// exactly len(out) elements. Integer values beyond 2^53 lose precision.
func (dt Dtype) Decode(b []byte, out []float64) error {
	if !dt.Numeric() {
		return fmt.Errorf("unsupported dtype for decoding: %s", dt)
	}
	if len(b) != len(out)*dt.ByteSize {
		return fmt.Errorf("decoding %s: have %d bytes for %d elements", dt, len(b), len(out))
	}
	bo := dt.byteOrder()
	sz := dt.ByteSize
	for i := range out {
		e := b[i*sz : (i+1)*sz]
		switch dt.BasicType {
		case BTBoolean:
			if e[0] != 0 {
				out[i] = 1
			} else {
				out[i] = 0
			}
		case BTUnsigned:
			switch sz {
			case 1:
				out[i] = float64(e[0])
			case 2:
				out[i] = float64(bo.Uint16(e))
			case 4:
				out[i] = float64(bo.Uint32(e))
			case 8:
				out[i] = float64(bo.Uint64(e))
			}
		case BTInteger:
			switch sz {
			case 1:
				out[i] = float64(int8(e[0]))
			case 2:
				out[i] = float64(int16(bo.Uint16(e)))
			case 4:
				out[i] = float64(int32(bo.Uint32(e)))
			case 8:
				out[i] = float64(int64(bo.Uint64(e)))
			}
		case BTFloatingPoint:
			if sz == 4 {
				out[i] = float64(math.Float32frombits(bo.Uint32(e)))
			} else {
				out[i] = math.Float64frombits(bo.Uint64(e))
			}
		}
	}
	return nil
}

// Encode is the inverse of Decode. Values are rounded to the nearest
// integer and saturated for integer types.
func (dt Dtype) Encode(in []float64, b []byte) error {
	if !dt.Numeric() {
		return fmt.Errorf("unsupported dtype for encoding: %s", dt)
	}
	if len(b) != len(in)*dt.ByteSize {
		return fmt.Errorf("encoding %s: have %d bytes for %d elements", dt, len(b), len(in))
	}
	bo := dt.byteOrder()
	sz := dt.ByteSize
	for i, v := range in {
		e := b[i*sz : (i+1)*sz]
		switch dt.BasicType {
		case BTBoolean:
			e[0] = 0
			if v != 0 {
				e[0] = 1
			}
		case BTUnsigned:
			u := uint64(clamp(math.Round(v), 0, intLimit(8*sz)))
			switch sz {
			case 1:
				e[0] = uint8(u)
			case 2:
				bo.PutUint16(e, uint16(u))
			case 4:
				bo.PutUint32(e, uint32(u))
			case 8:
				bo.PutUint64(e, u)
			}
		case BTInteger:
			n := int64(clamp(math.Round(v), -math.Ldexp(1, 8*sz-1), intLimit(8*sz-1)))
			switch sz {
			case 1:
				e[0] = uint8(int8(n))
			case 2:
				bo.PutUint16(e, uint16(int16(n)))
			case 4:
				bo.PutUint32(e, uint32(int32(n)))
			case 8:
				bo.PutUint64(e, uint64(n))
			}
		case BTFloatingPoint:
			if sz == 4 {
				bo.PutUint32(e, math.Float32bits(float32(v)))
			} else {
				bo.PutUint64(e, math.Float64bits(v))
			}
		}
	}
	return nil
}

// intLimit is the largest float64 not above 2^bits-1.
func intLimit(bits int) float64 {
	if bits > 53 {
		return math.Nextafter(math.Ldexp(1, bits), 0)
	}
	return math.Ldexp(1, bits) - 1
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}

type ByteOrder rune

func ParseByteOrder(r rune) (ByteOrder, error) {
	o := ByteOrder(r)
	if _, ok := byteOrders[o]; !ok {
		return o, fmt.Errorf("unsupported byte order format: %q", r)
	}
	return o, nil
}

const (
	BONotRelevant  ByteOrder = '|'
	BOLittleEndian ByteOrder = '<'
	BOBigEndian    ByteOrder = '>'
)

var byteOrders = map[ByteOrder]struct{}{
	BONotRelevant:  {},
	BOLittleEndian: {},
	BOBigEndian:    {},
}

type BasicType rune

func ParseBasicType(r rune) (BasicType, error) {
	t := BasicType(r)
	if _, ok := supportedBasicTypes[t]; !ok {
		return t, fmt.Errorf("unsupported basic type: %q", r)
	}
	return t, nil
}

func (bt BasicType) Human() string {
	return supportedBasicTypes[bt]
}

const (
	BTBoolean       BasicType = 'b'
	BTInteger       BasicType = 'i'
	BTUnsigned      BasicType = 'u'
	BTFloatingPoint BasicType = 'f'
	BTComplex       BasicType = 'c'
	BTTimedelta     BasicType = 'm'
	BTDatetime      BasicType = 'M'
	BTString        BasicType = 'S'
	BTUnicode       BasicType = 'U'
	BTOther         BasicType = 'V'
)

var supportedBasicTypes = map[BasicType]string{
	BTBoolean:       "bool",
	BTInteger:       "int",
	BTUnsigned:      "uint",
	BTFloatingPoint: "float",
	BTComplex:       "complex",
	BTTimedelta:     "timedelta",
	BTDatetime:      "datetime",
	BTString:        "string",
	BTUnicode:       "unicode",
	BTOther:         "other",
}

// StructuredType is either a plain Dtype or a (possibly nested) list of
// named fields. Arrays with structured types can be mirrored verbatim but
// not decoded.
type StructuredType struct {
	Fieldname string
	Dtype     Dtype
	Shape     interface{}
	Children  []StructuredType
}

var (
	_ json.Unmarshaler = (*StructuredType)(nil)
	_ json.Marshaler   = (*StructuredType)(nil)
)

func ParseStructuredType(d interface{}) (StructuredType, error) {
	switch v := d.(type) {
	case string:
		dt, err := ParseDtype(v)
		if err != nil {
			return StructuredType{}, err
		}
		return StructuredType{Dtype: dt}, nil
	case []interface{}:
		return parseStructuredFields(v)
	default:
		return StructuredType{}, fmt.Errorf("unexpected dtype value %T", d)
	}
}

// parseStructuredFields reads either a field list [[name, type, shape?], ...]
// or a single field [name, type, shape?].
func parseStructuredFields(d []interface{}) (StructuredType, error) {
	if len(d) > 0 {
		if _, isList := d[0].([]interface{}); isList {
			parent := StructuredType{}
			for i, el := range d {
				ch, err := ParseStructuredType(el)
				if err != nil {
					return StructuredType{}, fmt.Errorf("field %d: %w", i, err)
				}
				parent.Children = append(parent.Children, ch)
			}
			return parent, nil
		}
	}
	if len(d) < 2 {
		return StructuredType{}, fmt.Errorf("invalid structured dtype: want [name, type], got %d elements", len(d))
	}

	fieldName, ok := d[0].(string)
	if !ok {
		return StructuredType{}, fmt.Errorf("invalid structured dtype: field name must be a string. got %T", d[0])
	}
	t := StructuredType{Fieldname: fieldName}

	switch x := d[1].(type) {
	case string:
		dtype, err := ParseDtype(x)
		if err != nil {
			return StructuredType{}, err
		}
		t.Dtype = dtype
	case []interface{}:
		ch, err := ParseStructuredType(x)
		if err != nil {
			return StructuredType{}, err
		}
		t.Children = ch.Children
	default:
		return t, fmt.Errorf("invalid structured dtype: want either string or field list. got %T", d[1])
	}
	if len(d) > 2 {
		t.Shape = d[2]
	}
	return t, nil
}

// IsBasic reports whether the type is a single unnamed Dtype.
func (st StructuredType) IsBasic() bool {
	return st.Fieldname == "" && st.Shape == nil && len(st.Children) == 0
}

func (st StructuredType) Human() string {
	if st.IsBasic() {
		return st.Dtype.BasicType.Human()
	}
	return "struct"
}

func (st StructuredType) MarshalJSON() ([]byte, error) {
	if st.IsBasic() {
		return st.Dtype.MarshalJSON()
	}
	if st.Fieldname == "" {
		return json.Marshal(st.Children)
	}

	d := []interface{}{st.Fieldname}
	if len(st.Children) > 0 {
		d = append(d, st.Children)
	} else {
		d = append(d, st.Dtype)
	}
	if st.Shape != nil {
		d = append(d, st.Shape)
	}
	return json.Marshal(d)
}

func (st *StructuredType) UnmarshalJSON(d []byte) error {
	var v interface{}
	if err := json.Unmarshal(d, &v); err != nil {
		return err
	}
	t, err := ParseStructuredType(v)
	if err != nil {
		return err
	}
	*st = t
	return nil
}
