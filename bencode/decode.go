package bencode

import (
	"strconv"
)

// MaxDepth bounds list/dictionary nesting so hostile input cannot exhaust the stack.
const MaxDepth = 64

type decoder struct {
	data  []byte
	pos   int
	depth int
}

// Decode decodes the first bencoded value in data and returns it along
// with the bytes that follow it.
func Decode(data []byte) (Value, []byte, error) {
	d := decoder{data: data}
	v, err := d.value()
	if err != nil {
		return nil, nil, err
	}
	return v, data[d.pos:], nil
}

// DecodeAll decodes data, which must hold exactly one bencoded value.
func DecodeAll(data []byte) (Value, error) {
	v, rest, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, syntaxError(data, len(data)-len(rest), "%d trailing bytes after value", len(rest))
	}
	return v, nil
}

func (d *decoder) value() (Value, error) {
	if d.pos >= len(d.data) {
		return nil, syntaxError(d.data, d.pos, "unexpected end of input")
	}

	switch c := d.data[d.pos]; {
	case c == 'i':
		return d.integer()
	case c == 'l':
		return d.list()
	case c == 'd':
		return d.dict()
	case c >= '0' && c <= '9':
		return d.str()
	default:
		return nil, syntaxError(d.data, d.pos, "invalid identifier %q", c)
	}
}

// integer decodes i<number>e
func (d *decoder) integer() (Int, error) {
	start := d.pos
	end := d.indexFrom(d.pos+1, 'e')
	if end < 0 {
		return 0, syntaxError(d.data, start, "unterminated integer")
	}

	numStr := string(d.data[start+1 : end])
	if numStr == "" {
		return 0, syntaxError(d.data, start, "empty integer")
	}
	if numStr == "-0" {
		return 0, syntaxError(d.data, start, "negative zero is invalid")
	}
	digits := numStr
	if digits[0] == '-' {
		digits = digits[1:]
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, syntaxError(d.data, start, "invalid integer %q", numStr)
		}
	}
	if len(digits) > 1 && digits[0] == '0' {
		return 0, syntaxError(d.data, start, "integer has leading zero: %s", numStr)
	}

	n, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, syntaxError(d.data, start, "invalid integer %q", numStr)
	}

	d.pos = end + 1
	return Int(n), nil
}

// str decodes <length>:<contents>
func (d *decoder) str() (String, error) {
	start := d.pos
	colon := d.indexFrom(d.pos, ':')
	if colon < 0 {
		return nil, syntaxError(d.data, start, "string length is not terminated by ':'")
	}

	lengthStr := string(d.data[start:colon])
	length, err := strconv.ParseUint(lengthStr, 10, 31)
	if err != nil {
		return nil, syntaxError(d.data, start, "invalid string length %q", lengthStr)
	}

	begin := colon + 1
	if uint64(len(d.data)-begin) < length {
		return nil, syntaxError(d.data, start, "string of length %d exceeds remaining %d bytes", length, len(d.data)-begin)
	}
	end := begin + int(length)

	s := make(String, length)
	copy(s, d.data[begin:end])
	d.pos = end
	return s, nil
}

func (d *decoder) list() (List, error) {
	start := d.pos
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer d.leave()

	d.pos++
	l := List{}
	for {
		if d.pos >= len(d.data) {
			return nil, syntaxError(d.data, start, "unterminated list")
		}
		if d.data[d.pos] == 'e' {
			d.pos++
			return l, nil
		}

		v, err := d.value()
		if err != nil {
			return nil, err
		}
		l = append(l, v)
	}
}

func (d *decoder) dict() (Dict, error) {
	start := d.pos
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer d.leave()

	d.pos++
	dict := Dict{}
	for {
		if d.pos >= len(d.data) {
			return nil, syntaxError(d.data, start, "unterminated dictionary")
		}
		c := d.data[d.pos]
		if c == 'e' {
			d.pos++
			return dict, nil
		}
		if c < '0' || c > '9' {
			return nil, syntaxError(d.data, d.pos, "dictionary key must be a byte string")
		}

		keyPos := d.pos
		key, err := d.str()
		if err != nil {
			return nil, err
		}
		if _, dup := dict[string(key)]; dup {
			return nil, syntaxError(d.data, keyPos, "duplicate dictionary key %q", key)
		}

		v, err := d.value()
		if err != nil {
			return nil, err
		}
		dict[string(key)] = v
	}
}

func (d *decoder) enter() error {
	if d.depth >= MaxDepth {
		return syntaxError(d.data, d.pos, "nesting deeper than %d", MaxDepth)
	}
	d.depth++
	return nil
}

func (d *decoder) leave() {
	d.depth--
}

func (d *decoder) indexFrom(from int, c byte) int {
	for i := from; i < len(d.data); i++ {
		if d.data[i] == c {
			return i
		}
	}
	return -1
}
