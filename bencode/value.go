package bencode

// Value is one of Int, String, List or Dict.
type Value interface {
	isValue()
}

// Int is a bencoded integer: i<number>e
type Int int64

// String is a bencoded byte string: <length>:<bytes>
// It holds raw bytes, not necessarily valid UTF-8. A nil String encodes
// like an empty one and decodes back as String{}.
type String []byte

// List is a bencoded list: l<item1><item2>...e
// As with String, nil encodes as empty and decodes back as List{}.
type List []Value

// Dict is a bencoded dictionary: d<key1><val1>...e
// Keys are byte strings stored as Go strings. A nil Dict decodes back as Dict{}.
type Dict map[string]Value

func (Int) isValue()    {}
func (String) isValue() {}
func (List) isValue()   {}
func (Dict) isValue()   {}

// String returns the byte string stored under key as a Go string.
func (d Dict) String(key string) (string, bool) {
	s, ok := d[key].(String)
	return string(s), ok
}

// Bytes returns the byte string stored under key.
func (d Dict) Bytes(key string) ([]byte, bool) {
	s, ok := d[key].(String)
	return []byte(s), ok
}

// Int returns the integer stored under key.
func (d Dict) Int(key string) (int64, bool) {
	i, ok := d[key].(Int)
	return int64(i), ok
}

// List returns the list stored under key.
func (d Dict) List(key string) (List, bool) {
	l, ok := d[key].(List)
	return l, ok
}

// Dict returns the nested dictionary stored under key.
func (d Dict) Dict(key string) (Dict, bool) {
	nested, ok := d[key].(Dict)
	return nested, ok
}

// Has reports whether key is present.
func (d Dict) Has(key string) bool {
	_, ok := d[key]
	return ok
}
