package bencode

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
)

// Encode returns the canonical encoding of v.
// Dictionary keys are always written in ascending byte order.
func Encode(v Value) []byte {
	var buf bytes.Buffer
	encodeTo(&buf, v)
	return buf.Bytes()
}

func encodeTo(buf *bytes.Buffer, v Value) {
	switch v := v.(type) {
	case Int:
		buf.WriteByte('i')
		buf.WriteString(strconv.FormatInt(int64(v), 10))
		buf.WriteByte('e')
	case String:
		writeString(buf, v)
	case List:
		buf.WriteByte('l')
		for _, item := range v {
			encodeTo(buf, item)
		}
		buf.WriteByte('e')
	case Dict:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		// Go string comparison is bytewise
		sort.Strings(keys)

		buf.WriteByte('d')
		for _, k := range keys {
			writeString(buf, []byte(k))
			encodeTo(buf, v[k])
		}
		buf.WriteByte('e')
	default:
		panic(fmt.Sprintf("bencode: cannot encode %T", v))
	}
}

func writeString(buf *bytes.Buffer, s []byte) {
	buf.WriteString(strconv.Itoa(len(s)))
	buf.WriteByte(':')
	buf.Write(s)
}
