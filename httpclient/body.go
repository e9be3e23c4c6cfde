package httpclient

import (
	"net/url"
)

// Body is a request payload: empty, raw, or a structured set of form fields.
// The zero value is an empty body.
type Body struct {
	raw        []byte
	form       url.Values
	structured bool
}

// NoBody is the empty request body.
var NoBody = Body{}

// RawBody returns a raw payload body. POST and PUT requests carrying it are
// sent as application/json unless the caller sets a Content-Type.
func RawBody(s string) Body {
	return Body{raw: []byte(s)}
}

// RawBytes is like RawBody for byte payloads. The slice is copied.
func RawBytes(b []byte) Body {
	return Body{raw: append([]byte(nil), b...)}
}

// FormBody returns a structured body that is form-encoded on the wire.
func FormBody(fields map[string]string) Body {
	values := make(url.Values, len(fields))
	for k, v := range fields {
		values.Set(k, v)
	}
	return Body{form: values, structured: true}
}

// FormValues is like FormBody but keeps repeated keys. The values are copied.
func FormValues(values url.Values) Body {
	cloned := make(url.Values, len(values))
	for k, v := range values {
		cloned[k] = append([]string(nil), v...)
	}
	return Body{form: cloned, structured: true}
}

// IsStructured reports whether the body is a key-value mapping.
func (b Body) IsStructured() bool {
	return b.structured
}

// IsEmpty reports whether the body carries no payload.
func (b Body) IsEmpty() bool {
	if b.structured {
		return len(b.form) == 0
	}
	return len(b.raw) == 0
}

// Len returns the raw payload length in bytes. Structured bodies report 0;
// their length is known only once they are encoded.
func (b Body) Len() int {
	if b.structured {
		return 0
	}
	return len(b.raw)
}

// encode returns the bytes sent on the wire.
func (b Body) encode() []byte {
	if b.structured {
		return []byte(b.form.Encode())
	}
	return b.raw
}
