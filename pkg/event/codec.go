package event

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/3leaps/batchlog/pkg/reason"
)

// walker visits payload fields in wire order. The same walk method drives
// both encoding and decoding, so layouts cannot drift between directions.
type walker interface {
	i32(name string, p *int32)
	i64(name string, p *int64)
	f64(name string, p *float64)
	str(name string, p *string)
	strs(name string, p *[]string)
	i32s(name string, p *[]int32)
	i64s(name string, p *[]int64)
	status(name string, s *Status, f *StatusFlags)
	// since reports whether fields introduced at v are present. Once it
	// returns true, missing trailing fields default instead of failing.
	since(v Version) bool
	rest(p *[]string)
}

func exitReason(w walker, name string, p *reason.ExitReason) {
	v := int32(*p)
	w.i32(name, &v)
	*p = reason.ExitReason(v)
}

// Encode renders r as one log line without the trailing newline.
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		return nil, &CodecError{Kind: ErrMalformed, Err: fmt.Errorf("record is nil")}
	}
	if !r.Type.Known() {
		return nil, &CodecError{Kind: ErrBadEventType, Type: r.Type}
	}
	if r.Payload == nil {
		return nil, &CodecError{Kind: ErrMalformed, Type: r.Type, Err: fmt.Errorf("payload is nil")}
	}
	if want := reflect.TypeOf(NewPayload(r.Type)); reflect.TypeOf(r.Payload) != want {
		return nil, &CodecError{Kind: ErrMalformed, Type: r.Type, Err: fmt.Errorf("payload %T does not match event type", r.Payload)}
	}
	v, err := ParseVersion(r.Version)
	if err != nil {
		return nil, &CodecError{Kind: ErrMalformed, Type: r.Type, Field: "version", Err: err}
	}
	if !supported(v) {
		return nil, &CodecError{Kind: ErrUnsupportedVersion, Type: r.Type, Err: fmt.Errorf("version %s", r.Version)}
	}

	e := &encoder{version: v, typ: r.Type}
	e.str("version", &r.Version)
	e.buf.WriteByte(' ')
	e.buf.WriteString(strconv.FormatInt(int64(r.Type), 10))
	e.buf.WriteByte(' ')
	e.buf.WriteString(strconv.FormatInt(r.Time, 10))
	r.Payload.walk(e)
	if e.err != nil {
		return nil, e.err
	}
	return e.buf.Bytes(), nil
}

// Decode parses one log line. Trailing CR/LF are ignored. A record is either
// returned complete or not at all.
func Decode(line []byte) (*Record, error) {
	line = bytes.TrimRight(line, "\r\n")
	toks, err := tokenize(string(line))
	if err != nil {
		return nil, err
	}
	if len(toks) < 3 {
		return nil, &CodecError{Kind: ErrTruncated, Field: "header"}
	}

	rec := &Record{Version: toks[0].text}
	v, err := ParseVersion(rec.Version)
	if err != nil {
		return nil, &CodecError{Kind: ErrMalformed, Field: "version", Err: err}
	}
	if !supported(v) {
		return nil, &CodecError{Kind: ErrUnsupportedVersion, Err: fmt.Errorf("version %s", rec.Version)}
	}

	if toks[1].quoted {
		return nil, &CodecError{Kind: ErrMalformed, Field: "type"}
	}
	t, err := strconv.ParseInt(toks[1].text, 10, 32)
	if err != nil {
		return nil, &CodecError{Kind: ErrMalformed, Field: "type", Err: err}
	}
	rec.Type = Type(t)
	if !rec.Type.Known() {
		return nil, &CodecError{Kind: ErrBadEventType, Type: rec.Type}
	}

	if toks[2].quoted {
		return nil, &CodecError{Kind: ErrMalformed, Type: rec.Type, Field: "eventTime"}
	}
	rec.Time, err = strconv.ParseInt(toks[2].text, 10, 64)
	if err != nil {
		return nil, &CodecError{Kind: ErrMalformed, Type: rec.Type, Field: "eventTime", Err: err}
	}

	d := &decoder{toks: toks[3:], version: v, typ: rec.Type}
	rec.Payload = NewPayload(rec.Type)
	rec.Payload.walk(d)
	if d.err != nil {
		return nil, d.err
	}
	return rec, nil
}

type encoder struct {
	buf     bytes.Buffer
	version Version
	typ     Type
	err     *CodecError
}

func (e *encoder) fail(field string, err error) {
	if e.err == nil {
		e.err = &CodecError{Kind: ErrMalformed, Type: e.typ, Field: field, Err: err}
	}
}

func (e *encoder) sep() {
	if e.buf.Len() > 0 {
		e.buf.WriteByte(' ')
	}
}

func (e *encoder) i32(_ string, p *int32) {
	e.sep()
	e.buf.WriteString(strconv.FormatInt(int64(*p), 10))
}

func (e *encoder) i64(_ string, p *int64) {
	e.sep()
	e.buf.WriteString(strconv.FormatInt(*p, 10))
}

func (e *encoder) f64(_ string, p *float64) {
	e.sep()
	e.buf.WriteString(strconv.FormatFloat(*p, 'g', -1, 64))
}

func (e *encoder) str(name string, p *string) {
	if strings.ContainsAny(*p, "\r\n") {
		e.fail(name, fmt.Errorf("string contains a line break"))
		return
	}
	e.sep()
	e.buf.WriteByte('"')
	e.buf.WriteString(strings.ReplaceAll(*p, `"`, `""`))
	e.buf.WriteByte('"')
}

func (e *encoder) strs(name string, p *[]string) {
	n := int32(len(*p))
	e.i32(name, &n)
	for i := range *p {
		e.str(name, &(*p)[i])
	}
}

func (e *encoder) i32s(name string, p *[]int32) {
	n := int32(len(*p))
	e.i32(name, &n)
	for i := range *p {
		e.i32(name, &(*p)[i])
	}
}

func (e *encoder) i64s(name string, p *[]int64) {
	n := int32(len(*p))
	e.i32(name, &n)
	for i := range *p {
		e.i64(name, &(*p)[i])
	}
}

func (e *encoder) status(name string, s *Status, f *StatusFlags) {
	v := StatusToWire(*s, *f)
	e.i32(name, &v)
}

func (e *encoder) since(v Version) bool {
	return e.err == nil && e.version.AtLeast(v)
}

func (e *encoder) rest(p *[]string) {
	for _, raw := range *p {
		if strings.ContainsAny(raw, "\r\n") || strings.TrimSpace(raw) == "" {
			e.fail("tokens", fmt.Errorf("invalid raw token %q", raw))
			return
		}
		e.sep()
		e.buf.WriteString(raw)
	}
}

type decoder struct {
	toks     []token
	pos      int
	version  Version
	typ      Type
	optional bool
	done     bool
	err      *CodecError
}

func (d *decoder) fail(kind error, field string, err error) {
	if d.err == nil {
		d.err = &CodecError{Kind: kind, Type: d.typ, Field: field, Err: err}
	}
}

func (d *decoder) next(name string) (token, bool) {
	if d.err != nil || d.done {
		return token{}, false
	}
	if d.pos >= len(d.toks) {
		if d.optional {
			d.done = true
		} else {
			d.fail(ErrTruncated, name, nil)
		}
		return token{}, false
	}
	t := d.toks[d.pos]
	d.pos++
	return t, true
}

func (d *decoder) integer(name string, bitSize int) (int64, bool) {
	t, ok := d.next(name)
	if !ok {
		return 0, false
	}
	if t.quoted {
		d.fail(ErrMalformed, name, fmt.Errorf("expected number, got string"))
		return 0, false
	}
	v, err := strconv.ParseInt(t.text, 10, bitSize)
	if err != nil {
		d.fail(ErrMalformed, name, err)
		return 0, false
	}
	return v, true
}

func (d *decoder) count(name string) (int, bool) {
	n, ok := d.integer(name, 32)
	if !ok {
		return 0, false
	}
	if n < 0 {
		d.fail(ErrMalformed, name, fmt.Errorf("negative count %d", n))
		return 0, false
	}
	if int(n) > len(d.toks)-d.pos {
		if d.optional {
			d.done = true
		} else {
			d.fail(ErrTruncated, name, fmt.Errorf("count %d exceeds remaining fields", n))
		}
		return 0, false
	}
	return int(n), true
}

func (d *decoder) i32(name string, p *int32) {
	if v, ok := d.integer(name, 32); ok {
		*p = int32(v)
	}
}

func (d *decoder) i64(name string, p *int64) {
	if v, ok := d.integer(name, 64); ok {
		*p = v
	}
}

func (d *decoder) f64(name string, p *float64) {
	t, ok := d.next(name)
	if !ok {
		return
	}
	if t.quoted {
		d.fail(ErrMalformed, name, fmt.Errorf("expected number, got string"))
		return
	}
	v, err := strconv.ParseFloat(t.text, 64)
	if err != nil {
		d.fail(ErrMalformed, name, err)
		return
	}
	*p = v
}

func (d *decoder) str(name string, p *string) {
	if t, ok := d.next(name); ok {
		*p = t.text
	}
}

func (d *decoder) strs(name string, p *[]string) {
	n, ok := d.count(name)
	if !ok || n == 0 {
		return
	}
	out := make([]string, n)
	for i := range out {
		t, ok := d.next(name)
		if !ok {
			return
		}
		out[i] = t.text
	}
	*p = out
}

func (d *decoder) i32s(name string, p *[]int32) {
	n, ok := d.count(name)
	if !ok || n == 0 {
		return
	}
	out := make([]int32, n)
	for i := range out {
		v, ok := d.integer(name, 32)
		if !ok {
			return
		}
		out[i] = int32(v)
	}
	*p = out
}

func (d *decoder) i64s(name string, p *[]int64) {
	n, ok := d.count(name)
	if !ok || n == 0 {
		return
	}
	out := make([]int64, n)
	for i := range out {
		v, ok := d.integer(name, 64)
		if !ok {
			return
		}
		out[i] = v
	}
	*p = out
}

func (d *decoder) status(name string, s *Status, f *StatusFlags) {
	v, ok := d.integer(name, 32)
	if !ok {
		return
	}
	st, flags, err := StatusFromWire(int32(v))
	if err != nil {
		d.fail(ErrMalformed, name, err)
		return
	}
	*s, *f = st, flags
}

func (d *decoder) since(v Version) bool {
	if d.err != nil || d.done || !d.version.AtLeast(v) {
		return false
	}
	d.optional = true
	return true
}

func (d *decoder) rest(p *[]string) {
	if d.err != nil || d.pos >= len(d.toks) {
		return
	}
	out := make([]string, 0, len(d.toks)-d.pos)
	for _, t := range d.toks[d.pos:] {
		out = append(out, t.raw)
	}
	d.pos = len(d.toks)
	*p = out
}

type token struct {
	text   string
	raw    string
	quoted bool
}

func tokenize(line string) ([]token, error) {
	var toks []token
	n := len(line)
	i := 0
	for {
		for i < n && (line[i] == ' ' || line[i] == '\t') {
			i++
		}
		if i >= n {
			return toks, nil
		}

		start := i
		if line[i] != '"' {
			for i < n && line[i] != ' ' && line[i] != '\t' {
				i++
			}
			toks = append(toks, token{text: line[start:i], raw: line[start:i]})
			continue
		}

		var sb strings.Builder
		i++
		closed := false
		for i < n {
			c := line[i]
			if c == '"' {
				if i+1 < n && line[i+1] == '"' {
					sb.WriteByte('"')
					i += 2
					continue
				}
				i++
				closed = true
				break
			}
			sb.WriteByte(c)
			i++
		}
		if !closed {
			return nil, &CodecError{Kind: ErrTruncated, Err: fmt.Errorf("unterminated string at column %d", start+1)}
		}
		if i < n && line[i] != ' ' && line[i] != '\t' {
			return nil, &CodecError{Kind: ErrMalformed, Err: fmt.Errorf("unexpected character after string at column %d", i+1)}
		}
		toks = append(toks, token{text: sb.String(), raw: line[start:i], quoted: true})
	}
}
