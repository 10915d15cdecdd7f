package ddpush

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrEncode is matched by every encoding failure
var ErrEncode = errors.New("unable to generate JSON")

// ErrPayloadTooLarge is returned when the payload outgrows the configured bound.
var ErrPayloadTooLarge = errors.New("payload exceeds max size")

// EncodeError aborts an export cycle before anything is sent.
type EncodeError struct {
	Metric string
	Err    error
}

func (e *EncodeError) Error() string {
	if e.Metric == "" {
		return fmt.Sprintf("%v: %v", ErrEncode, e.Err)
	}
	return fmt.Sprintf("%v: metric %q: %v", ErrEncode, e.Metric, e.Err)
}

func (e *EncodeError) Unwrap() []error {
	return []error{ErrEncode, e.Err}
}

var (
	seriesOpen  = []byte(`{"series":[`)
	seriesClose = []byte(`]}`)
	comma       = []byte(`,`)
)

// series is one element of the submission's series array. Field order is
// the wire order.
type series struct {
	Metric string      `json:"metric"`
	Points [1][2]int64 `json:"points"`
	Type   string      `json:"type"`
	Host   string      `json:"host"`
}

// Encoder writes series payloads of the form
//
//	{"series":[{"metric":"NAME","points":[[NOW,VALUE]],"type":"gauge|counter","host":"HOST"}]}
type Encoder struct {
	cfg      ExportConfig
	maxBytes int
}

// NewEncoder creates an encoder. maxBytes <= 0 disables the size bound.
func NewEncoder(cfg ExportConfig, maxBytes int) *Encoder {
	return &Encoder{cfg: cfg, maxBytes: maxBytes}
}

// EncodeRegistry walks reg once, encoding each entry into buf as soon as it
// is read. All points share the timestamp now, truncated to seconds.
func (e *Encoder) EncodeRegistry(buf *bytes.Buffer, reg *Registry, now time.Time) error {
	w := e.begin(buf, now)
	err := reg.Walk(func(s Sample, last bool) error {
		return w.write(s, last)
	})
	return w.end(err)
}

// Encode writes samples into buf. Encoding the same samples with the same
// timestamp always yields the same bytes.
func (e *Encoder) Encode(buf *bytes.Buffer, samples []Sample, now time.Time) error {
	w := e.begin(buf, now)
	var err error
	for i, s := range samples {
		if err = w.write(s, i == len(samples)-1); err != nil {
			break
		}
	}
	return w.end(err)
}

func (e *Encoder) begin(buf *bytes.Buffer, now time.Time) *seriesWriter {
	buf.Reset()
	lw := &limitedWriter{buf: buf, max: e.maxBytes}
	enc := json.NewEncoder(lw)
	enc.SetEscapeHTML(false)

	w := &seriesWriter{cfg: e.cfg, lw: lw, enc: enc, now: now.Unix()}
	w.err = lw.write(seriesOpen)
	return w
}

type seriesWriter struct {
	cfg ExportConfig
	lw  *limitedWriter
	enc *json.Encoder
	now int64
	err error
}

func (w *seriesWriter) write(s Sample, last bool) error {
	if w.err != nil {
		return w.err
	}
	item := series{
		Metric: w.cfg.Prefix() + s.Name,
		Points: [1][2]int64{{w.now, s.Value}},
		Type:   s.Type.String(),
		Host:   w.cfg.HostTag(),
	}
	if err := w.enc.Encode(&item); err != nil {
		return &EncodeError{Metric: s.Name, Err: err}
	}
	// json.Encoder terminates every value with a newline
	w.lw.buf.Truncate(w.lw.buf.Len() - 1)
	if !last {
		if err := w.lw.write(comma); err != nil {
			return &EncodeError{Metric: s.Name, Err: err}
		}
	}
	return nil
}

func (w *seriesWriter) end(err error) error {
	if err == nil {
		err = w.err
	}
	if err == nil {
		err = w.lw.write(seriesClose)
	}
	if err == nil {
		return nil
	}
	w.lw.buf.Reset()
	var encErr *EncodeError
	if errors.As(err, &encErr) {
		return err
	}
	return &EncodeError{Err: err}
}

// limitedWriter appends to buf until max bytes would be exceeded.
type limitedWriter struct {
	buf *bytes.Buffer
	max int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if err := l.write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (l *limitedWriter) write(p []byte) error {
	if l.max > 0 && l.buf.Len()+len(p) > l.max {
		return ErrPayloadTooLarge
	}
	l.buf.Write(p)
	return nil
}
