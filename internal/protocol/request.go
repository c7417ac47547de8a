package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrBodyTooLarge is returned when the declared body length exceeds the
// decoder's limit.
var ErrBodyTooLarge = errors.New("declared body length exceeds limit")

var contentLength = regexp.MustCompile(`content-length:\s*(\d+)`)

var crlf = []byte("\r\n")

// Request is a decoded client request. Header names are lowercase.
type Request struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    []byte
}

// Header returns the value of the named header, matching case-insensitively.
func (r *Request) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

// Decoder reads one request off a byte stream. The message has no framing
// other than the blank line ending the header block and an optional
// content-length, so the stream is consumed byte by byte until the message is
// known to be complete.
type Decoder struct {
	r       *bufio.Reader
	maxBody int64
}

// NewDecoder returns a Decoder reading from r. A maxBody of zero or less
// disables the body length limit.
func NewDecoder(r io.Reader, maxBody int64) *Decoder {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Decoder{r: br, maxBody: maxBody}
}

// Decode reads a single request. It returns io.EOF if the stream ends before
// any byte arrives and io.ErrUnexpectedEOF if it ends mid-message.
func (d *Decoder) Decode() (*Request, error) {
	var head bytes.Buffer
	var line []byte
	var declared int64

	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return nil, readError(err, head.Len()+len(line) > 0)
		}
		line = append(line, b)
		if !bytes.HasSuffix(line, crlf) {
			continue
		}

		head.Write(line)
		if len(line) == len(crlf) {
			break
		}
		if m := contentLength.FindSubmatch(bytes.ToLower(line)); m != nil {
			n, err := strconv.ParseInt(string(m[1]), 10, 64)
			if errors.Is(err, strconv.ErrRange) {
				return nil, fmt.Errorf("%w: content-length %s", ErrBodyTooLarge, m[1])
			}
			if err != nil {
				return nil, fmt.Errorf("content-length %q: %w", m[1], err)
			}
			declared = n
		}
		line = line[:0]
	}

	if declared > math.MaxInt || (d.maxBody > 0 && declared > d.maxBody) {
		return nil, fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, declared, d.maxBody)
	}

	// Grows with the bytes that actually arrive, not the declared length.
	var body bytes.Buffer
	if _, err := io.CopyN(&body, d.r, declared); err != nil {
		return nil, readError(err, true)
	}

	req := parseHead(head.String())
	req.Body = body.Bytes()
	if req.Body == nil {
		req.Body = []byte{}
	}
	return req, nil
}

// parseHead splits the accumulated header block into the request line and
// header fields. Header lines without a colon are skipped.
func parseHead(head string) *Request {
	lines := strings.Split(strings.TrimSuffix(head, "\r\n\r\n"), "\r\n")

	req := &Request{Headers: make(map[string]string)}
	fields := strings.Fields(lines[0])
	if len(fields) > 0 {
		req.Method = fields[0]
	}
	if len(fields) > 1 {
		req.Path = fields[1]
	}

	for _, l := range lines[1:] {
		name, value, ok := strings.Cut(l, ":")
		if !ok {
			continue
		}
		req.Headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}
	return req
}

func readError(err error, started bool) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if started {
			return io.ErrUnexpectedEOF
		}
		return io.EOF
	}
	return fmt.Errorf("read request: %w", err)
}
