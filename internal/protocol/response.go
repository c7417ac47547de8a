package protocol

import (
	"bufio"
	"io"
	"sort"
	"strconv"
)

// Version is written at the start of every status line.
const Version = "HTTP/1.0"

// Response is built by one handler and written once.
type Response struct {
	Status  string
	Headers map[string]string
	Body    []byte
}

// NewResponse returns a response carrying body with its content-length set.
func NewResponse(status string, body []byte) *Response {
	return &Response{
		Status: status,
		Headers: map[string]string{
			"content-length": strconv.Itoa(len(body)),
		},
		Body: body,
	}
}

// StatusCode returns the numeric code at the start of Status, or 0.
func (r *Response) StatusCode() int {
	if len(r.Status) < 3 {
		return 0
	}
	code, err := strconv.Atoi(r.Status[:3])
	if err != nil {
		return 0
	}
	return code
}

// WriteTo writes the status line, headers sorted by name, a blank line and
// the raw body.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	names := make([]string, 0, len(r.Headers))
	for name := range r.Headers {
		names = append(names, name)
	}
	sort.Strings(names)

	cw := &countWriter{w: w}
	bw := bufio.NewWriter(cw)
	bw.WriteString(Version + " " + r.Status + "\r\n")
	for _, name := range names {
		bw.WriteString(name + ": " + r.Headers[name] + "\r\n")
	}
	bw.WriteString("\r\n")
	bw.Write(r.Body)
	err := bw.Flush()
	return cw.n, err
}

type countWriter struct {
	w io.Writer
	n int64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
