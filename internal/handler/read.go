package handler

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/SuperTylerX/COMP445-A2/internal/filelock"
	"github.com/SuperTylerX/COMP445-A2/internal/protocol"
	"github.com/SuperTylerX/COMP445-A2/internal/resolve"
)

// listDirectory writes one "File: name" or "Directory: name" line per direct
// child. Children that are neither (sockets, dangling links) are left out.
func (d *Dispatcher) listDirectory(target resolve.Target) *protocol.Response {
	entries, err := os.ReadDir(target.Path)
	if err != nil {
		d.logger().Error("list directory", "path", target.Path, "error", err)
		return InternalError()
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	// Collators keep scratch buffers, so one per listing.
	collate.New(language.Und, collate.IgnoreCase).SortStrings(names)

	var body bytes.Buffer
	for _, name := range names {
		info, err := os.Stat(filepath.Join(target.Path, name))
		if err != nil {
			continue
		}
		var kind string
		switch {
		case info.IsDir():
			kind = "Directory"
		case info.Mode().IsRegular():
			kind = "File"
		default:
			continue
		}
		body.WriteString(listingLine.ExecuteString(map[string]interface{}{"kind": kind, "name": name}))
	}

	resp := protocol.NewResponse(statusOK, body.Bytes())
	resp.Headers["content-type"] = "text/plain"
	resp.Headers["content-disposition"] = "inline"
	return resp
}

// readFile serves a file under a shared lock.
func (d *Dispatcher) readFile(target resolve.Target) *protocol.Response {
	log := d.logger()

	h, err := d.Locks.Acquire(target.Path, filelock.Shared, d.Read)
	switch {
	case errors.Is(err, filelock.ErrContended):
		log.Error("gave up waiting for read lock", "path", target.Path)
		return InternalError()
	case errors.Is(err, fs.ErrNotExist):
		// Removed after the target was sampled.
		return notFound()
	case err != nil:
		log.Error("read lock", "path", target.Path, "error", err)
		return InternalError()
	}
	defer h.Release()

	data, err := io.ReadAll(h.File())
	if err != nil {
		log.Error("read file", "path", target.Path, "error", err)
		return InternalError()
	}
	if !d.ExactReads {
		data = joinLines(data)
	}
	log.Debug("read file", "path", target.Path, "size", humanize.Bytes(uint64(len(data))))

	resp := protocol.NewResponse(statusOK, data)
	if ct, ok := d.contentType(target.Path); ok {
		resp.Headers["content-type"] = ct
	}
	resp.Headers["content-disposition"] = attachment.ExecuteString(map[string]interface{}{"name": target.Name()})
	return resp
}

// joinLines concatenates the lines of data without their terminators. CRLF,
// LF and lone CR all end a line.
func joinLines(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		if b != '\r' && b != '\n' {
			out = append(out, b)
		}
	}
	return out
}
