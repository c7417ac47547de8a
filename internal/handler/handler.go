// Package handler turns a decoded request and its resolved target into a
// response.
package handler

import (
	"log/slog"

	"github.com/SuperTylerX/COMP445-A2/internal/filelock"
	"github.com/SuperTylerX/COMP445-A2/internal/protocol"
	"github.com/SuperTylerX/COMP445-A2/internal/resolve"
)

const (
	methodGet  = "GET"
	methodPost = "POST"
)

// Dispatcher holds the collaborators of every handler. It is never mutated
// after construction and is shared by all connections.
type Dispatcher struct {
	Locks *filelock.Controller

	// Read applies to GET on a file, Write to POST.
	Read  filelock.Policy
	Write filelock.Policy

	// MIME returns the content type for a path, if known.
	MIME func(path string) (string, bool)

	// ExactReads serves files byte for byte. When false, line terminators
	// are dropped and lines are concatenated.
	ExactReads bool

	Log *slog.Logger
}

// Dispatch picks the outcome for req against target. Every failure becomes a
// well-formed response.
func (d *Dispatcher) Dispatch(req *protocol.Request, target resolve.Target) *protocol.Response {
	if !target.Contained {
		d.logger().Warn("path escapes serve root", "path", req.Path, "resolved", target.Path)
		return forbidden()
	}

	switch req.Method {
	case methodGet:
		switch target.Kind {
		case resolve.Directory:
			return d.listDirectory(target)
		case resolve.File:
			return d.readFile(target)
		default:
			return notFound()
		}

	case methodPost:
		switch target.Kind {
		case resolve.Directory:
			return directoryExists()
		case resolve.Special:
			d.logger().Warn("refusing to write special file", "path", target.Path)
			return InternalError()
		default:
			return d.writeFile(req, target)
		}

	default:
		return methodNotAllowed()
	}
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Log
}

func (d *Dispatcher) contentType(path string) (string, bool) {
	if d.MIME == nil {
		return "", false
	}
	return d.MIME(path)
}
