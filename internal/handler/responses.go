package handler

import (
	"github.com/valyala/fasttemplate"

	"github.com/SuperTylerX/COMP445-A2/internal/protocol"
)

const (
	statusOK                  = "200 OK"
	statusForbidden           = "403 Forbidden"
	statusNotFound            = "404 Not Found"
	statusMethodNotAllowed    = "405 Method Not Allowed"
	statusConflict            = "409 Conflict"
	statusPayloadTooLarge     = "413 Payload Too Large"
	statusInternalServerError = "500 Internal Server Error"
)

var (
	listingLine = fasttemplate.New("{kind}: {name}\r\n", "{", "}")
	attachment  = fasttemplate.New("attachment; filename={name}", "{", "}")
	written     = fasttemplate.New("Successfully written to file {name}", "{", "}")
)

// plain builds one of the fixed text outcomes.
func plain(status, body string) *protocol.Response {
	resp := protocol.NewResponse(status, []byte(body))
	resp.Headers["content-type"] = "text/plain"
	resp.Headers["content-disposition"] = "inline"
	return resp
}

func forbidden() *protocol.Response {
	return plain(statusForbidden, "Forbidden")
}

func directoryExists() *protocol.Response {
	return plain(statusForbidden, "The file could not be created because there is a folder with the same name")
}

func notFound() *protocol.Response {
	return plain(statusNotFound, "404 File does not exist!")
}

func methodNotAllowed() *protocol.Response {
	return plain(statusMethodNotAllowed, "Method Not Allowed")
}

func conflict() *protocol.Response {
	return plain(statusConflict, "Other thread is processing the file")
}

// InternalError is the outcome for any failure without a more specific answer.
func InternalError() *protocol.Response {
	return plain(statusInternalServerError, "Internal Server Error")
}

// PayloadTooLarge is sent when a request declares a body over the limit.
func PayloadTooLarge() *protocol.Response {
	return plain(statusPayloadTooLarge, "Payload Too Large")
}
