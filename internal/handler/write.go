package handler

import (
	"errors"

	"github.com/dustin/go-humanize"

	"github.com/SuperTylerX/COMP445-A2/internal/filelock"
	"github.com/SuperTylerX/COMP445-A2/internal/protocol"
	"github.com/SuperTylerX/COMP445-A2/internal/resolve"
)

// writeFile replaces the target's content with the request body under an
// exclusive lock. Missing parent directories are created once the lock is
// granted. It never appends.
func (d *Dispatcher) writeFile(req *protocol.Request, target resolve.Target) *protocol.Response {
	log := d.logger()

	h, err := d.Locks.Acquire(target.Path, filelock.Exclusive, d.Write)
	if errors.Is(err, filelock.ErrContended) {
		log.Info("write rejected, file busy", "path", target.Path)
		return conflict()
	}
	if err != nil {
		log.Error("write lock", "path", target.Path, "error", err)
		return InternalError()
	}
	defer h.Release()

	f := h.File()
	if err := f.Truncate(0); err != nil {
		log.Error("truncate", "path", target.Path, "error", err)
		return InternalError()
	}
	if _, err := f.WriteAt(req.Body, 0); err != nil {
		log.Error("write file", "path", target.Path, "error", err)
		return InternalError()
	}
	log.Debug("wrote file", "path", target.Path, "size", humanize.Bytes(uint64(len(req.Body))))

	return plain(statusOK, written.ExecuteString(map[string]interface{}{"name": target.Name()}))
}
