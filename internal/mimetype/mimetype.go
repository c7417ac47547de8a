// Package mimetype guesses a content type from a file name.
package mimetype

import (
	"mime"
	"path/filepath"
	"strings"
)

// types covers the extensions this server is usually asked for, so their
// answer does not depend on the host's mime tables.
var types = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".txt":  "text/plain",
	".json": "application/json",
	".gif":  "image/gif",
	".jpeg": "image/jpeg",
	".jpg":  "image/jpeg",
	".png":  "image/png",
	".css":  "text/css",
	".js":   "text/javascript",
}

// Lookup returns the content type for path, or false if none is known.
func Lookup(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return "", false
	}
	if t, ok := types[ext]; ok {
		return t, true
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t, true
	}
	return "", false
}
