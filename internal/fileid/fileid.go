// Package fileid derives stable source IDs for files ingested from disk.
package fileid

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Prefix marks source IDs that were derived from a file path.
const Prefix = "file:"

// pathNamespace scopes the name-based UUIDs derived from paths.
var pathNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("docrag:file"))

// SourceID returns the source ID for absolutePath. The path is cleaned first, so a file
// that is rewritten in place replaces its earlier chunks and a removed file can be
// deleted by path alone.
func SourceID(absolutePath string) string {
	normalized := filepath.ToSlash(filepath.Clean(absolutePath))
	return Prefix + uuid.NewSHA1(pathNamespace, []byte(normalized)).String()
}

// IsFileSourceID reports whether id was produced by SourceID.
func IsFileSourceID(id string) bool {
	rest, ok := strings.CutPrefix(id, Prefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
