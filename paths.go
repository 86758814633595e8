package objfs

import (
	"path"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/objfs/internal/listing"
)

// RemotePrefix marks the remote side of Copy and CopyDir arguments.
const RemotePrefix = "remote:"

// objectKey converts a remote path to the key of an object: cleaned, with
// no leading separator.
func objectKey(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

// dirKey converts a remote path to a directory key: cleaned, with no leading
// separator and one trailing separator. The root is "".
func dirKey(p string) string {
	return listing.DirKey(path.Clean("/" + p))
}

// splitRemote reports whether p names the remote side and strips the prefix.
func splitRemote(p string) (string, bool) {
	if strings.HasPrefix(p, RemotePrefix) {
		return strings.TrimPrefix(p, RemotePrefix), true
	}
	return p, false
}
