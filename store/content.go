package store

import (
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"
)

// DefaultContentType is used when the content type cannot be detected.
const DefaultContentType = "application/octet-stream"

// DetectContentType detects the MIME type of the local file p from its
// first bytes. Empty, unreadable and unrecognized content falls back to the
// extension.
func DetectContentType(fs billy.Filesystem, p string) string {
	file, err := fs.Open(p)
	if err != nil {
		return contentTypeFromExtension(p)
	}
	defer file.Close()

	buf := make([]byte, 512)
	n, _ := file.Read(buf)
	if n > 0 {
		if mt := mimetype.Detect(buf[:n]); !mt.Is(DefaultContentType) {
			return mt.String()
		}
	}
	return contentTypeFromExtension(p)
}

func contentTypeFromExtension(p string) string {
	if ext := strings.ToLower(path.Ext(p)); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	return DefaultContentType
}

// MarkerKey returns the key of the directory marker object of key.
func MarkerKey(key string) string {
	return strings.TrimSuffix(key, "/") + "/"
}
