// Package task defines sync task descriptors and the queue that holds them.
package task

import "fmt"

// Op is the operation a task performs.
type Op int

const (
	// OpUpload copies a local file to a remote key
	OpUpload Op = iota

	// OpDownload copies a remote key to a local file
	OpDownload

	// OpMkdir creates a remote prefix
	OpMkdir

	// OpDelete removes a remote object
	OpDelete

	// OpRmdir removes an empty remote prefix. It never enters a queue;
	// prefixes are removed sequentially after their files.
	OpRmdir
)

// String returns the lowercase operation name.
func (o Op) String() string {
	switch o {
	case OpUpload:
		return "upload"
	case OpDownload:
		return "download"
	case OpMkdir:
		return "mkdir"
	case OpDelete:
		return "delete"
	case OpRmdir:
		return "rmdir"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Task is one unit of work. It is immutable once enqueued and owned by the
// worker that dequeues it.
type Task struct {
	// Op is the operation to perform
	Op Op

	// Source is the local path (upload), remote key (download, delete, mkdir)
	Source string

	// Target is the remote key (upload) or local path (download); empty otherwise
	Target string
}

// String renders the task arguments for logs and failure listings.
func (t Task) String() string {
	if t.Target == "" {
		return fmt.Sprintf("%s(%s)", t.Op, t.Source)
	}
	return fmt.Sprintf("%s(%s, %s)", t.Op, t.Source, t.Target)
}

// Upload creates an upload task.
func Upload(localPath, key string) Task {
	return Task{Op: OpUpload, Source: localPath, Target: key}
}

// Download creates a download task.
func Download(key, localPath string) Task {
	return Task{Op: OpDownload, Source: key, Target: localPath}
}

// Mkdir creates a prefix creation task.
func Mkdir(key string) Task {
	return Task{Op: OpMkdir, Source: key}
}

// Rmdir creates a prefix removal task.
func Rmdir(key string) Task {
	return Task{Op: OpRmdir, Source: key}
}

// Delete creates an object deletion task.
func Delete(key string) Task {
	return Task{Op: OpDelete, Source: key}
}
