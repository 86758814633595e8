// Package objfs presents a filesystem-like view of a remote object store.
//
// Keys form a hierarchy through "/"-separated prefixes. A Client lists,
// stats, uploads, downloads and removes single objects, and synchronizes
// whole directory trees in both directions.
//
// # Directory operations
//
// UploadDir, DownloadDir and RemoveDir with recursive set run in three
// phases:
//
//  1. Enumeration: the source tree is walked once and every file and
//     directory becomes a task in a queue
//  2. Execution: a fixed pool of workers drains the queue, retrying each
//     task on its own with a fixed interval
//  3. Aggregation: tasks that exhausted their attempts are listed on the
//     diagnostics writer and returned as one *errors.AggregateError
//
// A failed task never stops its siblings and completed tasks are never
// undone.
//
// # Conflicts
//
// Uploads are insert-only. A byte-identical remote object is always a
// successful no-op. Any other existing target is handled by the
// ConflictPolicy of the call:
//
//	report, err := client.UploadDir(ctx, "./site", "www/", objtypes.ConflictSkip)
//
// # Backends
//
// The store package defines the remote collaborator. store/s3store adapts
// Amazon S3 and compatible services, store/miniostore adapts MinIO:
//
//	cfg, err := objfs.LoadConfigFromEnv()
//	if err != nil {
//	    return err
//	}
//	client, err := objfs.NewFromConfig(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	if err := client.Ls(ctx, os.Stdout, "/", objtypes.LsOptions{Detail: true}); err != nil {
//	    return err
//	}
package objfs
