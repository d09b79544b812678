/*
Package filesystem provides filesystem operations with retry logic for stale
file handle errors.

RAW libraries often live on network shares. When an NFS server restarts or a
share is remounted, open handles and cached attributes go stale and the next
stat or open fails with ESTALE even though the file is still there. The
helpers in this package retry those operations with exponential backoff:

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

	data, err := filesystem.ReadFileWithRetry(path, filesystem.DefaultRetryConfig())

Only ESTALE triggers a retry; every other error is returned immediately. The
defaults are 3 retries starting at 50ms and capped at 500ms.

The file reference resolver and the decoders use these helpers so that a
transient stale handle is not mistaken for a stale reference or a corrupt
file.
*/
package filesystem
