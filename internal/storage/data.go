package storage

// Persistence

type WriteResult struct {
	relPath  string // run-relative path (e.g. "html/<digest>.html")
	fullPath string
	size     int64
}

func NewWriteResult(relPath string, fullPath string, size int64) WriteResult {
	return WriteResult{
		relPath:  relPath,
		fullPath: fullPath,
		size:     size,
	}
}

func (w *WriteResult) RelPath() string {
	return w.relPath
}

func (w *WriteResult) FullPath() string {
	return w.fullPath
}

func (w *WriteResult) Size() int64 {
	return w.size
}
