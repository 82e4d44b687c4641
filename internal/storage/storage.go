package storage

import (
	"io"
)

type FileInfo struct {
	Filename    string
	ContentType string
	Size        int64
}

// Storage keeps uploaded videos and snapshot images under a base directory.
// Names returned by the Save methods are relative to that directory.
type Storage interface {
	SaveUpload(r io.Reader, info FileInfo) (string, error)
	SaveSnapshot(fileID string, sequence int, jpeg []byte) (string, error)
	OpenFile(name string) (io.ReadSeekCloser, error)
	DeleteFile(name string) error
	Path(name string) (string, error)
}
