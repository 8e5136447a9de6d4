package remote

import (
	"os"
	"time"
)

// File is one entry of a remote directory listing.
type File struct {
	// Path is the listing path joined with Filename.
	Path string `json:"path"`

	// Filename is the raw entry name as reported by the server.
	Filename string `json:"filename"`

	IsDir bool   `json:"is_dir"`
	Size  uint64 `json:"size"`

	// Modified and Access are unix timestamps in seconds.
	Modified uint64 `json:"modified"`
	Access   uint64 `json:"access"`

	// Permissions holds the raw SFTP mode bits, including the file type.
	Permissions uint32 `json:"permissions"`

	Owner uint32 `json:"owner"`
	Group uint32 `json:"group"`
}

// ModTime returns Modified as a time.Time.
func (f File) ModTime() time.Time {
	return time.Unix(int64(f.Modified), 0)
}

// Mode returns the permission bits with the directory flag set for directories.
func (f File) Mode() os.FileMode {
	mode := os.FileMode(f.Permissions & 0o777)
	if f.IsDir {
		mode |= os.ModeDir
	}
	return mode
}
