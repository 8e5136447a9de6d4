package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/pkg/sftp"

	"gitlab.bluewillows.net/root/sftpdeck/pkg/session"
)

// errMissingAttributes is returned when an entry carries no SFTP attributes.
var errMissingAttributes = errors.New("entry has no SFTP attributes")

// dirReader reads directory entries. *sftp.Client satisfies it.
type dirReader interface {
	ReadDir(p string) ([]os.FileInfo, error)
}

// List returns the entries of dir on the remote host. The "." and ".."
// entries are always dropped; other dot-files only when showHidden is false.
// On any read error nothing is returned.
func (e *Executor) List(ctx context.Context, sess Session, dir string, showHidden bool) ([]File, error) {
	client, err := sess.Client()
	if err != nil {
		return nil, err
	}

	e.logger.Debug("establishing SFTP session", slog.String("session", sess.ID()))

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return nil, session.NewError("list", sess.Address(), session.ErrChannel, err)
	}
	defer func() { _ = sftpClient.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = sftpClient.Close() })
	defer stop()

	e.logger.Debug("reading directory",
		slog.String("session", sess.ID()),
		slog.String("path", dir),
		slog.Bool("show_hidden", showHidden),
	)

	files, err := readFiles(sftpClient, dir, showHidden)
	if err != nil {
		return nil, session.NewError("list", sess.Address(), session.ErrTransfer, withContext(ctx, err))
	}

	e.logger.Debug("directory read successfully",
		slog.String("path", dir),
		slog.Int("entries", len(files)),
	)

	return files, nil
}

// readFiles reads dir through r and translates the visible entries.
func readFiles(r dirReader, dir string, showHidden bool) ([]File, error) {
	infos, err := r.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	files := make([]File, 0, len(infos))
	for _, info := range infos {
		if !visible(info.Name(), showHidden) {
			continue
		}

		f, err := toFile(dir, info)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	return files, nil
}

func visible(name string, showHidden bool) bool {
	if name == "." || name == ".." {
		return false
	}
	return showHidden || !strings.HasPrefix(name, ".")
}

// toFile converts an SFTP directory entry into a File.
func toFile(dir string, info os.FileInfo) (File, error) {
	stat, ok := info.Sys().(*sftp.FileStat)
	if !ok || stat == nil {
		return File{}, fmt.Errorf("%s: %w", info.Name(), errMissingAttributes)
	}

	return File{
		Path:        path.Join(dir, info.Name()),
		Filename:    info.Name(),
		IsDir:       stat.FileMode().IsDir(),
		Size:        stat.Size,
		Modified:    uint64(stat.Mtime),
		Access:      uint64(stat.Atime),
		Permissions: stat.Mode,
		Owner:       stat.UID,
		Group:       stat.GID,
	}, nil
}
