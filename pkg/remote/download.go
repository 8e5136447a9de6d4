package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	scp "github.com/bramvdbogaerde/go-scp"

	"gitlab.bluewillows.net/root/sftpdeck/pkg/session"
)

// errNotAnnounced is returned when the remote side ends the transfer
// without announcing a file.
var errNotAnnounced = errors.New("remote closed before announcing file")

// Download copies remotePath to localPath over SCP. The local file is only
// created once the remote side has announced the file. A failed transfer
// leaves whatever was written so far in place.
func (e *Executor) Download(ctx context.Context, sess Session, remotePath, localPath string) (int64, error) {
	client, err := sess.Client()
	if err != nil {
		return 0, err
	}

	e.logger.Debug("starting download",
		slog.String("session", sess.ID()),
		slog.String("remote", remotePath),
		slog.String("local", localPath),
	)

	scpClient, err := scp.NewClientBySSH(client)
	if err != nil {
		return 0, session.NewError("download", sess.Address(), session.ErrChannel, err)
	}
	scpClient.Timeout = e.transferTimeout

	pr, pw := io.Pipe()
	opened := make(chan int64, 1)
	done := make(chan error, 1)

	go func() {
		err := scpClient.CopyFromRemotePassThru(ctx, pw, remotePath, func(r io.Reader, total int64) io.Reader {
			opened <- total
			return r
		})
		_ = pw.CloseWithError(err)
		done <- err
	}()

	var size int64
	select {
	case size = <-opened:
	case err := <-done:
		select {
		case size = <-opened:
			// Announced, then failed or finished: handled by the copy below.
			done <- err
		default:
			if err == nil {
				err = errNotAnnounced
			}
			return 0, session.NewError("download", sess.Address(), session.ErrChannel, withContext(ctx, err))
		}
	}

	e.logger.Debug("remote file announced",
		slog.String("remote", remotePath),
		slog.Int64("size", size),
	)

	dst, err := e.fs.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		_ = pr.CloseWithError(err)
		<-done
		return 0, session.NewError("download", sess.Address(), session.ErrTransfer, fmt.Errorf("creating %s: %w", localPath, err))
	}

	written, copyErr := copyChunks(dst, pr)
	if copyErr != nil {
		// Unblock the SCP goroutine if it is still writing.
		_ = pr.CloseWithError(copyErr)
	}
	scpErr := <-done
	closeErr := dst.Close()

	switch {
	case copyErr != nil:
		return written, session.NewError("download", sess.Address(), session.ErrTransfer, withContext(ctx, copyErr))
	case scpErr != nil:
		return written, session.NewError("download", sess.Address(), session.ErrTransfer, withContext(ctx, scpErr))
	case closeErr != nil:
		return written, session.NewError("download", sess.Address(), session.ErrTransfer, closeErr)
	}

	e.logger.Info("download complete",
		slog.String("remote", remotePath),
		slog.String("local", localPath),
		slog.Int64("bytes", written),
	)

	return written, nil
}

// copyChunks copies src to dst in ChunkSize reads until src is exhausted.
// Every chunk is fully written before the next read.
func copyChunks(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, ChunkSize)
	var written int64

	for {
		n, err := src.Read(buf)
		if n > 0 {
			if err := writeFull(dst, buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)
		}
		if errors.Is(err, io.EOF) {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

func writeFull(dst io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := dst.Write(p)
		if err != nil {
			return fmt.Errorf("writing local file: %w", err)
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}
