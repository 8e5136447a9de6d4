package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"unicode/utf8"

	"golang.org/x/crypto/ssh"

	"gitlab.bluewillows.net/root/sftpdeck/pkg/session"
)

// errInvalidUTF8 is returned when command output is not valid UTF-8.
var errInvalidUTF8 = errors.New("command output is not valid UTF-8")

// Exec runs command on the remote host and returns its standard output
// verbatim. A non-zero exit status is not an error.
func (e *Executor) Exec(ctx context.Context, sess Session, command string) (string, error) {
	client, err := sess.Client()
	if err != nil {
		return "", err
	}

	e.logger.Debug("executing command",
		slog.String("session", sess.ID()),
		slog.String("command", command),
	)

	ch, err := client.NewSession()
	if err != nil {
		return "", session.NewError("exec", sess.Address(), session.ErrChannel, err)
	}
	defer func() { _ = ch.Close() }()

	stdout, err := ch.StdoutPipe()
	if err != nil {
		return "", session.NewError("exec", sess.Address(), session.ErrChannel, err)
	}

	if err := ch.Start(command); err != nil {
		return "", session.NewError("exec", sess.Address(), session.ErrChannel, err)
	}

	// Closing the channel unblocks the read below.
	stop := context.AfterFunc(ctx, func() { _ = ch.Close() })
	defer stop()

	out, err := io.ReadAll(stdout)
	if err != nil {
		return "", session.NewError("exec", sess.Address(), session.ErrTransfer, withContext(ctx, err))
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", session.NewError("exec", sess.Address(), session.ErrTransfer, ctxErr)
	}

	if !utf8.Valid(out) {
		return "", session.NewError("exec", sess.Address(), session.ErrTransfer, errInvalidUTF8)
	}

	if err := ch.Wait(); err != nil {
		var exitErr *ssh.ExitError
		var missingErr *ssh.ExitMissingError
		switch {
		case errors.As(err, &exitErr):
			e.logger.Debug("command exited with non-zero status",
				slog.String("session", sess.ID()),
				slog.Int("exit_code", exitErr.ExitStatus()),
			)
		case errors.As(err, &missingErr):
			e.logger.Debug("command exited without status",
				slog.String("session", sess.ID()),
			)
		default:
			return "", session.NewError("exec", sess.Address(), session.ErrTransfer, err)
		}
	}

	e.logger.Debug("command completed",
		slog.String("session", sess.ID()),
		slog.Int("stdout_len", len(out)),
	)

	return string(out), nil
}

// withContext annotates err with the context error once ctx is done.
func withContext(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}
