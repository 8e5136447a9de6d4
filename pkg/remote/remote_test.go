package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/spf13/afero"

	"gitlab.bluewillows.net/root/sftpdeck/internal/sshtest"
	"gitlab.bluewillows.net/root/sftpdeck/pkg/connection"
	"gitlab.bluewillows.net/root/sftpdeck/pkg/session"
)

// fakeInfo is an os.FileInfo with SFTP attributes.
type fakeInfo struct {
	name string
	sys  any
}

func (f fakeInfo) Name() string       { return f.name }
func (f fakeInfo) Size() int64        { return 0 }
func (f fakeInfo) Mode() os.FileMode  { return 0 }
func (f fakeInfo) ModTime() time.Time { return time.Time{} }
func (f fakeInfo) IsDir() bool        { return false }
func (f fakeInfo) Sys() any           { return f.sys }

func entry(name string) os.FileInfo {
	return fakeInfo{name: name, sys: &sftp.FileStat{
		Size:  42,
		Mode:  0o100644,
		Mtime: 1700000000,
		Atime: 1700000100,
		UID:   1000,
		GID:   100,
	}}
}

type fakeDir struct {
	infos []os.FileInfo
	err   error
}

func (d fakeDir) ReadDir(string) ([]os.FileInfo, error) {
	return d.infos, d.err
}

func names(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Filename
	}
	return out
}

func TestReadFiles_Filtering(t *testing.T) {
	dir := fakeDir{infos: []os.FileInfo{entry("a.txt"), entry(".hidden"), entry("."), entry("..")}}

	tests := []struct {
		name       string
		showHidden bool
		want       []string
	}{
		{"hide dot-files", false, []string{"a.txt"}},
		{"show dot-files", true, []string{"a.txt", ".hidden"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := readFiles(dir, "/srv", tt.showHidden)
			if err != nil {
				t.Fatalf("readFiles() error = %v", err)
			}
			got := names(files)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("readFiles() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReadFiles_Translation(t *testing.T) {
	files, err := readFiles(fakeDir{infos: []os.FileInfo{entry("a.txt")}}, "/srv/data", false)
	if err != nil {
		t.Fatalf("readFiles() error = %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("readFiles() returned %d entries, want 1", len(files))
	}

	want := File{
		Path:        "/srv/data/a.txt",
		Filename:    "a.txt",
		IsDir:       false,
		Size:        42,
		Modified:    1700000000,
		Access:      1700000100,
		Permissions: 0o100644,
		Owner:       1000,
		Group:       100,
	}
	if files[0] != want {
		t.Errorf("readFiles()[0] = %+v, want %+v", files[0], want)
	}
}

func TestReadFiles_PathJoin(t *testing.T) {
	tests := []struct {
		dir  string
		want string
	}{
		{"/srv/", "/srv/a.txt"},
		{"/", "/a.txt"},
		{"relative", "relative/a.txt"},
		{"", "a.txt"},
	}

	for _, tt := range tests {
		files, err := readFiles(fakeDir{infos: []os.FileInfo{entry("a.txt")}}, tt.dir, false)
		if err != nil {
			t.Fatalf("readFiles(%q) error = %v", tt.dir, err)
		}
		if files[0].Path != tt.want {
			t.Errorf("readFiles(%q) path = %q, want %q", tt.dir, files[0].Path, tt.want)
		}
	}
}

func TestReadFiles_Errors(t *testing.T) {
	t.Run("read error discards entries", func(t *testing.T) {
		dir := fakeDir{infos: []os.FileInfo{entry("a.txt")}, err: io.ErrUnexpectedEOF}
		files, err := readFiles(dir, "/", false)
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("readFiles() error = %v, want %v", err, io.ErrUnexpectedEOF)
		}
		if files != nil {
			t.Errorf("readFiles() = %v, want nil", files)
		}
	})

	t.Run("missing attributes", func(t *testing.T) {
		dir := fakeDir{infos: []os.FileInfo{entry("a.txt"), fakeInfo{name: "b.txt"}}}
		files, err := readFiles(dir, "/", false)
		if !errors.Is(err, errMissingAttributes) {
			t.Errorf("readFiles() error = %v, want %v", err, errMissingAttributes)
		}
		if files != nil {
			t.Errorf("readFiles() = %v, want nil", files)
		}
	})
}

func TestFile_Mode(t *testing.T) {
	f := File{Permissions: 0o040755, IsDir: true}
	if got := f.Mode(); got != os.ModeDir|0o755 {
		t.Errorf("Mode() = %v, want %v", got, os.ModeDir|0o755)
	}
	if got := (File{Modified: 60}).ModTime(); !got.Equal(time.Unix(60, 0)) {
		t.Errorf("ModTime() = %v", got)
	}
}

// chunkedReader yields at most max bytes per Read.
type chunkedReader struct {
	data  []byte
	max   int
	reads int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.max
	if n > len(p) {
		n = len(p)
	}
	if n > len(r.data) {
		n = len(r.data)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	r.reads++
	return n, nil
}

// recordingWriter records the size of every Write.
type recordingWriter struct {
	bytes.Buffer
	writes []int
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.writes = append(w.writes, len(p))
	return w.Buffer.Write(p)
}

func TestCopyChunks(t *testing.T) {
	src := make([]byte, 10000)
	for i := range src {
		src[i] = byte(i % 251)
	}

	for _, max := range []int{1, 1000, 4096, 8192} {
		r := &chunkedReader{data: src, max: max}
		var w recordingWriter

		n, err := copyChunks(&w, r)
		if err != nil {
			t.Fatalf("copyChunks(max=%d) error = %v", max, err)
		}
		if n != int64(len(src)) {
			t.Errorf("copyChunks(max=%d) = %d bytes, want %d", max, n, len(src))
		}
		if !bytes.Equal(w.Bytes(), src) {
			t.Errorf("copyChunks(max=%d) output differs from source", max)
		}
		for _, size := range w.writes {
			if size > ChunkSize {
				t.Errorf("copyChunks(max=%d) wrote %d bytes at once, want <= %d", max, size, ChunkSize)
			}
		}
	}
}

type failingWriter struct{ after int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, errors.New("disk full")
	}
	w.after--
	return len(p), nil
}

func TestCopyChunks_Errors(t *testing.T) {
	t.Run("write error", func(t *testing.T) {
		r := &chunkedReader{data: make([]byte, 10000), max: 4096}
		n, err := copyChunks(&failingWriter{after: 1}, r)
		if err == nil {
			t.Fatal("copyChunks() error = nil, want error")
		}
		if n != 4096 {
			t.Errorf("copyChunks() = %d bytes, want 4096", n)
		}
	})

	t.Run("read error", func(t *testing.T) {
		r := io.MultiReader(bytes.NewReader([]byte("partial")), errReader{io.ErrUnexpectedEOF})
		var w bytes.Buffer
		n, err := copyChunks(&w, r)
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("copyChunks() error = %v, want %v", err, io.ErrUnexpectedEOF)
		}
		if n != 7 || w.String() != "partial" {
			t.Errorf("copyChunks() wrote %d bytes %q, want partial data kept", n, w.String())
		}
	})
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

// Integration tests against the in-process SSH server.

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func connect(t *testing.T, srv *sshtest.Server) *session.Session {
	t.Helper()

	m := session.NewManager(session.WithLogger(quietLogger()), session.WithTimeout(5*time.Second))
	sess, err := m.Connect(context.Background(), connection.Connection{
		Host:     srv.Host(),
		Port:     srv.Port(),
		Username: "tester",
		Password: "pw",
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func TestExecutor_Exec(t *testing.T) {
	srv := sshtest.Start(t,
		sshtest.WithPassword("tester", "pw"),
		sshtest.WithExecHandler(func(cmd string) ([]byte, int) {
			switch cmd {
			case "echo ok":
				return []byte("ok\n"), 0
			case "false":
				return []byte("partial output"), 1
			case "binary":
				return []byte{0xff, 0xfe}, 0
			}
			return nil, 127
		}),
	)
	sess := connect(t, srv)
	e := New(WithLogger(quietLogger()))

	t.Run("output verbatim", func(t *testing.T) {
		got, err := e.Exec(context.Background(), sess, "echo ok")
		if err != nil {
			t.Fatalf("Exec() error = %v", err)
		}
		if got != "ok\n" {
			t.Errorf("Exec() = %q, want %q", got, "ok\n")
		}
	})

	t.Run("non-zero exit is not an error", func(t *testing.T) {
		got, err := e.Exec(context.Background(), sess, "false")
		if err != nil {
			t.Fatalf("Exec() error = %v", err)
		}
		if got != "partial output" {
			t.Errorf("Exec() = %q, want %q", got, "partial output")
		}
	})

	t.Run("invalid utf-8", func(t *testing.T) {
		_, err := e.Exec(context.Background(), sess, "binary")
		if !errors.Is(err, session.ErrTransfer) {
			t.Errorf("Exec() error = %v, want %v", err, session.ErrTransfer)
		}
	})
}

func TestExecutor_ClosedSession(t *testing.T) {
	srv := sshtest.Start(t, sshtest.WithPassword("tester", "pw"))
	sess := connect(t, srv)
	_ = sess.Close()

	e := New(WithLogger(quietLogger()))
	if _, err := e.Exec(context.Background(), sess, "true"); !errors.Is(err, session.ErrClosed) {
		t.Errorf("Exec() error = %v, want %v", err, session.ErrClosed)
	}
	if _, err := e.List(context.Background(), sess, "/", false); !errors.Is(err, session.ErrClosed) {
		t.Errorf("List() error = %v, want %v", err, session.ErrClosed)
	}
}

func TestExecutor_List(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", ".hidden"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("data"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	srv := sshtest.Start(t, sshtest.WithPassword("tester", "pw"))
	sess := connect(t, srv)
	e := New(WithLogger(quietLogger()))

	files, err := e.List(context.Background(), sess, dir, false)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	got := names(files)
	sort.Strings(got)
	if strings.Join(got, ",") != "a.txt,sub" {
		t.Errorf("List() = %v, want [a.txt sub]", got)
	}

	for _, f := range files {
		if f.Path != dir+"/"+f.Filename {
			t.Errorf("Path = %q, want %q", f.Path, dir+"/"+f.Filename)
		}
		if f.Filename == "sub" && !f.IsDir {
			t.Error("sub IsDir = false, want true")
		}
		if f.Filename == "a.txt" && f.Size != 4 {
			t.Errorf("a.txt Size = %d, want 4", f.Size)
		}
	}

	files, err = e.List(context.Background(), sess, dir, true)
	if err != nil {
		t.Fatalf("List(showHidden) error = %v", err)
	}
	if len(files) != 3 {
		t.Errorf("List(showHidden) = %v, want 3 entries", names(files))
	}
}

func TestExecutor_List_Errors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		srv := sshtest.Start(t, sshtest.WithPassword("tester", "pw"))
		sess := connect(t, srv)

		_, err := New(WithLogger(quietLogger())).List(context.Background(), sess, "/nonexistent/dir", false)
		if !errors.Is(err, session.ErrTransfer) {
			t.Errorf("List() error = %v, want %v", err, session.ErrTransfer)
		}
	})

	t.Run("sftp refused", func(t *testing.T) {
		srv := sshtest.Start(t, sshtest.WithPassword("tester", "pw"), sshtest.WithoutSFTP())
		sess := connect(t, srv)

		_, err := New(WithLogger(quietLogger())).List(context.Background(), sess, "/", false)
		if !errors.Is(err, session.ErrChannel) {
			t.Errorf("List() error = %v, want %v", err, session.ErrChannel)
		}
	})
}

func TestExecutor_Download(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 1000)

	srv := sshtest.Start(t,
		sshtest.WithPassword("tester", "pw"),
		sshtest.WithFile("/remote/file.bin", payload),
		sshtest.WithFile("/remote/empty", nil),
	)
	sess := connect(t, srv)

	t.Run("copies file", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		e := New(WithLogger(quietLogger()), WithFs(fs))

		if err := fs.MkdirAll("/local", 0o755); err != nil {
			t.Fatal(err)
		}
		n, err := e.Download(context.Background(), sess, "/remote/file.bin", "/local/file.bin")
		if err != nil {
			t.Fatalf("Download() error = %v", err)
		}
		if n != int64(len(payload)) {
			t.Errorf("Download() = %d bytes, want %d", n, len(payload))
		}

		got, err := afero.ReadFile(fs, "/local/file.bin")
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Error("downloaded file differs from source")
		}
	})

	t.Run("truncates existing file", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		if err := afero.WriteFile(fs, "/out", bytes.Repeat([]byte("x"), 20000), 0o644); err != nil {
			t.Fatal(err)
		}

		e := New(WithLogger(quietLogger()), WithFs(fs))
		if _, err := e.Download(context.Background(), sess, "/remote/empty", "/out"); err != nil {
			t.Fatalf("Download() error = %v", err)
		}

		info, err := fs.Stat("/out")
		if err != nil {
			t.Fatal(err)
		}
		if info.Size() != 0 {
			t.Errorf("local size = %d, want 0", info.Size())
		}
	})

	t.Run("missing remote file", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		e := New(WithLogger(quietLogger()), WithFs(fs))

		_, err := e.Download(context.Background(), sess, "/remote/missing", "/never")
		if !errors.Is(err, session.ErrChannel) {
			t.Errorf("Download() error = %v, want %v", err, session.ErrChannel)
		}
		if exists, _ := afero.Exists(fs, "/never"); exists {
			t.Error("local file created for a file the remote never announced")
		}
	})

	t.Run("local write failure", func(t *testing.T) {
		e := New(WithLogger(quietLogger()), WithFs(afero.NewReadOnlyFs(afero.NewMemMapFs())))

		_, err := e.Download(context.Background(), sess, "/remote/file.bin", "/out")
		if !errors.Is(err, session.ErrTransfer) {
			t.Errorf("Download() error = %v, want %v", err, session.ErrTransfer)
		}
	})
}
