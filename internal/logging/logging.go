// Package logging is darch's ambient Log Stack: a list of registered Sinks
// (console, file); every Entry is dispatched to each of them in turn.
// There is no remote-collector sink and no sink-to-sink forwarding.
//
// Grounded directly on gprovision's pkg/log package (log.go,
// console.go, file.go, cmd.go): the multiple-sinks shape (AddEntry) and
// the split between user-facing Msg* calls and technical Log* calls are
// kept, generalized from a appliance-specific LCD/remote-log-server stack
// to darch's console/file stack. Rotated log files are compressed with ulikunitz/xz, one of the
// teacher's own dependencies (used there for recovery image archives).
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ulikunitz/xz"
)

// Flag selects which entries a sink is interested in, mirroring
// gprovision's pkg/log/flags package.
type Flag int

const (
	// EndUser marks messages meant for display to the operator: short,
	// infrequent, non-technical.
	EndUser Flag = 1 << iota
	// Technical marks verbose, frequent, implementation-level messages.
	Technical
	All = EndUser | Technical
)

// Entry is one logged event.
type Entry struct {
	Time    time.Time
	Flags   Flag
	Message string
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %s", e.Time.Format(time.RFC3339), e.Message)
}

// Sink is one element of the stack.
type Sink interface {
	AddEntry(e Entry)
	Finalize()
}

var (
	mu    sync.Mutex
	sinks []Sink
)

// AddSink appends sink to the stack. Every future entry is forwarded to
// all registered sinks.
func AddSink(s Sink) {
	mu.Lock()
	defer mu.Unlock()
	sinks = append(sinks, s)
}

// FinalizeAll flushes and closes every sink, in the order they were
// added - used at process exit.
func FinalizeAll() {
	mu.Lock()
	defer mu.Unlock()
	for _, s := range sinks {
		s.Finalize()
	}
	sinks = nil
}

func dispatch(e Entry) {
	mu.Lock()
	defer mu.Unlock()
	for _, s := range sinks {
		s.AddEntry(e)
	}
}

// Msg logs a short, infrequent, end-user-facing message.
func Msg(msg string) { dispatch(Entry{Time: time.Now(), Flags: EndUser, Message: msg}) }
func Msgf(f string, a ...interface{}) { Msg(fmt.Sprintf(f, a...)) }

// Log logs a technical, potentially-frequent message.
func Log(msg string) { dispatch(Entry{Time: time.Now(), Flags: Technical, Message: msg}) }
func Logf(f string, a ...interface{}) { Log(fmt.Sprintf(f, a...)) }

// ConsoleSink writes entries matching its flag mask to an io.Writer
// (typically os.Stderr), exactly as gprovision's consoleLog does.
type ConsoleSink struct {
	w     io.Writer
	flags Flag
}

func NewConsoleSink(w io.Writer, flags Flag) *ConsoleSink {
	if flags == 0 {
		flags = All
	}
	return &ConsoleSink{w: w, flags: flags}
}

func (c *ConsoleSink) AddEntry(e Entry) {
	if e.Flags&c.flags != 0 {
		fmt.Fprintln(c.w, e.String())
	}
}
func (c *ConsoleSink) Finalize() {}

// FileSink writes every entry to a log file, rotating and xz-compressing
// the previous file once it exceeds RotateBytes.
type FileSink struct {
	dir, prefix string
	rotateBytes int64

	mu   sync.Mutex
	f    *os.File
	size int64
}

const DefaultRotateBytes = 4 << 20 // 4 MiB

// NewFileSink opens (creating if needed) a log file under dir named
// prefix-<timestamp>.log, matching gprovision's AddFileLog naming scheme.
func NewFileSink(dir, prefix string, rotateBytes int64) (*FileSink, error) {
	if rotateBytes <= 0 {
		rotateBytes = DefaultRotateBytes
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	fs := &FileSink{dir: dir, prefix: prefix, rotateBytes: rotateBytes}
	if err := fs.openNew(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileSink) openNew() error {
	name := fmt.Sprintf("%s-%s.log", fs.prefix, time.Now().Format("20060102-150405"))
	f, err := os.Create(filepath.Join(fs.dir, name))
	if err != nil {
		return err
	}
	fs.f = f
	fs.size = 0
	return nil
}

func (fs *FileSink) AddEntry(e Entry) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.f == nil {
		return
	}
	line := e.String() + "\n"
	n, err := fs.f.WriteString(line)
	if err != nil {
		return
	}
	fs.size += int64(n)
	if fs.size >= fs.rotateBytes {
		fs.rotateLocked()
	}
}

func (fs *FileSink) rotateLocked() {
	old := fs.f.Name()
	fs.f.Close()
	fs.f = nil
	if err := compressXZ(old); err != nil {
		// best effort; the uncompressed file is still on disk
		fmt.Fprintf(os.Stderr, "logging: compressing rotated log %s: %s\n", old, err)
	}
	_ = fs.openNew()
}

func compressXZ(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(path + ".xz")
	if err != nil {
		return err
	}
	w, err := xz.NewWriter(out)
	if err != nil {
		out.Close()
		return err
	}
	if _, err := io.Copy(w, in); err != nil {
		w.Close()
		out.Close()
		return err
	}
	if err := w.Close(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

func (fs *FileSink) Finalize() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.f != nil {
		fs.f.Close()
		fs.f = nil
	}
}
