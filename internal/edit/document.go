package edit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// document is a file split into lines with its byte-level layout recorded,
// so that joining it back reproduces every untouched byte.
type document struct {
	lines []string // without "\n"; may end in "\r"
	mode  os.FileMode
}

func readDocument(path string) (*document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &document{
		lines: strings.Split(string(data), "\n"),
		mode:  info.Mode().Perm(),
	}, nil
}

// line returns the 1-based line n without its terminator.
func (d *document) line(n int) (string, bool) {
	if n < 1 || n > len(d.lines) {
		return "", false
	}
	return strings.TrimSuffix(d.lines[n-1], "\r"), true
}

// replace swaps line n for repl, reusing the line's "\r" terminator.
func (d *document) replace(n int, repl []string) {
	cr := strings.HasSuffix(d.lines[n-1], "\r")
	fixed := make([]string, len(repl))
	for i, l := range repl {
		if cr {
			l += "\r"
		}
		fixed[i] = l
	}

	out := make([]string, 0, len(d.lines)+len(repl)-1)
	out = append(out, d.lines[:n-1]...)
	out = append(out, fixed...)
	out = append(out, d.lines[n:]...)
	d.lines = out
}

// append adds a line at the end, keeping a trailing newline if the file had
// one (or was empty).
func (d *document) append(l string) int {
	cr := len(d.lines) > 0 && strings.HasSuffix(d.lines[0], "\r")
	if cr {
		l += "\r"
	}

	switch {
	case len(d.lines) == 0 || (len(d.lines) == 1 && d.lines[0] == ""):
		d.lines = []string{l, ""}
		return 1
	case d.lines[len(d.lines)-1] == "":
		// "...\n" -> insert before the empty tail.
		d.lines = append(d.lines[:len(d.lines)-1], l, "")
		return len(d.lines) - 1
	default:
		d.lines = append(d.lines, l)
		return len(d.lines)
	}
}

func (d *document) bytes() []byte {
	return []byte(strings.Join(d.lines, "\n"))
}

// write replaces path atomically.
func (d *document) write(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(d.bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Chmod(d.mode); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: chmod: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: rename: %w", path, err)
	}
	return nil
}
