package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const genesisInput = "subby-genesis"

// Logger is an append-only, hash-chained audit log writer. It is safe for
// concurrent use within one process.
type Logger struct {
	mu       sync.Mutex
	path     string
	seq      uint64
	prevHash string
}

// NewLogger opens or creates an audit log at the given path and resumes the
// hash chain from its last entry.
func NewLogger(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	l := &Logger{path: path, prevHash: genesisHash()}
	last, err := lastEntry(path)
	if err != nil {
		return nil, err
	}
	if last != nil {
		l.seq = last.Seq
		l.prevHash = last.Hash
	}
	return l, nil
}

// Log appends r to the log as the next link in the chain.
func (l *Logger) Log(r Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Seq:        l.seq + 1,
		Time:       time.Now().UTC(),
		PrevHash:   l.prevHash,
		ID:         r.ID,
		Source:     r.Source,
		Pipeline:   r.Pipeline,
		Programs:   r.Programs,
		ExitCodes:  r.ExitCodes,
		ReturnCode: r.ReturnCode,
		State:      r.State,
		Error:      r.Error,
		Duration:   float64(r.Duration.Microseconds()) / 1000.0,
		Cwd:        r.Cwd,
	}
	entry.Hash = computeHash(entry)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}

	// Advance only once the entry is on disk so a failed write can be retried.
	l.seq = entry.Seq
	l.prevHash = entry.Hash
	return nil
}

// Path returns the audit log file path.
func (l *Logger) Path() string {
	return l.path
}

func genesisHash() string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(genesisInput)))
}

func computeHash(e Entry) string {
	e.Hash = ""
	data, _ := json.Marshal(e)
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// scan calls fn for every non-empty line of the log, numbering from 1.
func scan(path string, fn func(n int, line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		if len(sc.Bytes()) == 0 {
			continue
		}
		if err := fn(n, sc.Bytes()); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}
	return nil
}

func lastEntry(path string) (*Entry, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	var last []byte
	err := scan(path, func(_ int, line []byte) error {
		last = append(last[:0], line...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, nil
	}
	var e Entry
	if err := json.Unmarshal(last, &e); err != nil {
		return nil, fmt.Errorf("resume audit chain: %w", err)
	}
	return &e, nil
}
