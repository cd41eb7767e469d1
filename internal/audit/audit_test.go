package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marcelocantos/subby/pipeline"
)

func record(cmd string, codes ...int) Record {
	return Record{
		Source:    "cli",
		Pipeline:  cmd,
		Programs:  []string{"grep", "head"},
		ExitCodes: codes,
		State:     "done",
		Duration:  time.Millisecond,
		Cwd:       "/tmp",
	}
}

func TestLogAndVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	logger, err := NewLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := logger.Log(record("grep x | head", 0, i)); err != nil {
			t.Fatalf("log entry %d: %v", i, err)
		}
	}

	if err := Verify(path); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	logger, err := NewLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		_ = logger.Log(record("cat", 0))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	mid := len(data) / 2
	if data[mid] == 'a' {
		data[mid] = 'b'
	} else {
		data[mid] = 'a'
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	if err := Verify(path); err == nil {
		t.Fatal("expected verify to detect tampering")
	}
}

func TestVerifyDetectsSequenceGap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	logger, err := NewLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		_ = logger.Log(record("cat", 0))
	}

	var kept []byte
	n := 0
	err = scan(path, func(_ int, line []byte) error {
		n++
		if n != 3 {
			kept = append(kept, line...)
			kept = append(kept, '\n')
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, kept, 0o600); err != nil {
		t.Fatal(err)
	}

	if err := Verify(path); err == nil {
		t.Fatal("expected verify to detect sequence gap")
	}
}

func TestVerifyEmptyLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := Verify(path); err != nil {
		t.Fatalf("empty log should be valid: %v", err)
	}
}

func TestLoggerResumesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	logger1, err := NewLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = logger1.Log(record("first", 0))
	_ = logger1.Log(record("second", 0))

	logger2, err := NewLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = logger2.Log(record("third", 1))

	if err := Verify(path); err != nil {
		t.Fatalf("chain should be valid after restart: %v", err)
	}

	entries, err := Tail(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[2].Seq != 3 || entries[2].Pipeline != "third" {
		t.Errorf("unexpected last entry %+v", entries[2])
	}
}

func TestTailLimits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := NewLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, cmd := range []string{"a", "b", "c", "d"} {
		_ = logger.Log(record(cmd, 0))
	}

	entries, err := Tail(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Pipeline != "c" || entries[1].Pipeline != "d" {
		t.Errorf("unexpected tail %+v", entries)
	}
}

func TestRecordOfPipeline(t *testing.T) {
	p, err := pipeline.Run(context.Background(), pipeline.Line("echo hi | /bin/cat"))
	if err != nil {
		t.Fatal(err)
	}
	r := RecordOf("cli", "ignored", p, nil, 5*time.Millisecond)
	if r.ID != p.ID() {
		t.Errorf("id = %q, want %q", r.ID, p.ID())
	}
	if r.Pipeline != "echo hi | /bin/cat" {
		t.Errorf("pipeline = %q", r.Pipeline)
	}
	if len(r.Programs) != 2 || r.Programs[1] != "cat" {
		t.Errorf("programs = %v", r.Programs)
	}
	if r.State != "done" || r.ReturnCode != 0 || len(r.ExitCodes) != 2 {
		t.Errorf("unexpected record %+v", r)
	}
}

func TestRecordOfLaunchFailure(t *testing.T) {
	r := RecordOf("mcp", "nope | wc", nil, errors.New("boom"), 0)
	if r.Pipeline != "nope | wc" || r.Error != "boom" || r.ReturnCode != -1 {
		t.Errorf("unexpected record %+v", r)
	}
}

func TestTailMissingLog(t *testing.T) {
	entries, err := Tail(filepath.Join(t.TempDir(), "none.jsonl"), 5)
	if err != nil || len(entries) != 0 {
		t.Errorf("got %v, %v", entries, err)
	}
	if err := Verify(filepath.Join(t.TempDir(), "none.jsonl")); err == nil {
		t.Error("verify of a missing log should fail")
	}
}
