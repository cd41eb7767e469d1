package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/marcelocantos/subby/internal/audit"
)

// AuditVerify checks the hash chain of the audit log at path.
func AuditVerify(w io.Writer, path string) error {
	if err := audit.Verify(path); err != nil {
		return fmt.Errorf("audit verification failed: %w", err)
	}
	fmt.Fprintln(w, "audit log integrity verified")
	return nil
}

// AuditTail prints the last n audit entries as indented JSON.
func AuditTail(w io.Writer, path string, n int) error {
	entries, err := audit.Tail(path, n)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "no audit entries")
		return nil
	}
	for _, e := range entries {
		data, err := json.MarshalIndent(e, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\n", data)
	}
	return nil
}
