package learned

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileSource reads a snapshot exported by the feedback pipeline as YAML:
//
//	version: 42
//	rules:
//	  - rule_id: lr-total-and-font
//	    pattern: {signals: [amount.total_mismatch, tamper.font_inconsistency], class: amount}
//	    action: increase_weight
//	    confidence_adjustment: 0.1
//	    feedback_count: 37
//	    accuracy_estimate: 0.82
//	    enabled: true
type FileSource struct {
	Path string
}

// Load parses the file at Path.
func (f FileSource) Load(_ context.Context) (Snapshot, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read learned snapshot %s: %w", f.Path, err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes a snapshot document.
func ParseYAML(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parse learned snapshot: %w", err)
	}
	return snap, nil
}
