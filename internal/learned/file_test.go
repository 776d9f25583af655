package learned_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrisk/internal/learned"
	"docrisk/internal/signals"
)

const snapshotYAML = `
version: 42
rules:
  - rule_id: lr-total-and-font
    pattern:
      signals: [amount.total_mismatch, tamper.font_inconsistency]
      class: amount
    action: increase_weight
    confidence_adjustment: 0.1
    feedback_count: 37
    accuracy_estimate: 0.82
    enabled: true
  - rule_id: lr-missing-fields
    pattern:
      signals: [field.missing_total, field.missing_date, field.missing_merchant]
      min_match: 2
      class: missing_field
    action: add_check
    feedback_count: 12
    accuracy_estimate: 0.7
    enabled: false
`

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learned.yaml")
	require.NoError(t, os.WriteFile(path, []byte(snapshotYAML), 0o600))

	t.Run("loads and publishes a snapshot", func(t *testing.T) {
		snap, err := learned.FileSource{Path: path}.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(42), snap.Version)
		require.Len(t, snap.Rules, 2)
		assert.Equal(t, learned.ActionIncreaseWeight, snap.Rules[0].Action)
		assert.Equal(t, 2, snap.Rules[1].Pattern.MinMatch)
		assert.False(t, snap.Rules[1].Enabled)

		store := learned.NewStore(learned.WithRegistry(signals.MustDefault()))
		require.NoError(t, store.Refresh(context.Background(), learned.FileSource{Path: path}))
		assert.Equal(t, int64(42), store.Current().Version)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := learned.FileSource{Path: filepath.Join(t.TempDir(), "absent.yaml")}.Load(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed document", func(t *testing.T) {
		_, err := learned.ParseYAML([]byte("version: [1"))
		require.Error(t, err)
	})
}
