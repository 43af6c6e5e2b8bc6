package saga

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordStalled(t *testing.T) {
	cutoff := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	old := Record{Status: StatusPendingRoleRow, UpdatedAt: cutoff.Add(-time.Hour)}
	assert.True(t, old.Stalled(cutoff))

	fresh := Record{Status: StatusPendingRoleRow, UpdatedAt: cutoff.Add(time.Minute)}
	assert.False(t, fresh.Stalled(cutoff))

	done := Record{Status: StatusComplete, UpdatedAt: cutoff.Add(-time.Hour)}
	assert.False(t, done.Stalled(cutoff))
}
