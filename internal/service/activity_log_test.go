package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbcdev/attend-sync/internal/models"
)

func TestActivityLogCapsAtHundred(t *testing.T) {
	log := NewActivityLog(nil)

	base := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	tick := 0
	log.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for i := 0; i < 150; i++ {
		log.Infof("entry %d", i)
	}

	entries := log.Entries()
	require.Len(t, entries, 100)
	assert.Equal(t, "entry 50", entries[0].Message)
	assert.Equal(t, "entry 149", entries[99].Message)

	for i := 1; i < len(entries); i++ {
		assert.True(t, entries[i].Timestamp.After(entries[i-1].Timestamp),
			fmt.Sprintf("entries out of order at %d", i))
	}
}

func TestActivityLogLevels(t *testing.T) {
	log := NewActivityLog(nil)
	log.Infof("synced")
	log.Warnf("odd row id")
	log.Errorf("api down")

	entries := log.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, models.LogLevelInfo, entries[0].Level)
	assert.Equal(t, models.LogLevelWarning, entries[1].Level)
	assert.Equal(t, models.LogLevelError, entries[2].Level)
}

func TestActivityLogEntriesReturnsCopy(t *testing.T) {
	log := NewActivityLog(nil)
	log.Infof("one")

	entries := log.Entries()
	entries[0].Message = "mutated"

	assert.Equal(t, "one", log.Entries()[0].Message)
}
