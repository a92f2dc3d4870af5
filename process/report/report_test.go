package report

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"cardscan/models"
	"cardscan/pkg/calibration"
	"cardscan/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAndPrint(t *testing.T) {
	s, err := store.OpenGorm(store.Config{Driver: store.DriverSQLite, DSN: filepath.Join(t.TempDir(), "r.db"), AutoMigrate: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	base := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	for _, r := range []struct {
		expected string
		flags    calibration.Flags
		at       time.Time
	}{
		{"Goblin Guide", calibration.Flags{IsCorrect: true}, base},
		{"goblin guide ", calibration.Flags{IsAlmostCorrect: true}, base.Add(time.Hour)},
		{"Lightning Bolt", calibration.Flags{}, base.Add(2 * time.Hour)},
		{"Old Card", calibration.Flags{IsCorrect: true}, base.AddDate(0, -2, 0)},
	} {
		require.NoError(t, s.Save(ctx, &models.CalibrationResult{
			ExpectedText: r.expected, ExtractedText: "x", Confidence: 60,
			Flags: r.flags, FeedbackType: r.flags.Primary(), Timestamp: r.at,
		}))
	}

	sqlDB, err := s.DB().DB()
	require.NoError(t, err)
	rep, err := Load(ctx, sqlDB, base.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Overall.Total)
	assert.Equal(t, 1, rep.Overall.Correct)
	assert.Equal(t, 1, rep.Overall.AlmostCorrect)
	assert.Equal(t, 33.33, rep.Overall.Accuracy)
	require.Len(t, rep.ByText, 2)
	assert.Equal(t, "Goblin Guide", rep.ByText[0].ExpectedText)
	assert.Equal(t, 2, rep.ByText[0].Total)

	var buf bytes.Buffer
	require.NoError(t, rep.Print(&buf, 1))
	out := buf.String()
	assert.Contains(t, out, "since 2025-06-09")
	assert.Contains(t, out, "records=3 correct=1 almost=1 contains=0 incorrect=1")
	assert.Contains(t, out, "Goblin Guide")
	assert.NotContains(t, out, "Lightning Bolt")
}

func TestPrintEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Report{Since: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}.Print(&buf, 0))
	assert.Contains(t, buf.String(), "records=0")
	assert.NotContains(t, buf.String(), "EXPECTED")
}
