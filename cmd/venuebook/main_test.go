package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeConfig(t *testing.T, driver string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`storage:
  driver: %s
  bookings_file: %s
  log_file: %s
  sqlite_path: %s
venues_file: %s
backup:
  path: %s
logging:
  level: error
`, driver,
		filepath.Join(dir, "data", "bookings.csv"),
		filepath.Join(dir, "data", "booking_log.csv"),
		filepath.Join(dir, "data", "venuebook.db"),
		filepath.Join(dir, "missing-venues.yaml"),
		filepath.Join(dir, "backups"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path, dir
}

func runCmd(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append([]string{"-config", configPath}, args...), &stdout, &stderr)
	return stdout.String(), err
}

func submitArgs(venue, slot string) []string {
	return []string{"submit",
		"-club", "Robotics", "-event", "Demo Day", "-email", "r@example.edu",
		"-date", "2026-03-14", "-slot", slot, "-venue", venue,
		"-attendance", "80", "-purpose", "Showcase",
	}
}

func TestWorkflow(t *testing.T) {
	for _, driver := range []string{"csv", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			cfgPath, dir := writeConfig(t, driver)

			out, err := runCmd(t, cfgPath, submitArgs("LT-1", "14:00-16:00")...)
			require.NoError(t, err)
			assert.Contains(t, out, "Request #1 submitted")

			out, err = runCmd(t, cfgPath, submitArgs("LT-1", "15:00-17:00")...)
			require.Error(t, err)
			assert.Contains(t, out, "LT-1 is not available")
			assert.Contains(t, out, "Lecture Theatre: LT-2")

			out, err = runCmd(t, cfgPath, "pending")
			require.NoError(t, err)
			assert.Contains(t, out, "Robotics")

			out, err = runCmd(t, cfgPath, "show", "1")
			require.NoError(t, err)
			assert.Contains(t, out, "Saturday 2026-03-14 14:00-16:00")
			assert.Contains(t, out, "Processed:   -")

			out, err = runCmd(t, cfgPath, "approve", "-comment", "enjoy", "1")
			require.NoError(t, err)
			assert.Contains(t, out, "Request #1 approved")

			_, err = runCmd(t, cfgPath, "reject", "1")
			assert.Error(t, err)

			out, err = runCmd(t, cfgPath, "check", "-venue", "LT-1", "-date", "2026-03-14", "-slot", "16:00-17:00")
			require.NoError(t, err)
			assert.Contains(t, out, "LT-1 is available")

			out, err = runCmd(t, cfgPath, "conflicts", "-venue", "LT-1", "-date", "2026-03-14", "-slot", "15:00-15:30")
			require.NoError(t, err)
			assert.Contains(t, out, "Approved")

			out, err = runCmd(t, cfgPath, "log")
			require.NoError(t, err)
			assert.Contains(t, out, "Submitted")
			assert.Contains(t, out, "enjoy")

			out, err = runCmd(t, cfgPath, "list", "-club", "Chess")
			require.NoError(t, err)
			assert.Contains(t, out, "No bookings.")

			out, err = runCmd(t, cfgPath, "slots", "-venue", "LT-1", "-date", "2026-03-14")
			require.NoError(t, err)
			assert.Contains(t, out, "14:00-15:00  booked")
			assert.Contains(t, out, "16:00-17:00  free")

			out, err = runCmd(t, cfgPath, "slots", "-free", "-venue", "LT-1", "-date", "2026-03-14")
			require.NoError(t, err)
			assert.NotContains(t, out, "booked")
			assert.Contains(t, out, "13:00-14:00  free")

			out, err = runCmd(t, cfgPath, "slots", "-windows", "-venue", "LT-1", "-date", "2026-03-14")
			require.NoError(t, err)
			assert.Equal(t, "08:00-14:00  free\n16:00-22:00  free\n", out)

			xlsx := filepath.Join(dir, "audit.xlsx")
			_, err = runCmd(t, cfgPath, "export", "-o", xlsx)
			require.NoError(t, err)
			f, err := excelize.OpenFile(xlsx)
			require.NoError(t, err)
			rows, err := f.GetRows("bookings")
			require.NoError(t, err)
			assert.Len(t, rows, 2)
			require.NoError(t, f.Close())

			out, err = runCmd(t, cfgPath, "backup")
			require.NoError(t, err)
			assert.Contains(t, out, "Backup written to")
		})
	}
}

func TestUsageErrors(t *testing.T) {
	cfgPath, _ := writeConfig(t, "csv")

	_, err := runCmd(t, cfgPath)
	assert.ErrorIs(t, err, errUsage)

	_, err = runCmd(t, cfgPath, "launch")
	assert.ErrorIs(t, err, errUsage)

	_, err = runCmd(t, cfgPath, "approve")
	assert.ErrorIs(t, err, errUsage)

	_, err = runCmd(t, cfgPath, "show", "abc")
	assert.ErrorIs(t, err, errUsage)
}
