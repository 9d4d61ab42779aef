package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"enumerator": {"autoEnumerateBeforeInvoked": true, "enumerateOnLaunch": true, "metadataToMessages": false},
		"sensorReader": {"autoRun": true, "period": 30, "retryPeriod": 5, "asyncReports": true, "messagingList": [{"type": "mqtt", "instance": "default"}]},
		"jsonDpaApiRaw": {"asyncDpaMessage": true, "instance": "default"},
		"cache": {"urlRepo": "https://repository.iqrfalliance.org/api", "iqrfRepoCache": "/var/cache/iqrf-repo", "checkPeriodInMinutes": 1440, "downloadIfRepoCacheEmpty": true},
		"store": {"databasePath": "/var/lib/iqrfgd/iqrfgd.db", "authDatabasePath": "/var/lib/iqrfgd/auth.db", "migrationsDir": "migrations"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	d, err := Load(path)
	require.NoError(t, err)

	assert.True(t, d.Enumerator.AutoEnumerateBeforeInvoked)
	assert.Equal(t, 30*time.Minute, d.SensorReader.Period())
	assert.Equal(t, 5*time.Minute, d.SensorReader.RetryPeriod())
	assert.Equal(t, "mqtt", d.SensorReader.MessagingList[0].Type)
	assert.Equal(t, 1440*time.Minute, d.Cache.CheckPeriod())
}

func TestCacheCheckPeriodFloorsAtOneMinute(t *testing.T) {
	assert.Equal(t, time.Minute, Cache{CheckPeriodInMinutes: 0}.CheckPeriod())
}
