// Package config defines the per-component JSON configuration structs
// and a small loader that reads them from a single JSON document.
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Enumerator configures the Enumerator state machine.
type Enumerator struct {
	AutoEnumerateBeforeInvoked bool `json:"autoEnumerateBeforeInvoked"`
	EnumerateOnLaunch          bool `json:"enumerateOnLaunch"`
	MetadataToMessages         bool `json:"metadataToMessages"`
}

// MessagingInstance identifies one messaging-layer endpoint the Sensor
// Reader should publish async reports to.
type MessagingInstance struct {
	Type     string `json:"type"`
	Instance string `json:"instance"`
}

// SensorReader configures the Sensor-FRC Reader worker.
type SensorReader struct {
	AutoRun       bool                `json:"autoRun"`
	PeriodMinutes int                 `json:"period"`
	RetryMinutes  int                 `json:"retryPeriod"`
	AsyncReports  bool                `json:"asyncReports"`
	MessagingList []MessagingInstance `json:"messagingList"`
}

// Period returns the configured polling period as a time.Duration.
func (s SensorReader) Period() time.Duration {
	return time.Duration(s.PeriodMinutes) * time.Minute
}

// RetryPeriod returns the configured retry backoff as a time.Duration.
func (s SensorReader) RetryPeriod() time.Duration {
	return time.Duration(s.RetryMinutes) * time.Minute
}

// JSONDpaAPIRaw configures the raw DPA passthrough message API.
type JSONDpaAPIRaw struct {
	AsyncDpaMessage bool   `json:"asyncDpaMessage"`
	Instance        string `json:"instance"`
}

// Cache configures the Repository Cache client (an external
// collaborator; this struct only carries the knobs the daemon itself
// reads to talk to it).
type Cache struct {
	URLRepo                  string `json:"urlRepo"`
	IqrfRepoCache            string `json:"iqrfRepoCache"`
	CheckPeriodInMinutes     int    `json:"checkPeriodInMinutes"`
	DownloadIfRepoCacheEmpty bool   `json:"downloadIfRepoCacheEmpty"`
}

// CheckPeriod returns the configured refresh period as a
// time.Duration, floored at one minute per the config contract
// (checkPeriodInMinutes >= 1).
func (c Cache) CheckPeriod() time.Duration {
	minutes := c.CheckPeriodInMinutes
	if minutes < 1 {
		minutes = 1
	}
	return time.Duration(minutes) * time.Minute
}

// Store configures the Persistence Store.
type Store struct {
	DatabasePath     string `json:"databasePath"`
	AuthDatabasePath string `json:"authDatabasePath"`
	MigrationsDir    string `json:"migrationsDir"`
}

// Daemon is the top-level configuration document: one JSON file
// aggregating every component's config under its own key, the layout
// cmd/iqrfgd's loader expects.
type Daemon struct {
	Enumerator    Enumerator    `json:"enumerator"`
	SensorReader  SensorReader  `json:"sensorReader"`
	JSONDpaAPIRaw JSONDpaAPIRaw `json:"jsonDpaApiRaw"`
	Cache         Cache         `json:"cache"`
	Store         Store         `json:"store"`
}

// Load reads and unmarshals a Daemon configuration document from path.
func Load(path string) (Daemon, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Daemon{}, errors.Wrapf(err, "read configuration file %s", path)
	}
	var d Daemon
	if err := json.Unmarshal(raw, &d); err != nil {
		return Daemon{}, errors.Wrapf(err, "parse configuration file %s", path)
	}
	return d, nil
}
