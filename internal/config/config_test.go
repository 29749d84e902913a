package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// load writes body as the config file of a temp dir and loads it.
func load(t *testing.T, body string) {
	t.Helper()
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	require.NoError(t, Load(dir))
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	load(t, `{
		"logLevel": "debug",
		"defaultTag": "Tournament",
		"worldName": "quarry",
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	assert.Equal(t, "debug", GetString("logLevel"))
	assert.Equal(t, "Tournament", GetString("defaultTag"))
	assert.Equal(t, "quarry", GetString("worldName"))
	assert.Equal(t, "10.0.0.1", GetString("db.host"))
	assert.Equal(t, "5433", GetString("db.port"))
	assert.Equal(t, "postgres", GetString("db.username"), "sibling keys keep defaults")
}

func TestLoad_Defaults(t *testing.T) {
	load(t, `{}`)

	texts := map[string]string{
		"logLevel":                 "info",
		"defaultTag":               "Session",
		"logsDir":                  "./logs",
		"tablesFile":               "./tables.json",
		"tablesSource":             "file",
		"api.serverUrl":            "http://localhost:5000",
		"api.apiKey":               "",
		"db.host":                  "localhost",
		"db.port":                  "5432",
		"db.username":              "postgres",
		"db.password":              "postgres",
		"db.database":              "mining",
		"graylog.address":          "localhost:12201",
		"storage.type":             "memory",
		"storage.memory.outputDir": "./sessions",
		"otel.serviceName":         "mining",
		"otel.endpoint":            "",
	}
	for key, want := range texts {
		assert.Equal(t, want, GetString(key), key)
	}

	bools := map[string]bool{
		"graylog.enabled":               false,
		"influx.enabled":                false,
		"otel.enabled":                  false,
		"otel.insecure":                 true,
		"storage.memory.compressOutput": true,
	}
	for key, want := range bools {
		assert.Equal(t, want, GetBool(key), key)
	}

	assert.Equal(t, 3*time.Minute, GetDuration("storage.sqlite.dumpInterval"))
	assert.Equal(t, 5*time.Second, GetDuration("otel.batchTimeout"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load(filepath.Join(t.TempDir(), "absent"))
	assert.ErrorContains(t, err, "error reading config file")
}

func TestLoad_InvalidJSON(t *testing.T) {
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`{"mining": `), 0644))

	assert.Error(t, Load(dir))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("mining.seed", "42")
	assert.Equal(t, 42, GetInt("mining.seed"))
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	load(t, `{}`)

	cfg := GetStorageConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, "./sessions", cfg.Memory.OutputDir)
	assert.Equal(t, true, cfg.Memory.CompressOutput)
	assert.Equal(t, 3*time.Minute, cfg.SQLite.DumpInterval)
}

func TestGetStorageConfig_Override(t *testing.T) {
	load(t, `{
		"storage": {
			"type": "sqlite",
			"memory": { "outputDir": "/tmp/out", "compressOutput": false },
			"sqlite": { "dumpInterval": "10m", "dumpPath": "/tmp/dump.db" },
			"websocket": { "url": "ws://localhost:5000/ingest", "secret": "s3cret" }
		}
	}`)

	sc := GetStorageConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/out", sc.Memory.OutputDir)
	assert.Equal(t, false, sc.Memory.CompressOutput)
	assert.Equal(t, 10*time.Minute, sc.SQLite.DumpInterval)
	assert.Equal(t, "/tmp/dump.db", sc.SQLite.DumpPath)
	assert.Equal(t, "ws://localhost:5000/ingest", sc.WebSocket.URL)
	assert.Equal(t, "s3cret", sc.WebSocket.Secret)
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	load(t, `{}`)

	cfg := GetOTelConfig()
	assert.Equal(t, false, cfg.Enabled)
	assert.Equal(t, "mining", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, "", cfg.Endpoint)
	assert.Equal(t, true, cfg.Insecure)
}

func TestGetOTelConfig_Override(t *testing.T) {
	load(t, `{
		"otel": {
			"enabled": true,
			"serviceName": "my-service",
			"batchTimeout": "30s",
			"endpoint": "localhost:4317",
			"insecure": false
		}
	}`)

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "my-service", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4317", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}

func TestMining_Defaults(t *testing.T) {
	load(t, `{}`)

	m := Mining()
	assert.False(t, m.UseChaos)
	assert.Equal(t, 0.9, m.DepletionThreshold)
	assert.Equal(t, 10*time.Second, m.RespawnDelay)
	assert.Equal(t, 3*time.Second, m.CrumbleDelay)
	assert.Equal(t, 10*time.Second, m.DepleteDelay)
	assert.Equal(t, 0.92, m.ScaleStep)
	assert.Equal(t, 100*time.Millisecond, m.ScaleInterval)
	assert.Equal(t, 0.01, m.MinScale)
	assert.Equal(t, 7.0, m.AnchorOffset)
	assert.Equal(t, "Gold", m.FallbackType)
	assert.Equal(t, 50*time.Millisecond, m.TickInterval)
	assert.Equal(t, 1000.0, m.ImpactForce)
	assert.Equal(t, 3000.0, m.RadialDamage)
	assert.Equal(t, 500.0, m.DamageRadius)
	assert.Equal(t, 10000.0, m.TraceLength)
}

func TestMining_Override(t *testing.T) {
	load(t, `{
		"mining": {
			"useChaos": true,
			"depletionThreshold": 0.75,
			"respawnDelay": "1m",
			"fallbackType": "Iron",
			"anchorFieldClass": "BP_AnchorField",
			"seed": 1234
		}
	}`)

	m := Mining()
	assert.True(t, m.UseChaos)
	assert.Equal(t, 0.75, m.DepletionThreshold)
	assert.Equal(t, time.Minute, m.RespawnDelay)
	assert.Equal(t, "Iron", m.FallbackType)
	assert.Equal(t, "BP_AnchorField", m.AnchorFieldClass)
	assert.Equal(t, int64(1234), m.Seed)
	assert.Equal(t, 3*time.Second, m.CrumbleDelay, "unset keys keep defaults")
}

func TestSetDefaults_WithoutFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	SetDefaults()
	assert.Equal(t, "memory", GetStorageConfig().Type)
	assert.Equal(t, 10*time.Second, GetDuration("mining.respawnDelay"))
}
