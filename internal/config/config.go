package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "mining.cfg.json"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds settings for the in-memory SQLite backend.
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
}

// WebSocketConfig holds settings for the streaming backend.
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	WebSocket WebSocketConfig `json:"websocket" mapstructure:"websocket"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// MiningConfig holds the lifecycle tuning. Mineral type names are kept as
// strings and resolved by the caller.
type MiningConfig struct {
	UseChaos           bool          `json:"useChaos" mapstructure:"useChaos"`
	DepletionThreshold float64       `json:"depletionThreshold" mapstructure:"depletionThreshold"`
	RespawnDelay       time.Duration `json:"respawnDelay" mapstructure:"respawnDelay"`
	CrumbleDelay       time.Duration `json:"crumbleDelay" mapstructure:"crumbleDelay"`
	DepleteDelay       time.Duration `json:"depleteDelay" mapstructure:"depleteDelay"`
	ScaleStep          float64       `json:"scaleStep" mapstructure:"scaleStep"`
	ScaleInterval      time.Duration `json:"scaleInterval" mapstructure:"scaleInterval"`
	MinScale           float64       `json:"minScale" mapstructure:"minScale"`
	AnchorOffset       float64       `json:"anchorOffset" mapstructure:"anchorOffset"`
	AnchorFieldClass   string        `json:"anchorFieldClass" mapstructure:"anchorFieldClass"`
	FallbackType       string        `json:"fallbackType" mapstructure:"fallbackType"`
	TransformTolerance float64       `json:"transformTolerance" mapstructure:"transformTolerance"`
	Seed               int64         `json:"seed" mapstructure:"seed"`
	TickInterval       time.Duration `json:"tickInterval" mapstructure:"tickInterval"`
	ImpactForce        float64       `json:"impactForce" mapstructure:"impactForce"`
	ImpulseStrength    float64       `json:"impulseStrength" mapstructure:"impulseStrength"`
	ImpulseRadius      float64       `json:"impulseRadius" mapstructure:"impulseRadius"`
	RadialDamage       float64       `json:"radialDamage" mapstructure:"radialDamage"`
	DamageRadius       float64       `json:"damageRadius" mapstructure:"damageRadius"`
	TraceLength        float64       `json:"traceLength" mapstructure:"traceLength"`
	SphereRadius       float64       `json:"sphereRadius" mapstructure:"sphereRadius"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// SetDefaults registers every default value. Load calls it; tools that run
// without a config file call it directly.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("defaultTag", "Session")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("tablesFile", "./tables.json")
	viper.SetDefault("tablesSource", "file")
	viper.SetDefault("statusFile", "status.txt")
	viper.SetDefault("worldName", "default")

	viper.SetDefault("mining.useChaos", false)
	viper.SetDefault("mining.depletionThreshold", 0.9)
	viper.SetDefault("mining.respawnDelay", "10s")
	viper.SetDefault("mining.crumbleDelay", "3s")
	viper.SetDefault("mining.depleteDelay", "10s")
	viper.SetDefault("mining.scaleStep", 0.92)
	viper.SetDefault("mining.scaleInterval", "100ms")
	viper.SetDefault("mining.minScale", 0.01)
	viper.SetDefault("mining.anchorOffset", 7.0)
	viper.SetDefault("mining.anchorFieldClass", "")
	viper.SetDefault("mining.fallbackType", "Gold")
	viper.SetDefault("mining.transformTolerance", 1e-4)
	viper.SetDefault("mining.seed", 0)
	viper.SetDefault("mining.tickInterval", "50ms")
	viper.SetDefault("mining.impactForce", 1000.0)
	viper.SetDefault("mining.impulseStrength", 300.0)
	viper.SetDefault("mining.impulseRadius", 200.0)
	viper.SetDefault("mining.radialDamage", 3000.0)
	viper.SetDefault("mining.damageRadius", 500.0)
	viper.SetDefault("mining.traceLength", 10000.0)
	viper.SetDefault("mining.sphereRadius", 100.0)

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "mining")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "mining-metrics")
	viper.SetDefault("influx.bucket", "mining")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./sessions")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "")
	viper.SetDefault("storage.websocket.url", "")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "mining")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// GetStorageConfig returns the storage section.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// GetOTelConfig returns the otel section.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// Mining returns the lifecycle tuning section.
func Mining() MiningConfig {
	return MiningConfig{
		UseChaos:           viper.GetBool("mining.useChaos"),
		DepletionThreshold: viper.GetFloat64("mining.depletionThreshold"),
		RespawnDelay:       viper.GetDuration("mining.respawnDelay"),
		CrumbleDelay:       viper.GetDuration("mining.crumbleDelay"),
		DepleteDelay:       viper.GetDuration("mining.depleteDelay"),
		ScaleStep:          viper.GetFloat64("mining.scaleStep"),
		ScaleInterval:      viper.GetDuration("mining.scaleInterval"),
		MinScale:           viper.GetFloat64("mining.minScale"),
		AnchorOffset:       viper.GetFloat64("mining.anchorOffset"),
		AnchorFieldClass:   viper.GetString("mining.anchorFieldClass"),
		FallbackType:       viper.GetString("mining.fallbackType"),
		TransformTolerance: viper.GetFloat64("mining.transformTolerance"),
		Seed:               viper.GetInt64("mining.seed"),
		TickInterval:       viper.GetDuration("mining.tickInterval"),
		ImpactForce:        viper.GetFloat64("mining.impactForce"),
		ImpulseStrength:    viper.GetFloat64("mining.impulseStrength"),
		ImpulseRadius:      viper.GetFloat64("mining.impulseRadius"),
		RadialDamage:       viper.GetFloat64("mining.radialDamage"),
		DamageRadius:       viper.GetFloat64("mining.damageRadius"),
		TraceLength:        viper.GetFloat64("mining.traceLength"),
		SphereRadius:       viper.GetFloat64("mining.sphereRadius"),
	}
}
