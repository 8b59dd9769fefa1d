package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// FileName is the config file looked up next to the module.
const FileName = "foreman.cfg.json"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
	// Compression is "gzip" or "zstd"; only used when CompressOutput is set.
	Compression string `json:"compression" mapstructure:"compression"`
}

// SQLiteConfig holds in-memory SQLite backend settings
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
}

// WebSocketConfig holds streaming backend settings
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	WebSocket WebSocketConfig `json:"websocket" mapstructure:"websocket"`
}

// OTelConfig holds metrics provider settings
type OTelConfig struct {
	Enabled     bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName string        `json:"serviceName" mapstructure:"serviceName"`
	Interval    time.Duration `json:"interval" mapstructure:"interval"`
	// MetricsFile is where the stdout exporter writes; empty means stdout.
	MetricsFile string `json:"metricsFile" mapstructure:"metricsFile"`
}

// ForemanConfig holds dispatch loop timings and cues
type ForemanConfig struct {
	CheckInterval     time.Duration `json:"checkInterval" mapstructure:"checkInterval"`
	WaitDuration      time.Duration `json:"waitDuration" mapstructure:"waitDuration"`
	TriggerScan       bool          `json:"triggerScan" mapstructure:"triggerScan"`
	ScanCommand       string        `json:"scanCommand" mapstructure:"scanCommand"`
	ScanInterval      time.Duration `json:"scanInterval" mapstructure:"scanInterval"`
	SurveyRadius      float64       `json:"surveyRadius" mapstructure:"surveyRadius"`
	RequireWorkToPlan bool          `json:"requireWorkToPlan" mapstructure:"requireWorkToPlan"`
	MonitorCue        string        `json:"monitorCue" mapstructure:"monitorCue"`
	WaitCue           string        `json:"waitCue" mapstructure:"waitCue"`
	RallyCue          string        `json:"rallyCue" mapstructure:"rallyCue"`
}

// ConditionConfig holds android defaults used when :ANDROID:NEW: omits them
type ConditionConfig struct {
	PowerLevel    float64       `json:"powerLevel" mapstructure:"powerLevel"`
	DrainRate     float64       `json:"drainRate" mapstructure:"drainRate"`
	DrainInterval time.Duration `json:"drainInterval" mapstructure:"drainInterval"`
}

// BrainConfig holds vision brain and model client settings
type BrainConfig struct {
	Enabled          bool          `json:"enabled" mapstructure:"enabled"`
	URL              string        `json:"url" mapstructure:"url"`
	Model            string        `json:"model" mapstructure:"model"`
	Temperature      float64       `json:"temperature" mapstructure:"temperature"`
	MaxTokens        int           `json:"maxTokens" mapstructure:"maxTokens"`
	Timeout          time.Duration `json:"timeout" mapstructure:"timeout"`
	SnapsPerScan     int           `json:"snapsPerScan" mapstructure:"snapsPerScan"`
	YawStep          float64       `json:"yawStep" mapstructure:"yawStep"`
	SnapInterval     time.Duration `json:"snapInterval" mapstructure:"snapInterval"`
	ArrivalDistance  float64       `json:"arrivalDistance" mapstructure:"arrivalDistance"`
	AcceptanceRadius float64       `json:"acceptanceRadius" mapstructure:"acceptanceRadius"`
	PriorityTag      string        `json:"priorityTag" mapstructure:"priorityTag"`
	MaxRescans       int           `json:"maxRescans" mapstructure:"maxRescans"`
	// Destination is "x,y,z".
	Destination string `json:"destination" mapstructure:"destination"`
	CogmapPath  string `json:"cogmapPath" mapstructure:"cogmapPath"`
}

// UploadConfig points at the session viewer that receives finished exports
type UploadConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Secret  string `json:"secret" mapstructure:"secret"`
	Tag     string `json:"tag" mapstructure:"tag"`
}

// setDefaults registers every key so unset keys still resolve.
func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./foremanlogs")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "foreman")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "foreman-metrics")
	viper.SetDefault("influx.bucket", "foreman")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.memory.compression", "gzip")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "./recordings/foreman.db")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/ingest")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("upload.enabled", false)
	viper.SetDefault("upload.url", "http://localhost:5000")
	viper.SetDefault("upload.secret", "")
	viper.SetDefault("upload.tag", "")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "foreman")
	viper.SetDefault("otel.interval", "30s")
	viper.SetDefault("otel.metricsFile", "")

	viper.SetDefault("foreman.checkInterval", "3s")
	viper.SetDefault("foreman.waitDuration", "5s")
	viper.SetDefault("foreman.triggerScan", true)
	viper.SetDefault("foreman.scanCommand", "scan_environment")
	viper.SetDefault("foreman.scanInterval", "500ms")
	viper.SetDefault("foreman.surveyRadius", 500.0)
	viper.SetDefault("foreman.requireWorkToPlan", true)
	viper.SetDefault("foreman.monitorCue", "")
	viper.SetDefault("foreman.waitCue", "")
	viper.SetDefault("foreman.rallyCue", "")

	viper.SetDefault("condition.powerLevel", 1.0)
	viper.SetDefault("condition.drainRate", 0.001)
	viper.SetDefault("condition.drainInterval", "1500ms")

	viper.SetDefault("brain.enabled", false)
	viper.SetDefault("brain.url", "http://localhost:1234/v1/chat/completions")
	viper.SetDefault("brain.model", "liquid/lfm2.5-vl-1.6b")
	viper.SetDefault("brain.temperature", 0.1)
	viper.SetDefault("brain.maxTokens", 300)
	viper.SetDefault("brain.timeout", "30s")
	viper.SetDefault("brain.snapsPerScan", 4)
	viper.SetDefault("brain.yawStep", 90.0)
	viper.SetDefault("brain.snapInterval", "2s")
	viper.SetDefault("brain.arrivalDistance", 150.0)
	viper.SetDefault("brain.acceptanceRadius", 50.0)
	viper.SetDefault("brain.priorityTag", "red_cone")
	viper.SetDefault("brain.maxRescans", 3)
	viper.SetDefault("brain.destination", "0,0,0")
	viper.SetDefault("brain.cogmapPath", "")
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// LoadDefaults registers defaults without reading a file.
func LoadDefaults() {
	setDefaults()
}

// Watch re-reads the file on change and calls onChange after each reload.
func Watch(onChange func(fsnotify.Event)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if onChange != nil {
			onChange(e)
		}
	})
	viper.WatchConfig()
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

// GetStorageConfig returns the storage section.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
			Compression:    viper.GetString("storage.memory.compression"),
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

// GetUploadConfig returns the upload section.
func GetUploadConfig() UploadConfig {
	return UploadConfig{
		Enabled: viper.GetBool("upload.enabled"),
		URL:     viper.GetString("upload.url"),
		Secret:  viper.GetString("upload.secret"),
		Tag:     viper.GetString("upload.tag"),
	}
}

// GetOTelConfig returns the otel section.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:     viper.GetBool("otel.enabled"),
		ServiceName: viper.GetString("otel.serviceName"),
		Interval:    viper.GetDuration("otel.interval"),
		MetricsFile: viper.GetString("otel.metricsFile"),
	}
}

// GetForemanConfig returns the foreman section.
func GetForemanConfig() ForemanConfig {
	return ForemanConfig{
		CheckInterval:     viper.GetDuration("foreman.checkInterval"),
		WaitDuration:      viper.GetDuration("foreman.waitDuration"),
		TriggerScan:       viper.GetBool("foreman.triggerScan"),
		ScanCommand:       viper.GetString("foreman.scanCommand"),
		ScanInterval:      viper.GetDuration("foreman.scanInterval"),
		SurveyRadius:      viper.GetFloat64("foreman.surveyRadius"),
		RequireWorkToPlan: viper.GetBool("foreman.requireWorkToPlan"),
		MonitorCue:        viper.GetString("foreman.monitorCue"),
		WaitCue:           viper.GetString("foreman.waitCue"),
		RallyCue:          viper.GetString("foreman.rallyCue"),
	}
}

// GetConditionConfig returns the condition section.
func GetConditionConfig() ConditionConfig {
	return ConditionConfig{
		PowerLevel:    viper.GetFloat64("condition.powerLevel"),
		DrainRate:     viper.GetFloat64("condition.drainRate"),
		DrainInterval: viper.GetDuration("condition.drainInterval"),
	}
}

// GetBrainConfig returns the brain section.
func GetBrainConfig() BrainConfig {
	return BrainConfig{
		Enabled:          viper.GetBool("brain.enabled"),
		URL:              viper.GetString("brain.url"),
		Model:            viper.GetString("brain.model"),
		Temperature:      viper.GetFloat64("brain.temperature"),
		MaxTokens:        viper.GetInt("brain.maxTokens"),
		Timeout:          viper.GetDuration("brain.timeout"),
		SnapsPerScan:     viper.GetInt("brain.snapsPerScan"),
		YawStep:          viper.GetFloat64("brain.yawStep"),
		SnapInterval:     viper.GetDuration("brain.snapInterval"),
		ArrivalDistance:  viper.GetFloat64("brain.arrivalDistance"),
		AcceptanceRadius: viper.GetFloat64("brain.acceptanceRadius"),
		PriorityTag:      viper.GetString("brain.priorityTag"),
		MaxRescans:       viper.GetInt("brain.maxRescans"),
		Destination:      viper.GetString("brain.destination"),
		CogmapPath:       viper.GetString("brain.cogmapPath"),
	}
}
