package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to the session
// manager and the servers it launches.
type Config struct {
	// Hostname or IP address on which the server will listen for connections.
	Hostname string `mapstructure:"hostname"`
	// Address a client will connect to. Overwritten with "localhost" in host mode.
	NetworkAddress string `mapstructure:"network_address"`
	// Port used by both the server (listen) and the client (connect).
	NetworkPort int `mapstructure:"network_port"`
	// Optional explicit bind address. Blank binds to Hostname.
	ServerBindAddress string `mapstructure:"server_bind_address"`
	// Maximum number of concurrent connections the server will allow.
	MaxConnections int `mapstructure:"max_connections"`
	// Use the WebSocket transport instead of raw TCP.
	UseWebSockets bool `mapstructure:"use_websockets"`
	// Number of session updates per second.
	TickRate int `mapstructure:"tick_rate"`
	// Full path to file to which logs will be written. Blank will write to stdout.
	LogFilePath string `mapstructure:"log_file_path"`
	// Minimum level of a log required to be written. Options: debug, info, warn, error
	LogLevel string `mapstructure:"log_level"`

	Scenes struct {
		// Scene loaded whenever the session is not running.
		OfflineScene string `mapstructure:"offline_scene"`
		// Scene the server switches to once it starts listening.
		OnlineScene string `mapstructure:"online_scene"`
		// Simulated load time used by the headless scene loader.
		LoadDelay time.Duration `mapstructure:"load_delay"`
	} `mapstructure:"scenes"`

	Player struct {
		// Name of the template instantiated for every new player.
		Prefab string `mapstructure:"prefab"`
		// Network identity of the player template. Blank means the template
		// isn't spawnable and player creation will be refused.
		AssetID string `mapstructure:"asset_id"`
		// Request a player as soon as the client becomes ready.
		AutoCreatePlayer bool `mapstructure:"auto_create_player"`
		// Options: random, round_robin
		SpawnMethod string `mapstructure:"spawn_method"`
	} `mapstructure:"player"`

	// Additional templates the client registers on start.
	SpawnPrefabs []string `mapstructure:"spawn_prefabs"`

	Web struct {
		// HTTP port for the status API. 0 disables it.
		HTTPPort int `mapstructure:"http_port"`
	} `mapstructure:"web"`

	Database struct {
		// Options: sqlite, postgres. Blank disables the session journal.
		Engine string `mapstructure:"engine"`
		// SQLite database file.
		Filename string `mapstructure:"filename"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Name     string `mapstructure:"name"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	Debugging struct {
		// Enable extra info-providing mechanisms for the server.
		Enabled bool `mapstructure:"enabled"`
		// Port on which a pprof server will be started if debug mode is enabled.
		PprofPort int `mapstructure:"pprof_port"`
		// Log every control-plane frame sent or received.
		PacketLoggingEnabled bool `mapstructure:"packet_logging_enabled"`
		// Enable database-level query logging.
		DatabaseLoggingEnabled bool `mapstructure:"database_logging_enabled"`
	} `mapstructure:"debugging"`
}

const (
	envVarPrefix = "NETMANAGER"

	minConnections = 1
	maxConnections = 32000
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("hostname", "0.0.0.0")
	v.SetDefault("network_address", "localhost")
	v.SetDefault("network_port", 7777)
	v.SetDefault("max_connections", 4)
	v.SetDefault("tick_rate", 30)
	v.SetDefault("log_level", "info")
	v.SetDefault("player.auto_create_player", true)
	v.SetDefault("player.spawn_method", "random")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("debugging.pprof_port", 4000)
}

// LoadConfig reads config.yaml from configPath and overlays any NETMANAGER_*
// environment variables on top of it.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(configPath)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(envVarPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("no config file in path %s", configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// This allows us to set nested yaml config options through environment
	// variables. For example, scenes.online_scene can be set using: <envVarPrefix>_SCENES_ONLINE_SCENE
	for _, k := range v.AllKeys() {
		envVar := strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := v.BindEnv(k, envVarPrefix+"_"+envVar); err != nil {
			return nil, fmt.Errorf("binding %s to %s: %w", k, envVarPrefix+"_"+envVar, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unmarshaling config object: %w", err)
	}
	config.Validate()
	return config, nil
}

// Validate clamps values that have a fixed legal range.
func (c *Config) Validate() {
	if c.MaxConnections < minConnections {
		c.MaxConnections = minConnections
	} else if c.MaxConnections > maxConnections {
		c.MaxConnections = maxConnections
	}
	if c.TickRate <= 0 {
		c.TickRate = 30
	}
}

const databaseURITemplate = "host=%s port=%d dbname=%s user=%s password=%s sslmode=%s"

// DatabaseURL returns a database URL generated from the provided config values.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		databaseURITemplate,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Username,
		c.Database.Password,
		c.Database.SSLMode,
	)
}

// ListenAddress returns the host the server transport binds to.
func (c *Config) ListenAddress() string {
	if c.ServerBindAddress != "" {
		return c.ServerBindAddress
	}
	return c.Hostname
}

// TickInterval is the time between two session updates.
func (c *Config) TickInterval() time.Duration {
	if c.TickRate <= 0 {
		return time.Second / 30
	}
	return time.Second / time.Duration(c.TickRate)
}

// SpawnMethod is the configured start position selection, lower-cased with
// dashes folded to underscores.
func (c *Config) SpawnMethod() string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(c.Player.SpawnMethod)), "-", "_")
}
