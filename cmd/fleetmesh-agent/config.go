package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log        LogConfig
	Controller ControllerConfig
	Node       NodeConfig
	Agent      AgentConfig
}

type ControllerConfig struct {
	// Endpoints is the ordered failover list of controller base URLs.
	Endpoints []string `mapstructure:"endpoints"`
	// InsecureSkipVerify accepts self-signed controller certificates.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`

	MaxAttempts           int `mapstructure:"max_attempts"`
	BackoffBaseMs         int `mapstructure:"backoff_base_ms"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

type NodeConfig struct {
	NodeID      string `mapstructure:"node_id"`
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	NodeType    string `mapstructure:"node_type"`
}

type AgentConfig struct {
	HeartbeatIntervalSeconds int    `mapstructure:"heartbeat_interval_seconds"`
	StatePath                string `mapstructure:"state_path"`
	ScriptTimeoutSeconds     int    `mapstructure:"script_timeout_seconds"`
	// Scripts maps command script names to executable paths; only
	// listed scripts can be run by custom commands.
	Scripts map[string]string `mapstructure:"scripts"`
}

var config Config

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/fleetmesh-agent")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("node.node_id", "NODE_ID")

	viper.SetDefault("controller.max_attempts", 4)
	viper.SetDefault("controller.backoff_base_ms", 500)
	viper.SetDefault("controller.request_timeout_seconds", 15)
	viper.SetDefault("agent.heartbeat_interval_seconds", 30)
	viper.SetDefault("agent.state_path", "agent-state.yaml")
	viper.SetDefault("agent.script_timeout_seconds", 60)

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		panic(err)
	}

	initLogger(config.Log.Level)

	if strings.ToUpper(config.Log.Level) == LOG_LEVEL_DEBUG {
		configJSON, err := json.MarshalIndent(config, "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}

// ReloadConfig re-reads the config file in place; wired into the
// reload_config command.
func ReloadConfig() error {
	if err := viper.ReadInConfig(); err != nil {
		return err
	}
	return viper.Unmarshal(&config)
}
