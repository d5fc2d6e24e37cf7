package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	internalhttp "github.com/fleetmesh/fleetmesh/internal/api/http"
	"github.com/fleetmesh/fleetmesh/internal/auth"
	"github.com/fleetmesh/fleetmesh/internal/db"
)

type Config struct {
	Log        LogConfig
	Http       internalhttp.Config
	Database   db.Config
	Auth       auth.Config
	Controller ControllerConfig
}

type ControllerConfig struct {
	// HeartbeatTimeoutSeconds is how long a node may stay silent before
	// it is shown OFFLINE.
	HeartbeatTimeoutSeconds int `mapstructure:"heartbeat_timeout_seconds"`

	// CommandTimeoutSeconds is how long a command may stay non-terminal
	// before the sweep marks it TIMEOUT.
	CommandTimeoutSeconds int `mapstructure:"command_timeout_seconds"`

	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
}

var config Config

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/fleetmesh-controller")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("database.url", "DATABASE_URL")
	_ = viper.BindEnv("auth.secret", "JWT_SECRET")

	viper.SetDefault("controller.heartbeat_timeout_seconds", 90)
	viper.SetDefault("controller.command_timeout_seconds", 3600)
	viper.SetDefault("controller.sweep_interval_seconds", 60)

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
