// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package config

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rapidaai/interpreter-api/pkg/configs"
	"github.com/spf13/viper"
)

// Application config structure
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`
	LogPath  string `mapstructure:"log_path"`
	Env      string `mapstructure:"environment"`

	// Secret signs both access and refresh tokens for the control channel
	// and the auth surface.
	Secret               string `mapstructure:"secret" validate:"required"`
	AccessTokenTtlMinute int    `mapstructure:"access_token_ttl_minute" validate:"required"`
	RefreshTokenTtlHour  int    `mapstructure:"refresh_token_ttl_hour" validate:"required"`

	PostgresConfig configs.PostgresConfig `mapstructure:"postgres" validate:"required"`
	OpenAIConfig   configs.OpenAIConfig   `mapstructure:"openai" validate:"required"`

	// FfmpegPath locates the transcoder binary used to decode client audio
	// containers into raw PCM.
	FfmpegPath string `mapstructure:"ffmpeg_path" validate:"required"`
}

// reading config and intializing configs for application
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	path := os.Getenv("ENV_PATH")
	if path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("Reading from env varaibles.")
	}

	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	// setting all default values
	// keeping watch on https://github.com/spf13/viper/issues/188

	v.SetDefault("SERVICE_NAME", "interpreter-api")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 9090)
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("LOG_PATH", "")
	v.SetDefault("ENVIRONMENT", "development")

	v.SetDefault("ACCESS_TOKEN_TTL_MINUTE", 60)
	v.SetDefault("REFRESH_TOKEN_TTL_HOUR", 24*7)

	v.SetDefault("POSTGRES__HOST", "localhost")
	v.SetDefault("POSTGRES__PORT", 5432)
	v.SetDefault("POSTGRES__DB_NAME", "<>")
	v.SetDefault("POSTGRES__AUTH__USER", "<>")
	v.SetDefault("POSTGRES__AUTH__PASSWORD", "<>")
	v.SetDefault("POSTGRES__MAX_OPEN_CONNECTION", 10)
	v.SetDefault("POSTGRES__MAX_IDEAL_CONNECTION", 10)
	v.SetDefault("POSTGRES__SSL_MODE", "disable")

	v.SetDefault("OPENAI__REALTIME_HOST", "wss://api.openai.com/v1/realtime")
	v.SetDefault("OPENAI__TRANSCRIBE_MODEL", "gpt-4o-transcribe")
	v.SetDefault("OPENAI__LLM_MODEL", "gpt-4o-mini")
	v.SetDefault("OPENAI__TTS_HOST", "https://api.openai.com/v1/audio/speech")
	v.SetDefault("OPENAI__TTS_MODEL", "tts-1")
	v.SetDefault("OPENAI__TTS_VOICE", "alloy")

	v.SetDefault("FFMPEG_PATH", "ffmpeg")
}

// Getting application config from viper
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	err := v.Unmarshal(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}

	// valdating the app config
	validate := validator.New()
	err = validate.Struct(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}
	return &config, nil
}
