// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package configs

// PostgresConfig holds relational store connection settings.
type PostgresConfig struct {
	Host               string     `mapstructure:"host" validate:"required"`
	Port               int        `mapstructure:"port" validate:"required"`
	DbName             string     `mapstructure:"db_name" validate:"required"`
	Auth               AuthConfig `mapstructure:"auth" validate:"required"`
	MaxOpenConnection  int        `mapstructure:"max_open_connection"`
	MaxIdealConnection int        `mapstructure:"max_ideal_connection"`
	SslMode            string     `mapstructure:"ssl_mode"`
}

// AuthConfig carries database credentials.
type AuthConfig struct {
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password" validate:"required"`
}

// OpenAIConfig holds the upstream provider settings shared by the realtime
// transcription session, the language intelligence client and the speech
// synthesizer.
type OpenAIConfig struct {
	ApiKey          string `mapstructure:"api_key" validate:"required"`
	RealtimeHost    string `mapstructure:"realtime_host" validate:"required"`
	TranscribeModel string `mapstructure:"transcribe_model" validate:"required"`
	LlmModel        string `mapstructure:"llm_model" validate:"required"`
	TtsHost         string `mapstructure:"tts_host" validate:"required"`
	TtsModel        string `mapstructure:"tts_model" validate:"required"`
	TtsVoice        string `mapstructure:"tts_voice" validate:"required"`
}
