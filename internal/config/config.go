package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Engine   EngineConfig
	Upload   UploadConfig
}

type ServerConfig struct {
	Port    string
	AppName string `mapstructure:"app_name"`
}

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	TimeZone    string
	TablePrefix string `mapstructure:"table_prefix"`
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret        string `mapstructure:"jwt_secret"`
	TokenExpiryHours int    `mapstructure:"token_expiry_hours"`
}

// EngineConfig points at the external backtest execution engine.
type EngineConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type UploadConfig struct {
	Dir         string
	MaxFileSize int64 `mapstructure:"max_file_size"`
	PreviewRows int   `mapstructure:"preview_rows"`
}

func LoadConfig() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("auth.token_expiry_hours", 72)
	viper.SetDefault("engine.timeout_seconds", 300)
	viper.SetDefault("upload.dir", "./uploads")
	viper.SetDefault("upload.max_file_size", 50*1024*1024)
	viper.SetDefault("upload.preview_rows", 10)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Error reading config file, %s", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	return &config
}
