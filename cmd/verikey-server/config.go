package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/verikey/verikey-server/internal/admin"
	"github.com/verikey/verikey-server/internal/api/http"
	"github.com/verikey/verikey-server/internal/db"
	"github.com/verikey/verikey-server/internal/upstream"
	"github.com/verikey/verikey-server/internal/verification"
)

type Config struct {
	Log      LogConfig
	Http     http.Config
	Database db.Config
	Upstream upstream.Config
	Verify   verification.Config
	Admin    admin.Config
}

var config Config

func InitConfig() {
	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/verikey-server")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("http.port", 8080)

	_ = viper.BindEnv("database.url", "DATABASE_URL")
	_ = viper.BindEnv("admin.password", "ADMIN_PASSWORD")
	_ = viper.BindEnv("admin.jwt_secret", "ADMIN_JWT_SECRET")
	_ = viper.BindEnv("verify.secret", "VERIFY_SECRET")

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			panic(err)
		}
	}

	if err := viper.Unmarshal(&config); err != nil {
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
