package config

import "github.com/spf13/viper"

// Config - структура для хранения конфигураций приложения
type Config struct {
	ServerAddress   string `mapstructure:"SERVER_ADDRESS"`
	PostgresConn    string `mapstructure:"POSTGRES_CONN"`
	PostgresURL     string `mapstructure:"POSTGRES_JDBC_URL"`
	PostgresUser    string `mapstructure:"POSTGRES_USERNAME"`
	PostgresPass    string `mapstructure:"POSTGRES_PASSWORD"`
	PostgresHost    string `mapstructure:"POSTGRES_HOST"`
	PostgresPort    string `mapstructure:"POSTGRES_PORT"`
	PostgresDB      string `mapstructure:"POSTGRES_DATABASE"`
	MigrationURL    string `mapstructure:"MIGRATION_URL"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	DaySlotCount    int    `mapstructure:"DAY_SLOT_COUNT"`
	WindowOpenHour  int    `mapstructure:"BID_WINDOW_OPEN_HOUR"`
	WindowCloseHour int    `mapstructure:"BID_WINDOW_CLOSE_HOUR"`
	EditOverride    bool   `mapstructure:"EDIT_WINDOW_OVERRIDE"`
}

// LoadConfig загружает конфигурацию из файла
func LoadConfig(path string) (cfg Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("app")
	viper.SetConfigType("env")

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DAY_SLOT_COUNT", 24)
	viper.SetDefault("BID_WINDOW_OPEN_HOUR", 14)
	viper.SetDefault("BID_WINDOW_CLOSE_HOUR", 17)
	viper.SetDefault("EDIT_WINDOW_OVERRIDE", false)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}
	err = viper.Unmarshal(&cfg)
	return
}
