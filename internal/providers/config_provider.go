package providers

import (
	"fmt"
	"kwatch/internal/structures"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

func NewConfigProvider(flags *structures.CliFlags) (*structures.Config, error) {
	var conf structures.Config

	filename := filepath.Base(flags.ConfigPath)
	viper.AddConfigPath(filepath.Dir(flags.ConfigPath))
	viper.SetConfigName(strings.TrimSuffix(filename, filepath.Ext(filename)))
	viper.SetConfigType("yaml")

	viper.BindEnv("logger.level", "KWATCH_LOG_LEVEL")
	viper.BindEnv("storage.driver", "KWATCH_STORAGE_DRIVER")
	viper.BindEnv("storage.dsn", "KWATCH_STORAGE_DSN")
	viper.BindEnv("scheduler.cycleInterval", "KWATCH_CYCLE_INTERVAL")
	viper.BindEnv("scheduler.maxConcurrent", "KWATCH_MAX_CONCURRENT")
	viper.BindEnv("fetcher.timeout", "KWATCH_FETCH_TIMEOUT")
	viper.BindEnv("notifier.cooldown", "KWATCH_NOTIFY_COOLDOWN")
	viper.BindEnv("notifier.email.password", "KWATCH_SMTP_PASSWORD")
	viper.BindEnv("notifier.sms.apiKey", "KWATCH_SMS_API_KEY")
	viper.BindEnv("cache.enabled", "KWATCH_CACHE_ENABLED")
	viper.BindEnv("cache.size", "KWATCH_CACHE_SIZE")

	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	err = viper.Unmarshal(&conf)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	cnfValidator := NewCnfValidator(&conf)
	err = cnfValidator.Validate()
	if err != nil {
		return nil, err
	}

	conf.ApplyDefaults()
	conf.AppName = "KeywordWatchDaemon"
	conf.Path = flags.ConfigPath
	conf.Debug = flags.DebugMode

	return &conf, nil
}
