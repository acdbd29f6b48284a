package main

import (
	"time"

	"github.com/spf13/viper"

	"github.com/krew-solutions/whizbang-go/coordinator"
	"github.com/krew-solutions/whizbang-go/option"
)

type appConfig struct {
	dbURL         string
	serviceName   string
	metricsAddr   string
	logLevel      string
	workCfg       coordinator.Config
	debugRetention time.Duration
}

func loadConfig(v *viper.Viper) appConfig {
	flags := coordinator.ConfigFlags(0)
	if v.GetBool("debug-mode") {
		flags |= coordinator.FlagDebugMode
	}

	return appConfig{
		dbURL:          v.GetString("db-url"),
		serviceName:    v.GetString("service-name"),
		metricsAddr:    v.GetString("metrics-addr"),
		logLevel:       v.GetString("log-level"),
		debugRetention: v.GetDuration("debug-retention"),
		workCfg: coordinator.Config{
			LeaseSeconds:             v.GetInt("lease-seconds"),
			StaleThresholdSeconds:    v.GetInt("stale-threshold-seconds"),
			PartitionCount:           v.GetInt("partition-count"),
			Flags:                    flags,
			MaxPartitionsPerInstance: option.Nothing[int](),
		},
	}
}
