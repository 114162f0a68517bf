/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	Name      = "pktfilter"
	EnvPrefix = "PKTFILTER"
	Directory = "/etc/pktfilter/"
)

// InitConfig initializes the configuration using Viper.
// It reads from the specified config file or defaults to
// /etc/pktfilter/pktfilter.{yaml,json,toml}.
// Environment variables with the prefix PKTFILTER_ override config values,
// e.g. PKTFILTER_SINK_STREAM_WRITER for sink.stream.writer.
func InitConfig(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(Name)
		viper.AddConfigPath(Directory)
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		if cfgFile != "" {
			return fmt.Errorf("config file not found: %w", err)
		}
	}

	return nil
}
