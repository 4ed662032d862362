package main

import (
	"fmt"
	"io"

	"github.com/fuse-netcdf/ncfs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// envPrefix prefixes environment variables, e.g. NCFS_REPR=text.
const envPrefix = "NCFS"

// loadOptions layers the mount options: defaults, then the config file,
// then NCFS_* environment variables, then -o arguments.
func loadOptions(mountpoint, configFile string, args []string) (*ncfs.MountOptions, error) {
	cfg := viper.New()
	cfg.SetEnvPrefix(envPrefix)
	cfg.AutomaticEnv()

	if configFile != "" {
		cfg.SetConfigFile(configFile)
		if err := cfg.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("problem reading configuration file: %w", err)
		}
	}

	opts := ncfs.DefaultMountOptions(mountpoint)
	for _, key := range ncfs.OptionKeys() {
		// Bind explicitly so IsSet sees the environment
		if err := cfg.BindEnv(key); err != nil {
			return nil, err
		}
		if !cfg.IsSet(key) {
			continue
		}
		if err := opts.Set(key, cfg.GetString(key)); err != nil {
			return nil, err
		}
	}

	for _, arg := range args {
		for _, kv := range ncfs.SplitOptions(arg) {
			if err := opts.Set(kv[0], kv[1]); err != nil {
				return nil, err
			}
		}
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// newLogger maps -v counts to levels: warnings by default, -v for info,
// -vv for debug.
func newLogger(out io.Writer, verbosity int) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	switch {
	case verbosity >= 2:
		log.SetLevel(logrus.DebugLevel)
	case verbosity == 1:
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetLevel(logrus.WarnLevel)
	}
	return log
}
