package main

import (
	"strings"

	"github.com/spf13/viper"
)

// envReplacer replaces `-` with `_`.
// This is used to map flags like `--my-param` to environment variables like `MY_PARAM`.
var envReplacer = strings.NewReplacer("-", "_")

func init() {
	viper.SetEnvPrefix("QMINTD")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(envReplacer)
}
