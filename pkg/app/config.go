package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/gosuri/uitable"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/autopeer-io/bootwatch/pkg/log"
)

const configFlagName = "config"

// addConfigFlag registers --config on fs.
func addConfigFlag(fs *pflag.FlagSet, basename string, cfgFile *string) {
	fs.StringVarP(cfgFile, configFlagName, "c", *cfgFile,
		fmt.Sprintf("Read configuration from the specified file (YAML or JSON). Defaults to %s.yaml in ., $HOME/.%s or /etc/%s.", basename, basename, basename))
}

// envPrefix derives the environment variable prefix from the command name,
// e.g. "bootwatch" -> "BOOTWATCH".
func envPrefix(basename string) string {
	return strings.ToUpper(strings.ReplaceAll(basename, "-", "_"))
}

// newViper prepares a viper instance that merges, in decreasing priority,
// flags set on the command line, BASENAME_* environment variables, the config
// file and flag defaults.
func newViper(basename, cfgFile string, fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, "."+basename))
		}
		v.AddConfigPath(filepath.Join("/etc", basename))
		v.SetConfigName(basename)
	}

	v.SetEnvPrefix(envPrefix(basename))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
	}

	return v, nil
}

// watchConfig re-applies hot-reloadable settings when the config file changes.
// Only the log level is reloaded; everything else needs a restart.
func watchConfig(v *viper.Viper) {
	if v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		level := v.GetString("log.level")
		log.Info("Configuration file changed", "file", e.Name, "op", e.Op.String(), "log.level", level)
		if level != "" {
			log.SetLevel(level)
		}
	})
	v.WatchConfig()
}

// secretKeys are masked when the effective configuration is printed.
var secretKeys = []string{"password", "token", "secret"}

func isSecret(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// printConfig writes the effective configuration as a two-column table.
func printConfig(w io.Writer, v *viper.Viper) {
	keys := v.AllKeys()
	sort.Strings(keys)

	table := uitable.New()
	table.MaxColWidth = 80
	table.Separator = " "
	table.AddRow("KEY", "VALUE")
	for _, k := range keys {
		value := fmt.Sprint(v.Get(k))
		if isSecret(k) && value != "" {
			value = "******"
		}
		table.AddRow(k, value)
	}

	if used := v.ConfigFileUsed(); used != "" {
		fmt.Fprintf(w, "Using config file: %s\n", used)
	}
	fmt.Fprintln(w, table)
}
