package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FlagLoader reads command options. A flag given on the command line wins;
// otherwise the value comes from viper (environment, zapdav.toml, default).
type FlagLoader struct {
	cmd *cobra.Command
}

func NewFlagLoader(cmd *cobra.Command) *FlagLoader {
	return &FlagLoader{cmd: cmd}
}

func load[T any](f *FlagLoader, name string, fromFlags func(*pflag.FlagSet, string) (T, error), fromViper func(string) T) T {
	if f.cmd.Flags().Changed(name) {
		if v, err := fromFlags(f.cmd.Flags(), name); err == nil {
			return v
		}
	}
	return fromViper(name)
}

func (f *FlagLoader) String(name string) string {
	return load(f, name, (*pflag.FlagSet).GetString, viper.GetString)
}

func (f *FlagLoader) Int(name string) int {
	return load(f, name, (*pflag.FlagSet).GetInt, viper.GetInt)
}

func (f *FlagLoader) Bool(name string) bool {
	return load(f, name, (*pflag.FlagSet).GetBool, viper.GetBool)
}

func (f *FlagLoader) Duration(name string) time.Duration {
	return load(f, name, (*pflag.FlagSet).GetDuration, viper.GetDuration)
}

// StringSlice serves repeatable flags such as --header.
func (f *FlagLoader) StringSlice(name string) []string {
	return load(f, name, (*pflag.FlagSet).GetStringSlice, viper.GetStringSlice)
}

// Bytes parses a human readable size ("4MiB", "10MB"). Empty means 0.
func (f *FlagLoader) Bytes(name string) (int64, error) {
	raw := f.String(name)
	if raw == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s %q: %w", name, raw, err)
	}
	return int64(n), nil
}
