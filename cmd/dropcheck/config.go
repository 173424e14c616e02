package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/newtron-network/dropcheck/pkg/device"
	"github.com/newtron-network/dropcheck/pkg/dropcheck"
	"github.com/newtron-network/dropcheck/pkg/droptest"
	"github.com/newtron-network/dropcheck/pkg/util"
)

const defaultUser = "admin"

// appConfig is the merged view of flags, DROPCHECK_* environment variables
// and the optional dropcheck.yaml config file, in that order of precedence.
type appConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	KeyFile   string
	RedisAddr string
	Rules     string
	LogLevel  string
	JSONLog   bool
}

// cfg is filled by the root command's PersistentPreRunE.
var cfg = &appConfig{}

func addConnectionFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("config", "", "Config file (default ./dropcheck.yaml or ~/.config/dropcheck/dropcheck.yaml)")
	f.String("host", "", "DUT management address")
	f.Int("port", 0, "DUT SSH port (default 22)")
	f.String("user", "", "DUT SSH user (default admin)")
	f.String("password", "", "DUT SSH password")
	f.String("key-file", "", "SSH private key for the DUT")
	f.String("redis-addr", "", "Reach the DUT's redis directly instead of through the SSH tunnel")
	f.String("rules", "", "Combined drop counter rules file (default built in)")
	f.String("log-level", "warn", "Log level (debug, info, warn, error)")
	f.Bool("json-log", false, "Log in JSON")
}

func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName("dropcheck")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "dropcheck"))
	}
	v.SetEnvPrefix("DROPCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		return v, nil
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return v, nil
}

func loadConfig(cmd *cobra.Command) (*appConfig, error) {
	v, err := newViper(cmd)
	if err != nil {
		return nil, err
	}
	*cfg = appConfig{
		Host:      v.GetString("host"),
		Port:      v.GetInt("port"),
		User:      v.GetString("user"),
		Password:  v.GetString("password"),
		KeyFile:   v.GetString("key-file"),
		RedisAddr: v.GetString("redis-addr"),
		Rules:     v.GetString("rules"),
		LogLevel:  v.GetString("log-level"),
		JSONLog:   v.GetBool("json-log"),
	}
	if f := v.ConfigFileUsed(); f != "" {
		util.Logger.Debugf("config: %s", f)
	}
	return cfg, nil
}

// deviceConfig merges the suite's dut block under the command line settings.
func (c *appConfig) deviceConfig(dut droptest.DUTConfig) device.Config {
	pick := func(flag, suite string) string {
		if flag != "" {
			return flag
		}
		return suite
	}
	dc := device.Config{
		Name: dut.Name,
		SSH: device.TunnelConfig{
			Host:     pick(c.Host, dut.Host),
			Port:     dut.Port,
			User:     pick(c.User, dut.User),
			Password: c.Password,
			KeyFile:  pick(c.KeyFile, dut.KeyFile),
		},
		RedisAddr: c.RedisAddr,
	}
	if c.Port != 0 {
		dc.SSH.Port = c.Port
	}
	if dc.SSH.User == "" {
		dc.SSH.User = defaultUser
	}
	if dc.Name == "" || c.Host != "" {
		dc.Name = dc.SSH.Host
	}
	return dc
}

func (c *appConfig) combinationRules() (*dropcheck.CombinationRules, error) {
	if c.Rules == "" {
		return nil, nil
	}
	return dropcheck.LoadCombinationRules(c.Rules)
}

// connect opens the DUT, prompting for a password when neither a password
// nor a key is configured and stdin is a terminal.
func connect(ctx context.Context, dc device.Config) (*device.Device, error) {
	if dc.SSH.Host == "" {
		return nil, fmt.Errorf("%w: no DUT host (set --host or dut.host in the suite)", util.ErrInvalidConfig)
	}
	if dc.SSH.Password == "" && dc.SSH.KeyFile == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintf(os.Stderr, "%s@%s's password: ", dc.SSH.User, dc.SSH.Host)
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("reading password: %w", err)
		}
		dc.SSH.Password = string(pw)
	}

	dev := device.New(dc)
	if err := dev.Connect(ctx); err != nil {
		return nil, err
	}
	return dev, nil
}
