package main

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/kirsle/configdir"

	"nesbot/bot"
	"nesbot/log"
)

type Config struct {
	// Channel is the id of the channel hosting the play session.
	Channel string `toml:"channel"`

	// ConsoleAddr is the address of the console RPC server.
	ConsoleAddr string `toml:"console_addr"`

	Session bot.SessionConfig `toml:"session"`
}

var ConfigDir string = sync.OnceValue(func() string {
	dir := configdir.LocalConfig("nesbot")
	if err := configdir.MakePath(dir); err != nil {
		log.ModMain.FatalZ("failed to create config directory").String("dir", dir).Error("err", err).End()
	}
	return dir
})()

const cfgFilename = "config.toml"

// LoadConfigOrDefault loads the configuration from the nesbot config
// directory, or provides a default one.
func LoadConfigOrDefault() Config {
	var cfg Config
	if _, err := toml.DecodeFile(filepath.Join(ConfigDir, cfgFilename), &cfg); err != nil {
		return Config{
			ConsoleAddr: "localhost:5311",
		}
	}
	return cfg
}

// SaveConfig into the nesbot config directory.
func SaveConfig(cfg Config) error {
	buf, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(ConfigDir, cfgFilename), buf, 0644)
}
