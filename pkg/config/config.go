package config

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path"

	"gopkg.in/yaml.v2"
)

const (
	configDir  string = ".sdb"
	configFile string = "config.yml"

	// DefaultDumpLength is the number of bytes dump prints when no length
	// is given.
	DefaultDumpLength = 80
	// DefaultDisassembleCount is the number of instructions disasm prints.
	DefaultDisassembleCount = 10
	// DefaultPrompt is the prompt of the interactive terminal.
	DefaultPrompt = "sdb> "
	// DefaultHistoryFile is the history file name inside the config directory.
	DefaultHistoryFile = "history"
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Commands aliases.
	Aliases map[string][]string `yaml:"aliases"`

	// Prompt printed by the interactive terminal.
	Prompt string `yaml:"prompt,omitempty"`

	// DumpLength is the default number of bytes printed by dump.
	DumpLength *int `yaml:"dump-length,omitempty"`

	// DisassembleCount is the number of instructions printed by disasm,
	// zero means every instruction after the given address.
	DisassembleCount *int `yaml:"disassemble-count,omitempty"`

	// Color enables highlighting of the status banners.
	Color bool `yaml:"color"`

	// HistoryFile overrides the location of the command history.
	HistoryFile string `yaml:"history-file,omitempty"`
}

// GetPrompt returns the configured prompt or the default one.
func (c *Config) GetPrompt() string {
	if c == nil || c.Prompt == "" {
		return DefaultPrompt
	}
	return c.Prompt
}

// GetDumpLength returns the configured dump length or the default one.
func (c *Config) GetDumpLength() int {
	if c == nil || c.DumpLength == nil || *c.DumpLength <= 0 {
		return DefaultDumpLength
	}
	return *c.DumpLength
}

// GetDisassembleCount returns the configured instruction count or the default one.
func (c *Config) GetDisassembleCount() int {
	if c == nil || c.DisassembleCount == nil || *c.DisassembleCount < 0 {
		return DefaultDisassembleCount
	}
	return *c.DisassembleCount
}

// LoadConfig attempts to populate a Config object from the config.yml file
// in the sdb configuration directory, creating a default one if missing.
func LoadConfig() (*Config, error) {
	err := createConfigPath()
	if err != nil {
		return &Config{}, fmt.Errorf("could not create config directory: %v", err)
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to get config file path: %v", err)
	}

	if _, err := os.Stat(fullConfigFile); os.IsNotExist(err) {
		if err := createDefaultConfig(fullConfigFile); err != nil {
			return &Config{}, fmt.Errorf("error creating default config file: %v", err)
		}
	}
	return LoadConfigFile(fullConfigFile)
}

// LoadConfigFile reads the configuration stored at path.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return &Config{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to read config data: %v", err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return &Config{}, fmt.Errorf("unable to decode config file: %v", err)
	}
	return &c, nil
}

func createDefaultConfig(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create config file: %v", err)
	}
	defer f.Close()
	if err := writeDefaultConfig(f); err != nil {
		return fmt.Errorf("unable to write default configuration: %v", err)
	}
	return nil
}

func writeDefaultConfig(f io.Writer) error {
	_, err := io.WriteString(f,
		`# Configuration file for the sdb debugger.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Provided aliases will be added to the default aliases for a given command.
aliases:
  # command: ["alias1", "alias2"]

# Prompt of the interactive terminal.
# prompt: "sdb> "

# Number of bytes printed by dump when no length is given.
# dump-length: 80

# Number of instructions printed by disasm, 0 prints everything after the address.
# disassemble-count: 10

# Highlight status messages (program loaded, breakpoint hit, child exited).
color: false

# Location of the command history, defaults to ~/.sdb/history.
# history-file: ""
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return path.Join(userHomeDir, configDir, file), nil
}
