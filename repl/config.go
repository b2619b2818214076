package repl

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/y-crdt/yrb"
)

// Config is read from a YAML file; every field is optional.
//
//	store: ./notes.db
//	document: notes
//	client_id: 42
//	offset_kind: utf16
//	history: ~/.yrepl_history
//	log_level: debug
//	listen: [tcp://:4400]
//	connect: [tcp://peer:4400]
type Config struct {
	Store      string   `yaml:"store"`
	Document   string   `yaml:"document"`
	ClientID   uint64   `yaml:"client_id"`
	OffsetKind string   `yaml:"offset_kind"`
	History    string   `yaml:"history"`
	LogLevel   string   `yaml:"log_level"`
	Listen     []string `yaml:"listen"`
	Connect    []string `yaml:"connect"`
}

var ErrBadOffsetKind = errors.New("offset_kind is utf16 or utf32")

func (c *Config) SetDefaults() {
	if c.Document == "" {
		c.Document = "default"
	}
	if c.History == "" {
		c.History = ".yrepl_history"
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
}

func (c *Config) offsetKind() (yrb.OffsetKind, error) {
	switch strings.ToLower(c.OffsetKind) {
	case "", "utf32":
		return yrb.OffsetUTF32, nil
	case "utf16":
		return yrb.OffsetUTF16, nil
	}
	return 0, errors.Wrapf(ErrBadOffsetKind, "%q", c.OffsetKind)
}

// LoadConfig reads a config file; an empty path gives the defaults.
func LoadConfig(path string) (conf Config, err error) {
	if path != "" {
		var data []byte
		if data, err = os.ReadFile(path); err != nil {
			return
		}
		if err = yaml.Unmarshal(data, &conf); err != nil {
			return conf, errors.Wrapf(err, "config %s", path)
		}
	}
	conf.SetDefaults()
	return
}
