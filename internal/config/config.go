// Package config loads the settings of the primus processes.
//
// Values come from an optional YAML file named by PRIMUS_CONFIG and from
// environment variables, which win over the file. Protocol tunables are
// only read from the file. The file holds one section per process:
//
//	node:
//	  registry_addr: http://127.0.0.1:8500
//	  election:
//	    delay: {min: 5s, max: 15s}
//	  work:
//	    max_rounds: 5
//	registry:
//	  health_interval: 10s
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Bounds is an inclusive duration range.
type Bounds struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

type Election struct {
	Delay             Bounds        `yaml:"delay"`
	LeaderPing        Bounds        `yaml:"leader_ping"`
	DelegationTimeout time.Duration `yaml:"delegation_timeout"`
}

type Roles struct {
	Acceptors int `yaml:"acceptors"`
	Learners  int `yaml:"learners"`
}

type Work struct {
	MaxErrors  int           `yaml:"max_errors"`
	MaxRounds  int           `yaml:"max_rounds"`
	StallRetry time.Duration `yaml:"stall_retry"`

	// RoundTimeout restarts a round that produced no consensus in time.
	RoundTimeout time.Duration `yaml:"round_timeout"`
}

type Cache struct {
	RoleTTL   time.Duration `yaml:"role_ttl"`
	ResultTTL time.Duration `yaml:"result_ttl"`
}

// Node configures one peer process.
type Node struct {
	Listen        string `yaml:"listen"`
	IP            string `yaml:"ip"`
	Port          int    `yaml:"port"`
	RegistryAddr  string `yaml:"registry_addr"`
	AppName       string `yaml:"app_name"`
	SidecarListen string `yaml:"sidecar_listen"`
	SidecarAddr   string `yaml:"sidecar_addr"`
	NumbersFile   string `yaml:"numbers_file"`
	ResultsFile   string `yaml:"results_file"`
	LogLevel      string `yaml:"log_level"`

	Election       Election      `yaml:"election"`
	Roles          Roles         `yaml:"roles"`
	Work           Work          `yaml:"work"`
	Cache          Cache         `yaml:"cache"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DefaultNode returns the settings used when nothing is configured.
func DefaultNode() Node {
	return Node{
		Listen:      ":8080",
		IP:          "127.0.0.1",
		AppName:     "primus",
		NumbersFile: "numbers.txt",
		ResultsFile: "results.txt",
		LogLevel:    "info",
		Election: Election{
			Delay:             Bounds{Min: 5 * time.Second, Max: 15 * time.Second},
			LeaderPing:        Bounds{Min: 40 * time.Second, Max: 60 * time.Second},
			DelegationTimeout: 30 * time.Second,
		},
		Roles: Roles{Acceptors: 2, Learners: 1},
		Work:  Work{MaxErrors: 3, MaxRounds: 3, StallRetry: 10 * time.Second, RoundTimeout: time.Minute},
		Cache: Cache{RoleTTL: 3 * time.Second, ResultTTL: 60 * time.Second},

		RequestTimeout: 5 * time.Second,
	}
}

// LoadNode reads the node settings through getenv, usually os.Getenv.
func LoadNode(getenv func(string) string) (Node, error) {
	file := struct {
		Node Node `yaml:"node"`
	}{Node: DefaultNode()}
	if err := readFile(getenv("PRIMUS_CONFIG"), &file); err != nil {
		return Node{}, err
	}
	c := file.Node

	overrideString(getenv, "NODE_LISTEN", &c.Listen)
	overrideString(getenv, "NODE_IP", &c.IP)
	overrideString(getenv, "REGISTRY_ADDR", &c.RegistryAddr)
	overrideString(getenv, "APP_NAME", &c.AppName)
	overrideString(getenv, "SIDECAR_LISTEN", &c.SidecarListen)
	overrideString(getenv, "SIDECAR_ADDR", &c.SidecarAddr)
	overrideString(getenv, "NUMBERS_FILE", &c.NumbersFile)
	overrideString(getenv, "RESULTS_FILE", &c.ResultsFile)
	overrideString(getenv, "LOG_LEVEL", &c.LogLevel)
	if err := overrideInt(getenv, "NODE_PORT", &c.Port); err != nil {
		return Node{}, err
	}

	if c.Port == 0 {
		c.Port = portOf(c.Listen)
	}
	return c, c.Validate()
}

// Validate reports the first setting that cannot work.
func (c Node) Validate() error {
	switch {
	case c.RegistryAddr == "":
		return fmt.Errorf("%w: REGISTRY_ADDR is required", ErrInvalid)
	case c.Listen == "":
		return fmt.Errorf("%w: NODE_LISTEN is required", ErrInvalid)
	case c.IP == "":
		return fmt.Errorf("%w: NODE_IP is required", ErrInvalid)
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("%w: NODE_PORT %d out of range", ErrInvalid, c.Port)
	case c.NumbersFile == "" || c.ResultsFile == "":
		return fmt.Errorf("%w: NUMBERS_FILE and RESULTS_FILE are required", ErrInvalid)
	case c.Roles.Acceptors <= 0 || c.Roles.Learners <= 0:
		return fmt.Errorf("%w: role quotas must be positive", ErrInvalid)
	case c.Work.MaxErrors <= 0 || c.Work.MaxRounds <= 0:
		return fmt.Errorf("%w: work limits must be positive", ErrInvalid)
	case c.Work.StallRetry <= 0 || c.Work.RoundTimeout <= 0 || c.Election.DelegationTimeout <= 0 || c.RequestTimeout <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalid)
	case c.Cache.RoleTTL <= 0 || c.Cache.ResultTTL <= 0:
		return fmt.Errorf("%w: cache ttls must be positive", ErrInvalid)
	}
	if err := c.Election.Delay.validate("election delay"); err != nil {
		return err
	}
	return c.Election.LeaderPing.validate("leader ping")
}

func (b Bounds) validate(name string) error {
	if b.Min <= 0 || b.Max < b.Min {
		return fmt.Errorf("%w: %s bounds %s-%s", ErrInvalid, name, b.Min, b.Max)
	}
	return nil
}

// Registry configures the registry process.
type Registry struct {
	Listen         string        `yaml:"listen"`
	HealthInterval time.Duration `yaml:"health_interval"`
	LogLevel       string        `yaml:"log_level"`
}

func DefaultRegistry() Registry {
	return Registry{Listen: ":8500", HealthInterval: 5 * time.Second, LogLevel: "info"}
}

func LoadRegistry(getenv func(string) string) (Registry, error) {
	file := struct {
		Registry Registry `yaml:"registry"`
	}{Registry: DefaultRegistry()}
	if err := readFile(getenv("PRIMUS_CONFIG"), &file); err != nil {
		return Registry{}, err
	}
	c := file.Registry

	overrideString(getenv, "REGISTRY_LISTEN", &c.Listen)
	overrideString(getenv, "LOG_LEVEL", &c.LogLevel)
	if v := getenv("HEALTH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Registry{}, fmt.Errorf("%w: HEALTH_INTERVAL: %v", ErrInvalid, err)
		}
		c.HealthInterval = d
	}

	if c.Listen == "" {
		return Registry{}, fmt.Errorf("%w: REGISTRY_LISTEN is required", ErrInvalid)
	}
	if c.HealthInterval <= 0 {
		return Registry{}, fmt.Errorf("%w: HEALTH_INTERVAL must be positive", ErrInvalid)
	}
	return c, nil
}

func readFile(path string, out any) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func overrideString(getenv func(string) string, key string, dst *string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func overrideInt(getenv func(string) string, key string, dst *int) error {
	v := getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, key, v)
	}
	*dst = n
	return nil
}

// portOf extracts the port of a listen address such as ":8080".
func portOf(listen string) int {
	_, p, err := net.SplitHostPort(listen)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(p)
	return n
}
