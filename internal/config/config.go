package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	registryinspector "github.com/eznix86/registry-inspector"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Listen             string        `mapstructure:"listen"`
	PreferredScheme    string        `mapstructure:"preferredScheme"`
	DefaultRegistry    string        `mapstructure:"defaultRegistry"`
	DefaultNamespace   string        `mapstructure:"defaultNamespace"`
	Concurrency        int           `mapstructure:"concurrency"`
	ConnectTimeout     time.Duration `mapstructure:"connectTimeout"`
	ReadTimeout        time.Duration `mapstructure:"readTimeout"`
	ProbeTimeout       time.Duration `mapstructure:"probeTimeout"`
	LayerPolicy        string        `mapstructure:"layerPolicy"`
	MaxAttempts        int           `mapstructure:"maxAttempts"`
	InsecureRegistries []string      `mapstructure:"insecureRegistries"`
	Debug              bool          `mapstructure:"debug"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"listen":            "listen",
	"scheme":            "preferredScheme",
	"default-registry":  "defaultRegistry",
	"default-namespace": "defaultNamespace",
	"concurrency":       "concurrency",
	"connect-timeout":   "connectTimeout",
	"read-timeout":      "readTimeout",
	"probe-timeout":     "probeTimeout",
	"layer-policy":      "layerPolicy",
	"max-attempts":      "maxAttempts",
	"insecure-registry": "insecureRegistries",
	"debug":             "debug",
}

// LoadConfig reads configuration from an optional inspector.{json,yaml}
// file in path and from INSPECTOR_* environment variables.
func LoadConfig(path string) (Config, error) {
	return Load(path, nil)
}

// Load is LoadConfig with command-line flags taking precedence over the
// environment and the file. Flags not in flagKeys are ignored.
func Load(path string, flags *pflag.FlagSet) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("inspector")

	defaults := registryinspector.DefaultTimeouts()
	v.SetDefault("listen", ":5000")
	v.SetDefault("preferredScheme", "https")
	v.SetDefault("defaultRegistry", registryinspector.DockerHubRegistry)
	v.SetDefault("defaultNamespace", registryinspector.DefaultNamespace)
	v.SetDefault("concurrency", registryinspector.DefaultConcurrency)
	v.SetDefault("connectTimeout", defaults.Connect)
	v.SetDefault("readTimeout", defaults.Read)
	v.SetDefault("probeTimeout", defaults.Probe)
	v.SetDefault("layerPolicy", registryinspector.FailFast.String())
	v.SetDefault("maxAttempts", 1)
	v.SetDefault("insecureRegistries", []string{})
	v.SetDefault("debug", false)

	v.SetEnvPrefix("INSPECTOR")
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err = v.BindPFlag(key, f); err != nil {
					return
				}
			}
		}
	}

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}
	err = config.Validate()
	return
}

// Validate rejects values the inspector cannot run with.
func (c Config) Validate() error {
	switch c.PreferredScheme {
	case "http", "https":
	default:
		return fmt.Errorf("preferredScheme must be http or https, got %q", c.PreferredScheme)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.DefaultRegistry == "" {
		return errors.New("defaultRegistry must not be empty")
	}
	if _, err := registryinspector.ParseLayerFailurePolicy(c.LayerPolicy); err != nil {
		return err
	}
	return nil
}

func (c Config) Timeouts() registryinspector.Timeouts {
	return registryinspector.Timeouts{
		Connect: c.ConnectTimeout,
		Read:    c.ReadTimeout,
		Probe:   c.ProbeTimeout,
	}
}

// InspectorOptions translates the configuration into inspector options.
func (c Config) InspectorOptions() ([]registryinspector.Option, error) {
	policy, err := registryinspector.ParseLayerFailurePolicy(c.LayerPolicy)
	if err != nil {
		return nil, err
	}

	var insecure []string
	for _, entry := range c.InsecureRegistries {
		// Environment variables arrive as one comma-separated value.
		for _, host := range strings.Split(entry, ",") {
			if host = strings.TrimSpace(host); host != "" {
				insecure = append(insecure, host)
			}
		}
	}

	return []registryinspector.Option{
		registryinspector.WithTimeouts(c.Timeouts()),
		registryinspector.WithConcurrency(c.Concurrency),
		registryinspector.WithLayerFailurePolicy(policy),
		registryinspector.WithMaxAttempts(c.MaxAttempts),
		registryinspector.WithInsecureRegistries(insecure...),
	}, nil
}
