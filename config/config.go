// Package config loads the automation configuration from a YAML file and the environment
package config

import (
	"fmt"
	"strings"

	"cart-autofill/internal/types"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CARTAUTOFILL_PORT
const EnvPrefix = "CARTAUTOFILL"

// Load reads config.yaml from the usual locations, or file when it is not empty,
// layers CARTAUTOFILL_* environment variables on top and validates the result.
func Load(file string) (*types.Config, error) {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/cart-autofill/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, types.DefaultConfig())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment only
	}

	var config types.Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults registers every key so environment variables can override it
func setDefaults(v *viper.Viper, d *types.Config) {
	// Browser
	v.SetDefault("headless", d.UseHeadlessBrowser)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("timeout", d.Timeout)

	// Shopping list fetching
	v.SetDefault("request_delay", d.RequestDelay)
	v.SetDefault("max_retries", d.MaxRetries)

	// Driver pacing
	v.SetDefault("settle_delay", d.SettleDelay)
	v.SetDefault("click_delay", d.ClickDelay)
	v.SetDefault("inter_item_delay", d.InterItemDelay)

	// Coordination
	v.SetDefault("registry_ttl", d.RegistryTTL)
	v.SetDefault("delivery_retries", d.DeliveryRetries)
	v.SetDefault("delivery_backoff", d.DeliveryBackoff)
	v.SetDefault("tab_load_timeout", d.TabLoadTimeout)
	v.SetDefault("request_timeout", d.RequestTimeout)

	// HTTP bridge
	v.SetDefault("port", d.Port)
	v.SetDefault("environment", d.Environment)
	v.SetDefault("allowed_origins", d.AllowedOrigins)
	v.SetDefault("rate_per_second", d.RatePerSecond)
	v.SetDefault("rate_burst", d.RateBurst)

	// Reconciliation
	v.SetDefault("fallback_package_grams", d.FallbackPackageGrams)
	v.SetDefault("default_item_grams", d.DefaultItemGrams)

	for site, p := range d.Sites {
		prefix := "sites." + string(site) + "."
		v.SetDefault(prefix+"home_url", p.HomeURL)
		v.SetDefault(prefix+"domain", p.Domain)
		v.SetDefault(prefix+"search_inputs", p.SearchInputs)
		v.SetDefault(prefix+"suggestion_list", p.SuggestionList)
		v.SetDefault(prefix+"candidate", p.Candidate)
		v.SetDefault(prefix+"quantity_input", p.QuantityInput)
		v.SetDefault(prefix+"increment_button", p.IncrementButton)
		v.SetDefault(prefix+"add_to_cart", p.AddToCart)
		v.SetDefault(prefix+"package_size_labels", p.PackageSizeLabels)
		v.SetDefault(prefix+"poll_attempts", p.PollAttempts)
		v.SetDefault(prefix+"poll_interval", p.PollInterval)
		v.SetDefault(prefix+"initial_wait", p.InitialWait)
		v.SetDefault(prefix+"fallback_timeout", p.FallbackTimeout)
	}
}

// validate validates the configuration
func validate(config *types.Config) error {
	if config.Port == "" {
		return fmt.Errorf("port is required (set %s_PORT)", EnvPrefix)
	}

	if config.Timeout <= 0 || config.RequestTimeout <= 0 || config.RegistryTTL <= 0 {
		return fmt.Errorf("timeout, request_timeout and registry_ttl must be positive")
	}

	if config.SettleDelay < 0 || config.ClickDelay < 0 || config.InterItemDelay < 0 || config.DeliveryBackoff < 0 {
		return fmt.Errorf("delays must not be negative")
	}

	if config.DeliveryRetries < 1 {
		return fmt.Errorf("delivery_retries must be at least 1, got: %d", config.DeliveryRetries)
	}

	if config.RatePerSecond <= 0 || config.RateBurst < 1 {
		return fmt.Errorf("rate_per_second must be positive and rate_burst at least 1")
	}

	for name, unit := range config.Units {
		if unit.Multiplier <= 0 {
			return fmt.Errorf("unit %q needs a positive multiplier", name)
		}
		switch unit.Family {
		case "", "weight", "volume", "count":
		default:
			return fmt.Errorf("unit %q has unknown family %q", name, unit.Family)
		}
	}

	for _, site := range types.Sites {
		profile, ok := config.Sites[site]
		if !ok {
			return fmt.Errorf("missing selectors for site %s", site)
		}
		if err := validateProfile(profile); err != nil {
			return fmt.Errorf("site %s: %w", site, err)
		}
	}

	return nil
}

func validateProfile(p types.SiteProfile) error {
	switch {
	case p.HomeURL == "" || p.Domain == "":
		return fmt.Errorf("home_url and domain are required")
	case len(p.SearchInputs) == 0:
		return fmt.Errorf("at least one search input selector is required")
	case p.Candidate == "":
		return fmt.Errorf("candidate selector is required")
	case p.AddToCart == "":
		return fmt.Errorf("add_to_cart selector is required")
	case p.PollInterval <= 0:
		return fmt.Errorf("poll_interval must be positive")
	}
	return nil
}
