package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cloudrift-io/cloudstack-client/pkg/cloudstack"
)

// Static errors for err113 compliance.
var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrRegionMissing  = errors.New("region not found in config")
	ErrInvalidBool    = errors.New("invalid truth value")
)

const defaultRegion = "cloudstack"

// settingKeys are the recognized configuration keys, in ini files and as
// CLOUDSTACK_<KEY> environment variables. Headers use the header_<name>
// convention and are folded into a map.
var settingKeys = []string{
	"endpoint", "key", "secret", "method", "timeout",
	"verify", "cert", "cert_key", "retry", "theme", "expiration",
	"poll_interval", "job_timeout", "trace", "trace_nats",
	"dangerous_no_tls_verify",
}

var requiredKeys = []string{"endpoint", "key", "secret"}

// Settings is the resolved CLI configuration: environment first, then the
// selected ini region on top, then CLOUDSTACK_OVERRIDES winners back from the
// environment.
type Settings struct {
	Region string `json:"region" yaml:"region"`

	Endpoint string `json:"endpoint"          yaml:"endpoint"`
	Key      string `json:"key"               yaml:"key"`
	Secret   string `json:"secret,omitempty"  yaml:"secret,omitempty"`
	Method   string `json:"method"            yaml:"method"`

	Timeout      time.Duration `json:"timeout"       yaml:"timeout"`
	Retry        int           `json:"retry"         yaml:"retry"`
	Expiration   time.Duration `json:"expiration"    yaml:"expiration"`
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
	JobTimeout   time.Duration `json:"job_timeout"   yaml:"job_timeout"`

	Verify               string `json:"verify,omitempty"   yaml:"verify,omitempty"`
	Cert                 string `json:"cert,omitempty"     yaml:"cert,omitempty"`
	CertKey              string `json:"cert_key,omitempty" yaml:"cert_key,omitempty"`
	DangerousNoTLSVerify bool   `json:"dangerous_no_tls_verify" yaml:"dangerous_no_tls_verify"`

	Theme     string            `json:"theme,omitempty"      yaml:"theme,omitempty"`
	Trace     bool              `json:"trace"                yaml:"trace"`
	TraceNATS string            `json:"trace_nats,omitempty" yaml:"trace_nats,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"    yaml:"headers,omitempty"`
}

// ResolveSettings builds the effective configuration for a region.
//
// The environment alone suffices when every required key is set and
// CLOUDSTACK_OVERRIDES is empty; otherwise ini files are consulted and win,
// except for the keys named in CLOUDSTACK_OVERRIDES which stay on their
// environment values.
func ResolveSettings(region, configFile string) (*Settings, error) {
	if region == "" {
		region = os.Getenv("CLOUDSTACK_REGION")
	}

	if region == "" {
		region = defaultRegion
	}

	envConf := readEnvironment()
	overrides := strings.TrimSpace(os.Getenv("CLOUDSTACK_OVERRIDES"))

	if overrides == "" && hasRequired(envConf) {
		return buildSettings(region, envConf)
	}

	iniConf, err := readIniRegion(region, configFile)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]string, len(envConf)+len(iniConf))
	for k, v := range envConf {
		merged[k] = v
	}

	for k, v := range iniConf {
		merged[k] = v
	}

	for _, key := range splitOverrides(overrides) {
		if v, ok := envConf[key]; ok {
			merged[key] = v
		}
	}

	var missing []string

	for _, key := range requiredKeys {
		if merged[key] == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: the configuration is missing the following keys: %s",
			ErrRegionMissing, strings.Join(missing, ", "))
	}

	return buildSettings(region, merged)
}

// readEnvironment collects CLOUDSTACK_* variables into a flat key map.
func readEnvironment() map[string]string {
	conf := make(map[string]string)

	for _, key := range settingKeys {
		envKey := "CLOUDSTACK_" + strings.ToUpper(key)
		if value := os.Getenv(envKey); value != "" {
			conf[key] = value
		}
	}

	const headerPrefix = "CLOUDSTACK_HEADER_"

	for _, entry := range os.Environ() {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || value == "" || !strings.HasPrefix(name, headerPrefix) {
			continue
		}

		header := strings.ToLower(strings.TrimPrefix(name, headerPrefix))
		conf["header_"+header] = value
	}

	return conf
}

// readIniRegion loads the named section from the cloudstack.ini search path.
// Later files win key by key, matching configparser semantics.
func readIniRegion(region, configFile string) (map[string]string, error) {
	paths := configPaths(configFile)

	v := viper.New()
	v.SetConfigType("ini")

	found := false

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}

		found = true

		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if !found {
		return nil, fmt.Errorf("%w; tried %s", ErrConfigNotFound, strings.Join(paths, ", "))
	}

	section := v.GetStringMapString(region)
	if len(section) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrRegionMissing, region)
	}

	conf := make(map[string]string, len(section))

	for key, value := range section {
		if value == "" {
			continue
		}

		if keyAllowed(key) {
			conf[key] = value
		}
	}

	return conf, nil
}

// configPaths returns the ini search path, least to most specific.
func configPaths(configFile string) []string {
	var paths []string

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".cloudstack.ini"))
	}

	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, "cloudstack.ini"))
	}

	if configFile == "" {
		configFile = os.Getenv("CLOUDSTACK_CONFIG")
	}

	if configFile != "" {
		paths = append(paths, configFile)
	}

	return paths
}

func keyAllowed(key string) bool {
	if strings.HasPrefix(key, "header_") {
		return true
	}

	for _, allowed := range settingKeys {
		if key == allowed {
			return true
		}
	}

	return false
}

func hasRequired(conf map[string]string) bool {
	for _, key := range requiredKeys {
		if conf[key] == "" {
			return false
		}
	}

	return true
}

var overridesSplit = regexp.MustCompile(`\W+`)

func splitOverrides(overrides string) []string {
	if overrides == "" {
		return nil
	}

	parts := overridesSplit.Split(strings.ToLower(overrides), -1)
	keys := make([]string, 0, len(parts))

	for _, part := range parts {
		if part != "" {
			keys = append(keys, part)
		}
	}

	return keys
}

// buildSettings converts the flat merged key map into typed settings.
func buildSettings(region string, conf map[string]string) (*Settings, error) {
	settings := &Settings{
		Region:       region,
		Endpoint:     conf["endpoint"],
		Key:          conf["key"],
		Secret:       conf["secret"],
		Method:       conf["method"],
		Verify:       conf["verify"],
		Cert:         conf["cert"],
		CertKey:      conf["cert_key"],
		Theme:        conf["theme"],
		TraceNATS:    conf["trace_nats"],
		Timeout:      10 * time.Second,
		PollInterval: 2 * time.Second,
		Expiration:   10 * time.Minute,
	}

	if settings.Method == "" {
		settings.Method = "get"
	}

	var err error

	if settings.Timeout, err = secondsSetting(conf, "timeout", settings.Timeout); err != nil {
		return nil, err
	}

	if settings.Expiration, err = secondsSetting(conf, "expiration", settings.Expiration); err != nil {
		return nil, err
	}

	if settings.PollInterval, err = secondsSetting(conf, "poll_interval", settings.PollInterval); err != nil {
		return nil, err
	}

	if settings.JobTimeout, err = secondsSetting(conf, "job_timeout", 0); err != nil {
		return nil, err
	}

	if raw := conf["retry"]; raw != "" {
		if settings.Retry, err = strconv.Atoi(raw); err != nil {
			return nil, fmt.Errorf("invalid retry value %q: %w", raw, err)
		}
	}

	if raw := conf["dangerous_no_tls_verify"]; raw != "" {
		if settings.DangerousNoTLSVerify, err = parseBool(raw); err != nil {
			return nil, err
		}
	}

	if raw := conf["trace"]; raw != "" {
		if settings.Trace, err = parseBool(raw); err != nil {
			return nil, err
		}
	}

	// A literal false verify means skip verification; anything else is a CA
	// bundle path.
	if v, err := parseBool(settings.Verify); err == nil {
		settings.Verify = ""
		if !v {
			settings.DangerousNoTLSVerify = true
		}
	}

	for key, value := range conf {
		if name, ok := strings.CutPrefix(key, "header_"); ok {
			if settings.Headers == nil {
				settings.Headers = make(map[string]string)
			}

			settings.Headers[name] = value
		}
	}

	return settings, nil
}

// ClientConfig converts the settings into an engine configuration.
func (s *Settings) ClientConfig() *cloudstack.Config {
	return &cloudstack.Config{
		Endpoint:      s.Endpoint,
		APIKey:        s.Key,
		Secret:        s.Secret,
		Method:        s.Method,
		Timeout:       s.Timeout,
		Retry:         s.Retry,
		PollInterval:  s.PollInterval,
		JobTimeout:    s.JobTimeout,
		Expiration:    s.Expiration,
		CABundle:      s.Verify,
		SkipTLSVerify: s.DangerousNoTLSVerify,
		ClientCert:    s.Cert,
		ClientKey:     s.CertKey,
		Headers:       s.Headers,
		Trace:         s.Trace,
	}
}

// Redacted returns a copy safe for display.
func (s *Settings) Redacted() *Settings {
	out := *s
	if out.Secret != "" {
		out.Secret = "********"
	}

	return &out
}

// secondsSetting parses a whole-seconds setting into a duration.
func secondsSetting(conf map[string]string, key string, fallback time.Duration) (time.Duration, error) {
	raw := conf[key]
	if raw == "" {
		return fallback, nil
	}

	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

// parseBool accepts the configparser truth vocabulary.
func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "y", "yes", "t", "true", "on", "1":
		return true, nil
	case "n", "no", "f", "false", "off", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidBool, value)
	}
}

// SortedHeaderNames lists header names deterministically for display.
func (s *Settings) SortedHeaderNames() []string {
	names := make([]string, 0, len(s.Headers))
	for name := range s.Headers {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
