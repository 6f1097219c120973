package rollout

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variable naming the config file, used when no path is given.
const ENV_ROLLOUT_CONFIG = "ROLLOUT_CONFIG"

// load rollout controller config from a file.
//
// args:
//   - filepath: filepath refers a config file. When empty, $ROLLOUT_CONFIG is used.
//
// returns *Config, error:
//
//	When loading success, returns `(*Config, nil)`.
//	Otherwise, returns `(nil, error)`.
func Load(filepath string) (*Config, error) {
	if filepath == "" {
		filepath = os.Getenv(ENV_ROLLOUT_CONFIG)
	}
	if filepath == "" {
		return nil, fmt.Errorf("no config file. pass a path or set %s", ENV_ROLLOUT_CONFIG)
	}
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

// Unmarshal parses and verifies config.
//
// Misconfigurations are returned as errors.
func Unmarshal(conf []byte) (out *Config, err error) {
	var _out *ConfigMarshall
	if err := yaml.Unmarshal(conf, &_out); err != nil {
		return nil, err
	}
	if _out == nil {
		return nil, fmt.Errorf("config is empty")
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("misconfiguration: %v", r)
		}
	}()
	return TrySeal[*Config](_out), nil
}
