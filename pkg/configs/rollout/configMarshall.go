package rollout

import (
	"fmt"
	"net/url"
	"time"

	"github.com/opst/rollout/pkg/utils/retry"
	"gopkg.in/yaml.v3"
)

type Marshalled[S any] interface {
	trySeal(string) S
}

// seal marshalled object.
//
// this function CAN CAUSE PANIC if misconfiguration is found.
//
// All types named `pkg/configs/rollout.XxxMarshall` are `Marshalled[*Xxx]` .
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

// Configuration of the rollout controller.
//
// This type is marshalling value and mutable.
// Consider to use immutable version, `Config`.
type ConfigMarshall struct {
	Database     string                      `yaml:"database,omitempty"`
	Controller   *ControllerConfigMarshall   `yaml:"controller,omitempty"`
	Registry     *RegistryConfigMarshall     `yaml:"registry"`
	Orchestrator *OrchestratorConfigMarshall `yaml:"orchestrator,omitempty"`
	Store        *StoreConfigMarshall        `yaml:"store,omitempty"`
	Lock         *LockConfigMarshall         `yaml:"lock,omitempty"`
	Server       *ServerConfigMarshall       `yaml:"server,omitempty"`
	Hooks        *HooksConfigMarshall        `yaml:"hooks,omitempty"`
}

var _ Marshalled[*Config] = &ConfigMarshall{}

func (c *ConfigMarshall) trySeal(path string) *Config {
	store := orDefault(c.Store).trySeal(path + ".store")
	lock := orDefault(c.Lock).trySeal(path + ".lock")

	database := c.Database
	if store.Type() == StorePostgres || lock.Type() == LockPostgres {
		database = required(database, path+".database")
	}

	return &Config{
		database:     database,
		controller:   orDefault(c.Controller).trySeal(path + ".controller"),
		registry:     nonnil(c.Registry, path+".registry").trySeal(path + ".registry"),
		orchestrator: orDefault(c.Orchestrator).trySeal(path + ".orchestrator"),
		store:        store,
		lock:         lock,
		server:       orDefault(c.Server).trySeal(path + ".server"),
		hooks:        orDefault(c.Hooks).trySeal(path + ".hooks"),
	}
}

type RetryConfigMarshall struct {
	Base        time.Duration `yaml:"base,omitempty"`
	Factor      float64       `yaml:"factor,omitempty"`
	MaxAttempts int           `yaml:"maxAttempts,omitempty"`
}

type ControllerConfigMarshall struct {
	Retry           *RetryConfigMarshall `yaml:"retry,omitempty"`
	PollInterval    time.Duration        `yaml:"pollInterval,omitempty"`
	VerifyTimeout   time.Duration        `yaml:"verifyTimeout,omitempty"`
	RollbackTimeout time.Duration        `yaml:"rollbackTimeout,omitempty"`
	LatestAlias     *bool                `yaml:"latestAlias,omitempty"`
}

func (cm *ControllerConfigMarshall) trySeal(path string) *ControllerConfig {
	policy := retry.Default
	if r := cm.Retry; r != nil {
		if r.Base != 0 {
			policy.Base = positive(r.Base, path+".retry.base")
		}
		if r.Factor != 0 {
			if r.Factor < 1 {
				panic(fmt.Sprintf("%s.retry.factor should be 1 or more, but %v", path, r.Factor))
			}
			policy.Factor = r.Factor
		}
		if r.MaxAttempts != 0 {
			policy.MaxAttempts = positive(r.MaxAttempts, path+".retry.maxAttempts")
		}
	}

	latest := true
	if cm.LatestAlias != nil {
		latest = *cm.LatestAlias
	}

	return &ControllerConfig{
		retry:           policy,
		pollInterval:    positive(withDefault(cm.PollInterval, 5*time.Second), path+".pollInterval"),
		verifyTimeout:   positive(withDefault(cm.VerifyTimeout, 5*time.Minute), path+".verifyTimeout"),
		rollbackTimeout: positive(withDefault(cm.RollbackTimeout, 2*time.Minute), path+".rollbackTimeout"),
		latestAlias:     latest,
	}
}

type RegistryConfigMarshall struct {
	Repository string                `yaml:"repository"`
	Source     *SourceConfigMarshall `yaml:"source"`
	Insecure   bool                  `yaml:"insecure,omitempty"`
}

type SourceConfigMarshall struct {
	Tarball    string `yaml:"tarball,omitempty"`
	TarballTag string `yaml:"tarballTag,omitempty"`
	Image      string `yaml:"image,omitempty"`
}

func (rm *RegistryConfigMarshall) trySeal(path string) *RegistryConfig {
	src := nonnil(rm.Source, path+".source")
	if (src.Tarball == "") == (src.Image == "") {
		panic(path + ".source requires one of tarball or image")
	}
	return &RegistryConfig{
		repository: required(rm.Repository, path+".repository"),
		tarball:    src.Tarball,
		tarballTag: src.TarballTag,
		image:      src.Image,
		insecure:   rm.Insecure,
	}
}

type OrchestratorConfigMarshall struct {
	Kubeconfig string `yaml:"kubeconfig,omitempty"`
	Container  string `yaml:"container,omitempty"`
}

func (om *OrchestratorConfigMarshall) trySeal(string) *OrchestratorConfig {
	return &OrchestratorConfig{
		kubeconfig: om.Kubeconfig,
		container:  om.Container,
	}
}

type StoreConfigMarshall struct {
	Type StoreType `yaml:"type,omitempty"`
	Dir  string    `yaml:"dir,omitempty"`
}

func (sm *StoreConfigMarshall) trySeal(path string) *StoreConfig {
	typ := withDefault(sm.Type, StoreFile)
	switch typ {
	case StoreFile, StorePostgres:
	default:
		panic(fmt.Sprintf("%s.type should be %s or %s, but %q", path, StoreFile, StorePostgres, typ))
	}
	return &StoreConfig{
		typ: typ,
		dir: withDefault(sm.Dir, "records"),
	}
}

type LockConfigMarshall struct {
	Type LockType `yaml:"type,omitempty"`
}

func (lm *LockConfigMarshall) trySeal(path string) *LockConfig {
	typ := withDefault(lm.Type, LockMemory)
	switch typ {
	case LockMemory, LockPostgres:
	default:
		panic(fmt.Sprintf("%s.type should be %s or %s, but %q", path, LockMemory, LockPostgres, typ))
	}
	return &LockConfig{typ: typ}
}

type ServerConfigMarshall struct {
	Port          int32  `yaml:"port,omitempty"`
	TriggerSecret string `yaml:"triggerSecret,omitempty"`
}

func (sm *ServerConfigMarshall) trySeal(path string) *ServerConfig {
	return &ServerConfig{
		port:          positive(withDefault(sm.Port, 8080), path+".port"),
		triggerSecret: sm.TriggerSecret,
	}
}

type HooksConfigMarshall struct {
	Before []*url.URL
	After  []*url.URL
}

func (hm *HooksConfigMarshall) UnmarshalYAML(node *yaml.Node) error {
	raw := struct {
		Before []string `yaml:"before"`
		After  []string `yaml:"after"`
	}{}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	parse := func(urls []string) ([]*url.URL, error) {
		parsed := make([]*url.URL, len(urls))
		for i, u := range urls {
			p, err := url.Parse(u)
			if err != nil {
				return nil, err
			}
			parsed[i] = p
		}
		return parsed, nil
	}

	var err error
	if hm.Before, err = parse(raw.Before); err != nil {
		return err
	}
	if hm.After, err = parse(raw.After); err != nil {
		return err
	}
	return nil
}

func (hm *HooksConfigMarshall) trySeal(string) *HooksConfig {
	return &HooksConfig{before: hm.Before, after: hm.After}
}

func orDefault[T any](v *T) *T {
	if v == nil {
		return new(T)
	}
	return v
}

func nonnil[T any](v *T, path string) *T {
	if v == nil {
		panic(path + " is required")
	}
	return v
}

func required[T comparable](v T, path string) T {
	if v == *new(T) {
		panic(path + " is required")
	}
	return v
}

func withDefault[T comparable](v T, d T) T {
	if v == *new(T) {
		return d
	}
	return v
}

func positive[T int | int32 | time.Duration](v T, path string) T {
	if v <= 0 {
		panic(fmt.Sprintf("%s should be positive, but %v", path, v))
	}
	return v
}
