package rollout

import (
	"net/url"
	"time"

	"github.com/opst/rollout/pkg/utils/retry"
)

// StoreType tells where rollout records are stored.
type StoreType string

const (
	StoreFile     StoreType = "file"
	StorePostgres StoreType = "postgres"
)

// LockType tells how attempts are guarded.
type LockType string

const (
	LockMemory   LockType = "memory"
	LockPostgres LockType = "postgres"
)

// Configuration of the rollout controller.
//
// to get `Config` instance, use `Unmarshal` or `TrySeal(*ConfigMarshall)`.
type Config struct {
	database     string
	controller   *ControllerConfig
	registry     *RegistryConfig
	orchestrator *OrchestratorConfig
	store        *StoreConfig
	lock         *LockConfig
	server       *ServerConfig
	hooks        *HooksConfig
}

// Connection string for database. Empty when no components use postgres.
func (c *Config) Database() string {
	return c.database
}

func (c *Config) Controller() *ControllerConfig {
	return c.controller
}

func (c *Config) Registry() *RegistryConfig {
	return c.registry
}

func (c *Config) Orchestrator() *OrchestratorConfig {
	return c.orchestrator
}

func (c *Config) Store() *StoreConfig {
	return c.store
}

func (c *Config) Lock() *LockConfig {
	return c.lock
}

func (c *Config) Server() *ServerConfig {
	return c.server
}

func (c *Config) Hooks() *HooksConfig {
	return c.hooks
}

type ControllerConfig struct {
	retry           retry.Policy
	pollInterval    time.Duration
	verifyTimeout   time.Duration
	rollbackTimeout time.Duration
	latestAlias     bool
}

// Retry policy for retryable errors. default = base 1s, factor 2, 5 attempts
func (c *ControllerConfig) Retry() retry.Policy {
	return c.retry
}

// Interval between health checks. default = 5s
func (c *ControllerConfig) PollInterval() time.Duration {
	return c.pollInterval
}

// How long to wait for replicas converging. default = 5m
func (c *ControllerConfig) VerifyTimeout() time.Duration {
	return c.verifyTimeout
}

// How long rollbacks may take, even after cancellation. default = 2m
func (c *ControllerConfig) RollbackTimeout() time.Duration {
	return c.rollbackTimeout
}

// Whether the latest alias is pushed too. default = true
func (c *ControllerConfig) LatestAlias() bool {
	return c.latestAlias
}

type RegistryConfig struct {
	repository string
	tarball    string
	tarballTag string
	image      string
	insecure   bool
}

// Repository where artifacts are pushed, like "registry.example.com:5000/sample-nestjs".
func (r *RegistryConfig) Repository() string {
	return r.repository
}

// Path of a tarball of the built image. Exclusive with Image.
func (r *RegistryConfig) Tarball() string {
	return r.tarball
}

// Which image in the tarball. Optional.
func (r *RegistryConfig) TarballTag() string {
	return r.tarballTag
}

// Reference of the built image already pushed elsewhere. Exclusive with Tarball.
func (r *RegistryConfig) Image() string {
	return r.image
}

// Whether plain HTTP is allowed.
func (r *RegistryConfig) Insecure() bool {
	return r.insecure
}

type OrchestratorConfig struct {
	kubeconfig string
	container  string
}

// Path to kubeconfig. Empty means $KUBECONFIG, ~/.kube/config or in-cluster config.
func (o *OrchestratorConfig) Kubeconfig() string {
	return o.kubeconfig
}

// Container to be updated. Empty means the first container.
func (o *OrchestratorConfig) Container() string {
	return o.container
}

type StoreConfig struct {
	typ StoreType
	dir string
}

func (s *StoreConfig) Type() StoreType {
	return s.typ
}

// Directory of records, for file store. default = "records"
func (s *StoreConfig) Dir() string {
	return s.dir
}

type LockConfig struct {
	typ LockType
}

func (l *LockConfig) Type() LockType {
	return l.typ
}

type ServerConfig struct {
	port          int32
	triggerSecret string
}

// default = 8080
func (s *ServerConfig) Port() int32 {
	return s.port
}

// HS256 key to verify bearer tokens of triggers. Empty means no authentication.
func (s *ServerConfig) TriggerSecret() string {
	return s.triggerSecret
}

type HooksConfig struct {
	before []*url.URL
	after  []*url.URL
}

// Webhooks called before pushing. Any non-2xx answer rejects the attempt.
func (h *HooksConfig) Before() []*url.URL {
	return h.before
}

// Webhooks called with results.
func (h *HooksConfig) After() []*url.URL {
	return h.after
}
