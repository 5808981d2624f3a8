package cli

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/icecat/internal/paths"
	"github.com/mesh-intelligence/icecat/internal/rest"
	"github.com/mesh-intelligence/icecat/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"

	// Environment variables override config keys: ICECAT_TRANSPORT_URI
	// sets transport.uri.
	envPrefix = "ICECAT"

	cfgKeyDataDir          = "data_dir"
	cfgKeyCatalogName      = "catalog.name"
	cfgKeyWarehouse        = "catalog.warehouse"
	cfgKeyCacheMetadata    = "catalog.cache_metadata"
	cfgKeyTransportKind    = "transport.kind"
	cfgKeyTransportURI     = "transport.uri"
	cfgKeyTransportTimeout = "transport.timeout"
	cfgKeyTransportRetries = "transport.retries"
	cfgKeyStoreKind        = "store.kind"
	cfgKeyStoreBucket      = "store.bucket"
	cfgKeyStoreRegion      = "store.region"
	cfgKeyStoreEndpoint    = "store.endpoint"
	cfgKeyServerAddr       = "server.addr"
	cfgKeyLogLevel         = "log.level"
	cfgKeyLogFormat        = "log.format"

	defaultServerAddr = ":8181"
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# icecat configuration

catalog:
  name: icecat
  # Root location for new tables. Defaults to file://<data_dir>/warehouse.
  # warehouse: s3://bucket/warehouse
  cache_metadata: false

# Catalog service: sqlite (embedded), rest, or memory.
transport:
  kind: sqlite
  # uri: http://localhost:8181
  # timeout: 30s
  # retries: 3

# Metadata file store: local, s3, or memory.
store:
  kind: local
  # bucket:
  # region:
  # endpoint:

server:
  addr: ":8181"

# Data directory (optional; overridable by --data-dir flag)
# data_dir:
`

// settings is the resolved configuration a command runs with.
type settings struct {
	Catalog types.CatalogConfig

	DataDir string

	TransportKind string
	URI           string
	Timeout       time.Duration
	Retries       int

	StoreKind string
	Bucket    string
	Region    string
	Endpoint  string

	ServerAddr string
}

// loadConfig reads config.yaml from configDir using Viper. It creates the
// directory and a default config.yaml on first run. A missing config.yaml
// is not an error.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := ensureConfigDir(configDir); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyCatalogName, types.DefaultCatalogName)
	v.SetDefault(cfgKeyTransportKind, types.TransportSQLite)
	v.SetDefault(cfgKeyTransportTimeout, rest.DefaultTimeout)
	v.SetDefault(cfgKeyTransportRetries, rest.DefaultRetries)
	v.SetDefault(cfgKeyStoreKind, types.StoreLocal)
	v.SetDefault(cfgKeyServerAddr, defaultServerAddr)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// ensureConfigDir creates the config directory if it does not exist.
func ensureConfigDir(configDir string) error {
	return os.MkdirAll(configDir, 0o755)
}

// ensureDefaultConfigFile creates a default config.yaml if the file does not
// exist in the config directory.
func ensureDefaultConfigFile(configDir string) error {
	path := paths.ConfigFile(configDir)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// settings resolves the loaded config into a validated settings value.
func (a *app) settings() (settings, error) {
	v := a.cfg
	dataDir, err := a.resolveDataDir()
	if err != nil {
		return settings{}, fmt.Errorf("resolve data dir: %w", err)
	}

	s := settings{
		Catalog: types.CatalogConfig{
			Name:          v.GetString(cfgKeyCatalogName),
			Warehouse:     v.GetString(cfgKeyWarehouse),
			CacheMetadata: v.GetBool(cfgKeyCacheMetadata),
		},
		DataDir:       dataDir,
		TransportKind: strings.ToLower(v.GetString(cfgKeyTransportKind)),
		URI:           v.GetString(cfgKeyTransportURI),
		Timeout:       v.GetDuration(cfgKeyTransportTimeout),
		Retries:       v.GetInt(cfgKeyTransportRetries),
		StoreKind:     strings.ToLower(v.GetString(cfgKeyStoreKind)),
		Bucket:        v.GetString(cfgKeyStoreBucket),
		Region:        v.GetString(cfgKeyStoreRegion),
		Endpoint:      v.GetString(cfgKeyStoreEndpoint),
		ServerAddr:    v.GetString(cfgKeyServerAddr),
	}
	if s.Catalog.Name == "" {
		s.Catalog.Name = types.DefaultCatalogName
	}
	if s.Catalog.Warehouse == "" && s.StoreKind == types.StoreLocal {
		s.Catalog.Warehouse = paths.DefaultWarehouse(dataDir)
	}

	if !types.ValidTransport(s.TransportKind) {
		return settings{}, fmt.Errorf("%w: unknown transport %q", types.ErrInvalidConfig, s.TransportKind)
	}
	if !types.ValidStore(s.StoreKind) {
		return settings{}, fmt.Errorf("%w: unknown store %q", types.ErrInvalidConfig, s.StoreKind)
	}
	if s.TransportKind == types.TransportREST && s.URI == "" {
		return settings{}, fmt.Errorf("%w: %s is required for the rest transport", types.ErrInvalidConfig, cfgKeyTransportURI)
	}
	if err := s.Catalog.Validate(); err != nil {
		return settings{}, err
	}
	if s.StoreKind == types.StoreS3 {
		bucket, err := warehouseBucket(s.Catalog.Warehouse, s.Bucket)
		if err != nil {
			return settings{}, err
		}
		s.Bucket = bucket
	}
	return s, nil
}

// warehouseBucket returns the bucket named by an s3:// warehouse. A
// configured store.bucket must match it.
func warehouseBucket(warehouse, configured string) (string, error) {
	u, err := url.Parse(warehouse)
	if err != nil || (u.Scheme != "s3" && u.Scheme != "s3a") || u.Host == "" {
		return "", fmt.Errorf("%w: s3 store needs an s3://bucket/... warehouse, got %q", types.ErrInvalidConfig, warehouse)
	}
	if configured != "" && configured != u.Host {
		return "", fmt.Errorf("%w: %s %q does not match warehouse bucket %q", types.ErrInvalidConfig, cfgKeyStoreBucket, configured, u.Host)
	}
	return u.Host, nil
}
