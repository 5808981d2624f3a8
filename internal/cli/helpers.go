package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/mesh-intelligence/icecat/internal/memory"
	"github.com/mesh-intelligence/icecat/internal/objstore"
	"github.com/mesh-intelligence/icecat/internal/rest"
	"github.com/mesh-intelligence/icecat/internal/sqlite"
	"github.com/mesh-intelligence/icecat/pkg/catalog"
	"github.com/mesh-intelligence/icecat/pkg/types"
)

// openCatalog builds the transport and store named by the config and wraps
// them in a Catalog. The caller must call the returned close function.
func (a *app) openCatalog() (*catalog.Catalog, func() error, error) {
	s, err := a.settings()
	if err != nil {
		return nil, nil, err
	}
	transport, closeTransport, err := a.openTransport(s)
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore(s)
	if err != nil {
		closeTransport()
		return nil, nil, err
	}
	c, err := catalog.New(s.Catalog, transport, store, catalog.WithLogger(a.logger))
	if err != nil {
		closeTransport()
		return nil, nil, err
	}
	return c, closeTransport, nil
}

// openTransport connects to the catalog service named by s.TransportKind.
func (a *app) openTransport(s settings) (types.Transport, func() error, error) {
	switch s.TransportKind {
	case types.TransportSQLite:
		backend, err := attachBackend(s)
		if err != nil {
			return nil, nil, err
		}
		return backend, backend.Detach, nil
	case types.TransportREST:
		client, err := rest.NewClient(rest.Config{
			URI:     s.URI,
			Timeout: s.Timeout,
			Retries: s.Retries,
			Logger:  a.logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, func() error { return nil }, nil
	case types.TransportMemory:
		return memory.NewTransport(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown transport %q", types.ErrInvalidConfig, s.TransportKind)
	}
}

// attachBackend creates a SQLite backend in the data directory and attaches
// it. The caller must call Detach.
func attachBackend(s settings) (*sqlite.Backend, error) {
	backend := sqlite.NewBackend()
	if err := backend.Attach(sqlite.Config{DataDir: s.DataDir, CatalogName: s.Catalog.Name}); err != nil {
		return nil, fmt.Errorf("attach backend: %w", err)
	}
	return backend, nil
}

// openStore creates the metadata store named by s.StoreKind.
func openStore(s settings) (types.MetadataStore, error) {
	switch s.StoreKind {
	case types.StoreLocal:
		return objstore.NewLocal(""), nil
	case types.StoreS3:
		return objstore.NewS3(objstore.S3Config{
			Bucket:   s.Bucket,
			Region:   s.Region,
			Endpoint: s.Endpoint,
		})
	case types.StoreMemory:
		return objstore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: unknown store %q", types.ErrInvalidConfig, s.StoreKind)
	}
}

// render writes v in the selected output format. text calls human instead.
func (a *app) render(v any, human func(w io.Writer)) error {
	switch a.format() {
	case outputJSON:
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		fmt.Fprintln(a.out, string(out))
	case outputYAML:
		out, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal YAML: %w", err)
		}
		fmt.Fprint(a.out, string(out))
	case outputText, "":
		human(a.out)
	default:
		return fmt.Errorf("%w: unknown output format %q (expected text, json, yaml)", errUsage, a.output)
	}
	return nil
}

// parseProperties turns key=value arguments into a map.
func parseProperties(args []string) (map[string]string, error) {
	props := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: invalid property %q (expected key=value)", errUsage, arg)
		}
		props[k] = v
	}
	return props, nil
}
