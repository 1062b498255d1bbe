package platform

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Provider bundles a tree source and an action executor.
type Provider struct {
	Source   TreeSource
	Executor ActionExecutor
}

// ProviderOptions is passed to provider constructors.
type ProviderOptions struct {
	// Paths are the inputs of file-based sources.
	Paths []string
	// Interval paces file-based sources between batches.
	Interval time.Duration
	Logger   *zap.Logger
}

// NewProviderFunc builds a Provider.
type NewProviderFunc func(opts ProviderOptions) (*Provider, error)

var (
	providersMu sync.RWMutex
	providers   = map[string]NewProviderFunc{}
)

// Register makes a provider available under name. Host integrations call
// it from init.
func Register(name string, fn NewProviderFunc) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[name] = fn
}

// Providers returns the registered provider names.
func Providers() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()
	names := make([]string, 0, len(providers))
	for n := range providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewProvider returns the provider registered under name.
func NewProvider(name string, opts ProviderOptions) (*Provider, error) {
	providersMu.RLock()
	fn, ok := providers[name]
	providersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider %q; available: %s", name, strings.Join(Providers(), ", "))
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return fn(opts)
}

func init() {
	Register("replay", func(opts ProviderOptions) (*Provider, error) {
		if len(opts.Paths) == 0 {
			return nil, fmt.Errorf("replay provider needs at least one file")
		}
		return &Provider{
			Source:   &ReplaySource{Paths: opts.Paths, Interval: opts.Interval},
			Executor: NewLogExecutor(opts.Logger),
		}, nil
	})
}
