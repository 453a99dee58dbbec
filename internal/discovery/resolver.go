package discovery

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency caps simultaneous probes during a subnet scan.
const DefaultConcurrency = 50

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Options configures a Resolver.
type Options struct {
	// Port is the broker port to probe (8883 on the robot).
	Port int

	// Prober checks a single address. Defaults to TLSProber.
	Prober Prober

	// Store caches the last known good address. Optional.
	Store Store

	// Concurrency caps simultaneous scan probes. Defaults to 50.
	Concurrency int

	// Subnet overrides local /24 detection when non-empty.
	Subnet string

	// Logger is optional.
	Logger Logger
}

// Resolver locates the robot broker on the local network.
//
// Resolve tries, in order:
//  1. The configured address (saved to the store on success)
//  2. The cached address, if it differs from the configured one
//  3. A scan of the local /24 (saved to the store on success)
//
// Thread Safety: Resolve may be called concurrently.
type Resolver struct {
	port        int
	prober      Prober
	store       Store
	concurrency int
	subnet      string
	logger      Logger

	// scan and localSubnet are replaced in tests.
	scan        func(ctx context.Context, hosts []string) (string, bool)
	localSubnet func() (netip.Prefix, error)
}

// NewResolver creates a resolver.
func NewResolver(opts Options) *Resolver {
	r := &Resolver{
		port:        opts.Port,
		prober:      opts.Prober,
		store:       opts.Store,
		concurrency: opts.Concurrency,
		subnet:      opts.Subnet,
		logger:      opts.Logger,
		localSubnet: LocalSubnet,
	}
	if r.prober == nil {
		r.prober = TLSProber{}
	}
	if r.concurrency < 1 {
		r.concurrency = DefaultConcurrency
	}
	r.scan = r.scanHosts
	return r
}

// Port returns the probed broker port.
func (r *Resolver) Port() int {
	return r.port
}

// Probe checks a single host with the resolver's prober.
func (r *Resolver) Probe(ctx context.Context, host string) bool {
	return r.prober.Probe(ctx, host, r.port)
}

// Resolve finds a responsive broker address.
//
// Parameters:
//   - ctx: Cancels an in-progress scan
//   - configured: The configured address, or "" to skip that step
//
// Returns:
//   - string: The responsive address
//   - bool: false when no strategy found a broker
func (r *Resolver) Resolve(ctx context.Context, configured string) (string, bool) {
	if configured != "" {
		r.logInfo("probing configured address", "host", configured, "port", r.port)
		if r.Probe(ctx, configured) {
			r.save(configured)
			return configured, true
		}
		r.logWarn("configured address not responding", "host", configured, "port", r.port)
	}

	cached := r.load()
	if cached != "" && cached != configured {
		r.logInfo("probing cached address", "host", cached, "port", r.port)
		if r.Probe(ctx, cached) {
			return cached, true
		}
		r.logWarn("cached address not responding", "host", cached)
	}

	prefix, err := r.scanPrefix()
	if err != nil {
		r.logWarn("cannot determine subnet to scan", "error", err)
		return "", false
	}
	hosts, err := Hosts(prefix)
	if err != nil {
		r.logWarn("cannot scan subnet", "subnet", prefix.String(), "error", err)
		return "", false
	}

	r.logInfo("scanning subnet for broker", "subnet", prefix.String(), "port", r.port)
	start := time.Now()
	found, ok := r.scan(ctx, hosts)
	elapsed := time.Since(start).Round(100 * time.Millisecond)

	if !ok {
		r.logWarn("no broker found on subnet", "subnet", prefix.String(), "elapsed", elapsed)
		return "", false
	}

	r.logInfo("found broker", "host", found, "elapsed", elapsed)
	r.save(found)
	return found, true
}

func (r *Resolver) scanPrefix() (netip.Prefix, error) {
	if r.subnet != "" {
		return ParseSubnet(r.subnet)
	}
	return r.localSubnet()
}

// scanHosts probes hosts with bounded concurrency and returns the first
// responder. Remaining probes are cancelled once one succeeds.
func (r *Resolver) scanHosts(ctx context.Context, hosts []string) (string, bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once  sync.Once
		found string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, host := range hosts {
		host := host
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if r.prober.Probe(gctx, host, r.port) {
				once.Do(func() {
					found = host
					cancel()
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	return found, found != ""
}

func (r *Resolver) load() string {
	if r.store == nil {
		return ""
	}
	return r.store.Load()
}

func (r *Resolver) save(host string) {
	if r.store != nil {
		r.store.Save(host)
	}
}

func (r *Resolver) logInfo(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Info(msg, args...)
	}
}

func (r *Resolver) logWarn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
