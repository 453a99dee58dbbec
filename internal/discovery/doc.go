// Package discovery locates the Yarbo robot's MQTT broker on the local network.
//
// The broker listens for TLS on port 8883, which is unusual enough on a home
// network that a successful handshake identifies it. Discovery never fails
// hard: when nothing answers, Resolve reports not-found and the caller
// decides whether to fall back to a stale address.
//
// # Usage
//
//	resolver := discovery.NewResolver(discovery.Options{
//	    Port:   8883,
//	    Prober: discovery.TLSProber{Timeout: 1500 * time.Millisecond},
//	    Store:  discovery.NewFileStore(".robot_ip_cache", logger),
//	    Logger: logger,
//	})
//	host, ok := resolver.Resolve(ctx, cfg.Robot.Host)
package discovery
