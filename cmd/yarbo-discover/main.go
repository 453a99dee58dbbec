// yarbo-discover finds the robot's MQTT broker on the local network.
//
// It runs the same resolution the bridge runs at startup: the configured
// address, then the cached one, then a scan of the local /24. A found
// address is written to the address cache for the bridge to pick up.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/nerrad567/yarbo-bridge/internal/discovery"
	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/config"
)

// errNotFound is returned when no strategy located a broker.
var errNotFound = errors.New("no robot broker found")

type options struct {
	configPath string
	host       string
	subnet     string
	timeout    time.Duration
	noCache    bool
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}

func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("yarbo-discover", pflag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVarP(&opts.configPath, "config", "c", os.Getenv("YARBO_CONFIG"), "path to the YAML config file")
	fs.StringVar(&opts.host, "host", "", "address to try first (default: robot.host from config)")
	fs.StringVar(&opts.subnet, "subnet", "", "subnet to scan, e.g. 192.168.1.0/24 (default: local /24)")
	fs.DurationVar(&opts.timeout, "timeout", 0, "per-address probe timeout (default: discovery.probe_timeout)")
	fs.BoolVar(&opts.noCache, "no-cache", false, "do not read or write the address cache")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

// run resolves the broker once and prints the result to out.
func run(ctx context.Context, opts options, out io.Writer) error {
	// The serial and cloud settings are not needed to find the broker.
	cfg, err := config.Parse(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Robot.Port < 1 || cfg.Robot.Port > 65535 {
		return fmt.Errorf("%w: robot.port must be between 1 and 65535", config.ErrInvalidConfig)
	}

	host := cfg.Robot.Host
	if opts.host != "" {
		host = opts.host
	}
	subnet := cfg.Discovery.Subnet
	if opts.subnet != "" {
		subnet = opts.subnet
	}
	timeout := cfg.Discovery.ProbeTimeout
	if opts.timeout > 0 {
		timeout = opts.timeout
	}

	printer := &printer{out: out}
	resolverOpts := discovery.Options{
		Port:        cfg.Robot.Port,
		Prober:      discovery.TLSProber{Timeout: timeout},
		Concurrency: cfg.Discovery.Concurrency,
		Subnet:      subnet,
		Logger:      printer,
	}
	if !opts.noCache && cfg.Discovery.CacheFile != "" {
		resolverOpts.Store = discovery.NewFileStore(cfg.Discovery.CacheFile, printer)
	}

	fmt.Fprintf(out, "Looking for the robot broker on port %s\n", color.CyanString("%d", cfg.Robot.Port))

	start := time.Now()
	found, ok := discovery.NewResolver(resolverOpts).Resolve(ctx, host)
	elapsed := time.Since(start).Round(100 * time.Millisecond)

	if !ok {
		fmt.Fprintf(out, "%s no broker answered (%s)\n", color.RedString("✗"), elapsed)
		return errNotFound
	}

	fmt.Fprintf(out, "%s robot broker at %s (%s)\n",
		color.GreenString("✓"), color.New(color.Bold).Sprintf("%s:%d", found, cfg.Robot.Port), elapsed)
	if found != host && host != "" {
		fmt.Fprintf(out, "  %s configured address %s is out of date; set YARBO_ROBOT_IP=%s\n",
			color.YellowString("!"), host, found)
	}
	return nil
}

// printer renders resolver progress as coloured lines.
type printer struct {
	out io.Writer
}

func (p *printer) Info(msg string, args ...any) {
	fmt.Fprintf(p.out, "%s %s%s\n", color.BlueString("·"), msg, attrs(args))
}

func (p *printer) Warn(msg string, args ...any) {
	fmt.Fprintf(p.out, "%s %s%s\n", color.YellowString("!"), msg, attrs(args))
}

// attrs formats slog-style key/value pairs.
func attrs(args []any) string {
	var b strings.Builder
	for i := 0; i+1 < len(args); i += 2 {
		b.WriteString(color.CyanString(" %v=%v", args[i], args[i+1]))
	}
	return b.String()
}
