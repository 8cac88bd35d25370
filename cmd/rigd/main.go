package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"

	"github.com/cjeanneret/rigd/internal/command"
	"github.com/cjeanneret/rigd/internal/config"
	"github.com/cjeanneret/rigd/internal/debug"
	"github.com/cjeanneret/rigd/internal/hw/gpio"
	"github.com/cjeanneret/rigd/internal/hw/stepper"
	"github.com/cjeanneret/rigd/internal/logic/axis"
	"github.com/cjeanneret/rigd/internal/rig"
	"github.com/cjeanneret/rigd/internal/web"
)

// overrides holds the command-line values that take precedence over the
// configuration file. Zero values mean "use config".
type overrides struct {
	oscListen string
	webPort   int
	debug     int // -1 when unset
	mock      *bool
}

func main() {
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "serve status on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file; empty for built-in defaults")
	oscListen := flag.String("osc", "", "override server.osc_listen (host:port)")
	debugLevel := flag.Int("debug", -1, "override defaults.debug_level (0-4)")
	mock := flag.Bool("mock", true, "override defaults.mock_gpio")
	dump := flag.Bool("dump-config", false, "print the effective configuration and exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	o := overrides{oscListen: *oscListen, webPort: webPort.port(), debug: *debugLevel}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "mock" {
			o.mock = mock
		}
	})
	if err := applyOverrides(cfg, o); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}

	if *dump {
		if err := cfg.Dump(os.Stdout); err != nil {
			log.Fatalf("dump config: %v", err)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *cfgPath); err != nil {
		log.Fatalf("rigd: %v", err)
	}
}

// run wires the hardware, the motion core and the network endpoints, and
// blocks until ctx is cancelled or one of them fails.
func run(ctx context.Context, cfg *config.Config, cfgPath string) error {
	debug.Init(cfg.Defaults.DebugLevel)

	var broadcaster *web.StatusBroadcaster
	if cfg.Server.WebListen != "" {
		broadcaster = web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
		defer debug.SetOutput(os.Stdout)
	}

	debug.Section("Initialization")
	debug.Value("Config path", cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return fmt.Errorf("init GPIO: %w", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			debug.Error(fmt.Errorf("closing GPIO driver: %w", err))
		}
	}()

	debug.Step(2, "Initializing stepper motors")
	steppers := cfg.Steppers()
	for i, sc := range steppers {
		debug.PrintStruct(fmt.Sprintf("Stepper %d config", i), sc)
	}
	bank := stepper.NewBank(gpioDriver, steppers)
	if err := bank.Enable(); err != nil {
		return fmt.Errorf("enable drivers: %w", err)
	}
	defer func() {
		if err := bank.Disable(); err != nil {
			debug.Error(fmt.Errorf("disable drivers: %w", err))
		}
	}()

	debug.Step(3, "Building motion core")
	core, err := rig.New(cfg, bank)
	if err != nil {
		return err
	}

	debug.Step(4, "Binding command socket")
	listener := command.NewListener(cfg.Server.OSCListen, core)
	if err := listener.Bind(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 4)
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}

	start("stepper loop", func(ctx context.Context) error {
		return bank.Run(ctx, cfg.StepperPeriod())
	})
	start("control loop", core.Run)
	start("command listener", listener.Serve)
	if broadcaster != nil {
		srv := web.NewServer(cfg.Server.WebListen, cfg.StatusInterval(), broadcaster, core, core)
		start("web server", srv.Run)
	}

	debug.Summary(fmt.Sprintf("rigd ready, commands on udp %s", listener.Addr()))
	wg.Wait()
	if mock, ok := gpioDriver.(*gpio.MockDriver); ok {
		for _, a := range axis.All {
			debug.Info("Mock %s: %d step pulses", a, mock.Rises(steppers[a].StepPin))
		}
	}
	debug.Info("Shut down")

	close(errCh)
	return <-errCh
}

// applyOverrides mutates cfg with the command-line values that were given.
func applyOverrides(cfg *config.Config, o overrides) error {
	if o.oscListen != "" {
		cfg.Server.OSCListen = o.oscListen
	}
	if o.webPort > 0 {
		cfg.Server.WebListen = fmt.Sprintf(":%d", o.webPort)
	}
	if o.debug >= 0 {
		if o.debug > debug.LevelTrace {
			return fmt.Errorf("debug level must be between 0 and %d, got %d", debug.LevelTrace, o.debug)
		}
		cfg.Defaults.DebugLevel = o.debug
	}
	if o.mock != nil {
		cfg.Defaults.MockGPIO = *o.mock
	}
	return nil
}

// webPortFlag implements flag.Value for -web: 0 = use config, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
