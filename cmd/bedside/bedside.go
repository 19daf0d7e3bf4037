package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/bedside/internal/api"
	"github.com/banshee-data/bedside/internal/config"
	"github.com/banshee-data/bedside/internal/db"
	"github.com/banshee-data/bedside/internal/device"
	"github.com/banshee-data/bedside/internal/monitor"
	"github.com/banshee-data/bedside/internal/monitoring"
	"github.com/banshee-data/bedside/internal/serialmux"
	"github.com/banshee-data/bedside/internal/version"
)

var (
	devMode     = flag.Bool("dev", false, "Simulate the tracking bridge instead of opening the serial port")
	listen      = flag.String("listen", ":8080", "Listen address")
	port        = flag.String("port", "/dev/ttyUSB0", "Serial port of the tracking bridge (ignored in dev mode)")
	baud        = flag.Int("baud", serialmux.DefaultBaudRate, "Serial baud rate")
	dbPath      = flag.String("db", "bedside.db", "sqlite database path; empty keeps history in memory only")
	tuningPath  = flag.String("tuning", "", "Tuning config JSON; built-in defaults when empty")
	calibration = flag.String("calibration", "", "Skeleton calibration file loaded for every new person")
	tilt        = flag.Int("tilt", 0, "Camera tilt in degrees [-31, 31]; overrides the tuning default_tilt")
	fixture     = flag.String("fixture", "", "Recorded bridge session replayed in dev mode")
	devInterval = flag.Duration("dev-interval", 100*time.Millisecond, "Line interval of the simulated bridge")
	debug       = flag.Bool("debug", false, "Log per-cycle decisions")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

// openPort opens the bridge serial port; tests swap it for a fake.
var openPort serialmux.Opener = serialmux.OpenRealPort

// historyLimit bounds the in-memory event history served by the API.
const historyLimit = 1000

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "migrate":
			if err := db.RunMigrateCommand(flag.Args()[1:], *dbPath, os.Stdout); err != nil {
				log.Printf("migrate: %v", err)
				os.Exit(1)
			}
			return
		case "ports":
			if err := printPorts(); err != nil {
				log.Printf("ports: %v", err)
				os.Exit(1)
			}
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", flag.Arg(0))
			printUsage()
			os.Exit(2)
		}
	}

	monitoring.SetDebug(*debug)
	if err := run(); err != nil {
		log.Printf("bedside: %v", err)
		os.Exit(device.ExitCode(err))
	}
	log.Printf("Graceful shutdown complete")
}

func printUsage() {
	fmt.Fprint(flag.CommandLine.Output(), `bedside - patient position monitor

Usage:
  bedside [flags]                 run the monitor
  bedside [flags] migrate <action> manage the database schema (see 'migrate help')
  bedside ports                   list serial ports

Flags:
`)
	flag.PrintDefaults()
}

func printPorts() error {
	ports, err := serialmux.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}

// flagSet reports whether name was given on the command line.
func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

// tiltFor returns the -tilt flag when given, else the tuning default.
func tiltFor(t *config.TuningConfig, explicit bool, flagValue int) int {
	if explicit {
		return flagValue
	}
	return t.GetDefaultTilt()
}

// openBridge returns the line mux of the tracking bridge: the simulator in
// dev mode, the serial port otherwise.
func openBridge() (serialmux.SerialMuxInterface, error) {
	if *devMode {
		var script []string
		if *fixture != "" {
			var err error
			if script, err = device.LoadFixture(*fixture); err != nil {
				return nil, err
			}
			log.Printf("dev mode: replaying %d lines from %s", len(script), *fixture)
		} else {
			log.Printf("dev mode: simulating tracking bridge")
		}
		return serialmux.NewSerialMux(device.NewSimulatedPort(script, *devInterval)), nil
	}

	if *port == "" {
		return nil, errors.New("serial port is required")
	}
	opts := serialmux.PortOptions{BaudRate: *baud}
	p, err := openPort(*port, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open bridge port: %w", err)
	}
	log.Printf("opened bridge port %s (%s)", *port, opts)
	return serialmux.NewSerialMux(p), nil
}

func run() error {
	if *listen == "" {
		return device.Fatal(errors.New("listen address is required"))
	}

	tuning, err := loadTuning(*tuningPath)
	if err != nil {
		return device.Fatal(fmt.Errorf("tuning: %w", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGABRT)
	defer stop()

	recorder := monitor.NewRecorder(historyLimit)
	sinks := []monitor.Sink{monitor.LogSink{}, recorder}
	var history api.History = recorder
	var sessions api.SessionStore
	var database *db.DB
	if *dbPath != "" {
		database, err = db.NewDB(*dbPath)
		if err != nil {
			return device.Fatal(fmt.Errorf("failed to connect to database: %w", err))
		}
		defer database.Close()
		sinks = append(sinks, database)
		history, sessions = database, database
	}

	bridge, err := openBridge()
	if err != nil {
		return device.Fatal(err)
	}
	driver, err := device.Open(ctx, bridge, device.Config{
		Tilt:             tiltFor(tuning, flagSet("tilt"), *tilt),
		HandshakeTimeout: tuning.GetHandshakeTimeout(),
		CalibrationPath:  *calibration,
	})
	if err != nil {
		return err
	}
	defer driver.Close()

	session := monitor.New(monitor.ConfigFromTuning(tuning), driver, sinks...)

	var wg sync.WaitGroup
	var runErr error
	serveErr := make(chan error, 1)

	// monitoring loop; the process stops when it does
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop()
		runErr = session.Run(ctx)
		log.Print("monitor routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(session, driver, history, sessions).ServeMux()
		bridge.AttachAdminRoutes(mux)
		if database != nil {
			if err := database.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach database admin routes: %v", err)
			}
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serveErr <- fmt.Errorf("failed to start server: %w", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	if err := session.Close(); err != nil {
		log.Printf("failed to record session end: %v", err)
	}
	select {
	case err := <-serveErr:
		return errors.Join(runErr, err)
	default:
	}
	return runErr
}
