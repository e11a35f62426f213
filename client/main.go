package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go_secure_send/client/comms"
	"go_secure_send/client/engine"
	"go_secure_send/client/worker"
	"go_secure_send/config"
	"go_secure_send/constants"
	"go_secure_send/fileio"
	"go_secure_send/logging"
	"go_secure_send/networking"
	"go_secure_send/observability"

	"github.com/akamensky/argparse"
	"github.com/rs/zerolog"
)

const (
	exitOK       = 0
	exitSetup    = 1 // usage, configuration or connection failure
	exitTransfer = 2 // the session ended without the server's final ack
)

func main() {
	os.Exit(run(os.Args))
}

func run(argv []string) int {
	args := argparse.NewParser("client", constants.Title)

	cfgPath := args.String("c", "config", &argparse.Options{Required: false, Help: "Optional TOML config file"})
	regPath := args.String("r", "registration", &argparse.Options{Required: false,
		Help: "Registration source (address:port, user name, file path)"})
	credPath := args.String("u", "credential", &argparse.Options{Required: false, Help: "Credential file written after registration"})
	dscp := args.Int("d", "dscp", &argparse.Options{Required: false, Help: "DSCP field for QoS", Default: -1})
	metrics := args.String("m", "metrics", &argparse.Options{Required: false, Help: "Serve Prometheus metrics on this address"})

	if err := args.Parse(argv); err != nil {
		fmt.Print(args.Usage(err))
		return exitSetup
	}

	logging.ConfigureRuntime()
	log := logging.Component("client")

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			log.Error().Err(err).Msg("config")
			return exitSetup
		}
	}
	if *regPath != "" {
		cfg.RegistrationFile = *regPath
	}
	if *credPath != "" {
		cfg.CredentialFile = *credPath
	}
	if *dscp >= 0 {
		cfg.DSCP = *dscp
	}
	if *metrics != "" {
		cfg.MetricsAddr = *metrics
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("config")
		return exitSetup
	}
	if cfg.LogLevel != "" {
		logging.SetLevel(cfg.LogLevel)
		log = logging.Component("client")
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, log)
	}

	storage := fileio.NewDiskStorage(cfg.RegistrationFile, cfg.CredentialFile, log)
	// The server address lives in the registration source.
	reg, err := storage.LoadRegistration()
	if err != nil {
		log.Error().Err(err).Str("path", cfg.RegistrationFile).Msg("registration source")
		return exitSetup
	}

	conn, err := comms.Connect(reg.Endpoint(), cfg.DSCP, cfg.DialTimeout, cfg.FrameSize, log)
	if err != nil {
		log.Error().Err(err).Msg("connect")
		return exitSetup
	}
	defer conn.Close()

	limits := worker.DefaultLimits()
	limits.FrameSize = cfg.FrameSize
	eng := engine.New(engine.Config{MaxErrors: cfg.MaxErrors, Limits: limits},
		conn, networking.NewCrypto(networking.RSA_KEY_BITS), storage, log)

	begin := time.Now()
	if err := eng.Start(); err != nil {
		return exitSetup
	}
	if err := eng.Run(); err != nil {
		if errors.Is(err, engine.ErrServerRejection) {
			log.Error().Msg("server kept rejecting the session, giving up")
		}
		return exitTransfer
	}

	log.Info().Dur("elapsed", time.Since(begin)).Str("file", reg.FilePath).Msg("server confirmed file")
	return exitOK
}

func serveMetrics(addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn().Err(err).Msg("metrics server stopped")
	}
}
