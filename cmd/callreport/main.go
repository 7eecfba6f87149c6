package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"callreport-server/pkg/config"
	"callreport-server/pkg/correlation"
	"callreport-server/pkg/errors"
	http_server "callreport-server/pkg/http"
	"callreport-server/pkg/messaging"
	"callreport-server/pkg/metrics"
	"callreport-server/pkg/ratelimit"
	"callreport-server/pkg/report"
	"callreport-server/pkg/reporting"
	"callreport-server/pkg/source"
	"callreport-server/pkg/util"
	"callreport-server/pkg/version"
)

var logger = logrus.New()

type options struct {
	window  string
	format  string
	output  string
	serve   bool
	check   bool
	version bool
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.window, "window", "", "report window: today, yesterday, 7d, 30d or all (default DEFAULT_WINDOW)")
	flag.StringVar(&opts.format, "format", report.FormatText, "output format: text, csv or json")
	flag.StringVar(&opts.output, "output", "", "write the report to this file instead of stdout")
	flag.BoolVar(&opts.serve, "serve", false, "serve reports over HTTP instead of printing one")
	flag.BoolVar(&opts.check, "check", false, "validate configuration and record files, then exit")
	flag.BoolVar(&opts.version, "version", false, "print the version and exit")
	flag.Parse()
	return opts
}

func main() {
	// Reports go to stdout, so logs stay on stderr
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logger.SetOutput(os.Stderr)

	opts := parseFlags()
	if opts.version {
		fmt.Println(version.UserAgent())
		return
	}
	if err := validateOptions(opts); err != nil {
		logger.WithError(err).Fatal("Invalid command line")
	}

	cfg, err := config.Load(logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.ApplyLogging(logger); err != nil {
		logger.WithError(err).Fatal("Failed to apply logging configuration")
	}

	if opts.check {
		if err := checkConfig(cfg); err != nil {
			logger.WithError(err).Fatal("Configuration check failed")
		}
		logger.Info("Configuration check passed")
		return
	}

	serve := opts.serve || cfg.HTTP.Enabled
	metrics.StartMetrics(logger, serve && cfg.HTTP.EnableMetrics)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	var publisher reporting.Publisher
	var amqpClient *messaging.AMQPClient
	if cfg.Messaging.Enabled() {
		amqpClient = messaging.NewAMQPClient(logger, messaging.AMQPConfig{
			URL:       cfg.Messaging.AMQPURL,
			QueueName: cfg.Messaging.AMQPQueueName,
		})
		if err := amqpClient.Connect(rootCtx); err != nil {
			logger.WithError(err).Warn("Failed to connect to AMQP, reports will not be published")
		} else {
			publisher = amqpClient
		}
	}

	src := source.NewCSVSource(source.CSVConfig{
		CallsPath:    cfg.Source.CallsCSV,
		MessagesPath: cfg.Source.MessagesCSV,
		Limit:        cfg.Source.RecordLimit,
		Location:     cfg.Report.Location,
	}, logger)

	svc := reporting.NewService(src, cfg.Directory.NewDirectory(), reporting.Config{
		CampaignThreshold: cfg.Report.CampaignThreshold,
		Location:          cfg.Report.Location,
		DefaultWindow:     cfg.Report.DefaultWindow,
	}, logger, publisher)

	if !serve {
		err := runOnce(rootCtx, svc, opts, os.Stdout)
		if amqpClient != nil {
			amqpClient.Disconnect()
		}
		if err != nil {
			logger.WithError(err).Fatal("Failed to generate report")
		}
		return
	}

	runServer(rootCtx, rootCancel, cfg, svc, amqpClient)
}

// validateOptions rejects flag values that would otherwise only fail after a
// report had been generated and published
func validateOptions(opts options) error {
	if !report.ValidFormat(opts.format) {
		return errors.NewInvalidInput(fmt.Sprintf("unsupported report format: %s", opts.format), map[string]interface{}{
			"format": opts.format,
		})
	}
	return nil
}

// runOnce generates a single report and writes it to stdout or opts.output.
// The report is rendered in memory first so a failed run never truncates an
// existing output file.
func runOnce(ctx context.Context, svc *reporting.Service, opts options, stdout io.Writer) error {
	if err := validateOptions(opts); err != nil {
		return err
	}

	rep, err := svc.RunLabel(ctx, opts.window)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	if err := report.Write(&body, rep, opts.format); err != nil {
		return err
	}

	if opts.output == "" {
		if _, err := stdout.Write(body.Bytes()); err != nil {
			return err
		}
	} else if err := os.WriteFile(opts.output, body.Bytes(), 0644); err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to write report to %s", opts.output))
	}

	logger.WithFields(logrus.Fields{
		"run_id": rep.ID,
		"window": rep.Window,
		"format": opts.format,
		"output": opts.output,
	}).Debug("Report written")
	return nil
}

// runServer serves reports over HTTP until SIGINT or SIGTERM
func runServer(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, svc *reporting.Service, amqpClient *messaging.AMQPClient) {
	httpConfig := http_server.NewDefaultConfig()
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.EnableMetrics = cfg.HTTP.EnableMetrics
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.ShutdownTimeout = cfg.HTTP.ShutdownTimeout

	httpServer := http_server.NewServer(logger, httpConfig, svc)
	httpServer.SetCorrelationMiddleware(correlation.NewHTTPMiddleware(logger))

	shutdown := util.NewGracefulShutdown(logger, httpConfig.ShutdownTimeout)
	shutdown.Register(util.ShutdownResource{
		Name:     "http",
		Priority: 10,
		Shutdown: httpServer.Shutdown,
	})

	if cfg.HTTP.RateLimitEnabled {
		rateConfig := ratelimit.DefaultConfig()
		rateConfig.Enabled = true
		rateConfig.RequestsPerSecond = cfg.HTTP.RateLimitRPS
		rateConfig.BurstSize = cfg.HTTP.RateLimitBurst
		rateConfig.TrustedProxies = cfg.HTTP.RateLimitTrustedProxies
		limiter := ratelimit.NewHTTPMiddleware(rateConfig, logger)
		httpServer.SetRateLimitMiddleware(limiter)
		shutdown.RegisterFunc("ratelimit", 30, limiter.Stop)
	}

	if amqpClient != nil {
		httpServer.SetAMQPClient(amqpClient)
		shutdown.RegisterFunc("amqp", 20, amqpClient.Disconnect)
	}

	httpServer.Start()
	logger.WithFields(logrus.Fields{
		"port":    cfg.HTTP.Port,
		"version": version.Version,
	}).Info("Call activity report server started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig.String()).Info("Received shutdown signal, cleaning up...")
	case <-ctx.Done():
	}
	cancel()

	if err := shutdown.Shutdown(context.Background()); err != nil {
		logger.WithError(err).Error("Shutdown completed with errors")
		os.Exit(1)
	}
	logger.Info("Application shut down gracefully")
}

// checkConfig verifies that the configured record files can be read
func checkConfig(cfg *config.Config) error {
	paths := map[string]string{
		"CALLS_CSV":    cfg.Source.CallsCSV,
		"MESSAGES_CSV": cfg.Source.MessagesCSV,
	}
	for name, path := range paths {
		if path == "" {
			logger.WithField("variable", name).Warn("Record file not configured")
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	logger.WithFields(logrus.Fields{
		"tracked_numbers":    cfg.Directory.NewDirectory().Len(),
		"campaign_threshold": cfg.Report.CampaignThreshold,
		"timezone":           cfg.Report.Location.String(),
		"default_window":     cfg.Report.DefaultWindow,
		"publishing":         cfg.Messaging.Enabled(),
	}).Info("Configuration loaded")
	return nil
}
