package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/mitre/hipcheck/plugin"
)

// serveConfig is the flag-parsed configuration for one plugin process
// (spec.md §9 "process entrypoint").
var serveConfig = new(struct {
	Port       int    `long:"port" env:"PLUGIN_PORT" default:"0" description:"TCP port to listen on, e.g. 50051"`
	LogLevel   string `long:"log-level" env:"HC_LOG_LEVEL" default:"info" description:"trace, debug, info, warn, error"`
	LogFile    string `long:"log-file" env:"HC_LOG_FILE" description:"rotate logs to this path instead of stderr"`
	RFD9Compat bool   `long:"rfd9-compat" env:"HC_RFD9_COMPAT" description:"enable legacy empty-list placeholder fixup"`
})

// must logs fatally on a non-nil error, mirroring the teacher's
// mbp.Must style of fail-fast startup error handling.
func must(err error, message string) {
	if err != nil {
		log.WithError(err).Fatal(message)
	}
}

func configureLogging() {
	level, err := log.ParseLevel(serveConfig.LogLevel)
	must(err, "failed to parse log level")
	log.SetLevel(level)

	if serveConfig.LogFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   serveConfig.LogFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
		})
	}
}

// Builders is the registration point plugin authors populate in an init
// function; main applies every entry to the endpoint Builder before it
// calls plugin.Serve.
var Builders []func(*plugin.Builder, *plugin.Config)

func main() {
	parser := flags.NewParser(serveConfig, flags.Default)
	_, err := parser.Parse()
	if flags.WroteHelp(err) {
		os.Exit(0)
	}
	must(err, "failed to parse arguments")

	configureLogging()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", serveConfig.Port))
	must(err, "failed to open listener")
	log.WithField("addr", lis.Addr().String()).Info("listening")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	builder := plugin.NewBuilder(nil, nil)
	cfg := plugin.Config{
		RFD9Compat: serveConfig.RFD9Compat,
		Log:        log.WithField("component", "hcpluginsrv"),
	}
	for _, register := range Builders {
		register(builder, &cfg)
	}

	impl := plugin.NopPlugin{}
	if err := plugin.Serve(ctx, lis, builder, impl, cfg); err != nil && ctx.Err() == nil {
		log.WithError(err).Fatal("serve failed")
	}
}
