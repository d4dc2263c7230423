package main

import (
	"bufio"
	"context"
	_ "expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/ash2k/stager/wait"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/carbonfwd/carbonfwd/internal/putval"
	"github.com/carbonfwd/carbonfwd/internal/util"
	"github.com/carbonfwd/carbonfwd/pkg/flush"
	"github.com/carbonfwd/carbonfwd/pkg/transport"
	"github.com/carbonfwd/carbonfwd/pkg/writer"
)

var (
	// BuildDate is the date when the binary was built.
	BuildDate string
	// GitCommit is the commit hash when the binary was built.
	GitCommit string
	// Version is the version of the binary.
	Version string
)

const (
	// ParamVerbose enables verbose logging.
	ParamVerbose = "verbose"
	// ParamProfile enables profiler endpoint on the specified address and port.
	ParamProfile = "profile"
	// ParamJSON makes logger log in JSON format.
	ParamJSON = "json"
	// ParamConfigPath provides file with configuration.
	ParamConfigPath = "config-path"
	// ParamVersion makes program output its version.
	ParamVersion = "version"
	// ParamTypesDB provides a types.db file with additional type definitions.
	ParamTypesDB = "types-db"
	// ParamFlushInterval is the interval between forced flushes.
	ParamFlushInterval = "flush-interval"
)

func main() {
	v, version, err := setupConfiguration()
	if err != nil {
		if err == pflag.ErrHelp {
			return
		}
		logrus.Fatalf("Error while parsing configuration: %v", err)
	}
	if version {
		fmt.Printf("Version: %s - Commit: %s - Date: %s\n", Version, GitCommit, BuildDate)
		return
	}
	if err := run(v); err != nil {
		logrus.Fatalf("%v", err)
	}
}

func run(v *viper.Viper) error {
	logrus.Info("Starting forwarder")
	logger := logrus.StandardLogger()

	t, err := transport.InitTransport(transport.SelectedTransport(v), v, logger)
	if err != nil {
		return err
	}
	w, err := writer.NewWriterFromViper(v, logger, t)
	if err != nil {
		return err
	}
	types, err := loadTypes(v)
	if err != nil {
		return err
	}

	profileAddr := v.GetString(ParamProfile)
	if profileAddr != "" {
		go func() {
			logrus.Errorf("Profiler server failed: %v", http.ListenAndServe(profileAddr, nil))
		}()
	}

	ctx, cancelFunc := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelFunc()

	v.SetDefault(ParamFlushInterval, flush.DefaultFlushInterval)
	flushInterval := v.GetDuration(ParamFlushInterval)

	var wg wait.Group
	wg.StartWithContext(ctx, flush.NewFlusher(flushInterval, w, logger).Run)

	parser := putval.NewParser(types, flushInterval)
	readValues(ctx, logger, parser, w)
	cancelFunc()
	wg.Wait()

	// One last flush so a clean shutdown does not lose buffered lines.
	if err := w.Flush(context.Background()); err != nil {
		return err
	}
	logrus.Info("Shutting down")
	return nil
}

// readValues consumes PUTVAL lines from stdin until EOF or cancellation.
// A malformed line is logged and skipped, matching how collectd treats a
// misbehaving exec plugin.
func readValues(ctx context.Context, logger logrus.FieldLogger, parser *putval.Parser, w *writer.Writer) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			case lines <- scanner.Text():
			}
		}
		if err := scanner.Err(); err != nil {
			logger.WithError(err).Error("reading stdin failed")
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if line == "" {
				continue
			}
			vl, err := parser.ParseLine(line)
			if err != nil {
				logger.WithError(err).Warn("dropping bad line")
				continue
			}
			if err := w.Write(ctx, vl); err != nil {
				logger.WithError(err).Warn("dropping bad batch")
			}
		}
	}
}

func loadTypes(v *viper.Viper) (*putval.TypeDB, error) {
	types := putval.DefaultTypeDB()
	path := v.GetString(ParamTypesDB)
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := types.Load(f); err != nil {
			return nil, fmt.Errorf("loading %s: %v", path, err)
		}
	}
	return types, nil
}

func setupConfiguration() (*viper.Viper, bool, error) {
	v := viper.New()
	defer setupLogger(v) // Apply logging configuration in case of early exit
	util.InitViper(v, "")

	var version bool

	cmd := pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)

	cmd.BoolVar(&version, ParamVersion, false, "Print the version and exit")
	cmd.Bool(ParamVerbose, false, "Verbose")
	cmd.Bool(ParamJSON, false, "Log in JSON format")
	cmd.String(ParamProfile, "", "Enable profiler endpoint on the specified address and port")
	cmd.String(ParamConfigPath, "", "Path to the configuration file")
	cmd.String(ParamTypesDB, "", "Path to a types.db file with additional type definitions")
	cmd.Duration(ParamFlushInterval, flush.DefaultFlushInterval, "How often to flush buffered lines")

	cmd.VisitAll(func(flag *pflag.Flag) {
		if err := v.BindPFlag(flag.Name, flag); err != nil {
			panic(err) // Should never happen
		}
	})

	if err := cmd.Parse(os.Args[1:]); err != nil {
		return nil, false, err
	}

	configPath := v.GetString(ParamConfigPath)
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, false, err
		}
	}

	return v, version, nil
}

func setupLogger(v *viper.Viper) {
	if v.GetBool(ParamVerbose) {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if v.GetBool(ParamJSON) {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}
