// Package cli parses command-line arguments for the quickcall binaries.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Options holds the values resolved from flags, before the config file is
// consulted. Empty string means "not set on the command line".
type Options struct {
	ConfigPath string
	Listen     string
	LogFormat  string
	LogLevel   string
}

// Parse processes command-line arguments for the named binary. It returns
// the parsed options, a boolean indicating the program should exit cleanly
// (help requested), or an ExitError.
func Parse(name, summary string, args []string, output io.Writer) (*Options, bool, error) {
	flagSet := flag.NewFlagSet(name, flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprintf(output, `
%s - %s

Usage:
  %s [options]

Options:
`, name, summary, name)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", "", "Path to the HCL config file.")
	cFlag := flagSet.String("c", "", "Path to the HCL config file (shorthand).")
	listenFlag := flagSet.String("listen", "", "Listen address, overrides the config file.")
	logFormatFlag := flagSet.String("log-format", "", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	helpFlag := flagSet.Bool("help", false, "Show this help text.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if *helpFlag {
		flagSet.Usage()
		return nil, true, nil
	}

	configPath := *configFlag
	if configPath == "" {
		configPath = *cFlag
	}

	logFormat := strings.ToLower(*logFormatFlag)
	switch logFormat {
	case "", "text", "json":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	return &Options{
		ConfigPath: configPath,
		Listen:     *listenFlag,
		LogFormat:  logFormat,
		LogLevel:   logLevel,
	}, false, nil
}
