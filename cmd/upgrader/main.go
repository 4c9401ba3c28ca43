package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tendermint/tendermint/libs/log"

	"github.com/iov-one/upgrade"
)

var (
	flagHome      = "home"
	flagConfig    = "config"
	flagLogLevel  = "log-level"
	flagMaxWeight = "max-weight"

	varHome      *string
	varConfig    *string
	varLogLevel  *string
	varMaxWeight *uint64
)

func init() {
	defaultHome := filepath.Join(os.ExpandEnv("$HOME"), ".upgrader")
	varHome = flag.String(flagHome, defaultHome, "directory to store files under")
	varConfig = flag.String(flagConfig, "", "path to a TOML configuration file")
	varLogLevel = flag.String(flagLogLevel, "info", "log level: debug, info, error or none")
	varMaxWeight = flag.Uint64(flagMaxWeight, 0, "refuse to commit a run that costs more than this (0 means no limit)")

	flag.CommandLine.Usage = helpMessage
}

func helpMessage() {
	fmt.Println("upgrader")
	fmt.Println("          Run schema migrations against the application store")
	fmt.Println("")
	fmt.Println("help      Print this message")
	fmt.Println("init      Store database weights used to compute migration costs")
	fmt.Println("plan      Print pending migrations of every unit")
	fmt.Println("run       Apply all pending migrations and commit the result")
	fmt.Println("verify    Run all migrations in verification mode without committing")
	fmt.Println("version   Print the app version")
	fmt.Println(`
  -home string
        directory to store files under (default "$HOME/.upgrader")
  -config string
        path to a TOML configuration file
  -log-level string
        log level: debug, info, error or none (default "info")
  -max-weight uint
        refuse to commit a run that costs more than this (0 means no limit)`)
}

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Println("Missing command:")
		helpMessage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)
	rest := flag.Args()[1:]

	conf, err := settings()
	if err != nil {
		fmt.Printf("Error: %+v\n\n", err)
		os.Exit(1)
	}
	logger, err := newLogger(conf.LogLevel)
	if err != nil {
		fmt.Printf("Error: %+v\n\n", err)
		os.Exit(1)
	}
	ctx := upgrade.WithLogger(context.Background(), logger)

	switch cmd {
	case "help":
		helpMessage()
	case "init":
		err = initCmd(ctx, os.Stdout, conf, rest)
	case "plan":
		err = planCmd(ctx, os.Stdout, conf)
	case "run":
		err = runCmd(ctx, os.Stdout, conf)
	case "verify":
		err = verifyCmd(ctx, os.Stdout, conf)
	case "version":
		fmt.Println(upgrade.Version())
	default:
		err = fmt.Errorf("unknown command: %s", cmd)
	}

	if err != nil {
		fmt.Printf("Error: %+v\n\n", err)
		helpMessage()
		os.Exit(1)
	}
}

// settings combines the configuration file content with the command line
// flags. Flags that were explicitly set take precedence.
func settings() (*config, error) {
	conf := defaultConfig()
	if *varConfig != "" {
		var err error
		if conf, err = loadConfig(*varConfig); err != nil {
			return nil, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case flagHome:
			conf.Home = *varHome
		case flagLogLevel:
			conf.LogLevel = *varLogLevel
		case flagMaxWeight:
			conf.MaxWeight = *varMaxWeight
		}
	})
	if conf.Home == "" {
		conf.Home = *varHome
	}
	return conf, nil
}

func newLogger(level string) (log.Logger, error) {
	logger := log.NewTMLogger(log.NewSyncWriter(os.Stdout)).
		With("module", "upgrader")
	opt, err := log.AllowLevel(level)
	if err != nil {
		return nil, err
	}
	return log.NewFilter(logger, opt), nil
}
