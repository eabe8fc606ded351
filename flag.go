package main

import (
	"flag"
	"fmt"
	"log/slog"
	"strings"
)

type logLevelFlag struct {
	value slog.Level
}

func (l *logLevelFlag) String() string {
	return l.value.String()
}

func (l *logLevelFlag) Set(value string) error {
	m := map[string]slog.Level{"DEBUG": slog.LevelDebug, "INFO": slog.LevelInfo, "WARN": slog.LevelWarn, "ERROR": slog.LevelError}
	v, ok := m[strings.ToUpper(value)]
	if !ok {
		return fmt.Errorf("unknown log level")
	}
	l.value = v
	return nil
}

// defined flags
var (
	levelFlag     logLevelFlag
	configFlag    = flag.String("config", "", "Path to a YAML config file")
	envFileFlag   = flag.String("env", ".env", "Path to a .env file with environment variables")
	logFileFlag   = flag.Bool("logfile", false, "Write logs to a file instead of the console")
	onceFlag      = flag.Bool("once", false, "Run all tasks once and exit")
	showDirsFlag  = flag.Bool("show-dirs", false, "Show directories where data and logs are stored")
	uninstallFlag = flag.Bool("uninstall", false, "Uninstalls the app by deleting all data and log files")
)

func init() {
	levelFlag.value = slog.LevelInfo
	flag.Var(&levelFlag, "loglevel", "set log level")
}
