package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ErikKalkoken/structurewatch/internal/config"
)

// appDirs represents the app's local directories for storing data and logs.
type appDirs struct {
	data string
	log  string
	cfg  config.Config
}

func newAppDirs(cfg config.Config) appDirs {
	return appDirs{data: cfg.DataDir, log: cfg.LogDir, cfg: cfg}
}

func (ad appDirs) show(w io.Writer) {
	fmt.Fprintf(w, "Database: %s\n", ad.data)
	fmt.Fprintf(w, "Logs: %s\n", ad.log)
}

func (ad appDirs) deleteAll(w io.Writer) error {
	for _, p := range []string{ad.log, ad.data} {
		if err := os.RemoveAll(p); err != nil {
			return err
		}
		fmt.Fprintf(w, "Deleted %s\n", p)
	}
	return nil
}

func (ad appDirs) initLogFile() (string, error) {
	if err := os.MkdirAll(ad.log, os.ModePerm); err != nil {
		return "", err
	}
	return ad.cfg.LogFile(), nil
}

func (ad appDirs) initDSN() (string, error) {
	if err := os.MkdirAll(ad.data, os.ModePerm); err != nil {
		return "", err
	}
	return ad.cfg.DSN(), nil
}
