package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/y-crdt/yrb/repl"
)

func main() {
	path := flag.String("config", "", "YAML config file")
	store := flag.String("store", "", "store directory, overrides the config")
	flag.Parse()

	conf, err := repl.LoadConfig(*path)
	if err == nil && *store != "" {
		conf.Store = *store
	}
	var re *repl.REPL
	if err == nil {
		re, err = repl.New(conf, os.Stdout)
	}
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}

	err = re.Open()
	if err == nil {
		err = re.Run()
	}
	if cerr := re.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}
}
