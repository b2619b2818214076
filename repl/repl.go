// Package repl is an interactive shell over one document: edit shared
// types, watch their changes, exchange updates by hand and persist the
// document in a store.
package repl

import (
	"fmt"
	"io"
	"strings"

	"github.com/ergochat/readline"
	"github.com/pkg/errors"

	"github.com/y-crdt/yrb"
	"github.com/y-crdt/yrb/awareness"
	"github.com/y-crdt/yrb/network"
	"github.com/y-crdt/yrb/store"
	"github.com/y-crdt/yrb/utils"
)

type REPL struct {
	conf  Config
	log   utils.Logger
	doc   *yrb.Document
	store *store.Store
	aware *awareness.Awareness
	hub   *network.Hub
	net   *network.Net
	tx    *yrb.Transaction
	subs  map[string]func()
	out   io.Writer
	rl    *readline.Instance
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("begin"),
	readline.PcItem("commit"),
	readline.PcItem("free"),

	readline.PcItem("show"),
	readline.PcItem("put"),
	readline.PcItem("insert"),
	readline.PcItem("remove"),
	readline.PcItem("format"),
	readline.PcItem("observe"),
	readline.PcItem("unobserve"),

	readline.PcItem("sv"),
	readline.PcItem("diff"),
	readline.PcItem("sync"),
	readline.PcItem("compact"),

	readline.PcItem("listen"),
	readline.PcItem("connect"),
	readline.PcItem("disconnect"),
	readline.PcItem("peers"),

	readline.PcItem("aware"),
	readline.PcItem("clients"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

// New makes the document and, when configured, loads it from the store
// and keeps the store up to date.
func New(conf Config, out io.Writer) (*REPL, error) {
	conf.SetDefaults()
	offsets, err := conf.offsetKind()
	if err != nil {
		return nil, err
	}
	log := utils.NewLoggerTo(out, utils.ParseLevel(conf.LogLevel))
	repl := &REPL{
		conf: conf,
		log:  log,
		out:  out,
		subs: make(map[string]func()),
		doc: yrb.NewDocument(
			yrb.WithClientID(conf.ClientID),
			yrb.WithOffsetKind(offsets),
			yrb.WithLogger(log),
		),
	}
	repl.aware = awareness.ForDocument(repl.doc, log)
	if conf.Store != "" {
		if repl.store, err = store.Open(conf.Store, store.Options{Logger: log}); err != nil {
			return nil, err
		}
		n, err := repl.store.Load(conf.Document, repl.doc)
		if err == nil {
			_, err = repl.store.Attach(conf.Document, repl.doc)
		}
		if err != nil {
			_ = repl.store.Close()
			return nil, err
		}
		log.Info("document opened", "name", conf.Document, "updates", n, "client", repl.doc.ClientID())
	}
	repl.hub = network.NewHub(repl.doc, repl.aware, log)
	repl.net = network.NewNet(log, repl.hub.Install, repl.hub.Destroy)
	for _, addr := range conf.Listen {
		if err = repl.CommandListen(addr); err != nil {
			break
		}
	}
	for _, addr := range conf.Connect {
		if err != nil {
			break
		}
		err = repl.CommandConnect(addr)
	}
	if err != nil {
		_ = repl.Close()
		return nil, err
	}
	return repl, nil
}

// Open starts the line editor.
func (repl *REPL) Open() (err error) {
	repl.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     repl.conf.History,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	repl.rl.CaptureExitSignal()
	return
}

// Close commits a transaction left open and closes the store.
func (repl *REPL) Close() error {
	if repl.rl != nil {
		_ = repl.rl.Close()
		repl.rl = nil
	}
	if repl.tx != nil {
		_ = repl.tx.Commit()
		repl.tx = nil
	}
	if repl.net != nil {
		_ = repl.net.Close()
		repl.hub.Close()
		repl.net, repl.hub = nil, nil
	}
	if repl.store != nil {
		err := repl.store.Close()
		repl.store = nil
		return err
	}
	return nil
}

// Run reads and executes lines until exit or end of input.
func (repl *REPL) Run() error {
	for {
		line, err := repl.rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		err = repl.Exec(line)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			_, _ = fmt.Fprintln(repl.out, err.Error())
		}
	}
}

// splitArgs cuts n words off the line; the remainder, if any, is the
// last element.
func splitArgs(line string, n int) (args []string) {
	for len(args) < n {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		ws := strings.IndexAny(line, " \t")
		if ws < 0 {
			return append(args, line)
		}
		args = append(args, line[:ws])
		line = line[ws:]
	}
	if rest := strings.TrimSpace(line); rest != "" {
		args = append(args, rest)
	}
	return
}

// Exec runs one command line. It returns io.EOF for exit.
func (repl *REPL) Exec(line string) (err error) {
	words := splitArgs(line, 1)
	if len(words) == 0 {
		return nil
	}
	cmd, rest := words[0], ""
	if len(words) > 1 {
		rest = words[1]
	}
	switch cmd {
	case "help":
		_, _ = fmt.Fprintln(repl.out, helpText)
	// ----- transactions -----
	case "begin":
		err = repl.CommandBegin()
	case "commit":
		err = repl.CommandCommit()
	case "free":
		err = repl.CommandFree()
	// ----- shared types -----
	case "show", "cat":
		err = repl.CommandShow(rest)
	case "put", "push":
		err = repl.CommandPut(rest)
	case "insert":
		err = repl.CommandInsert(rest)
	case "remove", "rm":
		err = repl.CommandRemove(rest)
	case "format":
		err = repl.CommandFormat(rest)
	case "observe":
		err = repl.CommandObserve(rest)
	case "unobserve":
		err = repl.CommandUnobserve(rest)
	// ----- sync -----
	case "sv":
		err = repl.CommandStateVector()
	case "diff":
		err = repl.CommandDiff(rest)
	case "sync":
		err = repl.CommandSync(rest)
	case "compact":
		err = repl.CommandCompact()
	// ----- network -----
	case "listen":
		err = repl.CommandListen(rest)
	case "connect":
		err = repl.CommandConnect(rest)
	case "disconnect":
		err = repl.CommandDisconnect(rest)
	case "peers":
		err = repl.CommandPeers()
	// ----- awareness -----
	case "aware":
		err = repl.CommandAware(rest)
	case "clients":
		err = repl.CommandClients()
	case "exit", "quit":
		err = io.EOF
	default:
		err = errors.Errorf("command unknown: %s", cmd)
	}
	return
}

const helpText = `paths are kind/name: array/a map/m text/t xml/f element/e xmltext/x
values are YAML flow: 1, 2.5, "str", [1, 2], {k: v}, null

begin | commit | free          explicit transaction, otherwise each command commits
show PATH                      print the contents
put PATH VALUE                 append to an array or text, merge a map into a map
insert PATH INDEX VALUE [ATTRS]  insert into an array, text or xml node (VALUE is a tag)
remove PATH INDEX|KEY [LEN]    delete a range or a key
format PATH INDEX LEN ATTRS    format a text range
observe PATH | unobserve PATH  print the changes of every commit
sv | diff [SV] | sync UPDATE   state vector and updates, in hex
compact                        squash the stored log
listen ADDR | connect ADDR     sync with peers over tcp://host:port
disconnect ADDR | peers        drop a connection, list connections
aware STATE | clients          awareness state as JSON
exit`
