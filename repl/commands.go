package repl

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/y-crdt/yrb"
	"github.com/y-crdt/yrb/network"
)

var (
	HelpPath    = errors.New("path is kind/name, kind one of array map text xml element xmltext")
	HelpPut     = errors.New("put array/a [1, 2] | put text/t \"hello\" | put map/m {k: v}")
	HelpInsert  = errors.New("insert array/a 0 {k: v} | insert text/t 0 \"hi\" {bold: true} | insert xml/f 0 p")
	HelpRemove  = errors.New("remove array/a 0 2 | remove map/m key")
	HelpFormat  = errors.New("format text/t 0 5 {bold: true}")
	HelpSync    = errors.New("sync 49...")
	HelpNet     = errors.New("listen tcp://:4400 | connect tcp://host:4400")
	ErrNoStore  = errors.New("no store configured")
	ErrTxOpen   = errors.New("a transaction is already open, commit or free it")
	ErrNoTx     = errors.New("no transaction is open")
	ErrWatching = errors.New("already observing")
)

type path struct {
	kind yrb.Kind
	word string
	name string
}

func (p path) String() string {
	return p.word + "/" + p.name
}

var kinds = map[string]yrb.Kind{
	"array":   yrb.KindArray,
	"map":     yrb.KindMap,
	"text":    yrb.KindText,
	"xml":     yrb.KindXmlFragment,
	"element": yrb.KindXmlElement,
	"xmltext": yrb.KindXmlText,
}

func parsePath(s string) (p path, err error) {
	kind, name, ok := strings.Cut(s, "/")
	if p.kind, ok = kinds[kind]; !ok || name == "" {
		return p, HelpPath
	}
	p.word, p.name = kind, name
	return
}

// parseValue reads a YAML flow value.
func parseValue(s string) (v any, err error) {
	if err = yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, errors.Wrap(err, "bad value")
	}
	return
}

func render(v any) string {
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	flow(&node)
	out, err := yaml.Marshal(&node)
	if err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSpace(string(out))
}

func flow(node *yaml.Node) {
	if node.Kind == yaml.MappingNode || node.Kind == yaml.SequenceNode {
		node.Style |= yaml.FlowStyle
	}
	for _, child := range node.Content {
		flow(child)
	}
}

// with runs fn in the open transaction, or in a new committed one.
func (repl *REPL) with(fn func(tx *yrb.Transaction) error) error {
	if repl.tx != nil {
		return fn(repl.tx)
	}
	return repl.doc.Transaction(fn)
}

func (repl *REPL) container(tx *yrb.Transaction, p path) (yrb.Container, error) {
	switch p.kind {
	case yrb.KindArray:
		return tx.GetArray(p.name)
	case yrb.KindMap:
		return tx.GetMap(p.name)
	case yrb.KindText:
		return tx.GetText(p.name)
	case yrb.KindXmlElement:
		return tx.GetXmlElement(p.name)
	case yrb.KindXmlFragment:
		return tx.GetXmlFragment(p.name)
	}
	return tx.GetXmlText(p.name)
}

// withContainer parses the leading path of args and runs fn on it.
// Of the n arguments, the last one takes the rest of the line.
func (repl *REPL) withContainer(args string, n int, help error, fn func(tx *yrb.Transaction, c yrb.Container, args []string) error) error {
	words := splitArgs(args, n-1)
	if len(words) < n {
		return help
	}
	p, err := parsePath(words[0])
	if err != nil {
		return err
	}
	return repl.with(func(tx *yrb.Transaction) error {
		c, err := repl.container(tx, p)
		if err != nil {
			return err
		}
		return fn(tx, c, words[1:])
	})
}

func (repl *REPL) CommandBegin() (err error) {
	if repl.tx != nil {
		return ErrTxOpen
	}
	repl.tx, err = repl.doc.Transact()
	return
}

func (repl *REPL) CommandCommit() error {
	if repl.tx == nil {
		return ErrNoTx
	}
	tx := repl.tx
	repl.tx = nil
	return tx.Commit()
}

func (repl *REPL) CommandFree() error {
	if repl.tx == nil {
		return ErrNoTx
	}
	tx := repl.tx
	repl.tx = nil
	return tx.Free()
}

func (repl *REPL) CommandShow(args string) error {
	return repl.withContainer(args, 1, HelpPath, func(tx *yrb.Transaction, c yrb.Container, _ []string) error {
		var out string
		switch c := c.(type) {
		case *yrb.Array:
			vals, err := c.ToSlice(tx)
			if err != nil {
				return err
			}
			out = render(vals)
		case *yrb.Map:
			m, err := c.ToMap(tx)
			if err != nil {
				return err
			}
			out = render(m)
		case *yrb.Text:
			diffs, err := c.Diff(tx)
			if err != nil {
				return err
			}
			out = renderDiffs(diffs)
		case interface {
			String(tx *yrb.Transaction) (string, error)
		}:
			s, err := c.String(tx)
			if err != nil {
				return err
			}
			out = s
		}
		_, _ = fmt.Fprintln(repl.out, out)
		return nil
	})
}

func renderDiffs(diffs []yrb.Diff) string {
	runs := make([]string, len(diffs))
	for i, d := range diffs {
		runs[i] = render(d.Insert)
		if d.Attributes != nil {
			runs[i] += " " + render(d.Attributes)
		}
	}
	return strings.Join(runs, " ")
}

func (repl *REPL) CommandPut(args string) error {
	return repl.withContainer(args, 2, HelpPut, func(tx *yrb.Transaction, c yrb.Container, args []string) error {
		v, err := parseValue(args[0])
		if err != nil {
			return err
		}
		switch c := c.(type) {
		case *yrb.Array:
			if list, ok := v.([]any); ok {
				n, err := c.Len(tx)
				if err != nil {
					return err
				}
				return c.InsertRange(tx, n, list...)
			}
			return c.PushBack(tx, v)
		case *yrb.Map:
			m, ok := v.(map[string]any)
			if !ok {
				return HelpPut
			}
			for k, v := range m {
				if _, err := c.Insert(tx, k, v); err != nil {
					return err
				}
			}
			return nil
		case *yrb.Text:
			return c.Push(tx, fmt.Sprint(v))
		case *yrb.XmlText:
			return c.Push(tx, fmt.Sprint(v))
		}
		return HelpPut
	})
}

func (repl *REPL) CommandInsert(args string) error {
	return repl.withContainer(args, 3, HelpInsert, func(tx *yrb.Transaction, c yrb.Container, args []string) error {
		index, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return HelpInsert
		}
		i := uint32(index)
		switch c := c.(type) {
		case *yrb.Array:
			v, err := parseValue(args[1])
			if err != nil {
				return err
			}
			return c.Insert(tx, i, v)
		case *yrb.Text:
			return insertText(tx, c, i, args[1])
		case *yrb.XmlText:
			return insertText(tx, &c.Text, i, args[1])
		case *yrb.XmlFragment:
			_, err = c.InsertElement(tx, i, args[1])
			return err
		case *yrb.XmlElement:
			_, err = c.InsertElement(tx, i, args[1])
			return err
		}
		return HelpInsert
	})
}

// insertText takes a YAML string optionally followed by attributes.
func insertText(tx *yrb.Transaction, t *yrb.Text, index uint32, arg string) error {
	var parts []any
	if err := yaml.Unmarshal([]byte("["+arg+"]"), &parts); err != nil || len(parts) == 0 || len(parts) > 2 {
		return HelpInsert
	}
	s := fmt.Sprint(parts[0])
	if len(parts) == 1 {
		return t.Insert(tx, index, s)
	}
	return t.InsertWithAttributes(tx, index, s, parts[1])
}

func (repl *REPL) CommandRemove(args string) error {
	return repl.withContainer(args, 2, HelpRemove, func(tx *yrb.Transaction, c yrb.Container, args []string) error {
		if m, ok := c.(*yrb.Map); ok {
			_, err := m.Remove(tx, args[0])
			return err
		}
		words := strings.Fields(strings.Join(args, " "))
		index, err := strconv.ParseUint(words[0], 10, 32)
		if err != nil {
			return HelpRemove
		}
		length := uint64(1)
		if len(words) > 1 {
			if length, err = strconv.ParseUint(words[1], 10, 32); err != nil {
				return HelpRemove
			}
		}
		ranged, ok := c.(interface {
			RemoveRange(tx *yrb.Transaction, index, length uint32) error
		})
		if !ok {
			return HelpRemove
		}
		return ranged.RemoveRange(tx, uint32(index), uint32(length))
	})
}

func (repl *REPL) CommandFormat(args string) error {
	return repl.withContainer(args, 4, HelpFormat, func(tx *yrb.Transaction, c yrb.Container, args []string) error {
		var t *yrb.Text
		switch c := c.(type) {
		case *yrb.Text:
			t = c
		case *yrb.XmlText:
			t = &c.Text
		default:
			return HelpFormat
		}
		index, err1 := strconv.ParseUint(args[0], 10, 32)
		length, err2 := strconv.ParseUint(args[1], 10, 32)
		attrs, err3 := parseValue(args[2])
		if err1 != nil || err2 != nil || err3 != nil {
			return HelpFormat
		}
		return t.Format(tx, uint32(index), uint32(length), attrs)
	})
}

func (repl *REPL) CommandObserve(args string) error {
	p, err := parsePath(strings.TrimSpace(args))
	if err != nil {
		return err
	}
	if _, ok := repl.subs[p.String()]; ok {
		return ErrWatching
	}
	var c yrb.Container
	if err = repl.with(func(tx *yrb.Transaction) (err error) {
		c, err = repl.container(tx, p)
		return
	}); err != nil {
		return err
	}
	report := func(v any) {
		_, _ = fmt.Fprintf(repl.out, "%s: %s\n", p, render(v))
	}
	var sub yrb.Subscription
	switch c := c.(type) {
	case *yrb.Array:
		sub = c.Observe(func(changes []yrb.ArrayChange) { report(arrayChanges(changes)) })
	case *yrb.XmlFragment:
		sub = c.Observe(func(changes []yrb.ArrayChange) { report(arrayChanges(changes)) })
	case *yrb.XmlElement:
		sub = c.Observe(func(changes []yrb.ArrayChange) { report(arrayChanges(changes)) })
	case *yrb.Map:
		sub = c.Observe(func(changes map[string]yrb.MapChange) { report(mapChanges(changes)) })
	case *yrb.Text:
		sub = c.Observe(func(delta []yrb.TextDelta) { report(textChanges(delta)) })
	case *yrb.XmlText:
		sub = c.Observe(func(delta []yrb.TextDelta) { report(textChanges(delta)) })
	}
	repl.subs[p.String()] = func() { c.Unobserve(sub) }
	return nil
}

func (repl *REPL) CommandUnobserve(args string) error {
	p, err := parsePath(strings.TrimSpace(args))
	if err != nil {
		return err
	}
	if stop, ok := repl.subs[p.String()]; ok {
		stop()
		delete(repl.subs, p.String())
	}
	return nil
}

func arrayChanges(changes []yrb.ArrayChange) []map[string]any {
	out := make([]map[string]any, len(changes))
	for i, ch := range changes {
		switch {
		case ch.Insert != nil:
			out[i] = map[string]any{"insert": printable(ch.Insert)}
		case ch.Retain > 0:
			out[i] = map[string]any{"retain": ch.Retain}
		default:
			out[i] = map[string]any{"delete": ch.Delete}
		}
	}
	return out
}

func mapChanges(changes map[string]yrb.MapChange) []map[string]any {
	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]map[string]any, len(keys))
	for i, k := range keys {
		ch := changes[k]
		entry := map[string]any{"key": k, "action": ch.Action.String()}
		if ch.Action != yrb.MapInserted {
			entry["old"] = printable(ch.Old)
		}
		if ch.Action != yrb.MapRemoved {
			entry["new"] = printable(ch.New)
		}
		out[i] = entry
	}
	return out
}

func textChanges(delta []yrb.TextDelta) []map[string]any {
	out := make([]map[string]any, len(delta))
	for i, d := range delta {
		switch {
		case d.Insert != nil:
			out[i] = map[string]any{"insert": printable(d.Insert)}
		case d.Retain > 0:
			out[i] = map[string]any{"retain": d.Retain}
		default:
			out[i] = map[string]any{"delete": d.Delete}
		}
		if d.Attributes != nil {
			out[i]["attributes"] = d.Attributes
		}
	}
	return out
}

// printable replaces handles of nested types with their kind.
func printable(v any) any {
	switch v := v.(type) {
	case yrb.Container:
		return "<" + v.Kind().String() + ">"
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = printable(item)
		}
		return out
	}
	return v
}

func (repl *REPL) CommandStateVector() error {
	var sv []byte
	err := repl.with(func(tx *yrb.Transaction) (err error) {
		sv, err = tx.StateVector()
		return
	})
	if err == nil {
		_, _ = fmt.Fprintln(repl.out, hex.EncodeToString(sv))
	}
	return err
}

func (repl *REPL) CommandDiff(args string) error {
	sv, err := hex.DecodeString(strings.TrimSpace(args))
	if err != nil {
		return HelpSync
	}
	var update []byte
	err = repl.with(func(tx *yrb.Transaction) (err error) {
		update, err = tx.EncodeDiff(sv)
		return
	})
	if err == nil {
		_, _ = fmt.Fprintln(repl.out, hex.EncodeToString(update))
	}
	return err
}

func (repl *REPL) CommandSync(args string) error {
	update, err := hex.DecodeString(strings.TrimSpace(args))
	if err != nil || len(update) == 0 {
		return HelpSync
	}
	return repl.with(func(tx *yrb.Transaction) error {
		return tx.ApplyUpdate(update)
	})
}

func (repl *REPL) CommandCompact() error {
	if repl.store == nil {
		return ErrNoStore
	}
	if repl.tx != nil {
		return ErrTxOpen
	}
	return repl.store.Compact(repl.conf.Document, repl.doc)
}

func (repl *REPL) CommandAware(args string) error {
	args = strings.TrimSpace(args)
	if args == "" {
		repl.aware.CleanLocalState()
		return nil
	}
	v, err := parseValue(args)
	if err != nil {
		return err
	}
	return repl.aware.SetLocalValue(v)
}

func (repl *REPL) CommandClients() error {
	clients := repl.aware.Clients()
	ids := make([]uint64, 0, len(clients))
	for id := range clients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		_, _ = fmt.Fprintf(repl.out, "%d\t%s\n", id, clients[id])
	}
	return nil
}

func (repl *REPL) CommandListen(args string) error {
	addr := strings.TrimSpace(args)
	if addr == "" {
		return HelpNet
	}
	bound, err := repl.net.Listen(addr)
	if err == nil {
		_, _ = fmt.Fprintln(repl.out, bound)
	}
	return err
}

func (repl *REPL) CommandConnect(args string) error {
	addr := strings.TrimSpace(args)
	if addr == "" {
		return HelpNet
	}
	return repl.net.Connect(addr)
}

func (repl *REPL) CommandDisconnect(args string) error {
	addr := strings.TrimSpace(args)
	if addr == "" {
		return HelpNet
	}
	if err := repl.net.Disconnect(addr); !errors.Is(err, network.ErrAddressUnknown) {
		return err
	}
	return repl.net.Unlisten(addr)
}

func (repl *REPL) CommandPeers() error {
	peers := repl.net.Peers()
	sort.Strings(peers)
	for _, name := range peers {
		_, _ = fmt.Fprintln(repl.out, name)
	}
	return nil
}
