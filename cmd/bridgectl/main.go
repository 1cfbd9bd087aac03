package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/cryguy/bridge"
)

const (
	appName     = "bridgectl"
	historyFile = ".bridgectl_history"
	promptMain  = "bridge> "
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch cmd := os.Args[1]; cmd {
	case "call":
		os.Exit(cmdCall(os.Args[2:]))
	case "repl":
		os.Exit(cmdRepl(os.Args[2:]))
	case "-h", "--help", "help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown command %q\n", appName, cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Printf(`Usage:
  %s call [-config f] [-module f] [-export name] -method m [json-args...]
        Invoke one method and print the JSON of its (awaited) result.
  %s repl [-config f] [-v]
        Inspect foreign values interactively.
`, appName, appName)
}

// openBridge loads the optional config file and creates a bridge.
func openBridge(cfgPath string, verbose bool) (*bridge.Bridge, error) {
	var cfg bridge.Config
	if cfgPath != "" {
		var err error
		if cfg, err = bridge.LoadConfig(cfgPath); err != nil {
			return nil, err
		}
	}
	if verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		cfg.Logger = logger
	}
	return bridge.New(cfg)
}

// -----------------------------------------------------------------------------
// call
// -----------------------------------------------------------------------------

func cmdCall(args []string) int {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "YAML config file")
	modPath := fs.String("module", "", "ES module file; its exports become the receiver")
	export := fs.String("export", "", "property of the receiver to call the method on")
	method := fs.String("method", "", "method to invoke")
	verbose := fs.Bool("v", false, "log bridge activity to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *method == "" {
		fmt.Fprintf(os.Stderr, "%s call: -method is required\n", appName)
		return 2
	}

	b, err := openBridge(*cfgPath, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 1
	}
	defer b.Close()

	err = b.Do(func(s *bridge.Scope) error {
		var recv *bridge.Object
		if *modPath != "" {
			src, err := os.ReadFile(*modPath)
			if err != nil {
				return err
			}
			name := strings.TrimSuffix(filepath.Base(*modPath), filepath.Ext(*modPath))
			if err := b.LoadModule(name, string(src)); err != nil {
				return err
			}
			if recv, err = s.Object(b.Module(name)); err != nil {
				return err
			}
		} else {
			g, err := s.Hold(b.Global("globalThis"))
			if err != nil {
				return err
			}
			recv = g.AsObject()
		}

		if *export != "" {
			v, err := s.Hold(recv.GetKey(*export))
			if err != nil {
				return err
			}
			recv = v.AsObject()
		}

		argv := make([]*bridge.Variant, 0, fs.NArg())
		for i, a := range fs.Args() {
			var x any
			if err := json.Unmarshal([]byte(a), &x); err != nil {
				return fmt.Errorf("argument %d: %w", i, err)
			}
			v, err := s.Hold(b.Value(x))
			if err != nil {
				return err
			}
			argv = append(argv, v)
		}

		res, err := s.Hold(recv.Call(*method, argv...))
		if err != nil {
			return err
		}
		if res, err = s.Hold(res.Await()); err != nil {
			return err
		}
		text, err := res.JSON()
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 1
	}
	return 0
}

// -----------------------------------------------------------------------------
// repl
// -----------------------------------------------------------------------------

const replHelp = `Values are kept in slots $1, $2, ... Arguments are JSON or slot references.
  :load <name> <file>       load an ES module
  :module <name>            the exports of a loaded module
  :global <name>            a global property
  :value <json>             construct a value
  :get <$n> <key>           look up a string key
  :call <$n> <method> [arg...]
  :await <$n>               settle a promise
  :kind <$n>                report the value's kind
  :show <$n>                print the value as JSON
  :release <$n>             release a slot
  :live                     count the engine's pins
  :quit`

type session struct {
	b     *bridge.Bridge
	slots map[int]*bridge.Variant
	next  int
}

func (s *session) store(v *bridge.Variant) {
	s.next++
	s.slots[s.next] = v
	fmt.Printf("$%d = %s\n", s.next, v)
}

func (s *session) slot(ref string) (*bridge.Variant, error) {
	if !strings.HasPrefix(ref, "$") {
		return nil, fmt.Errorf("expected a slot like $1, got %q", ref)
	}
	n, err := strconv.Atoi(ref[1:])
	if err != nil {
		return nil, fmt.Errorf("bad slot %q", ref)
	}
	v, ok := s.slots[n]
	if !ok {
		return nil, fmt.Errorf("slot %s is empty", ref)
	}
	return v, nil
}

// arg resolves a slot reference or constructs a value from JSON. The bool
// result reports whether the caller owns the returned Variant.
func (s *session) arg(tok string) (*bridge.Variant, bool, error) {
	if strings.HasPrefix(tok, "$") {
		v, err := s.slot(tok)
		return v, false, err
	}
	var x any
	if err := json.Unmarshal([]byte(tok), &x); err != nil {
		return nil, false, fmt.Errorf("argument %s: %w", tok, err)
	}
	v, err := s.b.Value(x)
	return v, true, err
}

func (s *session) exec(line string) error {
	fields := strings.Fields(line)
	cmd, rest := fields[0], fields[1:]
	need := func(n int) error {
		if len(rest) < n {
			return fmt.Errorf("%s needs %d argument(s); try :help", cmd, n)
		}
		return nil
	}

	switch cmd {
	case ":help":
		fmt.Println(replHelp)
	case ":load":
		if err := need(2); err != nil {
			return err
		}
		src, err := os.ReadFile(rest[1])
		if err != nil {
			return err
		}
		return s.b.LoadModule(rest[0], string(src))
	case ":module":
		if err := need(1); err != nil {
			return err
		}
		o, err := s.b.Module(rest[0])
		if err != nil {
			return err
		}
		s.store(o.Variant)
	case ":global":
		if err := need(1); err != nil {
			return err
		}
		v, err := s.b.Global(rest[0])
		if err != nil {
			return err
		}
		s.store(v)
	case ":value":
		if err := need(1); err != nil {
			return err
		}
		var x any
		if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, cmd))), &x); err != nil {
			return err
		}
		v, err := s.b.Value(x)
		if err != nil {
			return err
		}
		s.store(v)
	case ":get":
		if err := need(2); err != nil {
			return err
		}
		recv, err := s.slot(rest[0])
		if err != nil {
			return err
		}
		v, err := recv.AsObject().GetKey(rest[1])
		if err != nil {
			return err
		}
		s.store(v)
	case ":call":
		if err := need(2); err != nil {
			return err
		}
		recv, err := s.slot(rest[0])
		if err != nil {
			return err
		}
		var argv, owned []*bridge.Variant
		defer func() {
			for _, v := range owned {
				_ = v.Release()
			}
		}()
		for _, tok := range rest[2:] {
			v, own, err := s.arg(tok)
			if err != nil {
				return err
			}
			if own {
				owned = append(owned, v)
			}
			argv = append(argv, v)
		}
		v, err := recv.AsObject().Call(rest[1], argv...)
		if err != nil {
			return err
		}
		s.store(v)
	case ":await":
		if err := need(1); err != nil {
			return err
		}
		p, err := s.slot(rest[0])
		if err != nil {
			return err
		}
		v, err := p.Await()
		if err != nil {
			return err
		}
		s.store(v)
	case ":kind":
		if err := need(1); err != nil {
			return err
		}
		v, err := s.slot(rest[0])
		if err != nil {
			return err
		}
		k, err := v.Kind()
		if err != nil {
			return err
		}
		fmt.Println(k)
	case ":show":
		if err := need(1); err != nil {
			return err
		}
		v, err := s.slot(rest[0])
		if err != nil {
			return err
		}
		text, err := v.JSON()
		if err != nil {
			return err
		}
		fmt.Println(text)
	case ":release":
		if err := need(1); err != nil {
			return err
		}
		v, err := s.slot(rest[0])
		if err != nil {
			return err
		}
		n, _ := strconv.Atoi(rest[0][1:])
		delete(s.slots, n)
		return v.Release()
	case ":live":
		n, err := s.b.Live()
		if err != nil {
			return err
		}
		fmt.Printf("%d pinned (%d held by this session)\n", n, len(s.slots))
	default:
		return fmt.Errorf("unknown command %s; try :help", cmd)
	}
	return nil
}

func cmdRepl(args []string) int {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "YAML config file")
	verbose := fs.Bool("v", false, "log bridge activity to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	b, err := openBridge(*cfgPath, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 1
	}
	defer b.Close()

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		os.Exit(130)
	}()

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	fmt.Println("Type :help for commands.")
	s := &session{b: b, slots: make(map[int]*bridge.Variant)}
	for {
		line, err := ln.Prompt(promptMain)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				continue
			}
			fmt.Println()
			return 0
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ln.AppendHistory(line)
		if line == ":quit" {
			return 0
		}
		if err := s.exec(line); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}
