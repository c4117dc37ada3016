package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaprest/internal/cli/config"
	"github.com/leapstack-labs/leaprest/internal/cli/output"
	"github.com/leapstack-labs/leaprest/pkg/catalog"
	"github.com/leapstack-labs/leaprest/pkg/compiler"
	"github.com/leapstack-labs/leaprest/pkg/core"
	"github.com/leapstack-labs/leaprest/pkg/request"
)

const replPrompt = "leaprest> "

var replMethods = []string{"GET", "HEAD", "POST", "PATCH", "PUT", "DELETE"}

// NewREPLCommand creates the repl command.
func NewREPLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Compile requests interactively",
		Long: `Start an interactive shell that compiles each request line into SQL.

A line is [METHOD] URI [BODY], for example:
  /projects?select=id,name&id=eq.1
  POST /projects {"name":"New"}

Dot commands change the session (.role, .env) or inspect the schema
(.relations). Type .help for the full list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContext(cmd)
			cat, err := cmdCtx.loadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			return runREPL(cmd, newREPLSession(cmdCtx.Cfg, cat, cmdCtx.Renderer))
		},
	}
}

// replSession is the state carried between lines.
type replSession struct {
	cfg  *config.Config
	cat  *catalog.Catalog
	r    *output.Renderer
	role string
	env  []core.Pair
}

func newREPLSession(cfg *config.Config, cat *catalog.Catalog, r *output.Renderer) *replSession {
	return &replSession{cfg: cfg, cat: cat, r: r, role: cfg.Role}
}

func runREPL(cmd *cobra.Command, s *replSession) error {
	historyFile := ""
	if dir, err := os.UserCacheDir(); err == nil {
		historyFile = filepath.Join(dir, "leaprest", "repl_history")
		_ = os.MkdirAll(filepath.Dir(historyFile), 0o750)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    s.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	s.r.Printf("LeapREST REPL (%s, %d relations)\n", s.cat.Dialect().Name(), s.cat.RelationCount())
	s.r.Println("Type .help for commands, .quit to exit")
	s.r.Println("")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if s.handle(line) {
			return nil
		}
	}
}

// handle processes one line and reports whether the session should end.
func (s *replSession) handle(line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false
	case strings.HasPrefix(line, "."):
		return s.dotCommand(line)
	}

	if err := s.compile(line); err != nil {
		s.r.Println(s.r.Styles().Error.Render("Error: " + err.Error()))
	}
	s.r.Println("")
	return false
}

// splitRequestLine splits "[METHOD] URI [BODY]".
func splitRequestLine(line string) (method, uri string, body *string) {
	method = "GET"
	first, rest, _ := strings.Cut(line, " ")
	for _, m := range replMethods {
		if strings.EqualFold(first, m) {
			method = m
			first, rest, _ = strings.Cut(strings.TrimSpace(rest), " ")
			break
		}
	}
	uri = first
	if b := strings.TrimSpace(rest); b != "" {
		body = &b
	}
	return method, uri, body
}

func (s *replSession) compile(line string) error {
	method, uri, body := splitRequestLine(line)
	in := request.Input{
		Method: method,
		URI:    uri,
		Root:   s.cfg.Root,
		Schema: s.cfg.DBSchema,
		Role:   s.role,
		Env:    append([]core.Pair{{Key: "role", Value: s.role}}, s.env...),
		Body:   body,
	}
	if s.cfg.MaxRows > 0 {
		in.MaxRows = &s.cfg.MaxRows
	}
	req, err := request.Parse(s.cat, in)
	if err != nil {
		return err
	}

	if req.Query.Kind.IsMutation() && !s.cat.Dialect().Config().SupportsMutationCTE {
		ts, err := compiler.NewTwoStage(s.cat, req, nil)
		if err != nil {
			return err
		}
		renderStatement(s.r, "Mutate stage", ts.Mutate())
		return nil
	}
	main, err := compiler.MainStatement(s.cat, req, nil)
	if err != nil {
		return err
	}
	renderStatement(s.r, "Main statement", main)
	return nil
}

func (s *replSession) dotCommand(line string) bool {
	parts := strings.Fields(line)
	styles := s.r.Styles()

	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(s.r)

	case ".relations":
		names := s.cat.RelationNames()
		for _, name := range names {
			s.r.Println("  " + styles.Relation.Render(name))
		}
		s.r.Println(styles.Muted.Render(fmt.Sprintf("(%d relations)", len(names))))

	case ".role":
		if len(parts) > 1 {
			s.role = parts[1]
		}
		s.r.Println("role: " + s.role)

	case ".env":
		switch {
		case len(parts) == 1:
			for _, p := range s.env {
				s.r.Printf("  %s=%s\n", p.Key, p.Value)
			}
		case parts[1] == "clear":
			s.env = nil
		default:
			pairs, err := parseEnvPairs(parts[1:])
			if err != nil {
				s.r.Println(styles.Error.Render("Error: " + err.Error()))
				return false
			}
			s.env = append(s.env, pairs...)
		}

	case ".clear":
		s.r.Printf("\033[H\033[2J")

	default:
		s.r.Println(styles.Error.Render(fmt.Sprintf("Unknown command: %s (type .help for commands)", parts[0])))
	}
	return false
}

func printREPLHelp(r *output.Renderer) {
	r.Println(`
Requests:
  [METHOD] URI [BODY]   Compile a request, e.g. POST /projects {"name":"x"}

Commands:
  .help                 Show this help message
  .relations            List the relations of the schema
  .role [name]          Show or set the role requests run as
  .env [k=v...|clear]   Show, add or clear env pairs
  .clear                Clear the screen
  .quit / .exit         Exit the REPL

Tips:
  - Use arrow keys to navigate history
  - Tab completion works for methods and relation names`)
}

// completer completes methods and relation paths.
func (s *replSession) completer() *readline.PrefixCompleter {
	root := strings.TrimSuffix(s.cfg.Root, "/")
	var paths []readline.PrefixCompleterInterface
	for _, name := range s.cat.RelationNames() {
		if _, rel, ok := strings.Cut(name, "."); ok {
			name = rel
		}
		paths = append(paths, readline.PcItem(root+"/"+name))
	}

	var items []readline.PrefixCompleterInterface
	for _, m := range replMethods {
		items = append(items, readline.PcItem(m, paths...))
	}
	items = append(items, paths...)
	items = append(items,
		readline.PcItem(".help"),
		readline.PcItem(".relations"),
		readline.PcItem(".role"),
		readline.PcItem(".env"),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
	return readline.NewPrefixCompleter(items...)
}
