package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"codejudge/internal/cli/command"
	httpclient "codejudge/internal/cli/http"
	"codejudge/internal/cli/state"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const (
	defaultPrompt     = "codejudge> "
	watchPollInterval = 250 * time.Millisecond
	watchMaxDuration  = 2 * time.Minute
)

var errExit = errors.New("exit")

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	commands   map[string]command.Command
	state      *state.SessionState
	statePath  string
	prettyJSON bool
	out        io.Writer
	prompt     func(label string) (string, error)
}

func New(client *httpclient.Client, commands map[string]command.Command, st *state.SessionState, statePath string, prettyJSON bool) *Session {
	return &Session{
		client:     client,
		commands:   commands,
		state:      st,
		statePath:  statePath,
		prettyJSON: prettyJSON,
		out:        os.Stdout,
	}
}

// Run reads lines until exit or EOF.
func (s *Session) Run(ctx context.Context, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          defaultPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    s.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer func() { _ = rl.Close() }()

	s.out = rl.Stdout()
	s.prompt = func(label string) (string, error) {
		rl.SetPrompt(label + ": ")
		defer rl.SetPrompt(defaultPrompt)
		line, err := rl.Readline()
		if err != nil {
			return "", fmt.Errorf("read input failed: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		if err := s.HandleLine(ctx, line); err != nil {
			if errors.Is(err, errExit) {
				s.printLine("bye")
				return nil
			}
			failColor.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

func (s *Session) completer() *readline.PrefixCompleter {
	services := map[string][]readline.PrefixCompleterInterface{}
	order := []string{}
	for _, key := range command.Keys(s.commands) {
		cmd := s.commands[key]
		if _, ok := services[cmd.Service]; !ok {
			order = append(order, cmd.Service)
		}
		services[cmd.Service] = append(services[cmd.Service], readline.PcItem(cmd.Action))
	}
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("help"),
		readline.PcItem("exit"),
		readline.PcItem("submit"),
		readline.PcItem("watch"),
		readline.PcItem("set",
			readline.PcItem("base"), readline.PcItem("timeout"), readline.PcItem("language"),
			readline.PcItem("problem"), readline.PcItem("input"), readline.PcItem("input_file")),
		readline.PcItem("unset", readline.PcItem("problem"), readline.PcItem("input")),
		readline.PcItem("show", readline.PcItem("session"), readline.PcItem("config")),
	}
	for _, svc := range order {
		items = append(items, readline.PcItem(svc, services[svc]...))
	}
	return readline.NewPrefixCompleter(items...)
}

// HandleLine runs one REPL line.
func (s *Session) HandleLine(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	switch tokens[0] {
	case "exit", "quit":
		return errExit
	case "help":
		s.printHelp()
		return nil
	case "set":
		return s.handleSet(tokens[1:])
	case "unset":
		return s.handleUnset(tokens[1:])
	case "show":
		return s.handleShow(tokens[1:])
	case "submit":
		return s.handleSubmit(ctx, tokens[1:])
	case "watch":
		return s.handleWatch(ctx, tokens[1:])
	}
	return s.handleCommand(ctx, tokens)
}

func (s *Session) handleSet(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: set base|timeout|language|problem|input|input_file <value>")
	}
	value := strings.Join(args[1:], " ")
	switch args[0] {
	case "base":
		s.client.SetBaseURL(value)
		s.printLine("base set to %s", value)
		return nil
	case "timeout":
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
		return nil
	case "language":
		s.state.Language = value
	case "problem":
		id, err := command.ParseInt64(value)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid problem id: %s", value)
		}
		s.state.ProblemID = &id
	case "input":
		s.state.Input = strings.ReplaceAll(value, `\n`, "\n")
	case "input_file":
		content, err := command.ReadFile(value)
		if err != nil {
			return err
		}
		s.state.Input = content
	default:
		return fmt.Errorf("unknown set command: %s", args[0])
	}
	s.printLine("%s updated", args[0])
	return s.saveState()
}

func (s *Session) handleUnset(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: unset problem|input")
	}
	switch args[0] {
	case "problem":
		s.state.ProblemID = nil
	case "input":
		s.state.Input = ""
	default:
		return fmt.Errorf("unknown unset command: %s", args[0])
	}
	s.printLine("%s cleared", args[0])
	return s.saveState()
}

func (s *Session) handleShow(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: show session|config")
	}
	switch args[0] {
	case "session":
		problem := "<none>"
		if s.state.ProblemID != nil {
			problem = fmt.Sprintf("%d", *s.state.ProblemID)
		}
		s.printLine("language: %s", s.state.Language)
		s.printLine("problem: %s", problem)
		s.printLine("input: %q", s.state.Input)
		if s.state.LastToken != "" {
			s.printLine("last token: %s", s.state.LastToken)
		}
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("statePath: %s", s.statePath)
	default:
		return fmt.Errorf("usage: show session|config")
	}
	return nil
}

// handleSubmit sends a source file to /execute using the session defaults.
func (s *Session) handleSubmit(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: submit <file> [key=value ...]")
	}
	params, err := command.ParseKeyValues(args[1:])
	if err != nil {
		return err
	}
	params.Set("file", args[0])
	if !params.Has("language") && !params.Has("lang") {
		if lang := command.LanguageFromPath(args[0]); lang != "" {
			params.Set("language", lang)
		}
	}
	return s.send(ctx, s.commands["judge execute"], params)
}

// handleWatch polls a run token until it leaves In Queue and Processing.
func (s *Session) handleWatch(ctx context.Context, args []string) error {
	token := s.state.LastToken
	if len(args) > 0 {
		token = args[0]
	}
	if token == "" {
		return fmt.Errorf("usage: watch <token>")
	}
	cmd := s.commands["run get"]
	ctx, cancel := context.WithTimeout(ctx, watchMaxDuration)
	defer cancel()

	lastID := 0
	for {
		req, err := command.BuildRequest(cmd, command.Params{"token": token})
		if err != nil {
			return err
		}
		resp, err := s.client.Do(ctx, req.Method, req.Path, req.Headers, req.Body)
		if err != nil {
			return err
		}
		var body judge0Body
		if err := json.Unmarshal(resp.Body, &body); err != nil || body.Status == nil {
			Render(s.out, resp, s.prettyJSON)
			return nil
		}
		if body.Status.ID > 2 {
			Render(s.out, resp, s.prettyJSON)
			return nil
		}
		if body.Status.ID != lastID {
			lastID = body.Status.ID
			pendingColor.Fprintf(s.out, "%s...\n", body.Status.Description)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("watch %s: %w", token, ctx.Err())
		case <-time.After(watchPollInterval):
		}
	}
}

func (s *Session) handleCommand(ctx context.Context, tokens []string) error {
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}
	cmd, ok := s.commands[tokens[0]+" "+tokens[1]]
	if !ok {
		return fmt.Errorf("unknown command: %s %s", tokens[0], tokens[1])
	}
	params, err := command.ParseKeyValues(tokens[2:])
	if err != nil {
		return err
	}
	return s.send(ctx, cmd, params)
}

func (s *Session) send(ctx context.Context, cmd command.Command, params command.Params) error {
	if err := params.Canonicalize(cmd.Fields); err != nil {
		return err
	}
	s.applyDefaults(cmd, params)
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Headers, req.Body)
	if err != nil {
		return err
	}
	Render(s.out, resp, s.prettyJSON)
	s.rememberToken(cmd, resp.Body)
	return nil
}

// applyDefaults fills submission fields from the session.
func (s *Session) applyDefaults(cmd command.Command, params command.Params) {
	for _, field := range cmd.Fields {
		if params.Get(field.Name) != "" {
			continue
		}
		switch field.Name {
		case "language":
			if s.state.Language != "" {
				params.Set(field.Name, s.state.Language)
			}
		case "problem_id":
			if s.state.ProblemID != nil {
				params.Set(field.Name, fmt.Sprintf("%d", *s.state.ProblemID))
			}
		case "input":
			if s.state.Input != "" {
				params.Set(field.Name, s.state.Input)
			}
		}
	}
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required || params.Get(field.Name) != "" {
			continue
		}
		if s.prompt == nil {
			return fmt.Errorf("missing parameter: %s", field.Name)
		}
		value, err := s.prompt(field.Prompt)
		if err != nil {
			return err
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) rememberToken(cmd command.Command, body []byte) {
	if cmd.Key() != "run submit" {
		return
	}
	var created struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &created); err != nil || created.Token == "" {
		return
	}
	s.state.LastToken = created.Token
	if err := s.saveState(); err != nil {
		s.printLine("save session failed: %v", err)
	}
}

func (s *Session) saveState() error {
	if s.statePath == "" {
		return nil
	}
	return state.Save(s.statePath, *s.state)
}

func (s *Session) printHelp() {
	s.printLine("usage: <service> <action> key=value ...")
	for _, key := range command.Keys(s.commands) {
		s.printLine("  %-16s %s", key, s.commands[key].Summary)
	}
	s.printLine("system: help | exit | set base|timeout|language|problem|input|input_file | unset problem|input | show session|config")
	s.printLine("shortcuts: submit <file> [key=value ...] | watch [token]")
	s.printLine("examples:")
	s.printLine("  set language python")
	s.printLine("  set problem 1")
	s.printLine("  submit ./two_sum.py")
	s.printLine("  judge execute language=63 code=\"console.log(2+3)\"")
	s.printLine("  run submit file=./main.py input_file=./in.txt")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
