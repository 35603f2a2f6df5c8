package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cosiner/argv"
	"github.com/derekparker/trie"
	"github.com/go-delve/liner"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/adkevin3307/sdb/pkg/config"
	"github.com/adkevin3307/sdb/pkg/logflags"
	"github.com/adkevin3307/sdb/pkg/proc"
)

const (
	terminalHighlightEscapeCode string = "\033[%2dm"
	terminalResetEscapeCode     string = "\033[0m"
)

const (
	ansiRed    = 31
	ansiGreen  = 32
	ansiYellow = 33
	ansiCyan   = 36
)

// Term represents the terminal running sdb.
type Term struct {
	sess   *proc.Session
	conf   *config.Config
	cmds   *Commands
	prompt string
	line   *liner.State
	log    logflags.Logger

	stdin          io.Reader
	stdout, stderr io.Writer
	interactive    bool
	color          bool

	// ScriptFile, if set, supplies the commands instead of standard input.
	ScriptFile string
}

// New returns a new Term driving sess.
func New(sess *proc.Session, conf *config.Config) *Term {
	t := newTerm(sess, conf, os.Stdin, colorable.NewColorableStdout(), colorable.NewColorableStderr())
	t.interactive = isatty.IsTerminal(os.Stdin.Fd())
	t.color = conf != nil && conf.Color && isatty.IsTerminal(os.Stdout.Fd())
	return t
}

func newTerm(sess *proc.Session, conf *config.Config, stdin io.Reader, stdout, stderr io.Writer) *Term {
	cmds := DebugCommands()
	if conf != nil && conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}
	if conf == nil {
		conf = &config.Config{}
	}
	return &Term{
		sess:   sess,
		conf:   conf,
		cmds:   cmds,
		prompt: conf.GetPrompt(),
		log:    logflags.TerminalLogger(),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	if t.line != nil {
		t.line.Close()
		t.line = nil
	}
}

// Run reads and executes commands until exit is requested or the input
// ends. The child, if any, is terminated before returning.
func (t *Term) Run() (int, error) {
	defer t.Close()

	if t.ScriptFile != "" {
		f, err := os.Open(t.ScriptFile)
		if err != nil {
			return 1, fmt.Errorf("could not open script: %v", err)
		}
		defer f.Close()
		return t.runReader(f)
	}
	if !t.interactive {
		return t.runReader(t.stdin)
	}

	t.line = liner.NewLiner()
	t.line.SetCompleter(newCompleter(t.cmds))
	t.line.SetCtrlCAborts(true)
	t.readHistory()

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == liner.ErrPromptAborted {
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(t.stdout, "exit")
				return t.handleExit()
			}
			return 1, fmt.Errorf("prompt for input failed: %v", err)
		}
		if t.execute(cmdstr) {
			return t.handleExit()
		}
	}
}

// newCompleter completes command names, and register names in the first
// argument of get and set.
func newCompleter(cmds *Commands) liner.Completer {
	commands := trie.New()
	for _, alias := range cmds.Aliases() {
		commands.Add(alias, nil)
	}
	registers := trie.New()
	for _, name := range proc.RegisterNames {
		registers.Add(name, nil)
	}
	return func(line string) []string {
		line = strings.ToLower(line)
		name, arg, found := strings.Cut(line, " ")
		if !found {
			return commands.PrefixSearch(line)
		}
		kind, err := cmds.Check([]string{name}, proc.StatusRunning)
		if err != nil || (kind != KindGet && kind != KindSet) {
			return nil
		}
		arg = strings.TrimLeft(arg, " ")
		if strings.Contains(arg, " ") {
			return nil
		}
		var r []string
		for _, reg := range registers.PrefixSearch(arg) {
			r = append(r, name+" "+reg)
		}
		return r
	}
}

// runReader executes the commands read from r line by line. End of input
// acts as the exit command.
func (t *Term) runReader(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if t.execute(scanner.Text()) {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		t.handleExit()
		return 1, err
	}
	return t.handleExit()
}

// execute runs one command line and reports whether exit was requested.
func (t *Term) execute(cmdstr string) bool {
	tokens, err := splitCommandLine(cmdstr)
	if err != nil {
		t.printError(commandArea, err)
		return false
	}
	if len(tokens) == 0 {
		return false
	}
	t.log.Debugf("%s: %q", t.sess.Status(), tokens)
	err = t.cmds.Call(t, tokens)
	if err == nil {
		return false
	}
	if _, ok := err.(ExitRequestError); ok {
		return true
	}
	t.reportError(err)
	return false
}

func splitCommandLine(cmdstr string) ([]string, error) {
	cmdstr = strings.TrimSpace(cmdstr)
	if cmdstr == "" {
		return nil, nil
	}
	v, err := argv.Argv(cmdstr,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal command line '%s'", cmdstr)
	}
	return v[0], nil
}

const commandArea = "command"

// reportError prints err as a diagnostic prefixed with the area it
// originated from.
func (t *Term) reportError(err error) {
	var (
		uce *UnknownCommandError
		le  *proc.LoadError
		se  *proc.SpawnError
		te  *proc.TraceError
		ure *proc.UnknownRegisterError
		ise *proc.InvalidStatusError
	)
	switch {
	case errors.As(err, &uce):
		if uce.Disallowed {
			t.log.Debugf("'%s' not allowed in status %s", uce.Token, uce.Status)
		} else {
			t.log.Debugf("unknown command '%s'", uce.Token)
		}
		t.printError(commandArea, err)
	case errors.As(err, &le):
		t.printError("load", err)
	case errors.As(err, &se):
		t.printError("fork", err)
	case errors.As(err, &te):
		t.printError("ptrace", err)
	case errors.As(err, &ure):
		t.printError("register", err)
	case errors.As(err, &ise):
		t.printError(commandArea, err)
	case errors.Is(err, proc.ErrNoMaps):
		t.printError("vmmap", err)
	default:
		t.printError(commandArea, err)
	}
}

func (t *Term) printError(area string, err error) {
	fmt.Fprintf(t.stderr, "** [%s] error, %v\n", area, err)
}

// banner prints an informational status line, highlighted when enabled.
func (t *Term) banner(format string, args ...interface{}) {
	t.highlight(ansiGreen, format, args...)
}

func (t *Term) highlight(color int, format string, args ...interface{}) {
	s := fmt.Sprintf(format, args...)
	if t.color {
		s = fmt.Sprintf(terminalHighlightEscapeCode, color) + s + terminalResetEscapeCode
	}
	fmt.Fprintln(t.stdout, s)
}

// LoadProgram loads path as the command line program would, printing the
// same banner or diagnostic as the load command.
func (t *Term) LoadProgram(path string, args []string) error {
	if err := t.sess.Load(path, args); err != nil {
		t.reportError(err)
		return err
	}
	t.printLoaded()
	return nil
}

// AttachProgram attaches to pid and leaves the session running.
func (t *Term) AttachProgram(pid int, path string) error {
	if err := t.sess.Attach(pid, path); err != nil {
		t.reportError(err)
		return err
	}
	t.printLoaded()
	if err := t.sess.Start(); err != nil {
		t.reportError(err)
		return err
	}
	t.banner("** pid %d", pid)
	return nil
}

// printLoaded prints the banner for a freshly loaded program.
func (t *Term) printLoaded() {
	t.banner("** program '%s' loaded. entry point 0x%x", t.sess.Path(), t.sess.Entry())
	if t.sess.DisassemblyFailed() {
		t.printError("disasm", errors.New("disassemble fail"))
	}
}

// printStop reports where a resume or step request left the child.
func (t *Term) printStop(st *proc.StopState) {
	switch {
	case st.Exited:
		how := "normally"
		if !st.Normal {
			how = "abnormally"
		}
		t.highlight(ansiRed, "** child process %d terminiated %s (code %d)", st.Pid, how, st.Code)
	case st.Breakpoint:
		if t.color {
			fmt.Fprintf(t.stdout, terminalHighlightEscapeCode, ansiYellow)
			proc.FormatBreakpointHit(t.stdout, st.PC, st.Instruction)
			fmt.Fprint(t.stdout, terminalResetEscapeCode)
		} else {
			proc.FormatBreakpointHit(t.stdout, st.PC, st.Instruction)
		}
	case st.Signal != 0:
		t.highlight(ansiCyan, "** child process %d stopped by signal %v", st.Pid, st.Signal)
	}
}

func (t *Term) historyFile() (string, error) {
	name := t.conf.HistoryFile
	if name == "" {
		return config.GetConfigFilePath(config.DefaultHistoryFile)
	}
	return name, nil
}

func (t *Term) readHistory() {
	fullHistoryFile, err := t.historyFile()
	if err != nil {
		fmt.Fprintf(t.stderr, "Unable to load history file: %v.\n", err)
		return
	}
	f, err := os.Open(fullHistoryFile)
	if err != nil {
		f, err = os.Create(fullHistoryFile)
		if err != nil {
			fmt.Fprintf(t.stderr, "Unable to open history file: %v. History will not be saved for this session.\n", err)
			return
		}
	}
	t.line.ReadHistory(f)
	f.Close()
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func (t *Term) handleExit() (int, error) {
	if t.line != nil {
		if fullHistoryFile, err := t.historyFile(); err == nil {
			if f, err := os.OpenFile(fullHistoryFile, os.O_RDWR|os.O_TRUNC|os.O_CREATE, 0666); err == nil {
				if _, err := t.line.WriteHistory(f); err != nil {
					fmt.Fprintln(t.stderr, "readline history error:", err)
				}
				f.Close()
			}
		}
	}
	if err := t.sess.Close(); err != nil {
		t.log.Warnf("could not terminate child: %v", err)
	}
	return 0, nil
}
