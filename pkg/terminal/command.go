// Package terminal implements functions for responding to user
// input and dispatching to appropriate session operations.
package terminal

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/adkevin3307/sdb/pkg/proc"
)

// Kind identifies a command independently of the name it was invoked by.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindBreak
	KindCont
	KindDelete
	KindDisasm
	KindDump
	KindExit
	KindGet
	KindGetregs
	KindHelp
	KindList
	KindLoad
	KindRun
	KindVmmap
	KindSet
	KindSi
	KindStart
)

type statusMask uint8

func allowIn(statuses ...proc.Status) statusMask {
	var m statusMask
	for _, s := range statuses {
		m |= 1 << s
	}
	return m
}

func (m statusMask) allows(s proc.Status) bool {
	return m&(1<<s) != 0
}

var (
	anyStatus = allowIn(proc.StatusNone, proc.StatusLoaded, proc.StatusRunning)
	running   = allowIn(proc.StatusRunning)
	loaded    = allowIn(proc.StatusLoaded)
	runnable  = allowIn(proc.StatusLoaded, proc.StatusRunning)
)

type cmdfunc func(t *Term, args []string) error

type command struct {
	aliases        []string
	builtinAliases []string
	kind           Kind
	statuses       statusMask
	// minArgs is the number of arguments that must follow the command name.
	minArgs int
	helpMsg string
	cmdFn   cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands of the sdb terminal.
type Commands struct {
	cmds []command
}

// DebugCommands returns a Commands struct with default commands defined.
func DebugCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"break", "b"}, kind: KindBreak, statuses: running, minArgs: 1, cmdFn: breakpoint, helpMsg: "- break {instruction-address}: add a break point"},
		{aliases: []string{"cont", "c"}, kind: KindCont, statuses: running, cmdFn: cont, helpMsg: "- cont: continue execution"},
		{aliases: []string{"delete"}, kind: KindDelete, statuses: running, minArgs: 1, cmdFn: clearBreakpoint, helpMsg: "- delete {break-point-id}: remove a break point"},
		{aliases: []string{"disasm", "d"}, kind: KindDisasm, statuses: running, minArgs: 1, cmdFn: disassemble, helpMsg: "- disasm addr: disassemble instructions in a file or a memory region"},
		{aliases: []string{"dump", "x"}, kind: KindDump, statuses: running, minArgs: 1, cmdFn: examineMemory, helpMsg: "- dump addr [length]: dump memory content"},
		{aliases: []string{"exit", "q"}, kind: KindExit, statuses: anyStatus, cmdFn: exitCommand, helpMsg: "- exit: terminate the debugger"},
		{aliases: []string{"get", "g"}, kind: KindGet, statuses: running, minArgs: 1, cmdFn: getRegister, helpMsg: "- get reg: get a single value from a register"},
		{aliases: []string{"getregs"}, kind: KindGetregs, statuses: running, cmdFn: registers, helpMsg: "- getregs: show registers"},
		{aliases: []string{"help", "h"}, kind: KindHelp, statuses: anyStatus, cmdFn: c.help, helpMsg: "- help: show this message"},
		{aliases: []string{"list", "l"}, kind: KindList, statuses: anyStatus, cmdFn: breakpoints, helpMsg: "- list: list break points"},
		{aliases: []string{"load"}, kind: KindLoad, statuses: anyStatus, minArgs: 1, cmdFn: load, helpMsg: "- load {path/to/a/program}: load a program"},
		{aliases: []string{"run", "r"}, kind: KindRun, statuses: runnable, cmdFn: run, helpMsg: "- run: run the program"},
		{aliases: []string{"vmmap", "m"}, kind: KindVmmap, statuses: running, cmdFn: vmmap, helpMsg: "- vmmap: show memory layout"},
		{aliases: []string{"set", "s"}, kind: KindSet, statuses: running, minArgs: 2, cmdFn: setRegister, helpMsg: "- set reg val: get a single value to a register"},
		{aliases: []string{"si"}, kind: KindSi, statuses: running, cmdFn: step, helpMsg: "- si: step into instruction"},
		{aliases: []string{"start"}, kind: KindStart, statuses: loaded, cmdFn: start, helpMsg: "- start: start the program and stop at the first instruction"},
	}

	return c
}

// Check returns the kind of the first command whose name or alias is
// tokens[0] and that is allowed in status. Otherwise it returns
// KindUnknown and an *UnknownCommandError recording whether a command by
// that name exists at all.
func (c *Commands) Check(tokens []string, status proc.Status) (Kind, error) {
	if len(tokens) == 0 {
		return KindUnknown, &UnknownCommandError{Status: status}
	}
	cmd, err := c.find(tokens[0], status)
	if err != nil {
		return KindUnknown, err
	}
	return cmd.kind, nil
}

func (c *Commands) find(cmdstr string, status proc.Status) (command, error) {
	disallowed := false
	for _, v := range c.cmds {
		if !v.match(cmdstr) {
			continue
		}
		if v.statuses.allows(status) {
			return v, nil
		}
		disallowed = true
	}
	return command{}, &UnknownCommandError{Status: status, Token: cmdstr, Disallowed: disallowed}
}

// Call executes the command named by tokens[0] with the remaining tokens
// as arguments.
func (c *Commands) Call(t *Term, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	cmd, err := c.find(tokens[0], t.sess.Status())
	if err != nil {
		return err
	}
	args := tokens[1:]
	if len(args) < cmd.minArgs {
		return &InsufficientArgumentsError{Command: cmd.aliases[0]}
	}
	return cmd.cmdFn(t, args)
}

// Merge takes aliases defined in the config struct and merges them with the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

// Aliases returns every name a command can be invoked by.
func (c *Commands) Aliases() []string {
	var r []string
	for _, cmd := range c.cmds {
		r = append(r, cmd.aliases...)
	}
	return r
}

func (c *Commands) help(t *Term, args []string) error {
	if len(args) > 0 {
		for _, cmd := range c.cmds {
			if cmd.match(args[0]) {
				fmt.Fprintln(t.stdout, cmd.helpMsg)
				return nil
			}
		}
		return &UnknownCommandError{Status: t.sess.Status(), Token: args[0]}
	}
	for _, cmd := range c.cmds {
		fmt.Fprintln(t.stdout, cmd.helpMsg)
	}
	return nil
}

// ExitRequestError is returned when the user
// exits sdb.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

func exitCommand(t *Term, args []string) error {
	return ExitRequestError{}
}

// InsufficientArgumentsError is returned when a command is given fewer
// arguments than it needs.
type InsufficientArgumentsError struct {
	Command string
}

func (iae *InsufficientArgumentsError) Error() string {
	return "argument not enough"
}

// UnknownCommandError is returned for input that does not resolve to a
// command allowed in the current status. Disallowed is true if the command
// exists but is not allowed in Status.
type UnknownCommandError struct {
	Status     proc.Status
	Token      string
	Disallowed bool
}

func (uce *UnknownCommandError) Error() string {
	return fmt.Sprintf("status: %s, '%s' not allow", uce.Status, uce.Token)
}

// invalidArgumentError is returned for arguments that do not parse.
type invalidArgumentError struct {
	what, arg string
}

func (iae *invalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s '%s'", iae.what, iae.arg)
}

func parseAddress(s string) (uint64, error) {
	h := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	addr, err := strconv.ParseUint(h, 16, 64)
	if err != nil || h == "" {
		return 0, &invalidArgumentError{what: "address", arg: s}
	}
	return addr, nil
}

func breakpoint(t *Term, args []string) error {
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	err = t.sess.AddBreakpoint(addr)
	var dbe *proc.DuplicateBreakpointError
	if errors.As(err, &dbe) {
		fmt.Fprintln(t.stdout, "breakpoint already exist")
		return nil
	}
	return err
}

func clearBreakpoint(t *Term, args []string) error {
	index, err := strconv.Atoi(args[0])
	if err != nil {
		return &invalidArgumentError{what: "breakpoint id", arg: args[0]}
	}
	err = t.sess.DeleteBreakpoint(index)
	var bnf *proc.BreakpointNotFoundError
	if errors.As(err, &bnf) {
		fmt.Fprintln(t.stdout, "breakpoint not exist")
		return nil
	}
	return err
}

func breakpoints(t *Term, args []string) error {
	bps := t.sess.Breakpoints()
	if len(bps) == 0 {
		fmt.Fprintln(t.stdout, "no break point")
		return nil
	}
	for i, bp := range bps {
		fmt.Fprintf(t.stdout, "%d: %x\n", i, bp.Addr)
	}
	return nil
}

func cont(t *Term, args []string) error {
	st, err := t.sess.Cont()
	if err != nil {
		return err
	}
	t.printStop(st)
	return nil
}

func step(t *Term, args []string) error {
	st, err := t.sess.SingleStep()
	if err != nil {
		return err
	}
	t.printStop(st)
	return nil
}

func start(t *Term, args []string) error {
	if err := t.sess.Start(); err != nil {
		return err
	}
	t.banner("** pid %d", t.sess.Pid())
	return nil
}

func run(t *Term, args []string) error {
	if t.sess.Status() == proc.StatusRunning {
		t.banner("** program %s is already running.", t.sess.Path())
	} else if err := start(t, nil); err != nil {
		return err
	}
	return cont(t, nil)
}

func load(t *Term, args []string) error {
	if err := t.sess.Load(args[0], args[1:]); err != nil {
		return err
	}
	t.printLoaded()
	return nil
}

func disassemble(t *Term, args []string) error {
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	count := t.conf.GetDisassembleCount()
	if len(args) > 1 {
		if count, err = strconv.Atoi(args[1]); err != nil {
			return &invalidArgumentError{what: "count", arg: args[1]}
		}
	}
	insts := t.sess.Disassemble(addr, count)
	if len(insts) == 0 {
		fmt.Fprintln(t.stdout, "** the address is out of the range of the text segment")
		return nil
	}
	for _, inst := range insts {
		proc.FormatInstruction(t.stdout, inst)
	}
	return nil
}

func examineMemory(t *Term, args []string) error {
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	length := t.conf.GetDumpLength()
	if len(args) > 1 {
		if length, err = strconv.Atoi(args[1]); err != nil || length <= 0 || length > proc.MaxReadLength {
			return &invalidArgumentError{what: "length", arg: args[1]}
		}
	}
	data, err := t.sess.ReadMemory(addr, length)
	if err != nil {
		return err
	}
	proc.FormatDump(t.stdout, addr, data)
	return nil
}

func getRegister(t *Term, args []string) error {
	v, err := t.sess.GetRegister(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "%s = %d (0x%x)\n", args[0], v, v)
	return nil
}

func setRegister(t *Term, args []string) error {
	v, err := proc.ParseRegisterValue(args[1])
	if err != nil {
		return &invalidArgumentError{what: "value", arg: args[1]}
	}
	return t.sess.SetRegister(args[0], v)
}

func registers(t *Term, args []string) error {
	regs, err := t.sess.Registers()
	if err != nil {
		return err
	}
	regs.Format(t.stdout)
	return nil
}

func vmmap(t *Term, args []string) error {
	regions, err := t.sess.MemoryMap()
	if err != nil {
		return err
	}
	for _, r := range regions {
		fmt.Fprintln(t.stdout, r.String())
	}
	return nil
}
