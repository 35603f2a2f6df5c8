package cmds

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/adkevin3307/sdb/pkg/config"
	"github.com/adkevin3307/sdb/pkg/logflags"
	"github.com/adkevin3307/sdb/pkg/proc"
	"github.com/adkevin3307/sdb/pkg/proc/native"
	"github.com/adkevin3307/sdb/pkg/terminal"
	"github.com/adkevin3307/sdb/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// scriptFile is a file of commands executed instead of reading standard input.
	scriptFile string
	// configFile overrides the default configuration file.
	configFile string
	// tty is used to provide an alternate TTY for the program you wish to debug.
	tty string
)

const sdbCommandLongDesc = `sdb is a simple instruction level debugger for x86-64 ELF programs.

It starts the program under ptrace and lets you set breakpoints on instruction
addresses, step and continue execution, inspect and modify registers, dump
memory, disassemble the text segment and show the memory layout of the child.

If a program is given it is loaded immediately, the remaining arguments are
passed to it:

` + "`sdb -s script.txt ./hello arg1 arg2`"

const logCommandLongDesc = `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:

	debugger	Log session state transitions and breakpoint handling
	ptrace		Log every ptrace request issued to the child
	bininfo		Log ELF loading and disassembly
	terminal	Log commands as they are dispatched

Additionally --log-dest can be used to specify where the logs should be
written. If the argument is a number it will be interpreted as a file
descriptor, otherwise as a file path.`

// New returns an initialized command tree.
func New() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:   "sdb [program [args...]]",
		Short: "sdb is an instruction level debugger for x86-64 ELF programs.",
		Long:  sdbCommandLongDesc,
		Args:  cobra.ArbitraryArgs,
		Run: func(cmd *cobra.Command, args []string) {
			var path string
			if len(args) > 0 {
				path = args[0]
				args = args[1:]
			}
			os.Exit(execute(0, path, args))
		},
	}
	rootCommand.Flags().SetInterspersed(false)
	rootCommand.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCommand.PersistentFlags().StringVarP(&scriptFile, "script", "s", "", "Read commands from the given file instead of standard input.")
	rootCommand.PersistentFlags().StringVar(&configFile, "config", "", "Path of the configuration file (default $HOME/.sdb/config.yml).")
	rootCommand.PersistentFlags().StringVar(&tty, "tty", "", "TTY to use for the target program.")
	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debugger logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'sdb help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'sdb help log').")

	// 'attach' subcommand.
	attachCommand := &cobra.Command{
		Use:   "attach pid [executable]",
		Short: "Attach to running process and begin debugging.",
		Long: `Attach to an already running process and begin debugging it.

The executable is read from /proc/<pid>/exe unless it is given explicitly.
The process is detached, not killed, when sdb exits.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePid(args[0])
			if err != nil {
				return err
			}
			var path string
			if len(args) > 1 {
				path = args[1]
			}
			os.Exit(execute(pid, path, nil))
			return nil
		},
	}
	rootCommand.AddCommand(attachCommand)

	// 'version' subcommand.
	var buildInfo bool
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.Current())
			if buildInfo {
				return version.WriteBuildInfo(cmd.OutOrStdout())
			}
			return nil
		},
	}
	versionCommand.Flags().BoolVarP(&buildInfo, "verbose", "v", false, "print build info")
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long:  logCommandLongDesc,
	})

	return rootCommand
}

func parsePid(s string) (int, error) {
	pid, err := strconv.Atoi(s)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid: %s", s)
	}
	return pid, nil
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadConfigFile(configFile)
	}
	return config.LoadConfig()
}

func execute(attachPid int, path string, args []string) int {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer logflags.Close()

	conf, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		if configFile != "" {
			return 1
		}
	}

	sess := proc.NewSession(&native.Backend{TTY: tty})
	term := terminal.New(sess, conf)
	term.ScriptFile = scriptFile

	switch {
	case attachPid != 0:
		if err := term.AttachProgram(attachPid, path); err != nil {
			return 1
		}
	case path != "":
		if err := term.LoadProgram(path, args); err != nil {
			return 1
		}
	}

	status, err := term.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return status
}
