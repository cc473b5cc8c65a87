package flagparse

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulschiretz/recall/pkg/buildinfo"
)

// cliFlags holds pointers to all possible command-line flags.
// A nil pointer means the flag is not registered for the current command.
type cliFlags struct {
	// Global
	LogLevel *string
	DryRun   *bool

	// Backup
	Profile         *string
	CheckContent    *bool
	Workers         *int
	Snapshot        *bool
	Progress        *time.Duration
	BandwidthLimit  *string
	Manifest        *string
	PreBackupHooks  *string
	PostBackupHooks *string
	Config          *string
	Exclude         *listValue

	// Prune
	Keep *int

	// Profile add
	Name        *string
	Source      *string
	Destination *string
}

// listValue is a repeatable flag whose every occurrence may itself be a
// comma separated list.
type listValue struct {
	items []string
}

func (l *listValue) String() string {
	if l == nil {
		return ""
	}
	return strings.Join(l.items, ",")
}

func (l *listValue) Set(s string) error {
	l.items = append(l.items, ParseExcludeList(s)...)
	return nil
}

func registerGlobalFlags(fs *flag.FlagSet, f *cliFlags) {
	f.LogLevel = fs.String("log-level", "info", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
}

func registerBackupFlags(fs *flag.FlagSet, f *cliFlags) {
	f.DryRun = fs.Bool("dry-run", false, "Show what would be done without making any changes.")
	f.Profile = fs.String("profile", "", "Use the source, destination and options of a saved profile.")
	f.CheckContent = fs.Bool("check-content", false, "Compare file contents by hash when size and modification time match.")
	f.Workers = fs.Int("workers", 4, "Number of worker goroutines that copy and link files.")
	f.Snapshot = fs.Bool("snapshot", false, "Back up from a volume shadow copy (Windows only).")
	fs.BoolVar(f.Snapshot, "vss", false, "Alias for -snapshot.")
	f.Progress = fs.Duration("progress", 0, "Log progress at this interval, e.g. '10s' (0 disables).")
	f.BandwidthLimit = fs.String("bwlimit", "", "Limit copy throughput per second, e.g. '10MB' or '512KiB'.")
	f.Manifest = fs.String("manifest", "zstd", "Manifest compression: 'zstd', 'gzip', or 'none'.")
	f.PreBackupHooks = fs.String("pre-backup-hooks", "", "Comma-separated list of commands to run before the backup.")
	f.PostBackupHooks = fs.String("post-backup-hooks", "", "Comma-separated list of commands to run after the backup.")
	f.Config = fs.String("config", "", "Path of the profile store (default: XDG config dir).")
	f.Exclude = &listValue{}
	fs.Var(f.Exclude, "exclude", "Glob pattern to exclude; repeatable and comma-separated.")
}

func registerPruneFlags(fs *flag.FlagSet, f *cliFlags) {
	f.DryRun = fs.Bool("dry-run", false, "Show what would be deleted without deleting.")
	f.Keep = fs.Int("keep", 5, "Number of newest backups to keep.")
	f.Workers = fs.Int("workers", 4, "Number of worker goroutines that delete backups.")
}

func registerProfileFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Config = fs.String("config", "", "Path of the profile store (default: XDG config dir).")
	f.Name = fs.String("name", "", "Profile name (add).")
	f.Source = fs.String("source", "", "Source directory (add).")
	f.Destination = fs.String("destination", "", "Destination directory (add).")
	f.CheckContent = fs.Bool("check-content", false, "Enable content checking for this profile (add).")
	f.Workers = fs.Int("workers", 0, "Worker count for this profile, 0 for the default (add).")
	f.PreBackupHooks = fs.String("pre-backup-hooks", "", "Comma-separated list of commands to run before the backup (add).")
	f.PostBackupHooks = fs.String("post-backup-hooks", "", "Comma-separated list of commands to run after the backup (add).")
	f.Exclude = &listValue{}
	fs.Var(f.Exclude, "exclude", "Glob pattern to exclude; repeatable and comma-separated (add).")
}

// Parse parses the provided arguments (usually os.Args[1:]) and returns
// the command and a map of the values the user supplied. Positional
// arguments land in the map under "source", "destination", "action" and
// "name" depending on the command. Flags and positionals may be mixed.
func Parse(args []string) (Command, map[string]any, error) {
	if len(args) == 0 {
		printTopLevelUsage(flag.NewFlagSet("main", flag.ContinueOnError))
		return None, nil, nil
	}

	cmdStr := strings.ToLower(args[0])
	switch cmdStr {
	case "help", "-h", "-help", "--help":
		printTopLevelUsage(flag.NewFlagSet("main", flag.ContinueOnError))
		return None, nil, nil
	case "-version", "--version":
		return Version, nil, nil
	}

	command, err := ParseCommand(cmdStr)
	if err != nil {
		return None, nil, err
	}
	if command == Version {
		return Version, nil, nil
	}

	f := &cliFlags{}
	fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
	registerGlobalFlags(fs, f)

	var usage, desc string
	switch command {
	case Backup:
		registerBackupFlags(fs, f)
		usage, desc = "[flags] SOURCE DESTINATION", "Create a new backup generation of SOURCE under DESTINATION."
	case Prune:
		registerPruneFlags(fs, f)
		usage, desc = "[flags] DESTINATION", "Delete the oldest backups of a project, keeping the newest."
	case List:
		usage, desc = "DESTINATION", "List the backups of a project."
	case Profile:
		registerProfileFlags(fs, f)
		usage, desc = "list|show NAME|add [flags]|remove NAME", "Manage saved backup profiles."
	}
	fs.Usage = func() {
		printSubcommandUsage(command, usage, desc, fs)
	}

	positionals, err := parseInterleaved(fs, args[1:])
	if err != nil {
		return command, nil, err
	}

	flagMap := flagsToMap(fs, f)
	if err := bindPositionals(command, positionals, flagMap); err != nil {
		return command, nil, err
	}
	return command, flagMap, nil
}

// parseInterleaved lets positionals appear between flags, which the flag
// package on its own stops at. A bare "--" ends flag parsing.
func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	var positionals []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return positionals, nil
		}
		// fs.Parse consumed a "--" terminator if args contained one
		// right before rest.
		if consumed := len(args) - len(rest); consumed > 0 && args[consumed-1] == "--" {
			return append(positionals, rest...), nil
		}
		positionals = append(positionals, rest[0])
		args = rest[1:]
	}
}

func bindPositionals(command Command, positionals []string, flagMap map[string]any) error {
	switch command {
	case Backup:
		switch len(positionals) {
		case 0:
		case 2:
			flagMap["source"] = positionals[0]
			flagMap["destination"] = positionals[1]
		default:
			return fmt.Errorf("backup expects SOURCE and DESTINATION, got %d argument(s)", len(positionals))
		}
	case Prune, List:
		if len(positionals) != 1 {
			return fmt.Errorf("%s expects exactly one DESTINATION, got %d argument(s)", command, len(positionals))
		}
		flagMap["destination"] = positionals[0]
	case Profile:
		if len(positionals) == 0 {
			return fmt.Errorf("profile expects an action: 'list', 'show', 'add', or 'remove'")
		}
		action, err := parseProfileAction(positionals[0])
		if err != nil {
			return err
		}
		flagMap["action"] = action
		switch {
		case len(positionals) == 2:
			flagMap["name"] = positionals[1]
		case len(positionals) > 2:
			return fmt.Errorf("too many arguments for profile %s", action)
		}
		if _, ok := flagMap["name"]; !ok && (action == ProfileShow || action == ProfileRemove || action == ProfileAdd) {
			return fmt.Errorf("profile %s requires a profile NAME", action)
		}
	}
	return nil
}

func flagsToMap(fs *flag.FlagSet, f *cliFlags) map[string]any {
	usedFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { usedFlags[f.Name] = true })
	// -vss is an alias and lands under the canonical name.
	if usedFlags["vss"] {
		usedFlags["snapshot"] = true
	}

	flagMap := make(map[string]any)

	addIfUsed(flagMap, usedFlags, "log-level", f.LogLevel)
	addIfUsed(flagMap, usedFlags, "dry-run", f.DryRun)

	addIfUsed(flagMap, usedFlags, "profile", f.Profile)
	addIfUsed(flagMap, usedFlags, "check-content", f.CheckContent)
	addIfUsed(flagMap, usedFlags, "workers", f.Workers)
	addIfUsed(flagMap, usedFlags, "snapshot", f.Snapshot)
	addIfUsed(flagMap, usedFlags, "progress", f.Progress)
	addIfUsed(flagMap, usedFlags, "bwlimit", f.BandwidthLimit)
	addIfUsed(flagMap, usedFlags, "manifest", f.Manifest)
	addIfUsed(flagMap, usedFlags, "config", f.Config)

	addIfUsed(flagMap, usedFlags, "keep", f.Keep)

	addIfUsed(flagMap, usedFlags, "name", f.Name)
	addIfUsed(flagMap, usedFlags, "source", f.Source)
	addIfUsed(flagMap, usedFlags, "destination", f.Destination)

	addParsedIfUsed(flagMap, usedFlags, "pre-backup-hooks", f.PreBackupHooks, ParseCmdList)
	addParsedIfUsed(flagMap, usedFlags, "post-backup-hooks", f.PostBackupHooks, ParseCmdList)
	if f.Exclude != nil && usedFlags["exclude"] {
		flagMap["exclude"] = f.Exclude.items
	}
	return flagMap
}

// addIfUsed adds the value of ptr to flagMap if ptr is not nil and the flag was set.
func addIfUsed[T any](flagMap map[string]any, usedFlags map[string]bool, name string, ptr *T) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = *ptr
	}
}

// addParsedIfUsed adds the parsed value of ptr to flagMap if ptr is not nil and the flag was set.
func addParsedIfUsed(flagMap map[string]any, usedFlags map[string]bool, name string, ptr *string, parser func(string) []string) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = parser(*ptr)
	}
}

func printTopLevelUsage(fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	out := fs.Output()
	fmt.Fprintf(out, "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(out, "Incremental backups with hardlink deduplication.\n\n")
	fmt.Fprintf(out, "Usage: %s <command> [flags]\n\n", execName)
	fmt.Fprintf(out, "Commands:\n")
	fmt.Fprintf(out, "  backup      Create a new backup generation\n")
	fmt.Fprintf(out, "  prune       Delete old backup generations\n")
	fmt.Fprintf(out, "  list        List backup generations\n")
	fmt.Fprintf(out, "  profile     Manage saved backup profiles\n")
	fmt.Fprintf(out, "  version     Print the application version\n")
	fmt.Fprintf(out, "\nRun '%s <command> -help' for more information on a command.\n", execName)
}

func printSubcommandUsage(command Command, usage, desc string, fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	out := fs.Output()
	fmt.Fprintf(out, "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(out, "Incremental backups with hardlink deduplication.\n\n")
	fmt.Fprintf(out, "Usage: %s %s %s\n\n", execName, command, usage)
	fmt.Fprintf(out, "%s\n\n", desc)
	fmt.Fprintf(out, "Flags:\n")
	fs.PrintDefaults()
}

// ParseCmdList parses a comma-separated list of shell-like commands.
// It preserves quotes and handles backslash escapes so they can be interpreted by the shell.
func ParseCmdList(s string) []string {
	return parseListInternal(s, true, true)
}

// ParseExcludeList parses a comma-separated list of patterns. Quotes only
// group items containing commas or spaces and are removed. Backslashes are
// literal for Windows path compatibility.
func ParseExcludeList(s string) []string {
	return parseListInternal(s, false, false)
}

// parseListInternal splits s on commas outside of single or double quotes.
func parseListInternal(s string, keepQuotes, handleEscapes bool) []string {
	var list []string
	var current strings.Builder
	var quoteChar rune

	appendItem := func() {
		if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
			list = append(list, trimmed)
		}
		current.Reset()
	}

	var isEscaped bool
	for _, r := range s {
		if isEscaped {
			current.WriteRune(r)
			isEscaped = false
			continue
		}

		switch {
		case r == '\\' && handleEscapes:
			isEscaped = true
			// The shell interprets the escape, so keep it.
			current.WriteRune(r)
		case r == '\'' || r == '"':
			switch quoteChar {
			case 0:
				quoteChar = r
				if keepQuotes {
					current.WriteRune(r)
				}
			case r:
				quoteChar = 0
				if keepQuotes {
					current.WriteRune(r)
				}
			default:
				current.WriteRune(r)
			}
		case r == ',' && quoteChar == 0:
			appendItem()
		default:
			current.WriteRune(r)
		}
	}
	appendItem()
	return list
}
