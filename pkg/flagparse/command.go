package flagparse

import (
	"fmt"

	"github.com/paulschiretz/recall/pkg/util"
)

// Command is the subcommand to execute.
type Command int

const (
	None Command = iota
	Backup
	Prune
	List
	Profile
	Version
)

var commandToString = map[Command]string{
	None:    "none",
	Backup:  "backup",
	Prune:   "prune",
	List:    "list",
	Profile: "profile",
	Version: "version",
}

var stringToCommand = util.InvertMap(commandToString)

func (c Command) String() string {
	if str, ok := commandToString[c]; ok {
		return str
	}
	return fmt.Sprintf("unknown_command(%d)", c)
}

func ParseCommand(s string) (Command, error) {
	if command, ok := stringToCommand[s]; ok && command != None {
		return command, nil
	}
	return None, fmt.Errorf("invalid command: %q. Must be 'backup', 'prune', 'list', 'profile', or 'version'", s)
}

// ProfileAction is the verb of the profile command.
type ProfileAction string

const (
	ProfileList   ProfileAction = "list"
	ProfileShow   ProfileAction = "show"
	ProfileAdd    ProfileAction = "add"
	ProfileRemove ProfileAction = "remove"
)

func parseProfileAction(s string) (ProfileAction, error) {
	switch a := ProfileAction(s); a {
	case ProfileList, ProfileShow, ProfileAdd, ProfileRemove:
		return a, nil
	}
	return "", fmt.Errorf("invalid profile action: %q. Must be 'list', 'show', 'add', or 'remove'", s)
}
