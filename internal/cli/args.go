package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"resourcehub/internal/server/convert"
	"resourcehub/internal/server/database"
)

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

type CommandKind int

const (
	CmdDoctor CommandKind = iota
	CmdConvert
	CmdToken
	CmdSweep
)

// Command is a parsed hubctl invocation.
type Command struct {
	Kind CommandKind

	// convert
	Source     string
	Direction  convert.Direction
	StagingDir string

	// token
	UserID int64
	Admin  bool
}

const Usage = `usage:
  hubctl doctor
  hubctl convert <file> <pdf-to-docx|docx-to-pdf> [staging-dir]
  hubctl token <user-id> [--admin]
  hubctl sweep`

func ParseArgs(args []string) (*Command, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<command>", Cause: "no command provided"}
	}

	name, rest := args[0], args[1:]
	switch name {
	case "doctor":
		if len(rest) != 0 {
			return nil, &ValidationError{Arg: rest[0], Cause: "doctor takes no arguments"}
		}
		return &Command{Kind: CmdDoctor}, nil
	case "sweep":
		if len(rest) != 0 {
			return nil, &ValidationError{Arg: rest[0], Cause: "sweep takes no arguments"}
		}
		return &Command{Kind: CmdSweep}, nil
	case "convert":
		return parseConvert(rest)
	case "token":
		return parseToken(rest)
	}
	return nil, &ValidationError{Arg: name, Cause: "unknown command"}
}

func parseConvert(args []string) (*Command, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, &ValidationError{Arg: "convert", Cause: "expected <file> <direction> [staging-dir]"}
	}

	src := filepath.Clean(args[0])
	info, err := os.Stat(src)
	if err != nil {
		return nil, &ValidationError{Arg: args[0], Cause: "not found or not accessible"}
	}
	if !info.Mode().IsRegular() {
		return nil, &ValidationError{Arg: args[0], Cause: "not a regular file"}
	}

	dir, err := convert.ParseDirection(args[1])
	if err != nil {
		return nil, &ValidationError{Arg: args[1], Cause: "direction must be pdf-to-docx or docx-to-pdf"}
	}
	kind, ok := database.ParseMediaKind(filepath.Ext(src))
	if !ok || kind != dir.From() {
		return nil, &ValidationError{Arg: args[0], Cause: fmt.Sprintf("%s needs a .%s file", dir, dir.From().Extension())}
	}

	cmd := &Command{Kind: CmdConvert, Source: src, Direction: dir}
	if len(args) == 3 {
		cmd.StagingDir = filepath.Clean(args[2])
	}
	return cmd, nil
}

func parseToken(args []string) (*Command, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, &ValidationError{Arg: "token", Cause: "expected <user-id> [--admin]"}
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return nil, &ValidationError{Arg: args[0], Cause: "user id must be a positive integer"}
	}

	cmd := &Command{Kind: CmdToken, UserID: id}
	if len(args) == 2 {
		if args[1] != "--admin" {
			return nil, &ValidationError{Arg: args[1], Cause: "unknown flag"}
		}
		cmd.Admin = true
	}
	return cmd, nil
}
