package client

import (
	"fmt"
	"os"
	"path/filepath"
)

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

type PathKind int

const (
	PathFile PathKind = iota
	PathDir
)

// SharePath is one command-line path to share.
type SharePath struct {
	FullPath string
	Kind     PathKind
}

// ParseArgs cleans and stats every path. Each one must exist.
func ParseArgs(args []string) ([]SharePath, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<paths>", Cause: "nothing to share"}
	}

	out := make([]SharePath, 0, len(args))
	for _, raw := range args {
		p := filepath.Clean(raw)
		info, err := os.Stat(p)
		if err != nil {
			return nil, &ValidationError{Arg: raw, Cause: "not found or not accessible"}
		}

		kind := PathFile
		if info.IsDir() {
			kind = PathDir
		}
		out = append(out, SharePath{FullPath: p, Kind: kind})
	}

	return out, nil
}
