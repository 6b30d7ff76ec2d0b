package volatility

import (
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// DefaultCandidates are tried in order when looking for Volatility 3.
var DefaultCandidates = []string{
	"vol",
	"volatility3",
	"vol3",
	"python3 -m volatility3",
	"python -m volatility3",
	"vol.py",
}

var versionPattern = regexp.MustCompile(`Volatility 3 Framework [0-9][0-9A-Za-z.\-]*`)

// Installation is a working Volatility 3 command.
type Installation struct {
	Binary  []string
	Version string
}

// Locate probes each candidate with --help and returns the first one that
// runs. ErrNotFound means none did.
func Locate(ctx context.Context, candidates []string) (Installation, error) {
	if len(candidates) == 0 {
		candidates = DefaultCandidates
	}
	for _, c := range candidates {
		argv := strings.Fields(c)
		if len(argv) == 0 {
			continue
		}
		if _, err := exec.LookPath(argv[0]); err != nil {
			continue
		}
		if inst, ok := probe(ctx, argv); ok {
			return inst, nil
		}
	}
	return Installation{}, ErrNotFound
}

func probe(ctx context.Context, argv []string) (Installation, bool) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	args := append(append([]string{}, argv[1:]...), "--help")
	cmd := exec.CommandContext(ctx, argv[0], args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return Installation{}, false
	}
	inst := Installation{Binary: argv, Version: "Volatility 3"}
	if v := versionPattern.Find(out.Bytes()); v != nil {
		inst.Version = string(v)
	}
	return inst, true
}
