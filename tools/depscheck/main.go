package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

const modulePath = "arena/server"

type packageInfo struct {
	ImportPath string
	Imports    []string
}

// layerRule forbids packages matched by pattern from importing anything
// under the listed prefixes.
type layerRule struct {
	pattern   string
	forbidden []string
}

var rules = []layerRule{
	// Transports reach players only through the hub.
	{pattern: "./internal/net/...", forbidden: []string{
		modulePath + "/internal/registry",
		modulePath + "/internal/sim",
	}},
	// Simulation state stays free of transport and hub code.
	{pattern: "./internal/world/...", forbidden: []string{
		modulePath + "/internal/net",
		modulePath + "/internal/registry",
		modulePath + "/internal/app",
	}},
	{pattern: "./internal/registry/...", forbidden: []string{
		modulePath + "/internal/net",
		modulePath + "/internal/app",
	}},
}

func main() {
	var violations []string
	for _, rule := range rules {
		pkgs, err := listPackages(rule.pattern)
		if err != nil {
			fmt.Fprintf(os.Stderr, "depscheck: %v\n", err)
			os.Exit(1)
		}
		violations = append(violations, check(pkgs, rule.forbidden)...)
	}

	if len(violations) > 0 {
		sort.Strings(violations)
		fmt.Fprintln(os.Stderr, "depscheck: found forbidden imports:")
		for _, violation := range violations {
			fmt.Fprintf(os.Stderr, "  %s\n", violation)
		}
		os.Exit(1)
	}
}

func listPackages(pattern string) ([]packageInfo, error) {
	cmd := exec.Command("go", "list", "-json", pattern)
	cmd.Env = os.Environ()
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			os.Stderr.Write(exitErr.Stderr)
		}
		return nil, fmt.Errorf("failed to list %s: %w", pattern, err)
	}
	return decodePackages(bytes.NewReader(output))
}

func decodePackages(r io.Reader) ([]packageInfo, error) {
	decoder := json.NewDecoder(r)
	var pkgs []packageInfo
	for {
		var pkg packageInfo
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				return pkgs, nil
			}
			return nil, fmt.Errorf("failed to decode package info: %w", err)
		}
		pkgs = append(pkgs, pkg)
	}
}

func check(pkgs []packageInfo, forbidden []string) []string {
	var violations []string
	for _, pkg := range pkgs {
		for _, imp := range pkg.Imports {
			for _, prefix := range forbidden {
				if imp == prefix || strings.HasPrefix(imp, prefix+"/") {
					violations = append(violations, fmt.Sprintf("%s -> %s", pkg.ImportPath, imp))
				}
			}
		}
	}
	return violations
}
