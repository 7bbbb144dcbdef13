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

type packageInfo struct {
	ImportPath string
	Imports    []string
}

// layer forbids a set of import prefixes to the packages under a prefix.
type layer struct {
	packages  string
	forbidden []string
}

// The board, rules and player packages stay pure; rooms never see the
// transport; the client mirror never reaches into the server.
var layers = []layer{
	{packages: "blockroom/internal/board", forbidden: []string{"blockroom/internal/rules", "blockroom/internal/player", "blockroom/internal/room", "blockroom/internal/net", "blockroom/logging", "github.com/"}},
	{packages: "blockroom/internal/rules", forbidden: []string{"blockroom/internal/player", "blockroom/internal/room", "blockroom/internal/net", "blockroom/logging", "github.com/"}},
	{packages: "blockroom/internal/player", forbidden: []string{"blockroom/internal/room", "blockroom/internal/net", "blockroom/logging", "github.com/"}},
	{packages: "blockroom/internal/room", forbidden: []string{"blockroom/internal/net/ws", "github.com/gorilla/websocket"}},
	{packages: "blockroom/internal/mirror", forbidden: []string{"blockroom/internal/room", "blockroom/internal/net/ws", "github.com/gorilla/websocket"}},
}

func main() {
	cmd := exec.Command("go", "list", "-json", "./...")
	cmd.Env = os.Environ()
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Stderr.Write(exitErr.Stderr)
		}
		fmt.Fprintf(os.Stderr, "depscheck: failed to list packages: %v\n", err)
		os.Exit(1)
	}

	packages, err := decodePackages(bytes.NewReader(output))
	if err != nil {
		fmt.Fprintf(os.Stderr, "depscheck: failed to decode package info: %v\n", err)
		os.Exit(1)
	}

	if found := violations(packages); len(found) > 0 {
		fmt.Fprintln(os.Stderr, "depscheck: found forbidden imports:")
		for _, violation := range found {
			fmt.Fprintf(os.Stderr, "  %s\n", violation)
		}
		os.Exit(1)
	}
}

func decodePackages(r io.Reader) ([]packageInfo, error) {
	decoder := json.NewDecoder(r)
	var packages []packageInfo
	for {
		var pkg packageInfo
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				return packages, nil
			}
			return nil, err
		}
		packages = append(packages, pkg)
	}
}

func violations(packages []packageInfo) []string {
	var found []string
	for _, pkg := range packages {
		for _, l := range layers {
			if !within(pkg.ImportPath, l.packages) {
				continue
			}
			for _, imp := range pkg.Imports {
				for _, prefix := range l.forbidden {
					if strings.HasPrefix(imp, prefix) {
						found = append(found, fmt.Sprintf("%s -> %s", pkg.ImportPath, imp))
						break
					}
				}
			}
		}
	}
	sort.Strings(found)
	return found
}

func within(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
