// Package version carries build metadata for the Cadence backend.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time via -ldflags. When Commit is left empty it falls
// back to the VCS stamp the Go toolchain embeds in the binary.
var (
	Name    = "Cadence"
	Version = "0.1.0"
	Commit  = ""
	Date    = ""
)

// Info is the version payload served on /api/v1/version.
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Date      string `json:"date,omitempty"`
	GoVersion string `json:"goVersion"`
}

// GetInfo assembles the running build's metadata.
func GetInfo() Info {
	commit := Commit
	if commit == "" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" {
					commit = s.Value
					break
				}
			}
		}
	}
	return Info{
		Name:      Name,
		Version:   Version,
		Commit:    commit,
		Date:      Date,
		GoVersion: runtime.Version(),
	}
}

// String renders a one-line banner, e.g. "Cadence v0.1.0 (ab12cd3)".
func (i Info) String() string {
	s := fmt.Sprintf("%s v%s", i.Name, i.Version)
	if i.Commit != "" {
		s += fmt.Sprintf(" (%.7s)", i.Commit)
	}
	if i.Date != "" {
		s += " built " + i.Date
	}
	return s
}
