// Package deps reports the availability of the external binaries the
// renderer shells out to. It answers "is it installed", not "is it the
// right binary"; the integrity gate owns the latter.
package deps

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"albumvideo/internal/config"
)

// Requirement defines an external dependency the renderer relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Available   bool
	Detail      string
}

// Requirements derives the dependency list from the configuration.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{Name: "ffmpeg", Command: cfg.FFmpegBinary(), Description: "external encoder, renders each track"},
		{Name: "ffprobe", Command: cfg.FFprobeBinary(), Description: "media prober, detects audio codecs"},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		command := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     command,
			Description: strings.TrimSpace(req.Description),
		}
		switch {
		case command == "":
			status.Detail = "command not configured"
		case strings.ContainsRune(command, filepath.Separator):
			if _, err := exec.LookPath(command); err != nil {
				status.Detail = fmt.Sprintf("binary %q not executable", command)
			} else {
				status.Available = true
			}
		default:
			if _, err := exec.LookPath(command); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", command)
			} else {
				status.Available = true
			}
		}
		results = append(results, status)
	}
	return results
}
