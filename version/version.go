// Package version reports build information for the deploy binary.
package version

import (
	"runtime/debug"
	"sort"
)

const ModulePath = "deploy.evalgo.org"

// Version is set at link time with -ldflags "-X deploy.evalgo.org/version.Version=v1.2.3".
var Version = ""

type DependencyInfo struct {
	Path    string `json:"path"`
	Version string `json:"version"`
	Replace string `json:"replace,omitempty"`
}

// BuildInfo is printed by `deploy version --json`.
type BuildInfo struct {
	GoVersion    string           `json:"goVersion"`
	MainModule   string           `json:"mainModule"`
	MainVersion  string           `json:"mainVersion"`
	Revision     string           `json:"revision,omitempty"`
	Modified     bool             `json:"modified,omitempty"`
	Dependencies []DependencyInfo `json:"dependencies"`
}

func GetBuildInfo() *BuildInfo {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return &BuildInfo{
			GoVersion:    "unknown",
			MainModule:   ModulePath,
			MainVersion:  "unknown",
			Dependencies: []DependencyInfo{},
		}
	}
	return fromDebugInfo(info)
}

func fromDebugInfo(info *debug.BuildInfo) *BuildInfo {
	out := &BuildInfo{
		GoVersion:    info.GoVersion,
		MainModule:   info.Path,
		MainVersion:  mainVersion(info),
		Dependencies: make([]DependencyInfo, 0, len(info.Deps)),
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			out.Revision = setting.Value
		case "vcs.modified":
			out.Modified = setting.Value == "true"
		}
	}
	for _, dep := range info.Deps {
		d := DependencyInfo{Path: dep.Path, Version: dep.Version}
		if dep.Replace != nil {
			d.Replace = dep.Replace.Path + "@" + dep.Replace.Version
		}
		out.Dependencies = append(out.Dependencies, d)
	}
	sort.Slice(out.Dependencies, func(i, j int) bool {
		return out.Dependencies[i].Path < out.Dependencies[j].Path
	})
	return out
}

// GetVersion returns the link time Version when set, otherwise the module
// version, "dev" for local builds.
func GetVersion() string {
	if Version != "" {
		return Version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	return mainVersion(info)
}

func mainVersion(info *debug.BuildInfo) string {
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

// GetDependency returns nil when the binary was not built with modulePath.
func GetDependency(modulePath string) *DependencyInfo {
	for _, dep := range GetBuildInfo().Dependencies {
		if dep.Path == modulePath {
			d := dep
			return &d
		}
	}
	return nil
}
