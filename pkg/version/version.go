// Package version reports the build's git commit.
//
// Resolution order: -ldflags override, then VCS info from debug.BuildInfo,
// then "dev".
package version

import "runtime/debug"

// AppName is used in version strings and the MCP client implementation name.
const AppName = "sherlog"

// gitCommitOverride is set via -ldflags for builds without .git.
var gitCommitOverride string

// GitCommit is the short (8 char) commit hash, or "dev".
var GitCommit = resolveCommit(gitCommitOverride, readBuildInfo)

func readBuildInfo() (*debug.BuildInfo, bool) {
	return debug.ReadBuildInfo()
}

func resolveCommit(override string, info func() (*debug.BuildInfo, bool)) string {
	if override != "" {
		return shorten(override)
	}
	bi, ok := info()
	if !ok {
		return "dev"
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return shorten(s.Value)
		}
	}
	return "dev"
}

func shorten(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "sherlog/<commit>" for user-agent strings and logs.
func Full() string {
	return AppName + "/" + GitCommit
}
