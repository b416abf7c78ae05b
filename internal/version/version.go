package version

import (
	"fmt"
	"runtime"

	"codeguard/internal/prompt"
)

// Version and Commit are set at build time via ldflags:
//
//	-ldflags "-X codeguard/internal/version.Version=v1.0.0 -X codeguard/internal/version.Commit=abc123"
var (
	Version = "dev"
	Commit  = ""
)

type Info struct {
	Version       string `json:"version"`
	Commit        string `json:"commit,omitempty"`
	PromptVersion string `json:"promptVersion"`
	GoVersion     string `json:"goVersion"`
}

func Get() Info {
	return Info{
		Version:       Version,
		Commit:        Commit,
		PromptVersion: prompt.Version,
		GoVersion:     runtime.Version(),
	}
}

func (i Info) String() string {
	s := "codeguard " + i.Version
	if i.Commit != "" {
		s += fmt.Sprintf(" (%s)", i.Commit)
	}
	return s + fmt.Sprintf(" prompt=%s %s", i.PromptVersion, i.GoVersion)
}
