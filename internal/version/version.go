package version

import (
	"fmt"
	"runtime"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// BuildInfo описывает сборку сервиса.
type BuildInfo struct {
	Version   string
	Commit    string
	Date      string
	GoVersion string
}

// Build возвращает информацию о сборке; поля заполняются через -ldflags.
func Build() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		Date:      date,
		GoVersion: runtime.Version(),
	}
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s go=%s", b.Version, b.Commit, b.Date, b.GoVersion)
}
