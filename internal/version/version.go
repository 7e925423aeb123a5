package version

import "fmt"

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

func String() string {
	return fmt.Sprintf("pageoverlay version=%s commit=%s build_time=%s", Version, Commit, BuildTime)
}

// UserAgent is sent with every page download.
func UserAgent() string {
	return "PageOverlay/" + Version
}
