package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/AmmannChristian/go-oauthhttp/internal/cli"
)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	os.Exit(cli.Execute(fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH)))
}
