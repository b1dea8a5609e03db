package main

import "github.com/neilberkman/rentcheck/internal/interface/cli"

// Set with -ldflags "-X main.Version=..." on release builds
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

func main() {
	cli.SetVersion(Version, Commit, Date)
	cli.Execute()
}
