package buildinfo

// Version holds the application's version string.
// Set at build time: go build -ldflags="-X github.com/paulschiretz/recall/pkg/buildinfo.Version=1.0.0"
var Version = "dev"

// Name is the canonical application name used in logs and usage text.
var Name = "Recall"
