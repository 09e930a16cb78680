// Package buildinfo carries release metadata stamped by the linker:
//
//	go build -ldflags "-X github.com/m3rciful/vocalbot/core/buildinfo.Version=v0.3.0 \
//	  -X github.com/m3rciful/vocalbot/core/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/m3rciful/vocalbot/core/buildinfo.Date=$(date -u +%FT%TZ)" ./cmd/vocalbot
package buildinfo

// Unstamped builds report "dev" from "local".
var (
	Version = "dev"
	Commit  = "local"
	// Date is RFC 3339 in UTC; empty for unstamped builds.
	Date = ""
)
