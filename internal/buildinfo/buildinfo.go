// Package buildinfo holds version metadata stamped at link time:
//
//	go build -ldflags "-X subwaylive.org/internal/buildinfo.Version=v1.2.0 ..."
package buildinfo

var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildTime  = "unknown"
)

// ShortCommit returns the abbreviated commit hash.
func ShortCommit() string {
	if len(CommitHash) >= 7 {
		return CommitHash[:7]
	}
	return CommitHash
}
