package store

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
)

// Scheme identifies the backend a Location refers to.
type Scheme string

const (
	SchemeLocal Scheme = "local"
	SchemeS3    Scheme = "s3"
	SchemeSFTP  Scheme = "sftp"
)

// Location represents a parsed source or destination argument.
type Location struct {
	Scheme Scheme
	Bucket string // bucket name (s3) or root directory (local, sftp)
	Prefix string // key prefix inside the bucket
	Host   string
	User   string
	Port   int
}

// String returns a human-readable representation.
func (l Location) String() string {
	switch l.Scheme {
	case SchemeS3:
		if l.Prefix == "" {
			return "s3://" + l.Bucket
		}
		return fmt.Sprintf("s3://%s/%s", l.Bucket, l.Prefix)
	case SchemeSFTP:
		host := l.Host
		if l.Port != 0 {
			host = fmt.Sprintf("%s:%d", l.Host, l.Port)
		}
		if l.User != "" {
			host = l.User + "@" + host
		}
		return fmt.Sprintf("sftp://%s%s", host, joinKey(l.Bucket, l.Prefix))
	default:
		return joinKey(l.Bucket, l.Prefix)
	}
}

// ParseLocation parses a CLI argument into a Location.
//
// Supported formats:
//   - s3://bucket                     → whole bucket
//   - s3://bucket/some/prefix/        → keys under prefix
//   - sftp://[user@]host[:port]/path  → SFTP remote
//   - user@host:path, host:path       → SFTP remote (port 22)
//   - /absolute/path, relative/path   → local directory
//
// Local and SFTP locations carry no prefix: the whole directory is the
// bucket. A path containing ":" is only treated as remote if the part
// before the colon contains no path separators.
func ParseLocation(arg string) (Location, error) {
	switch {
	case strings.HasPrefix(arg, "s3://"):
		return parseS3URL(arg)
	case strings.HasPrefix(arg, "sftp://"):
		return parseSFTPURL(arg)
	}

	if arg == "" {
		return Location{}, fmt.Errorf("empty location")
	}

	if filepath.IsAbs(arg) || strings.HasPrefix(arg, "./") || strings.HasPrefix(arg, "../") {
		return Location{Scheme: SchemeLocal, Bucket: arg}, nil
	}

	colonIdx := strings.IndexByte(arg, ':')
	if colonIdx <= 0 {
		return Location{Scheme: SchemeLocal, Bucket: arg}, nil
	}

	hostPart := arg[:colonIdx]
	pathPart := arg[colonIdx+1:]
	if strings.ContainsRune(hostPart, '/') || strings.ContainsRune(hostPart, filepath.Separator) {
		return Location{Scheme: SchemeLocal, Bucket: arg}, nil
	}

	var user, host string
	if atIdx := strings.LastIndexByte(hostPart, '@'); atIdx >= 0 {
		user = hostPart[:atIdx]
		host = hostPart[atIdx+1:]
	} else {
		host = hostPart
	}
	if host == "" {
		return Location{Scheme: SchemeLocal, Bucket: arg}, nil
	}
	if pathPart == "" {
		pathPart = "."
	}

	return Location{Scheme: SchemeSFTP, Host: host, User: user, Bucket: pathPart}, nil
}

func parseS3URL(raw string) (Location, error) {
	rest := strings.TrimPrefix(raw, "s3://")
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("s3 location %q has no bucket", raw)
	}
	return Location{Scheme: SchemeS3, Bucket: bucket, Prefix: prefix}, nil
}

func parseSFTPURL(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parse %q: %w", raw, err)
	}
	host := u.Hostname()
	if host == "" {
		return Location{}, fmt.Errorf("sftp location %q has no host", raw)
	}

	port := 0
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return Location{}, fmt.Errorf("sftp location %q: bad port: %w", raw, err)
		}
	}

	root := u.Path
	if root == "" {
		root = "."
	}

	var user string
	if u.User != nil {
		user = u.User.Username()
	}

	return Location{Scheme: SchemeSFTP, Host: host, Port: port, User: user, Bucket: root}, nil
}

// joinKey joins a root and a slash-separated key for display and mapping.
func joinKey(root, key string) string {
	switch {
	case key == "":
		return root
	case root == "":
		return key
	case strings.HasSuffix(root, "/"):
		return root + key
	default:
		return root + "/" + key
	}
}
