package store

import "fmt"

// Open returns the Store for loc. S3 locations use s3Client, which the
// caller builds once per run with NewS3Client; it may be nil when neither
// side of the run is S3.
//
//nolint:ireturn // factory returns interface by design
func Open(loc Location, s3Client S3API, sshOpts SSHOpts) (Store, error) {
	switch loc.Scheme {
	case SchemeS3:
		if s3Client == nil {
			return nil, fmt.Errorf("%s: no S3 client configured", loc)
		}
		return NewS3Store(s3Client, loc.Bucket), nil
	case SchemeSFTP:
		if loc.Port != 0 {
			sshOpts.Port = loc.Port
		}
		client, err := DialSSH(loc.Host, loc.User, sshOpts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", loc, err)
		}
		st, err := NewSFTPStore(client, loc.Bucket)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("%s: %w", loc, err)
		}
		return st, nil
	default:
		return NewLocalStore(loc.Bucket), nil
	}
}
