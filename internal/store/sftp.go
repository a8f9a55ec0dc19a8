package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

var _ Store = (*SFTPStore)(nil)

// SFTPStore maps keys onto files below a root directory on a remote host.
type SFTPStore struct {
	client *sftp.Client
	ssh    *ssh.Client
	pager  *keyPager
	root   string
}

// NewSFTPStore creates a store backed by an SFTP session on sshClient.
// Closing the store closes sshClient too.
func NewSFTPStore(sshClient *ssh.Client, root string) (*SFTPStore, error) {
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, fmt.Errorf("sftp client: %w", err)
	}
	return &SFTPStore{
		client: client,
		ssh:    sshClient,
		root:   root,
		pager:  newKeyPager(DefaultPageSize),
	}, nil
}

// WithPageSize overrides the number of keys returned per List call.
func (s *SFTPStore) WithPageSize(n int) *SFTPStore {
	s.pager.setPageSize(n)
	return s
}

func (s *SFTPStore) Bucket() string { return s.root }
func (*SFTPStore) Kind() string     { return "sftp" }

func (s *SFTPStore) Close() error {
	err := s.client.Close()
	if sshErr := s.ssh.Close(); sshErr != nil && err == nil {
		err = sshErr
	}
	return err
}

func (s *SFTPStore) remote(op, key string) (string, error) {
	if err := checkTreeKey(op, key); err != nil {
		return "", err
	}
	return path.Join(s.root, key), nil
}

func (s *SFTPStore) Head(_ context.Context, key string) (FileSummary, error) {
	p, err := s.remote("head", key)
	if err != nil {
		return FileSummary{}, err
	}
	info, err := s.client.Stat(p)
	if err != nil {
		return FileSummary{}, classifyLocal("head", key, err)
	}
	if info.IsDir() {
		return FileSummary{}, ErrNotFound
	}
	return localSummary(key, info), nil
}

func (s *SFTPStore) Get(_ context.Context, key string) (io.ReadCloser, FileSummary, error) {
	p, err := s.remote("get", key)
	if err != nil {
		return nil, FileSummary{}, err
	}
	f, err := s.client.Open(p)
	if err != nil {
		return nil, FileSummary{}, classifyLocal("get", key, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, FileSummary{}, fmt.Errorf("sftp stat %s: %w", key, err)
	}
	return f, localSummary(key, info), nil
}

func (s *SFTPStore) Put(_ context.Context, key string, r io.Reader, size int64, _ PutOptions) error {
	dst, err := s.remote("put", key)
	if err != nil {
		return err
	}
	dir := path.Dir(dst)
	if err := s.client.MkdirAll(dir); err != nil {
		return classifyLocal("mkdir", key, err)
	}

	tmpPath := path.Join(dir, fmt.Sprintf(".%s.%s%s", path.Base(dst), uuid.New().String()[:8], tmpSuffix))
	f, err := s.client.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return classifyLocal("create", key, err)
	}
	defer func() { _ = s.client.Remove(tmpPath) }()

	n, err := f.ReadFrom(r)
	if err != nil {
		f.Close()
		return fmt.Errorf("sftp write %s: %w", key, err)
	}
	if size >= 0 && n != size {
		f.Close()
		return fmt.Errorf("sftp write %s: short copy (%d of %d bytes)", key, n, size)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("sftp close %s: %w", tmpPath, err)
	}

	// SFTP rename fails if the target exists; PosixRename replaces it when
	// the server supports the extension.
	if err := s.client.PosixRename(tmpPath, dst); err != nil {
		_ = s.client.Remove(dst)
		if err := s.client.Rename(tmpPath, dst); err != nil {
			return classifyLocal("rename", key, err)
		}
	}
	return nil
}

func (s *SFTPStore) Delete(_ context.Context, key string) error {
	p, err := s.remote("delete", key)
	if err != nil {
		return err
	}
	if err := s.client.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return classifyLocal("delete", key, err)
	}
	return nil
}

func (s *SFTPStore) List(_ context.Context, prefix, token string) (Page, error) {
	keys, next, err := s.pager.page(prefix, token, s.walk)
	if err != nil {
		return Page{}, err
	}

	page := Page{NextToken: next, Summaries: make([]FileSummary, 0, len(keys))}
	for _, key := range keys {
		p, err := s.remote("list", key)
		if err != nil {
			continue
		}
		info, err := s.client.Stat(p)
		if err != nil {
			continue
		}
		page.Summaries = append(page.Summaries, localSummary(key, info))
	}
	return page, nil
}

func (s *SFTPStore) walk() ([]string, error) {
	var keys []string
	walker := s.client.Walk(s.root)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			if walker.Path() == s.root {
				if errors.Is(err, fs.ErrNotExist) {
					return nil, nil
				}
				return nil, fmt.Errorf("sftp walk %s: %w", s.root, err)
			}
			continue
		}
		info := walker.Stat()
		if info.IsDir() || strings.HasSuffix(info.Name(), tmpSuffix) {
			continue
		}
		if key, ok := s.keyFor(walker.Path()); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// keyFor converts a remote path produced by Walk back into a key.
func (s *SFTPStore) keyFor(remotePath string) (string, bool) {
	if s.root == "." {
		return remotePath, remotePath != "."
	}
	key := strings.TrimPrefix(remotePath, strings.TrimSuffix(s.root, "/")+"/")
	return key, key != "" && key != remotePath
}
