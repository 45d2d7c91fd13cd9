// Package blobsvc stores assignment documents on the local disk or in S3.
package blobsvc

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/pueriangeli/core"
)

type localStore struct {
	root string
}

var _ core.BlobStore = (*localStore)(nil) // interface compliance check

// NewLocalStore keeps blobs as files under root, creating it if needed.
func NewLocalStore(root string) (core.BlobStore, error) {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, errors.Wrap(err, "creating documents dir")
	}
	return &localStore{root: root}, nil
}

// path resolves key under root and refuses keys escaping it.
func (st *localStore) path(key string) (string, error) {
	p := filepath.Join(st.root, filepath.FromSlash(key))
	if p == st.root || !strings.HasPrefix(p, st.root+string(filepath.Separator)) {
		return "", errors.Errorf("invalid blob key %q", key)
	}
	return p, nil
}

func (st *localStore) Put(ctx context.Context, key string, r io.Reader, _ int64, _ string) error {
	p, err := st.path(key)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return errors.Wrap(err, "creating blob dir")
	}

	// write to a temp file first so readers never see a partial blob
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return errors.Wrap(err, "creating blob")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err = io.Copy(tmp, contextReader{ctx: ctx, r: r}); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "writing blob")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "writing blob")
	}
	return errors.Wrap(os.Rename(tmp.Name(), p), "saving blob")
}

func (st *localStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := st.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, core.ErrBlobNotFound
	}
	return f, errors.Wrap(err, "opening blob")
}

func (st *localStore) Delete(_ context.Context, key string) error {
	p, err := st.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if os.IsNotExist(err) {
		return core.ErrBlobNotFound
	}
	return errors.Wrap(err, "deleting blob")
}

// contextReader stops copying once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
