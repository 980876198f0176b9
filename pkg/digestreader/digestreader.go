// Package digestreader computes a whole-stream sha256 digest
// concurrently with whatever else is consuming the stream, using an
// io.TeeReader feeding a hashing goroutine synchronized with
// golang.org/x/sync/errgroup (the teacher's own concurrency
// coordination dependency). pkg/compound uses this so the total_hash
// that Upload records (and a later update-mode upload compares against)
// costs no extra pass over the source.
package digestreader

import (
	"context"
	"crypto/sha256"
	"hash"
	"io"

	"golang.org/x/sync/errgroup"
)

// Reader wraps a source reader so that every byte read through it is
// also fed into a running sha256 digest on a background goroutine.
// Sum must be called only after the consumer has fully drained Reader
// (reached io.EOF) and Wait has returned.
type Reader struct {
	r      io.Reader
	pw     *io.PipeWriter
	group  *errgroup.Group
	sum    [32]byte
}

// Wrap returns a Reader that tees r's bytes to a concurrent sha256
// digest. Consumers read from the returned Reader exactly as they
// would read from r.
func Wrap(ctx context.Context, r io.Reader) *Reader {
	pr, pw := io.Pipe()
	group, gctx := errgroup.WithContext(ctx)

	d := &Reader{pw: pw, group: group}
	tee := io.TeeReader(r, pw)

	group.Go(func() error {
		h := sha256.New()
		_, err := io.Copy(h, pr)
		if err != nil && err != io.ErrClosedPipe {
			pr.CloseWithError(err)
			return err
		}
		copy(d.sum[:], h.Sum(nil))
		return nil
	})

	d.r = &ctxTeeCloser{tee: tee, pw: pw, ctx: gctx}
	return d
}

// Read satisfies io.Reader, delegating to the underlying tee.
func (d *Reader) Read(p []byte) (int, error) {
	return d.r.Read(p)
}

// Wait blocks until the background digest goroutine has finished
// (i.e. the pipe has been closed because the consumer reached EOF) and
// returns the first error either side encountered.
func (d *Reader) Wait() error {
	return d.group.Wait()
}

// Sum returns the finished sha256 digest. Call only after Wait.
func (d *Reader) Sum() [32]byte {
	return d.sum
}

// ctxTeeCloser closes the pipe writer once the source reader is
// exhausted, so the background hashing goroutine's io.Copy unblocks.
type ctxTeeCloser struct {
	tee io.Reader
	pw  *io.PipeWriter
	ctx context.Context
}

func (c *ctxTeeCloser) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		c.pw.CloseWithError(err)
		return 0, err
	}
	n, err := c.tee.Read(p)
	if err == io.EOF {
		c.pw.Close()
	} else if err != nil {
		c.pw.CloseWithError(err)
	}
	return n, err
}

// WriteTracker feeds every byte written through it into a running
// sha256 digest. Unlike Reader, it needs no background goroutine: a
// download has no concurrent producer to overlap the hashing with, so
// the digest is simply updated inline on each Write.
type WriteTracker struct {
	w io.Writer
	h hash.Hash
}

// WrapWriter returns a WriteTracker that forwards every Write to w
// while accumulating a sha256 digest of everything written.
func WrapWriter(w io.Writer) *WriteTracker {
	return &WriteTracker{w: w, h: sha256.New()}
}

func (d *WriteTracker) Write(p []byte) (int, error) {
	n, err := d.w.Write(p)
	if n > 0 {
		d.h.Write(p[:n])
	}
	return n, err
}

// Sum returns the sha256 digest of every byte written so far.
func (d *WriteTracker) Sum() [32]byte {
	var sum [32]byte
	copy(sum[:], d.h.Sum(nil))
	return sum
}
