package fetch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"
)

var ErrDigestMismatch = errors.New("digest mismatch")

// digest is a parsed "sha256:<hex>" or SRI "sha512-<base64>" string.
type digest struct {
	algo string
	sum  []byte
}

func parseDigest(s string) (*digest, error) {
	for _, algo := range []string{"sha256", "sha512"} {
		if rest, ok := strings.CutPrefix(s, algo+":"); ok {
			sum, err := hex.DecodeString(rest)
			if err != nil {
				return nil, fmt.Errorf("invalid digest %q: %w", s, err)
			}
			return &digest{algo: algo, sum: sum}, nil
		}
		if rest, ok := strings.CutPrefix(s, algo+"-"); ok {
			sum, err := base64.StdEncoding.DecodeString(rest)
			if err != nil {
				return nil, fmt.Errorf("invalid digest %q: %w", s, err)
			}
			return &digest{algo: algo, sum: sum}, nil
		}
	}
	return nil, fmt.Errorf("unsupported digest %q", s)
}

func (d *digest) hasher() hash.Hash {
	if d.algo == "sha512" {
		return sha512.New()
	}
	return sha256.New()
}

// Download streams the artifact described by info into w and checks it against
// info.Digest when one is set. On ErrDigestMismatch w has already received the
// bad bytes, so callers writing to disk should write to a temporary file first.
func Download(ctx context.Context, f FetcherInterface, info *ArtifactInfo, w io.Writer) (int64, error) {
	var want *digest
	if info.Digest != "" {
		d, err := parseDigest(info.Digest)
		if err != nil {
			return 0, err
		}
		want = d
	}

	artifact, err := f.Fetch(ctx, info.URL)
	if err != nil {
		return 0, err
	}
	defer func() { _ = artifact.Body.Close() }()

	dst := w
	var h hash.Hash
	if want != nil {
		h = want.hasher()
		dst = io.MultiWriter(w, h)
	}

	n, err := io.Copy(dst, artifact.Body)
	if err != nil {
		return n, fmt.Errorf("downloading %s: %w", info.URL, err)
	}
	if artifact.Size >= 0 && n != artifact.Size {
		return n, fmt.Errorf("downloading %s: got %d bytes, want %d", info.URL, n, artifact.Size)
	}

	if h != nil {
		if got := h.Sum(nil); !bytes.Equal(got, want.sum) {
			return n, fmt.Errorf("%s: %w: got %s:%s", info.Ref, ErrDigestMismatch, want.algo, hex.EncodeToString(got))
		}
	}
	return n, nil
}
