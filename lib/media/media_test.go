// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package media_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/tagmesh/tagmesh/lib/media"
)

func TestContentRefRoundTrip(t *testing.T) {
	ref := media.HashContent([]byte("hello"))
	if ref.IsZero() {
		t.Fatal("hash of nonempty content is zero")
	}

	parsed, err := media.ParseRef(ref.String())
	if err != nil {
		t.Fatalf("ParseRef: %v", err)
	}
	if parsed != ref {
		t.Errorf("ParseRef(String()) = %s, want %s", parsed, ref)
	}

	zero, err := media.ParseRef("")
	if err != nil {
		t.Fatalf("ParseRef(\"\"): %v", err)
	}
	if !zero.IsZero() {
		t.Error("ParseRef of empty string is not zero")
	}

	if _, err := media.ParseRef("abcd"); err == nil {
		t.Error("ParseRef accepted short input")
	}
	if _, err := media.ParseRef(strings.Repeat("zz", 32)); err == nil {
		t.Error("ParseRef accepted non-hex input")
	}
}

func TestHashReaderMatchesHashContent(t *testing.T) {
	data := []byte("some content bytes")
	ref, size, err := media.HashReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("HashReader: %v", err)
	}
	if size != int64(len(data)) {
		t.Errorf("size = %d, want %d", size, len(data))
	}
	if ref != media.HashContent(data) {
		t.Error("HashReader disagrees with HashContent")
	}
}

func openStore(t *testing.T, compression media.Compression, encrypted bool) *media.DirStore {
	t.Helper()
	cfg := media.DirStoreConfig{Dir: t.TempDir(), Compression: compression}
	if encrypted {
		key := make([]byte, media.KeySize)
		if _, err := rand.Read(key); err != nil {
			t.Fatalf("rand.Read: %v", err)
		}
		cfg.MasterKey = key
	}
	store, err := media.NewDirStore(cfg)
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}
	return store
}

func TestDirStoreRoundTrip(t *testing.T) {
	// Compressible content so lz4/zstd actually engage.
	content := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 64)

	compressions := []media.Compression{media.CompressionNone, media.CompressionLZ4, media.CompressionZstd}
	for _, compression := range compressions {
		for _, encrypted := range []bool{false, true} {
			name := compression.String()
			if encrypted {
				name += "-encrypted"
			}
			t.Run(name, func(t *testing.T) {
				store := openStore(t, compression, encrypted)
				ctx := context.Background()

				ref, size, err := store.Put(ctx, bytes.NewReader(content))
				if err != nil {
					t.Fatalf("Put: %v", err)
				}
				if size != int64(len(content)) {
					t.Errorf("size = %d, want %d", size, len(content))
				}
				if ref != media.HashContent(content) {
					t.Error("ref does not match content hash")
				}

				reader, err := store.Open(ctx, ref)
				if err != nil {
					t.Fatalf("Open: %v", err)
				}
				defer reader.Close()
				got, err := io.ReadAll(reader)
				if err != nil {
					t.Fatalf("ReadAll: %v", err)
				}
				if !bytes.Equal(got, content) {
					t.Error("content did not round trip")
				}
			})
		}
	}
}

func TestDirStorePutIsIdempotent(t *testing.T) {
	store := openStore(t, media.CompressionLZ4, false)
	ctx := context.Background()
	content := []byte("same bytes both times")

	first, _, err := store.Put(ctx, bytes.NewReader(content))
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}
	second, _, err := store.Put(ctx, bytes.NewReader(content))
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if first != second {
		t.Errorf("refs differ: %s vs %s", first, second)
	}
}

func TestDirStoreOpenUnknownRef(t *testing.T) {
	store := openStore(t, media.CompressionNone, false)
	ref := media.HashContent([]byte("never stored"))

	_, err := store.Open(context.Background(), ref)
	if !errors.Is(err, media.ErrNotFound) {
		t.Errorf("Open unknown ref: err = %v, want ErrNotFound", err)
	}
}

func TestDirStoreIncompressibleFallsBack(t *testing.T) {
	store := openStore(t, media.CompressionZstd, false)
	ctx := context.Background()

	random := make([]byte, 4096)
	if _, err := rand.Read(random); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	ref, _, err := store.Put(ctx, bytes.NewReader(random))
	if err != nil {
		t.Fatalf("Put incompressible: %v", err)
	}
	reader, err := store.Open(ctx, ref)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()
	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, random) {
		t.Error("incompressible content did not round trip")
	}
}

func TestDirStoreEncryptedRequiresKeyToOpen(t *testing.T) {
	key := make([]byte, media.KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	dir := t.TempDir()
	sealed, err := media.NewDirStore(media.DirStoreConfig{Dir: dir, MasterKey: key})
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}

	ref, _, err := sealed.Put(context.Background(), strings.NewReader("secret content"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Same directory opened without a key cannot decode the blob.
	plain, err := media.NewDirStore(media.DirStoreConfig{Dir: dir})
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}
	if _, err := plain.Open(context.Background(), ref); err == nil {
		t.Error("Open without master key succeeded on encrypted blob")
	}

	// Wrong key fails authentication rather than returning garbage.
	wrongKey := make([]byte, media.KeySize)
	wrong, err := media.NewDirStore(media.DirStoreConfig{Dir: dir, MasterKey: wrongKey})
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}
	if _, err := wrong.Open(context.Background(), ref); err == nil {
		t.Error("Open with wrong master key succeeded")
	}
}

func TestDetectType(t *testing.T) {
	cases := []struct {
		filename string
		want     media.Type
	}{
		{"vacation.JPG", media.TypeImage},
		{"clip.mkv", media.TypeVideo},
		{"song.flac", media.TypeAudio},
		{"report.pdf", media.TypeDocument},
		{"archive.tar.gz", media.TypeOther},
		{"README", media.TypeOther},
	}
	for _, tc := range cases {
		if got := media.DetectType(tc.filename); got != tc.want {
			t.Errorf("DetectType(%q) = %s, want %s", tc.filename, got, tc.want)
		}
	}
}
