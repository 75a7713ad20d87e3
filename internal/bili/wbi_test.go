package bili

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestMixinKey(t *testing.T) {
	t.Parallel()
	// Known key pair with its documented shuffle result.
	img := "7cd084941338484aae1ad9425b84077c"
	sub := "4932caff0ff746eab6f01bf08b70ac45"
	if got, want := mixinKey(img, sub), "ea1db124af3c7062474693fa704f4ff8"; got != want {
		t.Fatalf("mixinKey = %q, want %q", got, want)
	}
	if got := mixinKey(strings.Repeat("a", 32), strings.Repeat("a", 32)); got != strings.Repeat("a", 32) {
		t.Fatalf("uniform input should shuffle to itself, got %q", got)
	}
	if n := len(mixinKey(img, sub)); n != 32 {
		t.Fatalf("mixin key length = %d, want 32", n)
	}
}

func TestSignWBI(t *testing.T) {
	t.Parallel()
	img := "7cd084941338484aae1ad9425b84077c"
	sub := "4932caff0ff746eab6f01bf08b70ac45"
	now := time.Unix(1702204169, 0)

	params := url.Values{}
	params.Set("foo", "one one four")
	params.Set("bar", "五一四")
	params.Set("baz", "1919810")

	signed := signWBI(params, img, sub, now)

	if got := signed.Get("wts"); got != "1702204169" {
		t.Fatalf("wts = %q", got)
	}
	rid := signed.Get("w_rid")
	if len(rid) != 32 {
		t.Fatalf("w_rid = %q, want a 32-char md5 hex digest", rid)
	}
	if rid != strings.ToLower(rid) {
		t.Fatalf("w_rid should be lowercase hex, got %q", rid)
	}

	// Deterministic for identical input.
	again := signWBI(params, img, sub, now)
	if again.Get("w_rid") != rid {
		t.Fatal("signature is not deterministic")
	}

	// Any param change must change the signature.
	params.Set("foo", "changed")
	if signWBI(params, img, sub, now).Get("w_rid") == rid {
		t.Fatal("signature did not change with the input")
	}
}

func TestSignWBIStripsFilteredChars(t *testing.T) {
	t.Parallel()
	params := url.Values{}
	params.Set("msg", "a!b'c(d)e*f")

	signed := signWBI(params, "img", "sub", time.Unix(1, 0))
	if got, want := signed.Get("msg"), "abcdef"; got != want {
		t.Fatalf("filtered value = %q, want %q", got, want)
	}
}

func TestKeyFromURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"https://i0.hdslb.com/bfs/wbi/7cd084941338484aae1ad9425b84077c.png", "7cd084941338484aae1ad9425b84077c"},
		{"https://example.com/dir/key", "key"},
		{"bare.png", "bare"},
	}
	for _, tt := range tests {
		if got := keyFromURL(tt.in); got != tt.want {
			t.Fatalf("keyFromURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWBIKeysCache(t *testing.T) {
	t.Parallel()
	var fetches int
	fetch := func(ctx context.Context) (string, string, error) {
		fetches++
		return "img", "sub", nil
	}

	var keys wbiKeys
	for i := 0; i < 3; i++ {
		img, sub, err := keys.get(context.Background(), fetch)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if img != "img" || sub != "sub" {
			t.Fatalf("get = (%q, %q)", img, sub)
		}
	}
	if fetches != 1 {
		t.Fatalf("fetched %d times, want 1 (cached afterwards)", fetches)
	}

	// An expired entry refetches.
	keys.fetchedAt = time.Now().Add(-2 * wbiKeyTTL)
	if _, _, err := keys.get(context.Background(), fetch); err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if fetches != 2 {
		t.Fatalf("fetched %d times after expiry, want 2", fetches)
	}
}
