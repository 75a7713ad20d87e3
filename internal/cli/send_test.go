package cli

import (
	"context"
	"errors"
	"testing"

	"github.com/TouhouGleaners/danmaku-sender/internal/model"
)

type fakeInfoClient struct {
	info model.VideoInfo
	err  error
}

func (c *fakeInfoClient) GetVideoInfo(ctx context.Context, bvid string) (model.VideoInfo, error) {
	return c.info, c.err
}

func twoPartVideo() model.VideoInfo {
	return model.VideoInfo{
		Title:      "demo",
		DurationMS: 120_000,
		Pages: []model.VideoPage{
			{CID: 111, Page: 1, Part: "p1", DurationMS: 60_000},
			{CID: 222, Page: 2, Part: "p2", DurationMS: 50_000},
		},
	}
}

func TestResolveTargetByPage(t *testing.T) {
	t.Parallel()
	client := &fakeInfoClient{info: twoPartVideo()}

	target, durationMS, err := resolveTarget(context.Background(), nil, client, "BV1xx", 0, 2)
	if err != nil {
		t.Fatalf("resolveTarget: %v", err)
	}
	if target.CID != 222 || target.BVID != "BV1xx" || target.Title != "demo" {
		t.Fatalf("target = %+v", target)
	}
	if durationMS != 50_000 {
		t.Fatalf("durationMS = %d, want the part duration", durationMS)
	}
}

func TestResolveTargetByCID(t *testing.T) {
	t.Parallel()
	client := &fakeInfoClient{info: twoPartVideo()}

	target, durationMS, err := resolveTarget(context.Background(), nil, client, "BV1xx", 111, 2)
	if err != nil {
		t.Fatalf("resolveTarget: %v", err)
	}
	if target.CID != 111 {
		t.Fatalf("explicit cid should win over --page, got %+v", target)
	}
	if durationMS != 60_000 {
		t.Fatalf("durationMS = %d", durationMS)
	}

	// A cid outside the page list is trusted, with no duration bound.
	target, durationMS, err = resolveTarget(context.Background(), nil, client, "BV1xx", 999, 1)
	if err != nil {
		t.Fatalf("resolveTarget: %v", err)
	}
	if target.CID != 999 || durationMS != 0 {
		t.Fatalf("unlisted cid: target = %+v, durationMS = %d", target, durationMS)
	}
}

func TestResolveTargetMissingPage(t *testing.T) {
	t.Parallel()
	client := &fakeInfoClient{info: twoPartVideo()}
	if _, _, err := resolveTarget(context.Background(), nil, client, "BV1xx", 0, 3); err == nil {
		t.Fatal("nonexistent part should fail")
	}
}

func TestResolveTargetFetchError(t *testing.T) {
	t.Parallel()
	client := &fakeInfoClient{err: errors.New("boom")}
	if _, _, err := resolveTarget(context.Background(), nil, client, "BV1xx", 0, 1); err == nil {
		t.Fatal("fetch failure should propagate")
	}
}

func TestKeepValid(t *testing.T) {
	t.Parallel()
	items := []model.Danmaku{
		model.NewDanmaku("a", 0),
		model.NewDanmaku("b", 1000),
		model.NewDanmaku("c", 2000),
	}
	items[1].Valid = false

	kept := keepValid(items)
	if len(kept) != 2 || kept[0].Msg != "a" || kept[1].Msg != "c" {
		t.Fatalf("keepValid = %+v", kept)
	}
}
