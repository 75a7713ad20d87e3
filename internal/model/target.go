package model

// VideoTarget identifies where items are submitted: the video (bvid) and the
// specific part (cid). Immutable once constructed for a run.
type VideoTarget struct {
	BVID  string
	CID   int64
	Title string
}

// DisplayString prefers the title for logs, falling back to the bvid.
func (t VideoTarget) DisplayString() string {
	if t.Title != "" {
		return t.Title
	}
	return t.BVID
}

// VideoPage is one part of a multi-part video, as returned by the provider's
// view endpoint.
type VideoPage struct {
	CID        int64
	Page       int
	Part       string
	DurationMS int64
}

// VideoInfo is the provider's metadata for a video.
type VideoInfo struct {
	Title      string
	DurationMS int64
	Pages      []VideoPage
}
