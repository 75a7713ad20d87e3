package dmparse

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TouhouGleaners/danmaku-sender/internal/model"
	logx "github.com/TouhouGleaners/danmaku-sender/pkg/logx"
)

func TestParseLocalFile(t *testing.T) {
	t.Parallel()
	data := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<i>
  <d p="12.5,1,25,16777215,0,0,0,0">first</d>
  <d p="0.001">defaults applied</d>
  <d p="64,5,18,255,0,0,0,0">styled</d>
</i>`)

	dms, err := Parse(data, false, logx.Nop())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(dms) != 3 {
		t.Fatalf("parsed %d items, want 3", len(dms))
	}

	if dms[0].Progress != 12500 || dms[0].Msg != "first" {
		t.Fatalf("dms[0] = %+v", dms[0])
	}
	if dms[0].DMID != "" {
		t.Fatalf("offline parse must not pick up an id, got %q", dms[0].DMID)
	}

	d := dms[1]
	if d.Progress != 1 {
		t.Fatalf("fixed-point seconds: Progress = %d, want 1ms", d.Progress)
	}
	if d.Mode != model.DefaultMode || d.Fontsize != model.DefaultFontsize || d.Color != model.DefaultColor {
		t.Fatalf("missing attributes should take defaults, got %+v", d)
	}

	if dms[2].Mode != 5 || dms[2].Fontsize != 18 || dms[2].Color != 255 {
		t.Fatalf("dms[2] = %+v", dms[2])
	}
}

func TestParseOnlineExtractsIDs(t *testing.T) {
	t.Parallel()
	data := []byte(`<i>
  <d p="1.0,1,25,16777215,1700000000,0,hash,id-one">a</d>
  <d p="2.0,1,25,16777215,1700000001,0,hash,id-two">b</d>
  <d p="3.0,1,25,16777215,1700000002,0,hash,">no id</d>
</i>`)

	dms, err := Parse(data, true, logx.Nop())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(dms) != 3 {
		t.Fatalf("parsed %d items, want 3", len(dms))
	}

	ids := ExtractDMIDs(dms)
	if len(ids) != 2 || ids[0] != "id-one" || ids[1] != "id-two" {
		t.Fatalf("ExtractDMIDs = %v", ids)
	}
}

func TestParseSkipsBadRecords(t *testing.T) {
	t.Parallel()
	data := []byte(`<i>
  <d p="1.0">good</d>
  <d p="not-a-number">bad position</d>
  <d p="2.0">   </d>
  <d p="">empty attr</d>
</i>`)

	dms, err := Parse(data, false, logx.Nop())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(dms) != 1 || dms[0].Msg != "good" {
		t.Fatalf("parsed %+v, want only the good record", dms)
	}
}

func TestParseRejectsBrokenXML(t *testing.T) {
	t.Parallel()
	if _, err := Parse([]byte("<i><d"), false, logx.Nop()); err == nil {
		t.Fatal("truncated document should fail")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("很", 101)
	dms := []model.Danmaku{
		model.NewDanmaku("fine", 1000),
		model.NewDanmaku(`line\nbreak`, 2000),
		model.NewDanmaku("slash/newline /n marker", 2500),
		model.NewDanmaku(long, 3000),
		model.NewDanmaku("past the end", 99_000),
		model.NewDanmaku("boom 💣", 4000),
	}

	issues := Validate(dms, 60_000)
	if len(issues) != 5 {
		t.Fatalf("got %d issues, want 5: %+v", len(issues), issues)
	}

	if !dms[0].Valid {
		t.Fatal("clean item flagged invalid")
	}
	for i := 1; i < len(dms); i++ {
		if dms[i].Valid {
			t.Fatalf("dms[%d] should be invalid", i)
		}
	}

	wantFragments := map[int]string{
		1: "newline",
		2: "newline",
		3: "100 characters",
		4: "beyond video duration",
		5: "forbidden symbol",
	}
	for _, is := range issues {
		frag := wantFragments[is.Index]
		if !strings.Contains(is.Reason, frag) {
			t.Fatalf("issue %d reason = %q, want fragment %q", is.Index, is.Reason, frag)
		}
	}
}

func TestValidateSkipsDurationCheckWhenUnknown(t *testing.T) {
	t.Parallel()
	dms := []model.Danmaku{model.NewDanmaku("late", 10_000_000)}
	if issues := Validate(dms, 0); len(issues) != 0 {
		t.Fatalf("duration 0 should skip the bound check, got %+v", issues)
	}
	if !dms[0].Valid {
		t.Fatal("item should stay valid")
	}
}

func TestValidateBoundaryLength(t *testing.T) {
	t.Parallel()
	exactly := strings.Repeat("a", 100)
	dms := []model.Danmaku{model.NewDanmaku(exactly, 1000)}
	if issues := Validate(dms, 0); len(issues) != 0 {
		t.Fatalf("100 runes is allowed, got %+v", issues)
	}
}

func TestWriteUnsentXMLRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "unsent.xml")

	records := []UnsentRecord{
		{Danmaku: model.NewDanmaku("later item", 30_000), Reason: "msg protect"},
		{Danmaku: model.NewDanmaku("early item", 5_000), Reason: "msg protect"},
		{Danmaku: model.NewDanmaku("a<b & c", 1_000), Reason: ""},
	}
	if err := WriteUnsentXML(path, records); err != nil {
		t.Fatalf("WriteUnsentXML: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	text := string(raw)
	if !strings.Contains(text, "msg protect (2)") {
		t.Fatalf("missing reason group comment in:\n%s", text)
	}
	if !strings.Contains(text, "uncategorized (1)") {
		t.Fatalf("empty reason should group as uncategorized in:\n%s", text)
	}
	if strings.Index(text, "early item") > strings.Index(text, "later item") {
		t.Fatal("items within a group should be sorted by timeline position")
	}

	// The file must feed back into the offline parser.
	dms, err := ParseFile(path, logx.Nop())
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(dms) != 3 {
		t.Fatalf("round trip parsed %d items, want 3", len(dms))
	}
	found := false
	for _, dm := range dms {
		if dm.Msg == "a<b & c" {
			found = true
		}
	}
	if !found {
		t.Fatal("escaped content did not round-trip")
	}
}
