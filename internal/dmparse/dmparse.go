// Package dmparse reads and writes the provider's danmaku XML format.
//
// A listing is a sequence of <d p="..."> records. The p attribute is
// comma-separated: p[0] is the timeline position in fixed-point seconds,
// p[1..3] are mode/fontsize/color, and — only in the live/online variant —
// p[7] is the provider-assigned danmaku id.
package dmparse

import (
	"encoding/xml"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/TouhouGleaners/danmaku-sender/internal/model"
	logx "github.com/TouhouGleaners/danmaku-sender/pkg/logx"
)

type xmlRoot struct {
	XMLName xml.Name `xml:"i"`
	D       []xmlD   `xml:"d"`
}

type xmlD struct {
	P    string `xml:"p,attr"`
	Text string `xml:",chardata"`
}

// Parse decodes listing XML. With online=true the provider id is extracted
// from p[7]; otherwise display attributes are read with defaults applied.
// Blank or malformed records are skipped with a warning, never fatal.
func Parse(data []byte, online bool, log logx.Logger) ([]model.Danmaku, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	var root xmlRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, err
	}

	out := make([]model.Danmaku, 0, len(root.D))
	for _, d := range root.D {
		msg := strings.TrimSpace(d.Text)
		if msg == "" {
			log.Debug("skipping blank danmaku record")
			continue
		}
		dm, err := fromPAttr(d.P, msg, online)
		if err != nil {
			log.Warn("skipping malformed danmaku record",
				logx.String("content", msg), logx.String("p", d.P), logx.Err(err))
			continue
		}
		out = append(out, dm)
	}
	return out, nil
}

// ParseFile reads a local danmaku XML file (offline variant).
func ParseFile(path string, log logx.Logger) ([]model.Danmaku, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, false, log)
}

func fromPAttr(p, msg string, online bool) (model.Danmaku, error) {
	fields := strings.Split(p, ",")
	if len(fields) < 1 || strings.TrimSpace(fields[0]) == "" {
		return model.Danmaku{}, strconv.ErrSyntax
	}

	sec, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return model.Danmaku{}, err
	}

	dm := model.NewDanmaku(msg, int64(sec*1000))

	if n, err := intField(fields, 1); err == nil {
		dm.Mode = n
	}
	if n, err := intField(fields, 2); err == nil {
		dm.Fontsize = n
	}
	if n, err := intField(fields, 3); err == nil {
		dm.Color = n
	}
	if online && len(fields) > 7 {
		dm.DMID = strings.TrimSpace(fields[7])
	}
	return dm, nil
}

func intField(fields []string, i int) (int, error) {
	if i >= len(fields) {
		return 0, strconv.ErrRange
	}
	return strconv.Atoi(strings.TrimSpace(fields[i]))
}

// ExtractDMIDs returns the non-empty provider ids from a parsed listing.
func ExtractDMIDs(dms []model.Danmaku) []string {
	ids := make([]string, 0, len(dms))
	for _, dm := range dms {
		if dm.DMID != "" {
			ids = append(ids, dm.DMID)
		}
	}
	return ids
}

// UnsentRecord pairs an item with the reason it was not sent.
type UnsentRecord struct {
	Danmaku model.Danmaku
	Reason  string
}

// WriteUnsentXML saves unsent items back to the local XML format, grouped by
// failure reason (as comments) and sorted by timeline position within each
// group, so the file can be edited and re-fed to the sender.
func WriteUnsentXML(path string, records []UnsentRecord) error {
	grouped := map[string][]model.Danmaku{}
	var order []string
	for _, r := range records {
		reason := r.Reason
		if reason == "" {
			reason = "uncategorized"
		}
		if _, ok := grouped[reason]; !ok {
			order = append(order, reason)
		}
		grouped[reason] = append(grouped[reason], r.Danmaku)
	}

	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString("<i>\n")
	for _, reason := range order {
		dms := grouped[reason]
		sort.Slice(dms, func(i, j int) bool { return dms[i].Progress < dms[j].Progress })

		safe := strings.ReplaceAll(reason, "--", " - ")
		b.WriteString("  <!-- ")
		b.WriteString(safe)
		b.WriteString(" (")
		b.WriteString(strconv.Itoa(len(dms)))
		b.WriteString(") -->\n")

		for _, dm := range dms {
			b.WriteString(`  <d p="`)
			b.WriteString(strconv.FormatFloat(float64(dm.Progress)/1000, 'f', -1, 64))
			b.WriteString(",")
			b.WriteString(strconv.Itoa(dm.Mode))
			b.WriteString(",")
			b.WriteString(strconv.Itoa(dm.Fontsize))
			b.WriteString(",")
			b.WriteString(strconv.Itoa(dm.Color))
			b.WriteString(`,0,0,0,0,0">`)
			var esc strings.Builder
			_ = xml.EscapeText(&esc, []byte(dm.Msg))
			b.WriteString(esc.String())
			b.WriteString("</d>\n")
		}
	}
	b.WriteString("</i>\n")

	return os.WriteFile(path, []byte(b.String()), 0o644)
}
