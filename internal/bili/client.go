package bili

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/TouhouGleaners/danmaku-sender/internal/errcode"
	"github.com/TouhouGleaners/danmaku-sender/internal/model"
	logx "github.com/TouhouGleaners/danmaku-sender/pkg/logx"
)

const (
	defaultBaseURL   = "https://api.bilibili.com"
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	refererHeader    = "https://www.bilibili.com/"
)

// Config carries the user credentials and transport knobs.
type Config struct {
	SESSDATA string
	BiliJCT  string

	// BaseURL overrides the API host, mainly for tests.
	BaseURL string

	// Timeout is the per-request timeout; 0 means the default. The timeout is
	// the client's own responsibility so a stalled connection can never block
	// the send loop indefinitely.
	Timeout time.Duration

	// RatePerSec is a hard ceiling on outgoing requests, independent of the
	// randomized pacing above it. 0 disables the limiter.
	RatePerSec int

	// UseSystemProxy=false forces a direct connection, ignoring proxy
	// environment variables.
	UseSystemProxy bool

	UserAgent string
}

// Client talks to the provider. Construct with New; safe for concurrent use.
type Client struct {
	baseURL  string
	sessdata string
	biliJCT  string
	ua       string

	httpc   *http.Client
	limiter *rate.Limiter
	keys    wbiKeys
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if cfg.SESSDATA == "" || cfg.BiliJCT == "" {
		return nil, errors.New("bili: SESSDATA and bili_jct are required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.UseSystemProxy {
		transport.Proxy = nil
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	c := &Client{
		baseURL:  base,
		sessdata: cfg.SESSDATA,
		biliJCT:  cfg.BiliJCT,
		ua:       ua,
		httpc:    &http.Client{Timeout: timeout, Transport: transport},
		log:      log,
	}
	if cfg.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return c, nil
}

// GetVideoInfo fetches title, duration and pages for a video.
func (c *Client) GetVideoInfo(ctx context.Context, bvid string) (model.VideoInfo, error) {
	q := url.Values{}
	q.Set("bvid", bvid)

	var data struct {
		Title    string `json:"title"`
		Duration int64  `json:"duration"` // seconds
		Pages    []struct {
			CID      int64  `json:"cid"`
			Page     int    `json:"page"`
			Part     string `json:"part"`
			Duration int64  `json:"duration"` // seconds
		} `json:"pages"`
	}
	if err := c.getJSON(ctx, "/x/web-interface/view", q, &data); err != nil {
		return model.VideoInfo{}, err
	}

	info := model.VideoInfo{Title: data.Title, DurationMS: data.Duration * 1000}
	for _, p := range data.Pages {
		info.Pages = append(info.Pages, model.VideoPage{
			CID: p.CID, Page: p.Page, Part: p.Part, DurationMS: p.Duration * 1000,
		})
	}
	return info, nil
}

// PostDanmaku submits one item. Provider business failures are returned in
// the SendResult, not as an error; only transport-level problems error.
func (c *Client) PostDanmaku(ctx context.Context, target model.VideoTarget, dm model.Danmaku) (model.SendResult, error) {
	img, sub, err := c.keys.get(ctx, c.fetchWBIKeys)
	if err != nil {
		return model.SendResult{}, err
	}

	params := url.Values{}
	params.Set("type", "1")
	params.Set("oid", strconv.FormatInt(target.CID, 10))
	params.Set("bvid", target.BVID)
	params.Set("msg", dm.Msg)
	params.Set("progress", strconv.FormatInt(dm.Progress, 10))
	params.Set("mode", strconv.Itoa(dm.Mode))
	params.Set("fontsize", strconv.Itoa(dm.Fontsize))
	params.Set("color", strconv.Itoa(dm.Color))
	params.Set("pool", "0")
	params.Set("rnd", strconv.FormatInt(time.Now().UnixMicro(), 10))
	params.Set("csrf", c.biliJCT)

	signed := signWBI(params, img, sub, time.Now())

	body, err := c.do(ctx, http.MethodPost, "/x/v2/dm/post", nil, signed)
	if err != nil {
		return model.SendResult{}, err
	}

	var resp struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.SendResult{}, &APIError{Code: errcode.CodeMalformedResponse, Message: "decoding post response: " + err.Error()}
	}

	res := model.SendResult{
		Code:           resp.Code,
		Success:        resp.Code == errcode.CodeSuccess,
		RawMessage:     resp.Message,
		DisplayMessage: errcode.Describe(resp.Code, resp.Message),
		Visible:        true,
	}
	if len(resp.Data) > 0 {
		var data struct {
			DMIDStr string          `json:"dmid_str"`
			DMID    json.RawMessage `json:"dmid"`
			Visible *bool           `json:"visible"`
		}
		if err := json.Unmarshal(resp.Data, &data); err == nil {
			res.DMID = data.DMIDStr
			if res.DMID == "" && len(data.DMID) > 0 {
				res.DMID = strings.Trim(string(data.DMID), `"`)
			}
			if data.Visible != nil {
				res.Visible = *data.Visible
			}
		}
	}
	return res, nil
}

// GetDanmakuListXML fetches the live danmaku listing for a part, as raw XML.
func (c *Client) GetDanmakuListXML(ctx context.Context, cid int64) ([]byte, error) {
	q := url.Values{}
	q.Set("oid", strconv.FormatInt(cid, 10))
	return c.do(ctx, http.MethodGet, "/x/v1/dm/list.so", q, nil)
}

func (c *Client) fetchWBIKeys(ctx context.Context) (string, string, error) {
	var data struct {
		WbiImg struct {
			ImgURL string `json:"img_url"`
			SubURL string `json:"sub_url"`
		} `json:"wbi_img"`
	}
	// The nav endpoint reports code -101 for guests but still carries the
	// wbi_img block; fetch raw and decode leniently.
	body, err := c.do(ctx, http.MethodGet, "/x/web-interface/nav", nil, nil)
	if err != nil {
		return "", "", err
	}
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", &APIError{Code: errcode.CodeMalformedResponse, Message: "decoding nav response: " + err.Error()}
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil || data.WbiImg.ImgURL == "" {
		return "", "", &APIError{Code: errcode.CodeMalformedResponse, Message: "nav response missing wbi keys"}
	}
	return keyFromURL(data.WbiImg.ImgURL), keyFromURL(data.WbiImg.SubURL), nil
}

// getJSON performs a GET against a standard JSON envelope endpoint and
// unwraps data, turning a non-zero business code into an *APIError.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	var resp struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return &APIError{Code: errcode.CodeMalformedResponse, Message: "decoding response: " + err.Error()}
	}
	if resp.Code != errcode.CodeSuccess {
		c.log.Warn("api request rejected", logx.String("path", path), logx.Int("code", resp.Code), logx.String("message", resp.Message))
		return &APIError{Code: resp.Code, Message: resp.Message}
	}
	if out != nil {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return &APIError{Code: errcode.CodeMalformedResponse, Message: "decoding data: " + err.Error()}
		}
	}
	return nil
}

// do performs one HTTP request and maps every transport failure onto the
// synthetic code set.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, form url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &APIError{Code: errcode.CodeNetworkError, Message: "rate wait: " + err.Error(), Network: true}
		}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if form != nil {
		bodyReader = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, &APIError{Code: errcode.CodeNetworkError, Message: err.Error(), Network: true}
	}
	req.Header.Set("User-Agent", c.ua)
	req.Header.Set("Referer", refererHeader)
	req.Header.Set("Cookie", "SESSDATA="+c.sessdata+"; bili_jct="+c.biliJCT)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, c.transportError(u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Error("http status error", logx.String("url", u), logx.Int("status", resp.StatusCode))
		return nil, &APIError{
			Code:    errcode.CodeHTTPError,
			Message: fmt.Sprintf("unexpected HTTP status %d", resp.StatusCode),
			Network: true,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Code: errcode.CodeConnectionError, Message: "reading body: " + err.Error(), Network: true}
	}
	return body, nil
}

func (c *Client) transportError(u string, err error) *APIError {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		c.log.Error("request timed out", logx.String("url", u), logx.Err(err))
		return &APIError{Code: errcode.CodeTimeoutError, Message: "request timeout: " + err.Error(), Network: true}
	case isConnectionError(err):
		c.log.Error("connection failed", logx.String("url", u), logx.Err(err))
		return &APIError{Code: errcode.CodeConnectionError, Message: "connection failure: " + err.Error(), Network: true}
	default:
		c.log.Error("request failed", logx.String("url", u), logx.Err(err))
		return &APIError{Code: errcode.CodeNetworkError, Message: "request failure: " + err.Error(), Network: true}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isConnectionError(err error) bool {
	var oe *net.OpError
	return errors.As(err, &oe)
}
