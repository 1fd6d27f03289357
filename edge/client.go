package edge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"pixconv/imaging"
	"pixconv/logger"
	"pixconv/models"
	"pixconv/utils"
)

const (
	DefaultTimeout  = 60 * time.Second
	DefaultProbeTTL = 30 * time.Second

	probeTimeout = 5 * time.Second
	tokenTTL     = 5 * time.Minute
	maxErrorBody = 64 << 10
)

// Response headers of the edge protocol.
const (
	HeaderOriginalSize     = "X-Original-Size"
	HeaderCompressedSize   = "X-Compressed-Size"
	HeaderCompressionRatio = "X-Compression-Ratio"
	HeaderProcessingTime   = "X-Processing-Time"
	HeaderImageWidth       = "X-Image-Width"
	HeaderImageHeight      = "X-Image-Height"
)

// Reasons reported with a mode decision.
const (
	ReasonUnsupportedFormat      = "unsupported format"
	ReasonFileTooLarge           = "file too large"
	ReasonLowMemory              = "low device memory"
	ReasonUnsupportedCombination = "unsupported combination"
)

// unsupportedLocally lists source/target pairs local codecs cannot handle.
// "*" matches any target.
var unsupportedLocally = map[string][]string{
	"tiff": {"avif"},
	"gif":  {"avif"},
	"bmp":  {"avif"},
	"heic": {"*"},
	"heif": {"*"},
}

// Options configures a Client.
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	JWTSecret      string
	LargeFileBytes int64
	LowMemoryGB    float64
	ProbeTTL       time.Duration
	HTTPClient     *http.Client
}

// Client delegates conversions to a remote edge endpoint.
type Client struct {
	baseURL        string
	http           *http.Client
	secret         []byte
	largeFileBytes int64
	lowMemoryGB    float64
	probeTTL       time.Duration

	probes    singleflight.Group
	mu        sync.Mutex
	probedAt  time.Time
	available bool
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ProbeTTL <= 0 {
		opts.ProbeTTL = DefaultProbeTTL
	}
	if opts.LargeFileBytes <= 0 {
		opts.LargeFileBytes = 80 << 20
	}
	if opts.LowMemoryGB <= 0 {
		opts.LowMemoryGB = 4
	}
	hc := &http.Client{}
	if opts.HTTPClient != nil {
		copied := *opts.HTTPClient
		hc = &copied
	}
	hc.Timeout = opts.Timeout

	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		http:           hc,
		secret:         []byte(opts.JWTSecret),
		largeFileBytes: opts.LargeFileBytes,
		lowMemoryGB:    opts.LowMemoryGB,
		probeTTL:       opts.ProbeTTL,
	}
}

// Configured reports whether an endpoint URL was given.
func (c *Client) Configured() bool { return c.baseURL != "" }

// ProcessImage posts file and settings to the endpoint and rebuilds the
// result from the response.
func (c *Client) ProcessImage(ctx context.Context, file *models.File, settings models.ConversionSettings) (*models.ConversionResult, error) {
	if !c.Configured() {
		return nil, &models.EdgeProcessingError{Message: "no edge endpoint configured"}
	}
	start := time.Now()

	body, contentType, err := c.encodeRequest(file, settings)
	if err != nil {
		return nil, &models.EdgeProcessingError{Message: "build request: " + err.Error(), Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, body)
	if err != nil {
		return nil, &models.EdgeProcessingError{Message: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	if err := c.authorize(req); err != nil {
		return nil, &models.EdgeProcessingError{Message: err.Error(), Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.markUnavailable()
		return nil, &models.EdgeProcessingError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errorFromResponse(resp)
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.EdgeProcessingError{StatusCode: resp.StatusCode, Message: "read response: " + err.Error(), Err: err}
	}
	res := resultFromResponse(resp, blob, file, settings)
	if res.ProcessingTime == 0 {
		res.ProcessingTime = time.Since(start)
	}
	logger.Debugf("[edge] %s converted remotely: %d -> %d bytes", file.Name, res.OriginalSize, res.CompressedSize)
	return res, nil
}

func (c *Client) encodeRequest(file *models.File, settings models.ConversionSettings) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
	mimeType := file.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	rc, err := file.Open()
	if err != nil {
		return nil, "", err
	}
	_, err = io.Copy(part, rc)
	rc.Close()
	if err != nil {
		return nil, "", err
	}

	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("settings", string(settingsJSON)); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func (c *Client) authorize(req *http.Request) error {
	if len(c.secret) == 0 {
		return nil
	}
	token, err := utils.CreateEdgeToken(c.secret, "pixconv-client", tokenTTL)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func errorFromResponse(resp *http.Response) error {
	msg := fmt.Sprintf("edge processing failed with status %d", resp.StatusCode)
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &models.EdgeProcessingError{StatusCode: resp.StatusCode, Message: msg}
}

// resultFromResponse keeps CompressedSize and the ratio tied to the body
// actually received; the size headers only fill what the body cannot tell.
func resultFromResponse(resp *http.Response, blob []byte, file *models.File, settings models.ConversionSettings) *models.ConversionResult {
	target := settings.TargetFormat()
	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && strings.HasPrefix(mt, "image/") {
		target = models.NormalizeFormat(mt)
	}

	original := headerInt(resp.Header, HeaderOriginalSize)
	if original == 0 {
		original = file.Size
	}
	if n := headerInt(resp.Header, HeaderCompressedSize); n != 0 && n != int64(len(blob)) {
		logger.Warnf("[edge] %s declared %d bytes but sent %d", HeaderCompressedSize, n, len(blob))
	}

	meta := models.ImageMetadata{
		Format:     target,
		Width:      int(headerInt(resp.Header, HeaderImageWidth)),
		Height:     int(headerInt(resp.Header, HeaderImageHeight)),
		ColorSpace: "srgb",
	}
	if m, err := imaging.ReadMetadata(blob); err == nil && m.Width > 0 {
		meta.Width, meta.Height = m.Width, m.Height
		meta.HasAlpha = m.HasAlpha
		meta.HasExif = m.HasExif
		meta.ColorSpace = m.ColorSpace
	}

	// X-Compression-Ratio is not read: the ratio always follows the body size.
	res := models.NewResult(blob, meta, original)
	res.Mode = models.ModeEdge
	res.ProcessingTime = time.Duration(headerInt(resp.Header, HeaderProcessingTime)) * time.Millisecond
	res.Filename = dispositionFilename(resp.Header.Get("Content-Disposition"))
	if res.Filename == "" {
		res.Filename = models.OutputName(file.Name, target)
	}
	return res
}

func headerInt(h http.Header, key string) int64 {
	v := strings.TrimSpace(h.Get(key))
	if v == "" {
		return 0
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int64(f)
	}
	return 0
}

func dispositionFilename(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

// IsAvailable probes the endpoint with a GET. Results are cached for the
// probe TTL; any failure reads as unavailable.
func (c *Client) IsAvailable(ctx context.Context) bool {
	if !c.Configured() {
		return false
	}
	c.mu.Lock()
	if !c.probedAt.IsZero() && time.Since(c.probedAt) < c.probeTTL {
		ok := c.available
		c.mu.Unlock()
		return ok
	}
	c.mu.Unlock()

	v, _, _ := c.probes.Do("probe", func() (any, error) {
		ok := c.probe(ctx)
		c.mu.Lock()
		c.available, c.probedAt = ok, time.Now()
		c.mu.Unlock()
		return ok, nil
	})
	return v.(bool)
}

func (c *Client) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return false
	}
	if err := c.authorize(req); err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Debugf("[edge] probe failed: %v", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

func (c *Client) markUnavailable() {
	c.mu.Lock()
	c.available, c.probedAt = false, time.Now()
	c.mu.Unlock()
}

// ShouldUseEdge reports whether a file is better converted remotely.
func (c *Client) ShouldUseEdge(file *models.File, src, tgt string) bool {
	if models.IsHEIF(src) || file.Size > c.largeFileBytes {
		return true
	}
	return unsupportedCombination(src, tgt)
}

func unsupportedCombination(src, tgt string) bool {
	src, tgt = models.NormalizeFormat(src), models.NormalizeFormat(tgt)
	for _, t := range unsupportedLocally[src] {
		if t == "*" || t == tgt {
			return true
		}
	}
	return false
}

// GetProcessingMode returns the edge client's view of where file should be
// converted and why. A local decision carries an empty reason.
func (c *Client) GetProcessingMode(file *models.File, src, tgt string, deviceMemory *float64) (models.Mode, string) {
	switch {
	case models.IsHEIF(src):
		return models.ModeEdge, ReasonUnsupportedFormat
	case file.Size > c.largeFileBytes:
		return models.ModeEdge, ReasonFileTooLarge
	case deviceMemory != nil && *deviceMemory < c.lowMemoryGB:
		return models.ModeEdge, ReasonLowMemory
	case c.ShouldUseEdge(file, src, tgt):
		return models.ModeEdge, ReasonUnsupportedCombination
	}
	return models.ModeLocal, ""
}
