// Package report downloads the generated PDF report of an analysis.
//
// Downloads do not go through the api package's AuthTransport: the PDF
// endpoint is fetched with a plain http.Client and the bearer header is
// built here from the session. Without a session no request is made.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/DaewiLF/MinerIA/internal/api"
	"github.com/DaewiLF/MinerIA/internal/session"
)

// ErrDownloadFailed wraps every download failure.
var ErrDownloadFailed = errors.New("report download failed")

// ErrNoSession is returned, without any request being made, when no one is
// logged in.
var ErrNoSession = fmt.Errorf("%w: no active session", ErrDownloadFailed)

const defaultConcurrency = 4

// Options configures a Downloader.
type Options struct {
	OutputDir   string        // default "."
	VerifyPDF   bool          // parse the body and require at least one page
	Concurrency int           // DownloadAll parallelism, default 4
	Timeout     time.Duration // default 60s; ignored when HTTPClient is set
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Report is a saved report file.
type Report struct {
	ID    string
	Path  string
	Size  int64
	Pages int // 0 unless verified
}

// Downloader fetches reports and saves them as reporte_<id>.pdf.
type Downloader struct {
	root    string
	session session.Reader
	client  *http.Client
	outDir  string
	verify  bool
	limit   int
	logger  *slog.Logger
}

// New creates a Downloader for the backend at baseURL.
func New(baseURL string, sess session.Reader, opts Options) *Downloader {
	if baseURL == "" {
		baseURL = api.DefaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	outDir := opts.OutputDir
	if outDir == "" {
		outDir = "."
	}
	limit := opts.Concurrency
	if limit < 1 {
		limit = defaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		root:    api.Root(baseURL),
		session: sess,
		client:  client,
		outDir:  outDir,
		verify:  opts.VerifyPDF,
		limit:   limit,
		logger:  logger,
	}
}

// FileName returns the file name a report for id is saved under.
func FileName(id string) string {
	return "reporte_" + id + ".pdf"
}

// Download fetches the report for analysis id and publishes it in the output
// directory. The body is staged in a temporary file that is always closed
// and removed; the final file only appears once the body is complete.
func (d *Downloader) Download(ctx context.Context, id string) (Report, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return Report{}, fmt.Errorf("%w: invalid analysis id %q", ErrDownloadFailed, id)
	}

	token := d.session.Token()
	if token == "" {
		return Report{}, ErrNoSession
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.root+"/analysis/"+url.PathEscape(id)+"/pdf", nil)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/pdf")

	resp, err := d.client.Do(req)
	if err != nil {
		return Report{}, fmt.Errorf("%w: report %s: %w", ErrDownloadFailed, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Report{}, fmt.Errorf("%w: report %s: %w", ErrDownloadFailed, id, api.NewStatusError(resp))
	}

	rep, err := d.save(id, resp.Body)
	if err != nil {
		return Report{}, fmt.Errorf("%w: report %s: %w", ErrDownloadFailed, id, err)
	}
	d.logger.Info("report saved", "id", id, "path", rep.Path, "bytes", rep.Size, "pages", rep.Pages)
	return rep, nil
}

func (d *Downloader) save(id string, body io.Reader) (Report, error) {
	if err := os.MkdirAll(d.outDir, 0o755); err != nil {
		return Report{}, fmt.Errorf("creating output directory: %w", err)
	}

	tmp, err := os.CreateTemp(d.outDir, ".reporte_*.part")
	if err != nil {
		return Report{}, fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	n, err := io.Copy(tmp, body)
	if err != nil {
		return Report{}, fmt.Errorf("reading body: %w", err)
	}

	rep := Report{ID: id, Size: n}
	if d.verify {
		pages, err := countPages(tmp, n)
		if err != nil {
			return Report{}, err
		}
		rep.Pages = pages
	}

	if err := tmp.Close(); err != nil {
		return Report{}, fmt.Errorf("closing temp file: %w", err)
	}
	rep.Path = filepath.Join(d.outDir, FileName(id))
	if err := os.Rename(tmp.Name(), rep.Path); err != nil {
		return Report{}, fmt.Errorf("publishing %s: %w", rep.Path, err)
	}
	return rep, nil
}

// countPages parses r as a PDF and returns its page count.
func countPages(r io.ReaderAt, size int64) (pages int, err error) {
	// The parser panics on some malformed input.
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("not a valid PDF: %v", p)
		}
	}()

	pr, err := pdf.NewReader(r, size)
	if err != nil {
		return 0, fmt.Errorf("not a valid PDF: %w", err)
	}
	pages = pr.NumPage()
	if pages < 1 {
		return 0, fmt.Errorf("PDF has no pages")
	}
	return pages, nil
}

// DownloadAll fetches several reports concurrently. One failure does not
// stop the others; the returned reports are the successful ones in input
// order and the error joins every failure.
func (d *Downloader) DownloadAll(ctx context.Context, ids []string) ([]Report, error) {
	results := make([]Report, len(ids))
	errs := make([]error, len(ids))

	var g errgroup.Group
	g.SetLimit(d.limit)
	for i, id := range ids {
		g.Go(func() error {
			results[i], errs[i] = d.Download(ctx, id)
			return nil
		})
	}
	g.Wait()

	var out []Report
	for i := range ids {
		if errs[i] == nil {
			out = append(out, results[i])
		}
	}
	return out, errors.Join(errs...)
}
