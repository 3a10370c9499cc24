package main

import (
	"context"
	"fmt"
	"net/url"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/basin-labs/controlsite/internal/config"
	"github.com/basin-labs/controlsite/internal/fetcher"
)

var (
	fetchURL     string
	fetchOut     string
	fetchExtract bool
	fetchList    bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download a dataset over HTTP or FTP",
	Long: `Downloads one dataset file into the data directory. HTTP transfers
are retried with backoff and rate limited per host; when
fetch.token_url is configured the request carries an OAuth2
client-credentials token. FTP URLs use anonymous login.

Examples:
  controlsite fetch --url https://example.org/boundaries/mh.zip
  controlsite fetch --url ftp://mirror.example.org/srtm/slope.tif --out data/srtm_slope.tif
  controlsite fetch --url https://example.org/boundaries/mh.zip --extract
  controlsite fetch --url ftp://mirror.example.org/srtm/ --list`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		if fetchList {
			return listFTP(ctx, fetchURL)
		}

		dl, err := fetcherFor(ctx, fetchURL, cfg.Fetch)
		if err != nil {
			return err
		}

		out, err := outputPath(fetchURL, fetchOut, cfg.Data.Dir)
		if err != nil {
			return err
		}

		n, err := dl.DownloadToFile(ctx, fetchURL, out)
		if err != nil {
			return eris.Wrap(err, "download")
		}
		zap.L().Info("download complete",
			zap.String("url", fetchURL),
			zap.String("path", out),
			zap.Int64("bytes", n),
		)
		fmt.Printf("Downloaded %s (%d bytes)\n", out, n)

		if fetchExtract && strings.EqualFold(filepath.Ext(out), ".zip") {
			files, err := fetcher.ExtractZIP(out, filepath.Dir(out))
			if err != nil {
				return eris.Wrap(err, "extract archive")
			}
			for _, f := range files {
				fmt.Println("  " + f)
			}
			fmt.Printf("Extracted %d files\n", len(files))
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchURL, "url", "", "dataset URL, http(s):// or ftp:// (required)")
	fetchCmd.Flags().StringVar(&fetchOut, "out", "", "output path (default data dir + URL basename)")
	fetchCmd.Flags().BoolVar(&fetchExtract, "extract", false, "extract a downloaded .zip next to itself")
	fetchCmd.Flags().BoolVar(&fetchList, "list", false, "list an FTP directory instead of downloading")
	_ = fetchCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(fetchCmd)
}

// downloader is the fetch surface this command needs; both the HTTP and
// FTP fetchers provide it.
type downloader interface {
	DownloadToFile(ctx context.Context, url, path string) (int64, error)
}

// fetcherFor picks the transport for a URL. HTTP fetchers carry the
// configured timeout, retries, and per-host rate limits, plus an OAuth2
// token source when one is configured.
func fetcherFor(ctx context.Context, rawURL string, fc config.FetchConfig) (downloader, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "parse url %s", rawURL)
	}

	timeout := time.Duration(fc.TimeoutSecs) * time.Second

	switch u.Scheme {
	case "ftp":
		return fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout}), nil
	case "http", "https":
		limiters := fetcher.DefaultRateLimiters()
		if _, known := limiters[u.Host]; !known && fc.RatePerSecond > 0 {
			burst := int(fc.RatePerSecond)
			if burst < 1 {
				burst = 1
			}
			limiters[u.Host] = rate.NewLimiter(rate.Limit(fc.RatePerSecond), burst)
		}
		opts := fetcher.HTTPOptions{
			Timeout:      timeout,
			MaxRetries:   fc.MaxRetries,
			RateLimiters: limiters,
		}
		if fc.TokenURL != "" {
			return fetcher.NewOAuthFetcher(ctx, fetcher.OAuthOptions{
				TokenURL:     fc.TokenURL,
				ClientID:     fc.ClientID,
				ClientSecret: fc.ClientSecret,
			}, opts)
		}
		return fetcher.NewHTTPFetcher(opts), nil
	default:
		return nil, eris.Errorf("unsupported url scheme %q", u.Scheme)
	}
}

// outputPath resolves where a download lands: the explicit --out path,
// or the URL basename inside the data directory.
func outputPath(rawURL, out, dataDir string) (string, error) {
	if out != "" {
		return out, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrapf(err, "parse url %s", rawURL)
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return "", eris.Errorf("cannot derive a file name from %s; pass --out", rawURL)
	}
	return filepath.Join(dataDir, base), nil
}

func listFTP(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return eris.Wrapf(err, "parse url %s", rawURL)
	}
	if u.Scheme != "ftp" {
		return eris.New("--list requires an ftp:// url")
	}

	ftp := fetcher.NewFTPFetcher(fetcher.FTPOptions{
		Timeout: time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
	})
	names, err := ftp.List(ctx, rawURL)
	if err != nil {
		return eris.Wrap(err, "list directory")
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}
