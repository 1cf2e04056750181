package main

import (
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/graintrack/weighbridge-cli/internal/fetcher"
)

var (
	fetchURL     string
	fetchCompany string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download an export from FTP/HTTP and ingest it",
	Long:  "Downloads a spreadsheet from an ftp:// or http(s):// source and ingests it. An FTP URL ending in / is treated as a drop directory: the newest matching file is taken.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		u, err := url.Parse(fetchURL)
		if err != nil {
			return eris.Wrap(err, "parse url")
		}

		srcURL := fetchURL
		var f fetcher.Fetcher
		switch u.Scheme {
		case "ftp":
			ftpFetcher := fetcher.NewFTPFetcher(fetcher.FTPOptions{
				User:     cfg.Fetch.FTPUser,
				Password: cfg.Fetch.FTPPassword,
				Timeout:  time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			})
			if strings.HasSuffix(u.Path, "/") {
				srcURL, err = ftpFetcher.LatestFile(ctx, fetchURL, cfg.Fetch.FileSuffix)
				if err != nil {
					return eris.Wrap(err, "find latest export")
				}
			}
			f = ftpFetcher
		case "http", "https":
			f = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
				UserAgent:  cfg.Fetch.UserAgent,
				Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
				MaxRetries: cfg.Fetch.MaxRetries,
				RateLimit:  cfg.Fetch.RateLimit,
			})
		default:
			return eris.Errorf("unsupported scheme %q (want ftp, http, or https)", u.Scheme)
		}

		downloadDir := cfg.Fetch.DownloadDir
		if downloadDir == "" {
			downloadDir, err = os.MkdirTemp("", "weighbridge-fetch")
			if err != nil {
				return eris.Wrap(err, "create download dir")
			}
			defer os.RemoveAll(downloadDir)
		}

		srcParsed, err := url.Parse(srcURL)
		if err != nil {
			return eris.Wrap(err, "parse source url")
		}
		dest := filepath.Join(downloadDir, path.Base(srcParsed.Path))

		n, err := f.DownloadToFile(ctx, srcURL, dest)
		if err != nil {
			return eris.Wrapf(err, "download %s", srcURL)
		}
		zap.L().Info("export downloaded",
			zap.String("url", srcURL),
			zap.String("dest", dest),
			zap.Int64("bytes", n),
		)

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close()

		result, err := ingestFile(ctx, st, dest, fetchCompany)
		if err != nil {
			return err
		}
		logBatchResult(result, srcURL)
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchURL, "url", "", "ftp:// or http(s):// source (required)")
	fetchCmd.Flags().StringVar(&fetchCompany, "company", "", "company ID for rows without a company column")
	_ = fetchCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(fetchCmd)
}
