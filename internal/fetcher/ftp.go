package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/graintrack/weighbridge-cli/internal/resilience"
)

// FTPOptions configures the FTP fetcher. Scale-house drops are usually
// credentialed; empty credentials fall back to anonymous login.
type FTPOptions struct {
	User     string
	Password string
	Timeout  time.Duration
}

// FTPFetcher downloads weighbridge exports from an FTP drop directory.
type FTPFetcher struct {
	opts  FTPOptions
	retry resilience.RetryConfig
}

// NewFTPFetcher creates a new FTPFetcher with the given options.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User = "anonymous"
		opts.Password = "anonymous@"
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("ftp", "download")
	return &FTPFetcher{opts: opts, retry: retry}
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host string, p string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "ftp: parse url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("ftp: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	if u.Path == "" {
		return "", "", eris.New("ftp: empty path in url")
	}
	return host, u.Path, nil
}

func (f *FTPFetcher) connect(ctx context.Context, host string) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "ftp: dial")
	}
	if err := conn.Login(f.opts.User, f.opts.Password); err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "ftp: login")
	}
	return conn, nil
}

// ftpConnReader wraps an FTP response and connection so that closing the
// reader also closes the response and disconnects from the server.
type ftpConnReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpConnReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpConnReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "ftp: close response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "ftp: quit connection")
	}
	return nil
}

// Download connects to the FTP server, retrieves the file, and returns a
// reader. The caller must close the returned ReadCloser to release the
// connection.
func (f *FTPFetcher) Download(ctx context.Context, ftpURL string) (io.ReadCloser, error) {
	host, filePath, err := parseFTPURL(ftpURL)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("ftp: connecting", zap.String("host", host), zap.String("path", filePath))

	conn, err := f.connect(ctx, host)
	if err != nil {
		return nil, err
	}

	resp, err := conn.Retr(filePath)
	if err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "ftp: retrieve")
	}

	return &ftpConnReader{resp: resp, conn: conn}, nil
}

// DownloadToFile downloads the FTP URL to a local file, retrying transient
// connection failures. Returns bytes written.
func (f *FTPFetcher) DownloadToFile(ctx context.Context, ftpURL string, dest string) (int64, error) {
	return resilience.DoVal(ctx, f.retry, func(ctx context.Context) (int64, error) {
		rc, err := f.Download(ctx, ftpURL)
		if err != nil {
			return 0, err
		}
		defer rc.Close()

		file, err := os.Create(dest)
		if err != nil {
			return 0, eris.Wrap(err, "ftp: create file")
		}
		defer file.Close()

		n, err := io.Copy(file, rc)
		if err != nil {
			return n, eris.Wrap(err, "ftp: write file")
		}
		return n, nil
	})
}

// LatestFile lists the drop directory at the given FTP URL and returns the
// full URL of the newest entry whose name ends with the given suffix
// (e.g. ".xlsx"). Scale houses overwrite nothing, so the newest file is the
// current day's export.
func (f *FTPFetcher) LatestFile(ctx context.Context, dirURL, suffix string) (string, error) {
	host, dirPath, err := parseFTPURL(dirURL)
	if err != nil {
		return "", err
	}

	conn, err := f.connect(ctx, host)
	if err != nil {
		return "", err
	}
	defer conn.Quit()

	entries, err := conn.List(dirPath)
	if err != nil {
		return "", eris.Wrap(err, "ftp: list directory")
	}

	var newest *ftp.Entry
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile {
			continue
		}
		if suffix != "" && !strings.HasSuffix(strings.ToLower(e.Name), strings.ToLower(suffix)) {
			continue
		}
		if newest == nil || e.Time.After(newest.Time) {
			newest = e
		}
	}
	if newest == nil {
		return "", eris.Errorf("ftp: no %s files in %s", suffix, dirPath)
	}

	u, err := url.Parse(dirURL)
	if err != nil {
		return "", eris.Wrap(err, "ftp: parse dir url")
	}
	u.Path = path.Join(u.Path, newest.Name)
	return u.String(), nil
}
