package geo

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const ftpDialTimeout = 30 * time.Second

// ftpTarget is a parsed ftp:// URL. Without userinfo the login is anonymous.
type ftpTarget struct {
	host     string
	path     string
	user     string
	password string
}

func parseFTPURL(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "parse ftp url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return ftpTarget{}, eris.New("empty path in ftp url")
	}

	t := ftpTarget{host: u.Host, path: u.Path, user: "anonymous", password: "anonymous@"}
	if _, _, splitErr := net.SplitHostPort(t.host); splitErr != nil {
		t.host = net.JoinHostPort(t.host, "21")
	}
	if u.User != nil && u.User.Username() != "" {
		t.user = u.User.Username()
		t.password, _ = u.User.Password()
	}
	return t, nil
}

// downloadFTP retrieves rawURL into dest.
func downloadFTP(ctx context.Context, rawURL, dest string) error {
	t, err := parseFTPURL(rawURL)
	if err != nil {
		return err
	}
	zap.L().Debug("geo: ftp connecting", zap.String("host", t.host), zap.String("path", t.path))

	conn, err := ftp.Dial(t.host, ftp.DialWithTimeout(ftpDialTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return eris.Wrap(err, "ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(t.user, t.password); err != nil {
		return eris.Wrap(err, "ftp login")
	}
	resp, err := conn.Retr(t.path)
	if err != nil {
		return eris.Wrap(err, "ftp retrieve")
	}
	defer resp.Close() //nolint:errcheck

	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "create file")
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(f, resp); err != nil {
		return eris.Wrap(err, "write file")
	}
	return nil
}
