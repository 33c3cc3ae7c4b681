package pgconn

import (
	"net/url"
	"strings"

	"github.com/jkantaria/pgcolumn/internal/pgerr"
)

// Dsn is a parsed connection string: postgres(ql)?://[user[:password]@]host[:port][/dbname][?params].
type Dsn struct {
	User     string
	Password string
	Host     string
	Port     string
	Database string
	Params   map[string]string
}

// ParseDSN parses a connection string using net/url rather
// than a hand-rolled regex since the grammar is a
// plain URL with an optional scheme-specific alias.
func ParseDSN(raw string) (*Dsn, *pgerr.InvalidDsnError) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &pgerr.InvalidDsnError{Kind: pgerr.DsnParseError, Detail: err.Error()}
	}

	switch u.Scheme {
	case "postgres", "postgresql":
	default:
		return nil, &pgerr.InvalidDsnError{Kind: pgerr.DsnInvalidDriver, Detail: u.Scheme}
	}

	hasUser := u.User != nil && u.User.Username() != ""
	hasHost := u.Host != ""
	switch {
	case !hasUser && !hasHost:
		return nil, &pgerr.InvalidDsnError{Kind: pgerr.DsnMissingUserAndNetloc}
	case !hasUser:
		return nil, &pgerr.InvalidDsnError{Kind: pgerr.DsnMissingUser}
	case !hasHost:
		return nil, &pgerr.InvalidDsnError{Kind: pgerr.DsnMissingNetloc}
	}

	d := &Dsn{
		User:     u.User.Username(),
		Host:     u.Hostname(),
		Port:     u.Port(),
		Database: strings.TrimPrefix(u.Path, "/"),
		Params:   map[string]string{},
	}
	if pw, ok := u.User.Password(); ok {
		d.Password = pw
	}
	if d.Port == "" {
		d.Port = "5432"
	}
	for k, v := range u.Query() {
		if len(v) > 0 {
			d.Params[k] = v[0]
		}
	}
	return d, nil
}

// Address returns the host:port dial target.
func (d *Dsn) Address() string {
	return d.Host + ":" + d.Port
}
