package driver

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MaxDSNLen bounds accepted connection strings.
const MaxDSNLen = 4096

// DSN is a parsed connection string: the scheme and everything after "://".
type DSN struct {
	Scheme string
	Rest   string
}

// ParseDSN splits a connection string on "://". A string without a scheme is
// treated as a SQLite database path.
func ParseDSN(connstr string) (DSN, error) {
	if connstr == "" {
		return DSN{}, fmt.Errorf("empty connection string")
	}
	if len(connstr) > MaxDSNLen {
		return DSN{}, fmt.Errorf("connection string exceeds %d bytes", MaxDSNLen)
	}
	scheme, rest, ok := strings.Cut(connstr, "://")
	if !ok {
		return DSN{Scheme: "sqlite", Rest: connstr}, nil
	}
	if scheme == "" {
		return DSN{}, fmt.Errorf("connection string has empty scheme")
	}
	return DSN{Scheme: scheme, Rest: rest}, nil
}

// DisplayName derives a short human name from a connection string:
// "user@host/db" for network databases, the base filename for SQLite paths.
func DisplayName(connstr string) string {
	dsn, err := ParseDSN(connstr)
	if err != nil {
		return connstr
	}
	if dsn.Scheme == "sqlite" {
		return filepath.Base(dsn.Rest)
	}
	rest := dsn.Rest
	var user string
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		cred := rest[:at]
		rest = rest[at+1:]
		if colon := strings.Index(cred, ":"); colon >= 0 {
			cred = cred[:colon]
		}
		user = cred
	}
	host := rest
	var db string
	if slash := strings.Index(rest, "/"); slash >= 0 {
		host = rest[:slash]
		db = rest[slash+1:]
	}
	if colon := strings.Index(host, ":"); colon >= 0 {
		host = host[:colon]
	}
	name := host
	if user != "" {
		name = user + "@" + name
	}
	if db != "" {
		name = name + "/" + db
	}
	return name
}

// RedactPassword replaces the password component of a connection string with
// asterisks. Strings without a password pass through unchanged.
func RedactPassword(connstr string) string {
	scheme, rest, ok := strings.Cut(connstr, "://")
	if !ok {
		return connstr
	}
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return connstr
	}
	cred := rest[:at]
	colon := strings.Index(cred, ":")
	if colon < 0 {
		return connstr
	}
	return scheme + "://" + cred[:colon] + ":***@" + rest[at+1:]
}

// SplitPassword extracts the password from a connection string, returning the
// string with the password removed and the password itself.
func SplitPassword(connstr string) (stripped, password string) {
	scheme, rest, ok := strings.Cut(connstr, "://")
	if !ok {
		return connstr, ""
	}
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return connstr, ""
	}
	cred := rest[:at]
	colon := strings.Index(cred, ":")
	if colon < 0 {
		return connstr, ""
	}
	return scheme + "://" + cred[:colon] + "@" + rest[at+1:], cred[colon+1:]
}
