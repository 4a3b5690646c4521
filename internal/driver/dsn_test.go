package driver

import (
	"strings"
	"testing"
)

func TestParseDSN(t *testing.T) {
	tests := []struct {
		in      string
		scheme  string
		rest    string
		wantErr bool
	}{
		{"postgres://u:p@localhost:5432/db", "postgres", "u:p@localhost:5432/db", false},
		{"mysql://root@127.0.0.1/app", "mysql", "root@127.0.0.1/app", false},
		{"sqlite:///tmp/x.db", "sqlite", "/tmp/x.db", false},
		{"/var/data/app.db", "sqlite", "/var/data/app.db", false},
		{"app.db", "sqlite", "app.db", false},
		{"", "", "", true},
		{"://rest", "", "", true},
		{strings.Repeat("x", MaxDSNLen+1), "", "", true},
	}
	for _, tt := range tests {
		dsn, err := ParseDSN(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDSN(%.20q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDSN(%q): %v", tt.in, err)
			continue
		}
		if dsn.Scheme != tt.scheme || dsn.Rest != tt.rest {
			t.Errorf("ParseDSN(%q) = %+v", tt.in, dsn)
		}
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://alice:pw@db.example.com:5432/orders", "alice@db.example.com/orders"},
		{"postgres://db.example.com/orders", "db.example.com/orders"},
		{"mysql://root@localhost", "root@localhost"},
		{"/var/data/app.db", "app.db"},
		{"sqlite:///home/me/notes.sqlite", "notes.sqlite"},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.in); got != tt.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactPassword(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:secret@h/db", "postgres://u:***@h/db"},
		{"postgres://u@h/db", "postgres://u@h/db"},
		{"app.db", "app.db"},
		{"mysql://u:p@ss@h/db", "mysql://u:***@h/db"}, // password may contain @
	}
	for _, tt := range tests {
		if got := RedactPassword(tt.in); got != tt.want {
			t.Errorf("RedactPassword(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitPassword(t *testing.T) {
	tests := []struct {
		in       string
		stripped string
		password string
	}{
		{"postgres://u:secret@h/db", "postgres://u@h/db", "secret"},
		{"postgres://u@h/db", "postgres://u@h/db", ""},
		{"mysql://u:p@ss@h/db", "mysql://u@h/db", "p@ss"},
		{"app.db", "app.db", ""},
	}
	for _, tt := range tests {
		stripped, pw := SplitPassword(tt.in)
		if stripped != tt.stripped || pw != tt.password {
			t.Errorf("SplitPassword(%q) = %q, %q", tt.in, stripped, pw)
		}
	}
}
