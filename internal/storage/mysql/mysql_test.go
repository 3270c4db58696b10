package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestDSN(t *testing.T) {
	dsn := Config{
		User:     "booking",
		Password: "secret",
		Host:     "db",
		Port:     "3306",
		Name:     "hotels",
	}.DSN()

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("generated dsn %q does not parse: %v", dsn, err)
	}

	if cfg.Addr != "db:3306" || cfg.DBName != "hotels" || cfg.User != "booking" || cfg.Passwd != "secret" {
		t.Fatalf("unexpected connection settings: %+v", cfg)
	}

	if !cfg.ParseTime || !cfg.ClientFoundRows {
		t.Fatalf("expected parseTime and clientFoundRows in %q", dsn)
	}

	if !strings.Contains(dsn, "charset=utf8mb4") {
		t.Fatalf("expected utf8mb4 charset in %q", dsn)
	}
}

func TestIsolation(t *testing.T) {
	cases := map[string]sql.IsolationLevel{
		"READ COMMITTED": sql.LevelReadCommitted,
		"SERIALIZABLE":   sql.LevelSerializable,
		"":               sql.LevelDefault,
	}

	for level, want := range cases {
		if got := isolation(level); got != want {
			t.Errorf("isolation(%q) = %v, want %v", level, got, want)
		}
	}
}

func TestWritesRequireTransaction(t *testing.T) {
	s := &Store{}

	if err := s.RemoveBooking(context.Background(), "b-1"); !errors.Is(err, ErrNoTransaction) {
		t.Fatalf("expected ErrNoTransaction, got %v", err)
	}

	if err := s.CommitTransaction(context.Background()); !errors.Is(err, ErrNoTransaction) {
		t.Fatalf("expected ErrNoTransaction, got %v", err)
	}
}
