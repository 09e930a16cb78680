package database

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
		want    Config
	}{
		{
			name: "postgres defaults",
			cfg:  Config{Host: "db", Name: "vocal"},
			want: Config{Driver: DriverPostgres, Host: "db", Name: "vocal", Port: "5432", SSLMode: "disable",
				MaxConnections: 10, MigrationsDir: filepath.Join("migrations", "postgres")},
		},
		{
			name: "sqlite uses one connection",
			cfg:  Config{Driver: "SQLite", Path: "data/v.db", MaxConnections: 8},
			want: Config{Driver: DriverSQLite, Path: "data/v.db", MaxConnections: 1,
				MigrationsDir: filepath.Join("migrations", "sqlite")},
		},
		{name: "postgres needs host", cfg: Config{Name: "vocal"}, wantErr: "database.host"},
		{name: "sqlite needs path", cfg: Config{Driver: "sqlite"}, wantErr: "database.path"},
		{name: "unknown driver", cfg: Config{Driver: "mysql"}, wantErr: "invalid database.driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.Normalize()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			if cfg != tt.want {
				t.Fatalf("got %+v\nwant %+v", cfg, tt.want)
			}
		})
	}
}

func TestMigrateURLEscapesCredentials(t *testing.T) {
	cfg := Config{Driver: DriverPostgres, User: "bot", Password: "p@ss/w", Host: "db", Port: "5432", Name: "vocal", SSLMode: "disable"}
	want := "postgres://bot:p%40ss%2Fw@db:5432/vocal?sslmode=disable"
	if got := cfg.MigrateURL(); got != want {
		t.Fatalf("MigrateURL = %q, want %q", got, want)
	}
	sqlite := Config{Driver: DriverSQLite, Path: "data/v.db"}
	if got := sqlite.MigrateURL(); got != "sqlite://data/v.db" {
		t.Fatalf("sqlite MigrateURL = %q", got)
	}
}

func TestUpMigrations(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"000010_reviews.up.sql",
		"000002_index.up.sql",
		"000002_index.down.sql",
		"000001_bookings.up.sql",
		"notes.up.sql",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	files := upMigrations(dir)
	want := []string{"000001_bookings.up.sql", "000002_index.up.sql", "000010_reviews.up.sql"}
	if got := names(files); !reflect.DeepEqual(got, want) {
		t.Fatalf("files = %v, want %v", got, want)
	}
	if got := names(between(files, 1, 10)); !reflect.DeepEqual(got, want[1:]) {
		t.Fatalf("between(1,10) = %v", got)
	}
	if got := between(files, 10, 10); len(got) != 0 {
		t.Fatalf("between(10,10) = %v", got)
	}
}
