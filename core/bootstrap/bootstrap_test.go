package bootstrap

import (
	"errors"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/vocalbot/core/config"
	coredatabase "github.com/m3rciful/vocalbot/core/database"
)

type recorder struct {
	calls []string
	fail  string
}

func (r *recorder) options() Options {
	step := func(name string) error {
		r.calls = append(r.calls, name)
		if name == r.fail {
			return errors.New(name + " broke")
		}
		return nil
	}
	return Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { return step("logger") },
		Connect: func(coredatabase.Config) (*sqlx.DB, error) {
			if err := step("database"); err != nil {
				return nil, err
			}
			return sqlx.NewDb(nil, "sqlite"), nil
		},
		Migrate: func(coredatabase.Config) error { return step("migrations") },
	}
}

func TestRunStages(t *testing.T) {
	tests := []struct {
		fail      string
		wantCalls string
	}{
		{fail: "", wantCalls: "logger,database,migrations"},
		{fail: "logger", wantCalls: "logger"},
		{fail: "database", wantCalls: "logger,database"},
	}
	for _, tt := range tests {
		t.Run("fail="+tt.fail, func(t *testing.T) {
			r := &recorder{fail: tt.fail}
			res, err := Run(r.options())
			if got := strings.Join(r.calls, ","); got != tt.wantCalls {
				t.Fatalf("calls = %s, want %s", got, tt.wantCalls)
			}
			if tt.fail == "" {
				if err != nil || res == nil || res.DB == nil {
					t.Fatalf("Run = %v, %v", res, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), "bootstrap: "+tt.fail) {
				t.Fatalf("err = %v, want stage %s", err, tt.fail)
			}
		})
	}
}

func TestMigrateSkipsConnect(t *testing.T) {
	r := &recorder{}
	if err := Migrate(r.options()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if got := strings.Join(r.calls, ","); got != "logger,migrations" {
		t.Fatalf("calls = %s", got)
	}
	if _, err := Run(Options{}); err == nil {
		t.Fatal("nil config must fail")
	}
}
