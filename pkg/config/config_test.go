package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type sample struct {
	Name    string        `yaml:"name" toml:"name"`
	Workers int           `yaml:"workers" toml:"workers"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

func (s *sample) Validate() error {
	if s.Workers < 1 {
		return errors.New("workers must be positive")
	}
	return nil
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_YAMLWithEnv(t *testing.T) {
	t.Setenv("ANSUZ_TEST_NAME", "from-env")
	p := writeConfig(t, "c.yaml", "name: ${ANSUZ_TEST_NAME}\nworkers: 3\ntimeout: 5s\n")

	s := sample{Workers: 1}
	if err := Load(p, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "from-env" || s.Workers != 3 || s.Timeout != 5*time.Second {
		t.Errorf("got %+v", s)
	}
}

func TestLoad_TOML(t *testing.T) {
	p := writeConfig(t, "c.toml", "name = \"toml\"\nworkers = 2\ntimeout = \"1m\"\n")

	s := sample{Workers: 1}
	if err := Load(p, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "toml" || s.Workers != 2 || s.Timeout != time.Minute {
		t.Errorf("got %+v", s)
	}
}

func TestLoad_MissingFileKeepsDefaults(t *testing.T) {
	s := sample{Name: "default", Workers: 1}
	if err := Load(filepath.Join(t.TempDir(), "absent.yaml"), &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "default" {
		t.Errorf("defaults changed: %+v", s)
	}
}

func TestLoad_ValidationError(t *testing.T) {
	p := writeConfig(t, "c.yaml", "workers: 0\n")
	s := sample{Workers: 1}
	err := Load(p, &s)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("err = %v", err)
	}
}

func TestLoad_ParseError(t *testing.T) {
	p := writeConfig(t, "c.yaml", "workers: [unclosed\n")
	s := sample{Workers: 1}
	if err := Load(p, &s); err == nil || !strings.Contains(err.Error(), "failed to parse") {
		t.Errorf("err = %v", err)
	}
}
