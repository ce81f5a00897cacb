package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ApproverDirectory maps workflow roles to the accounts that act for them.
// Entries are email addresses; an empty entry means "first active holder of
// the role".
type ApproverDirectory struct {
	Security       string `yaml:"security"`
	IT             string `yaml:"it"`
	Manager        string `yaml:"manager"`
	DefaultHandler string `yaml:"default_handler"`
}

// LoadApprovers reads the directory from a YAML file. A missing file yields an
// empty directory so role holders are looked up instead.
func LoadApprovers(path string) (ApproverDirectory, error) {
	var dir ApproverDirectory
	if strings.TrimSpace(path) == "" {
		return dir, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return dir, nil
		}
		return dir, fmt.Errorf("read approvers file: %w", err)
	}
	if err := yaml.Unmarshal(data, &dir); err != nil {
		return dir, fmt.Errorf("parse approvers file %s: %w", path, err)
	}
	dir.normalize()
	return dir, nil
}

func (d *ApproverDirectory) normalize() {
	d.Security = strings.ToLower(strings.TrimSpace(d.Security))
	d.IT = strings.ToLower(strings.TrimSpace(d.IT))
	d.Manager = strings.ToLower(strings.TrimSpace(d.Manager))
	d.DefaultHandler = strings.ToLower(strings.TrimSpace(d.DefaultHandler))
}
