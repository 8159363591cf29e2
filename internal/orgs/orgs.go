// ABOUTME: Static organization directory mapping org identifiers to display names
// ABOUTME: Loaded from TOML, consulted read-only for inbound validation and prompt context

package orgs

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ErrUnknownOrg is returned when a supplied org identifier does not resolve
// to a directory entry. Callers must reject the request before starting a turn.
var ErrUnknownOrg = errors.New("unknown organization")

//go:embed default_orgs.toml
var defaultDirectory []byte

// Organization is a single directory entry.
type Organization struct {
	ID   string `toml:"id"`
	Name string `toml:"name"`
}

// directoryFile is the on-disk TOML shape.
type directoryFile struct {
	Version       string         `toml:"version"`
	Organizations []Organization `toml:"organization"`
}

// Directory is a static, versioned mapping from org identifier to display name.
// It is immutable after Load and safe for concurrent reads.
type Directory struct {
	version string
	byID    map[string]Organization
}

// Load reads an organization directory from the TOML file at path.
// An empty path loads the embedded default directory.
func Load(path string) (*Directory, error) {
	data := defaultDirectory
	if path != "" {
		fileData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading org directory: %w", err)
		}
		data = fileData
	}
	return parse(data)
}

func parse(data []byte) (*Directory, error) {
	var file directoryFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing org directory: %w", err)
	}

	byID := make(map[string]Organization, len(file.Organizations))
	for _, org := range file.Organizations {
		if org.ID == "" {
			return nil, fmt.Errorf("org directory entry %q has no id", org.Name)
		}
		if _, dup := byID[org.ID]; dup {
			return nil, fmt.Errorf("duplicate org id %q in directory", org.ID)
		}
		byID[org.ID] = org
	}

	return &Directory{version: file.Version, byID: byID}, nil
}

// Version returns the directory's version string.
func (d *Directory) Version() string {
	return d.version
}

// Lookup resolves an org identifier to its directory entry.
// Returns ErrUnknownOrg when the identifier has no entry.
func (d *Directory) Lookup(orgID string) (Organization, error) {
	org, ok := d.byID[orgID]
	if !ok {
		return Organization{}, fmt.Errorf("%w: %q", ErrUnknownOrg, orgID)
	}
	return org, nil
}

// Known reports whether orgID resolves to a directory entry.
func (d *Directory) Known(orgID string) bool {
	_, ok := d.byID[orgID]
	return ok
}

// Len returns the number of directory entries.
func (d *Directory) Len() int {
	return len(d.byID)
}
