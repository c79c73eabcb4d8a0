// Package core provides shared types, the Server interface and error classification.
package core

import (
	"strings"
	"time"
)

// Item is a single search hit.
type Item struct {
	ID         string
	Name       string
	Format     string // npm, maven, pypi, docker, ...
	Version    string
	Size       int64 // bytes
	Repository string
	UpdatedAt  time.Time
}

// Ref returns the reference identifying the item's package version.
func (i Item) Ref() Ref {
	return Ref{Repository: i.Repository, Name: i.Name, Version: i.Version}
}

// Page is an ordered page of search results, as delivered by the server.
type Page struct {
	Items   []Item
	Total   int
	HasMore bool
}

// Len returns the number of items on the page. A nil page has none.
func (p *Page) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Items)
}

// Repository describes a repository hosted on the server.
type Repository struct {
	Key          string
	Format       string
	Type         string // local, remote, virtual
	Description  string
	PackageCount int
}

// PackageSummary is a package as listed inside a repository.
type PackageSummary struct {
	Name          string
	Format        string
	LatestVersion string
	Description   string
	UpdatedAt     time.Time
}

// PackagePage is a page of packages in a repository.
type PackagePage struct {
	Packages []PackageSummary
	Total    int
}

// Package represents package metadata.
type Package struct {
	Name          string
	Repository    string
	Format        string
	Description   string
	Homepage      string
	Licenses      string
	LatestVersion string
	Metadata      map[string]any // server-specific data
}

// Version represents a specific version of a package.
type Version struct {
	Number      string
	Size        int64
	PublishedAt time.Time
	Digest      string        // sha256:...
	Status      VersionStatus // "", "yanked", "deprecated", "quarantined"
}

// VersionStatus represents the status of a package version.
type VersionStatus string

const (
	StatusNone        VersionStatus = ""
	StatusYanked      VersionStatus = "yanked"
	StatusDeprecated  VersionStatus = "deprecated"
	StatusQuarantined VersionStatus = "quarantined"
)

// Score is the security score of a package version.
type Score struct {
	Value           float64 // 0-10, higher is safer
	Grade           string  // A-F
	Vulnerabilities Vulnerabilities
	ScannedAt       time.Time
}

// Vulnerabilities counts known vulnerabilities by severity.
type Vulnerabilities struct {
	Critical int
	High     int
	Medium   int
	Low      int
}

// Total returns the number of vulnerabilities across all severities.
func (v Vulnerabilities) Total() int {
	return v.Critical + v.High + v.Medium + v.Low
}

// Account is the signed-in user.
type Account struct {
	Username    string
	Email       string
	DisplayName string
	ExpiresAt   time.Time
}

// Ref identifies a package version in a repository.
type Ref struct {
	Repository string
	Name       string
	Version    string
}

// refSep must survive strings.TrimSpace, since orchestrators trim queries
// and a versionless key ends with it.
const refSep = "\x00"

// Key encodes the ref as a single string usable as an orchestrator query.
func (r Ref) Key() string {
	return r.Repository + refSep + r.Name + refSep + r.Version
}

// String returns repo/name@version.
func (r Ref) String() string {
	s := r.Repository + "/" + r.Name
	if r.Version != "" {
		s += "@" + r.Version
	}
	return s
}

// ParseRef decodes a key produced by Ref.Key.
func ParseRef(key string) (Ref, bool) {
	parts := strings.Split(key, refSep)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return Ref{}, false
	}
	return Ref{Repository: parts[0], Name: parts[1], Version: parts[2]}, true
}

// PackageDetail bundles what a detail view shows for one package version.
type PackageDetail struct {
	Ref      Ref
	Package  *Package
	Versions []Version
	Score    *Score // nil when the version has not been scanned
}
