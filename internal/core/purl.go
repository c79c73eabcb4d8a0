package core

import (
	"strings"

	packageurl "github.com/package-url/packageurl-go"
)

// purlTypes maps server format names to PURL types where they differ.
var purlTypes = map[string]string{
	"rubygems": "gem",
	"go":       "golang",
	"gomod":    "golang",
	"gradle":   "maven",
	"ivy":      "maven",
	"sbt":      "maven",
	"helm":     "helm",
	"docker":   "docker",
	"oci":      "oci",
	"php":      "composer",
	"bower":    "npm",
	"yarn":     "npm",
}

// PURLType returns the PURL type for a server format.
func PURLType(format string) string {
	format = strings.ToLower(format)
	if t, ok := purlTypes[format]; ok {
		return t
	}
	if format == "" {
		return "generic"
	}
	return format
}

// PURL wraps packageurl.PackageURL with server-specific helpers.
type PURL struct {
	packageurl.PackageURL
}

// FullName returns the package name in the format expected by the server.
// For npm: "@babel/core", for maven: "org.apache.commons:commons-lang3"
func (p PURL) FullName() string {
	if p.Namespace == "" {
		return p.Name
	}

	switch p.Type {
	case "maven":
		return p.Namespace + ":" + p.Name
	default:
		// packageurl-go keeps @ in npm namespaces, so "@babel" + "/" + "core" = "@babel/core"
		return p.Namespace + "/" + p.Name
	}
}

// ParsePURL parses a Package URL string into its components.
// Supports both package PURLs (pkg:npm/lodash) and version PURLs (pkg:npm/lodash@4.17.21).
func ParsePURL(purl string) (*PURL, error) {
	p, err := packageurl.FromString(purl)
	if err != nil {
		return nil, err
	}
	return &PURL{p}, nil
}

// IsPURL reports whether a query looks like a Package URL.
func IsPURL(query string) bool {
	return strings.HasPrefix(strings.TrimSpace(query), "pkg:")
}

// BuildPURL returns the PURL string for a package in the given server format.
func BuildPURL(format, name, version string) string {
	typ := PURLType(format)
	namespace, short := splitName(typ, name)
	return packageurl.NewPackageURL(typ, namespace, short, version, nil, "").ToString()
}

// PURL returns the item's Package URL.
func (i Item) PURL() string {
	return BuildPURL(i.Format, i.Name, i.Version)
}

// splitName is the inverse of FullName.
func splitName(typ, name string) (namespace, short string) {
	sep := "/"
	if typ == "maven" {
		sep = ":"
	}
	idx := strings.LastIndex(name, sep)
	if idx <= 0 {
		return "", name
	}
	return name[:idx], name[idx+1:]
}
