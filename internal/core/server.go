package core

import "context"

// Server is the interface implemented by artifact repository API clients.
type Server interface {
	// Search returns items matching query, at most limit of them, in server order.
	Search(ctx context.Context, query string, limit int) (*Page, error)

	// ListRepositories returns every repository visible to the caller.
	ListRepositories(ctx context.Context) ([]Repository, error)

	// ListPackages returns packages stored in a repository.
	ListPackages(ctx context.Context, repo string, limit int) (*PackagePage, error)

	// FetchPackage retrieves package metadata.
	FetchPackage(ctx context.Context, repo, name string) (*Package, error)

	// FetchVersions retrieves all versions of a package.
	FetchVersions(ctx context.Context, repo, name string) ([]Version, error)

	// FetchScore retrieves the security score of a package version.
	FetchScore(ctx context.Context, repo, name, version string) (*Score, error)

	// FetchAccount returns the account the credentials belong to.
	FetchAccount(ctx context.Context) (*Account, error)

	// Ping checks that the server is reachable.
	Ping(ctx context.Context) error

	// URLs returns the URL builder for this server.
	URLs() URLBuilder
}
