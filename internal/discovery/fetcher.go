package discovery

import "context"

// CategoryFetcher is the single contract the discovery engine needs from an
// execution strategy: fetch the parsed rows for one category of one device.
// The foreground implementation awaits an HTTP call against the internal
// exec service; the background one drives the device transport directly.
// Job tracking, caching and normalization stay strategy-agnostic.
type CategoryFetcher interface {
	Fetch(ctx context.Context, ident *Identity, category Category) ([]map[string]any, error)
}

// RowParser turns raw command output into structured rows. The real parser
// (templates, vendor dialects) lives outside this module; the background
// fetcher only depends on this boundary.
type RowParser interface {
	Parse(command, raw string) ([]map[string]any, error)
}

// CommandRunner executes one command on a host and returns raw output.
// The SSH client implements this for the background path.
type CommandRunner interface {
	Run(ctx context.Context, host, command string) (string, error)
}
