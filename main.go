package main

// chapterd keeps a local archive of web comic chapters up to date.
//
// Package structure:
// - models/     : Titles, sources, chapter outcomes and run reports
// - config/     : Catalog (JSON) and engine settings (YAML), build version
// - sites/      : Site adapters, built-in site table and registry
// - browser/    : Render session over chromedp
// - downloader/ : Discovery HTTP client and sequential image fetcher
// - archive/    : Local chapter tree, provenance markers, staging and commit
// - engine/     : Acquisition workflow across titles
// - diag/, history/, ui/ : Snapshots, run history, terminal output
// - cmd/        : cobra commands

import "chapterd/cmd"

func main() {
	cmd.Execute()
}
