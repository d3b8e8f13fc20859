package visualization

import "embed"

// templates contains the embedded HTML page.
//
//go:embed templates/*
var templates embed.FS
