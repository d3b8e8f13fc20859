package main

import (
	"encoding/json"
	"fmt"
	goruntime "runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// buildVersion prefers the ldflags version, then the module version
// recorded by `go install`.
func buildVersion() string {
	if version != "0.1.0-dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return version
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			v := buildVersion()
			out := cmd.OutOrStdout()
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(out).Encode(map[string]string{
					"version": v,
					"commit":  commit,
					"date":    date,
					"go":      goruntime.Version(),
				})
				return
			}
			fmt.Fprintf(out, "livegraph %s (commit: %s, built: %s, %s)\n", v, commit, date, goruntime.Version())
		},
	}
}
