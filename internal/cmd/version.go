package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	versionExtended bool
	versionJSON     bool
)

type versionReport struct {
	Binary      string `json:"binary"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Commit      string `json:"commit,omitempty"`
	BuildDate   string `json:"build_date,omitempty"`
	GoVersion   string `json:"go_version,omitempty"`
	Gofulmen    string `json:"gofulmen,omitempty"`
	Crucible    string `json:"crucible,omitempty"`
	BotAPI      string `json:"bot_api,omitempty"`
}

func buildVersionReport(extended bool) versionReport {
	report := versionReport{Version: versionInfo.Version}
	if identity := GetAppIdentity(); identity != nil {
		report.Binary = identity.BinaryName
		if extended {
			report.Description = identity.Description
		}
	}
	if !extended {
		return report
	}

	libs := crucible.GetVersion()
	report.Commit = versionInfo.Commit
	report.BuildDate = versionInfo.BuildDate
	report.GoVersion = runtime.Version()
	report.Gofulmen = libs.Gofulmen
	report.Crucible = libs.Crucible
	report.BotAPI = viper.GetString("telegram.base_url")
	return report
}

func writeVersionReport(w io.Writer, report versionReport, extended bool) error {
	if _, err := fmt.Fprintf(w, "%s %s\n", report.Binary, report.Version); err != nil || !extended {
		return err
	}
	if report.Description != "" {
		fmt.Fprintf(w, "%s\n\n", report.Description)
	}
	fmt.Fprintf(w, "Commit:   %s\n", report.Commit)
	fmt.Fprintf(w, "Built:    %s\n", report.BuildDate)
	fmt.Fprintf(w, "Go:       %s\n", report.GoVersion)
	fmt.Fprintf(w, "Gofulmen: %s\n", report.Gofulmen)
	fmt.Fprintf(w, "Crucible: %s\n", report.Crucible)
	_, err := fmt.Fprintf(w, "Bot API:  %s\n", report.BotAPI)
	return err
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for build, library and Bot API details.",
	RunE: func(cmd *cobra.Command, args []string) error {
		report := buildVersionReport(versionExtended || versionJSON)
		if versionJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		return writeVersionReport(cmd.OutOrStdout(), report, versionExtended)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&versionExtended, "extended", "e", false, "show extended version information")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "print extended version information as JSON")
}
