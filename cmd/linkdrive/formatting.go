package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/arthur-debert/linkdrive/pkg/types"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

func printDrives(cmd *cobra.Command, tc *toolchain, all []types.Drive) {
	out := cmd.OutOrStdout()

	if len(all) == 0 {
		fmt.Fprintln(out, MsgNoDrives)
		return
	}

	fmt.Fprintln(out, headerStyle.Render("Connected drives:"))
	for _, drive := range all {
		marker := "  "
		if drive.ID == tc.state.DriveID {
			marker = okStyle.Render("* ")
		}
		line := fmt.Sprintf("%s%s  %s", marker, drive.DisplayName, dimStyle.Render(drive.MountPath))
		if usage, err := tc.dir.Usage(drive.MountPath); err == nil {
			line += "  " + dimStyle.Render(usage)
		}
		fmt.Fprintln(out, line)
	}
}

func printStatus(cmd *cobra.Command, tc *toolchain) error {
	out := cmd.OutOrStdout()

	mountPath, err := tc.dir.ResolveMountPath(tc.state.DriveID)
	if err != nil {
		return err
	}

	if mountPath == "" {
		fmt.Fprintf(out, "%s %s\n", headerStyle.Render("Drive:"),
			warnStyle.Render(fmt.Sprintf("%q not mounted", tc.state.DriveID)))
	} else {
		line := fmt.Sprintf("%q mounted at %s", tc.state.DriveID, mountPath)
		if usage, uerr := tc.dir.Usage(mountPath); uerr == nil {
			line += "  " + dimStyle.Render(usage)
		}
		fmt.Fprintf(out, "%s %s\n", headerStyle.Render("Drive:"), okStyle.Render(line))
	}

	fmt.Fprintln(out, headerStyle.Render("Links:"))
	for _, link := range tc.state.Links {
		decision, state, perr := tc.rec.Plan(link, mountPath)
		if perr != nil {
			fmt.Fprintf(out, "  %s  %s\n", link.Name, badStyle.Render(perr.Error()))
			continue
		}

		var rendered string
		if decision.Action == types.ActionNoOp {
			rendered = okStyle.Render(decision.Reason)
		} else {
			rendered = warnStyle.Render(fmt.Sprintf("%s (%s)", decision.Action, decision.Reason))
		}
		fmt.Fprintf(out, "  %-8s %s  %s\n", link.Name, dimStyle.Render(state.String()), rendered)
	}
	return nil
}
