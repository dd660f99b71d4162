package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/drake/carremote/ui"
	"github.com/drake/carremote/ui/style"
)

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List recently connected devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		h := a.history()
		if forget, _ := cmd.Flags().GetBool("clear"); forget {
			h.Clear()
			return h.Save()
		}

		out := ui.NewConsole(strings.NewReader(""), cmd.OutOrStdout(), style.Plain())
		out.ShowPeers(h.Recent())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(peersCmd)
	peersCmd.Flags().Bool("clear", false, "forget all recent devices")
}
