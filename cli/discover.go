package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/macos-fuse-t/smbclient/bonjour"
	"github.com/spf13/cobra"
)

func (a *app) discoverCmd() *cobra.Command {
	var wait time.Duration
	var iface string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find SMB servers announced on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			servers, err := bonjour.Browse(cmd.Context(), wait, iface)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(servers) == 0 {
				fmt.Fprintln(w, "no servers found")
				return nil
			}

			table := newTable(w, "Name", "Address", "Host", "Info")
			for _, s := range servers {
				table.Append([]string{s.Instance, s.Addr(), strings.TrimSuffix(s.Host, "."), strings.Join(s.Text, " ")})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 3*time.Second, "how long to collect answers")
	cmd.Flags().StringVar(&iface, "iface", "", "only query the interface owning this address")
	return cmd
}
