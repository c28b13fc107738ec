package cli

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	smb2 "github.com/macos-fuse-t/smbclient/client"
	wire "github.com/macos-fuse-t/smbclient/internal/smb2"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newTable(w io.Writer, headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

func (a *app) lsCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "ls [PATH]",
		Short: "List a remote directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arg := ""
			if len(args) > 0 {
				arg = args[0]
			}

			c, dir, err := a.dial(cmd.Context(), arg)
			if err != nil {
				return err
			}
			defer c.Close()

			entries, err := c.List(cmd.Context(), dir)
			if err != nil {
				return err
			}

			table := newTable(cmd.OutOrStdout(), "Name", "Size", "Modified", "Type")
			for _, e := range entries {
				size := humanize.IBytes(uint64(e.Size))
				if raw {
					size = fmt.Sprint(e.Size)
				}
				kind := "file"
				if e.IsDirectory {
					kind, size = "dir", "-"
				}
				table.Append([]string{e.Name, size, e.ModifiedAt.Local().Format(time.DateTime), kind})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "bytes", false, "print sizes in bytes")
	return cmd
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get REMOTE [LOCAL]",
		Short: "Download a remote file",
		Long:  "Download REMOTE into LOCAL. When LOCAL is a directory (the default is the current one) the remote name is kept.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local := "."
			if len(args) > 1 {
				local = args[1]
			}

			c, remote, err := a.dial(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer c.Close()

			start := time.Now()
			n, err := c.Get(cmd.Context(), remote, local)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "got %s (%s in %s)\n", remote, humanize.Bytes(uint64(n)), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func (a *app) putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put LOCAL [REMOTE]",
		Short: "Upload a local file",
		Long:  "Upload LOCAL to REMOTE, replacing an existing file. A REMOTE ending in / receives the local name.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			remote := ""
			if len(args) > 1 {
				remote = args[1]
			}

			c, dst, err := a.dial(cmd.Context(), remote)
			if err != nil {
				return err
			}
			defer c.Close()

			start := time.Now()
			n, err := c.Put(cmd.Context(), args[0], dst)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "put %s (%s in %s)\n", args[0], humanize.Bytes(uint64(n)), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func (a *app) mkdirCmd() *cobra.Command {
	var parents bool

	cmd := &cobra.Command{
		Use:   "mkdir PATH",
		Short: "Create a remote directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, dir, err := a.dial(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer c.Close()

			if !parents {
				return c.Mkdir(cmd.Context(), dir)
			}

			p := ""
			for _, elem := range strings.Split(strings.Trim(strings.ReplaceAll(dir, `\`, "/"), "/"), "/") {
				if elem == "" {
					continue
				}
				p = path.Join(p, elem)
				if err := c.Mkdir(cmd.Context(), p); err != nil && !errors.Is(err, smb2.ErrAlreadyExists) {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&parents, "parents", "p", false, "create missing parents, no error if the directory exists")
	return cmd
}

func (a *app) existsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists PATH",
		Short: "Report whether a remote file or directory exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, p, err := a.dial(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer c.Close()

			ok, err := c.Exists(cmd.Context(), p)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), ok)
			return nil
		},
	}
}

func (a *app) sharesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shares NAME...",
		Short: "Check access to shares",
		Long:  "Connect every named share over one session and report the ones that were accepted.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.dial(cmd.Context(), "")
			if err != nil {
				return err
			}
			defer c.Close()

			w := cmd.OutOrStdout()
			who := "user"
			if c.IsGuest() {
				who = "guest"
			}
			fmt.Fprintf(w, "dialect %s, %s session\n", wire.DialectName(c.Dialect()), who)

			failed := 0
			table := newTable(w, "Share", "Status")
			for _, name := range args {
				status := "ok"
				if _, err := c.Mount(cmd.Context(), name); err != nil {
					status = err.Error()
					failed++
				}
				table.Append([]string{name, status})
			}
			table.Render()

			if failed > 0 {
				return fmt.Errorf("%d of %d shares failed", failed, len(args))
			}
			return nil
		},
	}
}
