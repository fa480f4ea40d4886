package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statCmd = &cobra.Command{
	Use:   "stat URI",
	Short: "Print metadata of a remote file or collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, p, err := setup(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		u, err := parseURI(args[0])
		if err != nil {
			return err
		}

		info, err := c.Stat(cmd.Context(), u, p)
		if err != nil {
			return err
		}
		kind := "file"
		if info.IsDir() {
			kind = "directory"
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "URI:\t%s\n", u)
		fmt.Fprintf(w, "Type:\t%s\n", kind)
		fmt.Fprintf(w, "Size:\t%d (%s)\n", info.Size, humanize.IBytes(uint64(max(info.Size, 0))))
		fmt.Fprintf(w, "Mode:\t%s\n", info.Mode)
		fmt.Fprintf(w, "Modified:\t%s\n", formatTime(info.MTime))
		fmt.Fprintf(w, "Created:\t%s\n", formatTime(info.CTime))
		return w.Flush()
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls URI",
	Short: "List a remote collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, p, err := setup(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		u, err := parseURI(args[0])
		if err != nil {
			return err
		}
		long, _ := cmd.Flags().GetBool("long")
		human, _ := cmd.Flags().GetBool("human")

		d, err := c.OpenDir(cmd.Context(), u, p)
		if err != nil {
			return err
		}
		defer d.Close()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for {
			e, ok, err := d.Next(cmd.Context())
			if err != nil {
				w.Flush()
				return err
			}
			if !ok {
				break
			}
			if !long {
				fmt.Fprintln(w, e.Name)
				continue
			}
			size := fmt.Sprint(e.Info.Size)
			if human {
				size = humanize.IBytes(uint64(max(e.Info.Size, 0)))
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Info.Mode, size, formatTime(e.Info.MTime), e.Name)
		}
		return w.Flush()
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm URI...",
	Short: "Delete remote files or collections",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, p, err := setup(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		for _, raw := range args {
			u, err := parseURI(raw)
			if err != nil {
				return err
			}
			if err := c.Delete(cmd.Context(), u, p); err != nil {
				return err
			}
		}
		return nil
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir URI...",
	Short: "Create remote collections",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, p, err := setup(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		for _, raw := range args {
			u, err := parseURI(raw)
			if err != nil {
				return err
			}
			if err := c.Mkdir(cmd.Context(), u, p); err != nil {
				return err
			}
		}
		return nil
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv SRC DST",
	Short: "Rename a remote resource on the same endpoint",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, p, err := setup(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		src, err := parseURI(args[0])
		if err != nil {
			return err
		}
		dst, err := parseURI(args[1])
		if err != nil {
			return err
		}
		return c.Move(cmd.Context(), src, dst, p)
	},
}

var sumCmd = &cobra.Command{
	Use:   "sum URI",
	Short: "Print the server-side checksum of a remote file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, p, err := setup(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		u, err := parseURI(args[0])
		if err != nil {
			return err
		}
		algo, _ := cmd.Flags().GetString("algo")

		sum, err := c.Checksum(cmd.Context(), u, p, algo)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", sum, u)
		return nil
	},
}

func init() {
	lsCmd.Flags().BoolP("long", "l", false, "Show mode, size and modification time")
	lsCmd.Flags().BoolP("human", "H", false, "Human readable sizes")
	sumCmd.Flags().String("algo", "md5", "Checksum algorithm (md5, adler32, crc32c, sha256, ...)")

	rootCmd.AddCommand(statCmd, lsCmd, rmCmd, mkdirCmd, mvCmd, sumCmd)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
