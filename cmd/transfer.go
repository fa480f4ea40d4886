package cmd

import (
	"fmt"
	"io"
	"os"
	"path"
	"sync/atomic"

	"github.com/LeeDigitalWorks/zapdav/pkg/client"
	"github.com/LeeDigitalWorks/zapdav/pkg/copier"
	"github.com/LeeDigitalWorks/zapdav/pkg/types"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// transferOptions builds the progress and throttling hooks for one file.
func transferOptions(cmd *cobra.Command, size int64, desc string) (*client.Transfer, *progressbar.ProgressBar, error) {
	t := &client.Transfer{}
	f := NewFlagLoader(cmd)
	bps, err := f.Bytes("limit_rate")
	if err != nil {
		return nil, nil, err
	}
	if bps > 0 {
		t.Limiter = client.NewBandwidthLimit(bps)
	}
	if f.Bool("quiet") {
		return t, nil, nil
	}
	bar := progressbar.DefaultBytes(size, desc)
	t.Progress = func(done int64) { bar.Set64(done) }
	return t, bar, nil
}

var getCmd = &cobra.Command{
	Use:   "get URI [FILE]",
	Short: "Download a remote file; FILE defaults to the base name, '-' is stdout",
	Args:  cobra.RangeArgs(1, 2),
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

		target := path.Base(u.Path())
		if len(args) == 2 {
			target = args[1]
		}
		var w io.Writer = os.Stdout
		if target != "-" {
			f, err := os.Create(target)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		} else {
			cmd.Flags().Set("quiet", "true")
		}

		size := int64(-1)
		if info, err := c.Stat(cmd.Context(), u, p); err == nil && !info.IsDir() {
			size = info.Size
		}
		t, bar, err := transferOptions(cmd, size, "get "+target)
		if err != nil {
			return err
		}
		_, err = c.Get(cmd.Context(), u, p, w, t)
		if bar != nil {
			bar.Finish()
		}
		return err
	},
}

var putCmd = &cobra.Command{
	Use:   "put FILE URI",
	Short: "Upload a local file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, p, err := setup(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		u, err := parseURI(args[1])
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		st, err := f.Stat()
		if err != nil {
			return err
		}

		t, bar, err := transferOptions(cmd, st.Size(), "put "+path.Base(args[0]))
		if err != nil {
			return err
		}
		err = c.Put(cmd.Context(), u, p, f, st.Size(), t)
		if bar != nil {
			bar.Finish()
		}
		return err
	},
}

var cpCmd = &cobra.Command{
	Use:   "cp SRC DST",
	Short: "Copy between two remote endpoints",
	Long: `Copy SRC to DST. By default data streams through this host and
collections are copied recursively. With --third_party the server holding
SRC pushes the data to DST itself (WebDAV COPY with performance markers).`,
	Args: cobra.ExactArgs(2),
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
		quiet, _ := cmd.Flags().GetBool("quiet")
		out := cmd.ErrOrStderr()

		if tpc, _ := cmd.Flags().GetBool("third_party"); tpc {
			streams, _ := cmd.Flags().GetInt("streams")
			opts := copier.ThirdPartyOptions{Streams: streams}
			if !quiet {
				opts.Callback = func(pd types.PerformanceData) {
					fmt.Fprintf(out, "\r%s transferred, %s/s", humanize.IBytes(uint64(pd.TotalTransferred())), humanize.IBytes(uint64(max(pd.DiffTransfer(), 0))))
				}
			}
			err := c.ThirdPartyCopy(cmd.Context(), src, dst, p, opts)
			if !quiet {
				fmt.Fprintln(out)
			}
			return err
		}

		workers, _ := cmd.Flags().GetInt("workers")
		var files, bytes atomic.Int64
		err = c.CopyTree(cmd.Context(), src, dst, client.CopyOptions{
			Workers:   workers,
			SrcParams: p,
			DstParams: p,
			OnFile: func(s, d *uri.URI, size int64, err error) {
				if err != nil {
					fail("%s: %v", s, err)
					return
				}
				files.Add(1)
				bytes.Add(size)
				if !quiet {
					fmt.Fprintf(out, "%s -> %s (%s)\n", s, d, humanize.IBytes(uint64(size)))
				}
			},
		})
		if !quiet {
			fmt.Fprintf(out, "%d files, %s copied\n", files.Load(), humanize.IBytes(uint64(bytes.Load())))
		}
		return err
	},
}

func init() {
	for _, c := range []*cobra.Command{getCmd, putCmd, cpCmd} {
		c.Flags().BoolP("quiet", "q", false, "No progress output")
	}
	getCmd.Flags().String("limit_rate", "", "Bandwidth limit, e.g. 10MB")
	putCmd.Flags().String("limit_rate", "", "Bandwidth limit, e.g. 10MB")
	cpCmd.Flags().Bool("third_party", false, "Let the source server push the data (WebDAV COPY)")
	cpCmd.Flags().Int("streams", copier.DefaultStreams, "Streams requested for a third party copy")
	cpCmd.Flags().Int("workers", 4, "Files copied in parallel")

	rootCmd.AddCommand(getCmd, putCmd, cpCmd)
}
