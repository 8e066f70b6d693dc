package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"podfetch/backend"
)

func newInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "info <url>",
		Short: "Show metadata for a single item or playlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(orch *backend.Orchestrator) error {
				info, err := orch.GetInfo(cmd.Context(), args[0])
				if err != nil {
					return jobFailure(backend.ErrorKindOf(err), backend.UserMessage(err))
				}
				printInfo(cmd.OutOrStdout(), info)
				return nil
			})
		},
	}
}

func printInfo(out io.Writer, info *backend.MetadataResult) {
	if info.Type == backend.ResultPlaylist {
		title := ""
		if len(info.Data) > 0 {
			title = info.Data[0].PlaylistTitle
		}
		fmt.Fprintf(out, "Playlist %s (%d entries)\n", title, len(info.Data))
	}

	rows := make([][]string, 0, len(info.Data))
	for i := range info.Data {
		rec := &info.Data[i]
		meta := backend.NormalizeTrack(rec)
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			meta.Title,
			meta.Artist,
			formatDuration(rec.Info.Duration),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]column{right("#"), left("Title"), left("Artist"), right("Duration")},
		rows,
	))
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	d := time.Duration(seconds) * time.Second
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func newTrackCommand(ctx *commandContext) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "track <url>",
		Short: "Download audio as AAC in an .m4a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(orch *backend.Orchestrator) error {
				dest := dir
				if dest == "" {
					dest = orch.Config().AudioDirectory()
				}
				result := runJob(cmd.Context(), orch, cmd.OutOrStdout(), func(jobCtx context.Context) backend.JobResult {
					return orch.DownloadTrack(jobCtx, args[0], dest)
				})
				return reportResult(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Destination folder (defaults to <output>/Audio)")
	return cmd
}

func newVideoCommand(ctx *commandContext) *cobra.Command {
	var dir string
	var device bool
	cmd := &cobra.Command{
		Use:   "video <url>",
		Short: "Download video as H.264/AAC .mp4",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			variant := backend.VariantNormal
			if device {
				variant = backend.VariantDevice
			}
			return ctx.withEngine(func(orch *backend.Orchestrator) error {
				dest := dir
				if dest == "" {
					dest = orch.Config().VideoDirectory()
				}
				result := runJob(cmd.Context(), orch, cmd.OutOrStdout(), func(jobCtx context.Context) backend.JobResult {
					return orch.DownloadVideo(jobCtx, args[0], dest, variant)
				})
				return reportResult(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Destination folder (defaults to <output>/Videos)")
	cmd.Flags().BoolVar(&device, "device", false, "Encode for portable players (320px wide, baseline profile)")
	return cmd
}

// reportResult prints a successful result, or turns a failed one into the
// command's error. A stopped job exits non-zero without an error line.
func reportResult(out io.Writer, result backend.JobResult) error {
	if !result.Success {
		if result.ErrorKind == backend.KindCancelled {
			fmt.Fprintln(out, "Stopped by user")
			return jobFailure(result.ErrorKind, "stopped by user")
		}
		return jobFailure(result.ErrorKind, result.Error)
	}

	fmt.Fprintf(out, "Saved %s\n", result.File)
	fmt.Fprintf(out, "  Title:  %s\n", result.Title)
	fmt.Fprintf(out, "  Artist: %s\n", result.Artist)
	if result.Album != "" {
		fmt.Fprintf(out, "  Album:  %s\n", result.Album)
	}
	return nil
}

// failure is a job that ended without a file. Its kind picks the exit status.
type failure struct {
	kind    backend.ErrorKind
	message string
}

func (f *failure) Error() string {
	if f.kind == "" {
		return f.message
	}
	return kindLabel(string(f.kind)) + ": " + f.message
}

func jobFailure(kind backend.ErrorKind, message string) error {
	return &failure{kind: kind, message: message}
}
