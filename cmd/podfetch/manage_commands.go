package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"podfetch/backend"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check that yt-dlp and ffmpeg are available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report := backend.CheckDependencies(cmd.Context(), cfg)

			rows := make([][]string, 0, len(report.Details))
			for _, st := range report.Details {
				status := "available"
				if !st.Available {
					status = "missing"
				}
				detail := st.Version
				if detail == "" {
					detail = st.Detail
				}
				rows = append(rows, []string{st.Name, status, st.Path, detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]column{left("Name"), left("Status"), left("Path"), left("Version")}, rows,
			))
			if !report.Ytdlp || !report.FFmpeg {
				return errors.New("required dependencies are missing")
			}
			return nil
		},
	}
}

func newDeviceCommand(ctx *commandContext) *cobra.Command {
	deviceCmd := &cobra.Command{
		Use:   "device",
		Short: "Portable player helpers",
	}

	deviceCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether a device is mounted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(orch *backend.Orchestrator) error {
				st := orch.CheckDevice()
				out := cmd.OutOrStdout()
				if !st.Connected {
					fmt.Fprintln(out, "No device connected")
					return nil
				}
				rockbox := "no"
				if st.HasRockbox {
					rockbox = "yes"
				}
				fmt.Fprintln(out, renderTable(
					[]column{left("Mount"), left("Rockbox"), right("Free")},
					[][]string{{st.Path, rockbox, backend.FormatFileSize(int64(st.FreeSpace))}},
				))
				return nil
			})
		},
	})

	var artist string
	copyCmd := &cobra.Command{
		Use:   "copy <file>",
		Short: "Copy a file to Music/<artist>/ on the device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(orch *backend.Orchestrator) error {
				transfer, err := orch.CopyToDevice(args[0], artist)
				if err != nil {
					return jobFailure(backend.ErrorKindOf(err), backend.UserMessage(err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Copied to %s\n", transfer.Destination)
				return nil
			})
		},
	}
	copyCmd.Flags().StringVar(&artist, "artist", "", "Artist folder name")
	deviceCmd.AddCommand(copyCmd)

	var videoArtist, title string
	videoCmd := &cobra.Command{
		Use:   "video <file>",
		Short: "Convert a video for the device and write it to Videos/<artist>/",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(orch *backend.Orchestrator) error {
				type outcome struct {
					transfer backend.DeviceTransfer
					err      error
				}
				res := runJob(cmd.Context(), orch, cmd.OutOrStdout(), func(jobCtx context.Context) outcome {
					transfer, err := orch.VideoToDevice(jobCtx, args[0], videoArtist, title)
					return outcome{transfer, err}
				})
				if res.err != nil {
					if errors.Is(res.err, backend.ErrCancelled) {
						fmt.Fprintln(cmd.OutOrStdout(), "Stopped by user")
						return jobFailure(backend.KindCancelled, "stopped by user")
					}
					return jobFailure(backend.ErrorKindOf(res.err), backend.UserMessage(res.err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Converted to %s\n", res.transfer.Destination)
				return nil
			})
		},
	}
	videoCmd.Flags().StringVar(&videoArtist, "artist", "", "Artist folder name")
	videoCmd.Flags().StringVar(&title, "title", "", "Output title (defaults to the file name)")
	deviceCmd.AddCommand(videoCmd)

	return deviceCmd
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var search string
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List finished jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(h *backend.History) error {
				var entries []backend.HistoryEntry
				var err error
				if search != "" {
					entries, err = h.Search(cmd.Context(), search)
				} else {
					entries, err = h.GetRecent(cmd.Context(), limit)
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No history")
					return nil
				}

				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					size := "-"
					if e.FileSize > 0 {
						size = backend.FormatFileSize(e.FileSize)
					}
					rows = append(rows, []string{
						e.ID,
						e.CompletedAt.Local().Format(time.DateTime),
						kindLabel(e.Status),
						string(e.Kind),
						e.Title,
						e.Artist,
						size,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]column{left("ID"), left("Finished"), left("Status"), left("Kind"), left("Title"), left("Artist"), right("Size")},
					rows,
				))
				return nil
			})
		},
	}
	historyCmd.Flags().StringVarP(&search, "search", "s", "", "Filter by title, artist, album or URL")
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show (0 for all)")

	historyCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Summarise finished jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(h *backend.History) error {
				stats, err := h.GetStats(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]column{right("Total"), right("Completed"), right("Failed"), right("Cancelled"), right("Size")},
					[][]string{{
						fmt.Sprint(stats.Total),
						fmt.Sprint(stats.Completed),
						fmt.Sprint(stats.Failed),
						fmt.Sprint(stats.Cancelled),
						backend.FormatFileSize(stats.TotalSize),
					}},
				))
				return nil
			})
		},
	})

	historyCmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Remove one history entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(h *backend.History) error {
				if err := h.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Deleted")
				return nil
			})
		},
	})

	historyCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove all history entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(h *backend.History) error {
				if err := h.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
				return nil
			})
		},
	})

	return historyCmd
}

func withHistory(ctx *commandContext, fn func(*backend.History) error) error {
	return ctx.withEngine(func(orch *backend.Orchestrator) error {
		h := orch.History()
		if h == nil {
			return errors.New("history is disabled")
		}
		return fn(h)
	})
}
