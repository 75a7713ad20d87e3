package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TouhouGleaners/danmaku-sender/internal/model"
)

func newInfoCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info <bvid>",
		Short: "Show a video's title and parts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			client, err := a.client()
			if err != nil {
				return err
			}

			info, err := client.GetVideoInfo(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("%s\n", info.Title)
			fmt.Printf("duration: %s, %d part(s)\n", model.FormatProgress(info.DurationMS), len(info.Pages))
			for _, p := range info.Pages {
				fmt.Printf("  p%-3d cid=%-12d %-8s %s\n", p.Page, p.CID, model.FormatProgress(p.DurationMS), p.Part)
			}
			return nil
		},
	}
}
