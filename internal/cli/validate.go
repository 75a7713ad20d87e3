package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TouhouGleaners/danmaku-sender/internal/dmparse"
	"github.com/TouhouGleaners/danmaku-sender/internal/model"
	logx "github.com/TouhouGleaners/danmaku-sender/pkg/logx"
)

func newValidateCommand(opts *RootOptions) *cobra.Command {
	var durationFlag time.Duration

	cmd := &cobra.Command{
		Use:   "validate <danmaku.xml>",
		Short: "Check a danmaku file against the provider's sending rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := dmparse.ParseFile(args[0], logx.NewConsole("warn"))
			if err != nil {
				return err
			}

			issues := dmparse.Validate(items, durationFlag.Milliseconds())
			if len(issues) == 0 {
				fmt.Printf("%d item(s), all valid\n", len(items))
				return nil
			}
			for _, is := range issues {
				fmt.Printf("#%-4d %-8s %-40q %s\n",
					is.Index+1, model.FormatProgress(is.Danmaku.Progress), is.Danmaku.Msg, is.Reason)
			}
			return fmt.Errorf("%d of %d item(s) invalid", len(issues), len(items))
		},
	}

	cmd.Flags().DurationVar(&durationFlag, "duration", 0, "video duration for timestamp bounds (0 skips the check)")
	return cmd
}
