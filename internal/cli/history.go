package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TouhouGleaners/danmaku-sender/internal/history"
	"github.com/TouhouGleaners/danmaku-sender/internal/model"
)

type historyOptions struct {
	keyword string
	status  string
	limit   int
}

func newHistoryCommand(opts *RootOptions) *cobra.Command {
	ho := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse recorded submissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			store, err := a.store()
			if err != nil {
				return err
			}
			defer store.Close()

			filter := history.QueryFilter{Keyword: ho.keyword, Limit: ho.limit}
			if ho.status != "" {
				st, err := history.ParseStatus(ho.status)
				if err != nil {
					return err
				}
				filter.Status = &st
			}

			recs, err := store.Query(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Println("no records")
				return nil
			}
			for _, r := range recs {
				vis := ""
				if !r.Visible {
					vis = " (hidden)"
				}
				fmt.Printf("%-10s %s  cid=%-12d %-8s %s%s\n",
					r.Status, r.SentAt.Format("2006-01-02 15:04"), r.CID,
					model.FormatProgress(r.Progress), r.Content, vis)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&ho.keyword, "keyword", "", "substring filter on content")
	cmd.Flags().StringVar(&ho.status, "status", "", "filter by status (pending|verified|lost)")
	cmd.Flags().IntVar(&ho.limit, "limit", 50, "maximum rows")

	return cmd
}
