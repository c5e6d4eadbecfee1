package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/unifiedui/message-warehouse/internal/core/notify"
	"github.com/unifiedui/message-warehouse/internal/services/collections"
	"github.com/unifiedui/message-warehouse/internal/warehouse"
)

func newIndexCommand(env *Environment, opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "index FIELD",
		Short: "Create an ascending index on a metadata field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCollection(cmd, env, opts, func(ctx context.Context, coll *collections.StructCollection) error {
				return coll.EnsureIndex(ctx, args[0])
			})
		},
	}
}

func newSchemasCommand(env *Environment, opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "schemas",
		Short: "List the message collections of the database and their types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			s, err := openSession(ctx, env, opts)
			if err != nil {
				return err
			}
			defer s.Close(context.Background())

			entries, err := s.registry.Schemas(ctx, opts.Database)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTYPE\tMD5SUM")
			for _, entry := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", entry.Name, entry.Type, entry.MD5Sum)
			}
			return tw.Flush()
		},
	}
}

func newWatchCommand(env *Environment, opts *Options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the metadata of every message inserted into the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := warehouse.ValidateNames(opts.Database, opts.Collection); err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			publisher, err := env.NewPublisher(opts)
			if err != nil {
				return err
			}
			defer publisher.Close()

			topic := warehouse.InsertionTopic(opts.Database, opts.Collection)
			sub, err := publisher.Subscribe(ctx, topic)
			if err != nil {
				if stderrors.Is(err, notify.ErrSubscribeUnsupported) {
					return fmt.Errorf("watch needs --notify redis: %w", err)
				}
				return err
			}
			defer sub.Close()

			out := cmd.OutOrStdout()
			for seen := 0; limit == 0 || seen < limit; seen++ {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-sub.Events():
					if !ok {
						return fmt.Errorf("subscription to %s closed", topic)
					}
					if _, err := fmt.Fprintln(out, string(event.Payload)); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "max", 0, "Exit after this many inserts (0 watches forever)")
	return cmd
}
