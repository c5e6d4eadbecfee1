package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/unifiedui/message-warehouse/internal/api/dto"
	"github.com/unifiedui/message-warehouse/internal/domain/models"
	"github.com/unifiedui/message-warehouse/internal/services/collections"
	"github.com/unifiedui/message-warehouse/internal/warehouse"
)

func newInsertCommand(env *Environment, opts *Options) *cobra.Command {
	var (
		message  string
		metadata []string
	)

	cmd := &cobra.Command{
		Use:   "insert",
		Short: "Store a JSON object as a message",
		Long: `Store a JSON object as a message. The object is read from --message
or, when it is empty or "-", from standard input.`,
		Example: `  warehousectl insert -c poses -m '{"x": 1}' --meta robot=r2 --meta seq=4`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			meta, err := models.ParseMetadata(metadata)
			if err != nil {
				return err
			}
			msg, err := readMessage(cmd.InOrStdin(), message)
			if err != nil {
				return err
			}

			return withCollection(cmd, env, opts, func(ctx context.Context, coll *collections.StructCollection) error {
				id, err := coll.Insert(ctx, msg, meta)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), dto.InsertMessageResponse{
					ID:    id.Hex(),
					Topic: coll.InsertionTopic(),
				})
			})
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Message JSON object")
	cmd.Flags().StringArrayVar(&metadata, "meta", nil, "Metadata key=value pair (repeatable)")
	return cmd
}

func newFindCommand(env *Environment, opts *Options) *cobra.Command {
	var (
		where        []string
		sortBy       string
		desc         bool
		limit        int64
		metadataOnly bool
		one          bool
	)

	cmd := &cobra.Command{
		Use:     "find",
		Short:   "Print the messages matching all conditions, one JSON object per line",
		Example: `  warehousectl find -c poses -w robot=r2 -w 'seq>=3' --sort seq --desc`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			query, err := parseQuery(where)
			if err != nil {
				return err
			}
			order := models.SortOrderAsc
			if desc {
				order = models.SortOrderDesc
			}

			return withCollection(cmd, env, opts, func(ctx context.Context, coll *collections.StructCollection) error {
				out := cmd.OutOrStdout()
				if one {
					result, err := coll.FindOne(ctx, query, metadataOnly)
					if err != nil {
						return err
					}
					return writeResult(out, result, metadataOnly)
				}

				results, err := coll.QueryResults(ctx, query, &models.QueryOptions{
					MetadataOnly: metadataOnly,
					SortBy:       sortBy,
					Order:        order,
					Limit:        limit,
				})
				if err != nil {
					return err
				}
				defer results.Close(context.Background())

				for results.Next(ctx) {
					if err := writeResult(out, results.Result(), metadataOnly); err != nil {
						return err
					}
				}
				return results.Err()
			})
		},
	}

	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "Condition such as robot=r2, 'seq>=3' or 'label=~a,b' (repeatable)")
	cmd.Flags().StringVar(&sortBy, "sort", "", "Sort by this metadata field")
	cmd.Flags().BoolVar(&desc, "desc", false, "Sort in descending order")
	cmd.Flags().Int64Var(&limit, "limit", 0, "Return at most this many messages")
	cmd.Flags().BoolVar(&metadataOnly, "metadata-only", false, "Skip loading message payloads")
	cmd.Flags().BoolVar(&one, "one", false, "Return a single message, failing when none matches")
	return cmd
}

func newRemoveCommand(env *Environment, opts *Options) *cobra.Command {
	var (
		where []string
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Delete the messages matching all conditions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(where) == 0 && !all {
				return fmt.Errorf("refusing to remove every message without --all")
			}
			query, err := parseQuery(where)
			if err != nil {
				return err
			}

			return withCollection(cmd, env, opts, func(ctx context.Context, coll *collections.StructCollection) error {
				removed, err := coll.RemoveMessages(ctx, query)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), dto.RemoveMessagesResponse{Removed: removed})
			})
		},
	}

	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "Condition (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "Allow removing every message when no condition is given")
	return cmd
}

func newUpdateCommand(env *Environment, opts *Options) *cobra.Command {
	var (
		where []string
		set   []string
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Merge metadata into the first message matching all conditions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(set) == 0 {
				return fmt.Errorf("at least one --set is required")
			}
			meta, err := models.ParseMetadata(set)
			if err != nil {
				return err
			}
			query, err := parseQuery(where)
			if err != nil {
				return err
			}

			return withCollection(cmd, env, opts, func(ctx context.Context, coll *collections.StructCollection) error {
				return coll.ModifyMetadata(ctx, query, meta)
			})
		},
	}

	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "Condition (repeatable)")
	cmd.Flags().StringArrayVar(&set, "set", nil, "Metadata key=value pair to set (repeatable)")
	return cmd
}

func newCountCommand(env *Environment, opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of messages in the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCollection(cmd, env, opts, func(ctx context.Context, coll *collections.StructCollection) error {
				count, err := coll.Count(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), count)
				return err
			})
		},
	}
}

func parseQuery(where []string) (*models.Query, error) {
	query := models.NewQuery()
	for _, expr := range where {
		cond, err := models.ParseCondition(expr)
		if err != nil {
			return nil, err
		}
		query.Where(cond.Field, cond.Operator, cond.Value)
	}
	return query, nil
}

func readMessage(in io.Reader, raw string) (*structpb.Struct, error) {
	if raw == "" || raw == "-" {
		data, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("failed to read message: %w", err)
		}
		raw = string(data)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("message is empty")
	}

	msg := &structpb.Struct{}
	if err := protojson.Unmarshal([]byte(raw), msg); err != nil {
		return nil, fmt.Errorf("message must be a JSON object: %w", err)
	}
	return msg, nil
}

func writeResult(w io.Writer, result *warehouse.MessageWithMetadata[*structpb.Struct], metadataOnly bool) error {
	resp := dto.MessageResponse{
		ID:           result.ID.Hex(),
		CreationTime: result.CreationTime,
		Metadata:     result.Metadata,
	}
	if resp.Metadata == nil {
		resp.Metadata = map[string]interface{}{}
	}
	if !metadataOnly {
		data, err := protojson.Marshal(result.Message)
		if err != nil {
			return err
		}
		resp.Message = json.RawMessage(data)
	}
	return writeJSON(w, resp)
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
