package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/recstore"
	"github.com/unkn0wn-root/recstore/codec"
)

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key> <field>",
		Short: "Print a field and the record generation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := storeFor[string](a, codec.String{})
			if err != nil {
				return err
			}
			v, gen, err := st.Get(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s\tgen=%d\n", v, gen)
			return nil
		},
	}
}

func newPutCmd(a *app) *cobra.Command {
	var (
		ttl   time.Duration
		ifGen int64
	)
	cmd := &cobra.Command{
		Use:   "put <key> <field> <value>",
		Short: "Write a field, optionally only at an expected generation",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := storeFor[string](a, codec.String{})
			if err != nil {
				return err
			}
			var gen uint64
			if ifGen >= 0 {
				gen, err = st.PutIfGeneration(cmd.Context(), args[0], args[1], args[2], uint64(ifGen), ttl)
			} else {
				gen, err = st.Put(cmd.Context(), args[0], args[1], args[2], ttl)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "gen=%d\n", gen)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "record TTL (0 = configured default, negative = no expiry)")
	cmd.Flags().Int64Var(&ifGen, "if-gen", -1, "write only if the record is at this generation (0 = must not exist)")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := storeFor[string](a, codec.String{})
			if err != nil {
				return err
			}
			if err := st.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "deleted")
			return nil
		},
	}
}

func newTouchCmd(a *app) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "touch <key>",
		Short: "Reset a record TTL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := storeFor[string](a, codec.String{})
			if err != nil {
				return err
			}
			gen, err := st.Touch(cmd.Context(), args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "gen=%d\n", gen)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "record TTL (0 = configured default, negative = no expiry)")
	return cmd
}

func newBatchCmd(a *app) *cobra.Command {
	var chunk, conc int
	cmd := &cobra.Command{
		Use:   "batch <field> <key>...",
		Short: "Read one field from many records, in argument order",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := storeFor[string](a, codec.String{})
			if err != nil {
				return err
			}
			cfg := st.Config()
			if chunk > 0 {
				cfg = cfg.WithChunkSize(chunk)
			}
			if conc > 0 {
				cfg = cfg.WithMaxConcurrentBatches(conc)
			}
			if st, err = st.WithConfig(cfg); err != nil {
				return err
			}
			res, err := st.BatchRead(cmd.Context(), args[1:], args[0])
			if err != nil {
				return err
			}
			for _, r := range res {
				if !r.Found {
					fmt.Fprintf(a.out, "%s\t(missing)\n", r.Key)
					continue
				}
				fmt.Fprintf(a.out, "%s\t%s\tgen=%d\n", r.Key, r.Value, r.Generation)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&chunk, "chunk", 0, "keys per round-trip (0 = configured)")
	cmd.Flags().IntVar(&conc, "concurrency", 0, "chunks per wave (0 = configured)")
	return cmd
}

// incr keeps counters as decimal strings so get/put can read and write them.
func newIncrCmd(a *app) *cobra.Command {
	var (
		by  int64
		ttl time.Duration
	)
	cmd := &cobra.Command{
		Use:   "incr <key> <field>",
		Short: "Atomically add to a decimal counter field (read-modify-write)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := storeFor[string](a, codec.String{})
			if err != nil {
				return err
			}
			var next string
			gen, err := st.ReadModifyWrite(cmd.Context(), recstore.RMWRequest[string]{
				Key:   args[0],
				Field: args[1],
				TTL:   ttl,
				Add: func() (string, error) {
					next = strconv.FormatInt(by, 10)
					return next, nil
				},
				Update: func(prev string) (string, error) {
					n, err := strconv.ParseInt(prev, 10, 64)
					if err != nil {
						return "", fmt.Errorf("field is not a decimal counter: %w", err)
					}
					next = strconv.FormatInt(n+by, 10)
					return next, nil
				},
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s\tgen=%d\n", next, gen)
			return nil
		},
	}
	cmd.Flags().Int64Var(&by, "by", 1, "increment")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "record TTL (0 = configured default, negative = no expiry)")
	return cmd
}
