package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/models"
)

var (
	mergeAbsorber   string
	mergeAbsorbee   string
	mergeForward    bool
	mergeDeactivate bool
	mergeOperator   string

	batchFile            string
	batchContinueOnError bool
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge one user into another",
	Long: `Merge moves every relation of the absorbee onto the absorber in one
transaction. Relations that would duplicate one the absorber already has are
skipped and listed in the report. By default the absorbee is forwarded to the
absorber.`,
	RunE: runMerge,
}

var mergeBatchCmd = &cobra.Command{
	Use:   "merge-batch",
	Short: "Merge every pair listed in a YAML file",
	Long: `Merge-batch validates every pair in --file first, then merges them in
order. Each pair is its own transaction. Pairs omitting forward use
MERGE_DEFAULT_FORWARD.`,
	RunE: runMergeBatch,
}

func init() {
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(mergeBatchCmd)

	mergeCmd.Flags().StringVar(&mergeAbsorber, "absorber", "", "ID of the user that survives")
	mergeCmd.Flags().StringVar(&mergeAbsorbee, "absorbee", "", "ID of the user merged away")
	mergeCmd.Flags().BoolVar(&mergeForward, "forward", true, "Forward the absorbee to the absorber")
	mergeCmd.Flags().BoolVar(&mergeDeactivate, "deactivate", false, "Deactivate the absorbee")
	mergeCmd.Flags().StringVar(&mergeOperator, "operator", "", "Operator recorded on the merge")
	_ = mergeCmd.MarkFlagRequired("absorber")
	_ = mergeCmd.MarkFlagRequired("absorbee")

	mergeBatchCmd.Flags().StringVar(&batchFile, "file", "", "YAML file listing the pairs to merge")
	mergeBatchCmd.Flags().BoolVar(&batchContinueOnError, "continue-on-error", false, "Keep going after a failed pair")
	mergeBatchCmd.Flags().StringVar(&mergeOperator, "operator", "", "Operator recorded on every merge")
	_ = mergeBatchCmd.MarkFlagRequired("file")
}

func runMerge(cmd *cobra.Command, args []string) error {
	req := models.MergeRequest{
		AbsorberID: mergeAbsorber,
		AbsorbeeID: mergeAbsorbee,
		Forward:    mergeForward,
		Deactivate: mergeDeactivate,
	}

	return withApp(operatorContext(cmd.Context()), func(ctx context.Context, a *app) error {
		report, err := a.service.Merge(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	})
}

func runMergeBatch(cmd *cobra.Command, args []string) error {
	f, err := os.Open(batchFile)
	if err != nil {
		return errors.Wrap(err, "open batch file")
	}
	defer f.Close()

	return withApp(operatorContext(cmd.Context()), func(ctx context.Context, a *app) error {
		requests, err := parseBatch(f, a.cfg.MergeDefaultForward)
		if err != nil {
			return err
		}

		failed := 0
		for i, req := range requests {
			reqCtx := appctx.SetRequestID(ctx, uuid.New().String())
			report, err := a.service.Merge(reqCtx, req)
			if err != nil {
				failed++
				a.logger.WithContext(reqCtx).WithError(err).WithFields(map[string]any{
					"entry":       i + 1,
					"absorber_id": req.AbsorberID,
					"absorbee_id": req.AbsorbeeID,
				}).Error("Batch merge failed")
				if !batchContinueOnError {
					return errors.Wrapf(err, "entry %d", i+1)
				}
				continue
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d merges failed", failed, len(requests))
		}
		return nil
	})
}

func operatorContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = appctx.SetRequestID(ctx, uuid.New().String())
	if mergeOperator != "" {
		ctx = appctx.SetOperatorID(ctx, mergeOperator)
	}
	return ctx
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
