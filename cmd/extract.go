package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pactwatch/contract-cli/internal/model"
)

var (
	extractDir    string
	extractSave   bool
	extractRefine bool
)

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Extract structured fields from a contract document",
	Long:  "Renders the document to page images, sends all pages to Claude vision in one call, and prints the normalized contract record. With --dir, processes every file in a directory concurrently.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("extract"); err != nil {
			return err
		}
		if extractDir == "" && len(args) == 0 {
			return eris.New("either a file argument or --dir is required")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if extractDir != "" {
			return extractBatch(cmd, env, extractDir)
		}
		return extractOne(cmd, env, args[0])
	},
}

func extractOne(cmd *cobra.Command, env *appEnv, path string) error {
	ctx := cmd.Context()

	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "read %s", path)
	}

	doc := model.RawDocument{Name: filepath.Base(path), Data: data}
	rec, err := env.Extractor.Extract(ctx, doc)
	if err != nil {
		return eris.Wrapf(err, "extract %s", path)
	}
	rec = maybeRefine(cmd, env, doc, rec)

	if extractSave {
		saved, err := env.Store.SaveContract(ctx, *rec)
		if err != nil {
			return err
		}
		rec = saved
		zap.L().Info("contract saved", zap.String("id", rec.ID))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

// extractBatch processes every regular file in dir with bounded
// concurrency. A file that fails is logged and skipped; the batch
// continues.
func extractBatch(cmd *cobra.Command, env *appEnv, dir string) error {
	ctx := cmd.Context()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return eris.Wrapf(err, "read dir %s", dir)
	}

	var (
		mu      sync.Mutex
		records []model.ContractRecord
		failed  int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Extract.MaxConcurrent)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				zap.L().Warn("skipping unreadable file", zap.String("path", path), zap.Error(err))
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}

			doc := model.RawDocument{Name: filepath.Base(path), Data: data}
			rec, err := env.Extractor.Extract(gctx, doc)
			if err != nil {
				zap.L().Warn("extraction failed", zap.String("path", path), zap.Error(err))
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			rec = maybeRefine(cmd, env, doc, rec)

			mu.Lock()
			records = append(records, *rec)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].SourceFile < records[j].SourceFile
	})

	if extractSave && len(records) > 0 {
		n, err := env.Store.SaveContracts(ctx, records)
		if err != nil {
			return err
		}
		zap.L().Info("batch saved", zap.Int("contracts", n))
	}

	zap.L().Info("batch extraction complete",
		zap.Int("extracted", len(records)),
		zap.Int("failed", failed),
	)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// maybeRefine runs the second validation pass against the document's
// plain text. Any failure keeps the unrefined record; a failed refinement
// never loses a successful extraction.
func maybeRefine(cmd *cobra.Command, env *appEnv, doc model.RawDocument, rec *model.ContractRecord) *model.ContractRecord {
	if !extractRefine && !cfg.Extract.Refine {
		return rec
	}
	if env.Refiner == nil || env.Text == nil {
		return rec
	}

	text, err := env.Text.ExtractText(cmd.Context(), doc)
	if err != nil || text == "" {
		if err != nil {
			zap.L().Warn("text extraction failed, skipping refinement",
				zap.String("file", doc.Name), zap.Error(err))
		}
		return rec
	}

	refined, err := env.Refiner.Refine(cmd.Context(), *rec, text)
	if err != nil {
		zap.L().Warn("refinement failed, keeping first-pass record",
			zap.String("file", doc.Name), zap.Error(err))
		return rec
	}
	return refined
}

func init() {
	extractCmd.Flags().StringVar(&extractDir, "dir", "", "extract every document in a directory")
	extractCmd.Flags().BoolVar(&extractSave, "save", false, "persist extracted contracts to the store")
	extractCmd.Flags().BoolVar(&extractRefine, "refine", false, "run a second validation pass against the document text")
	rootCmd.AddCommand(extractCmd)
}
