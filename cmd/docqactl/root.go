package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"gopherai-docqa/internal/app"
	"gopherai-docqa/internal/bootstrap"
	"gopherai-docqa/internal/config"
	"gopherai-docqa/internal/model"
)

// engine is what the commands need from a running corpus.
type engine interface {
	Upload(ctx context.Context, files []app.UploadFile) *app.UploadResult
	Ask(ctx context.Context, question string) (*app.AskResult, error)
	Documents() []model.Document
	DeleteDocument(ctx context.Context, id string) error
	History(ctx context.Context, limit int) ([]model.ChatRecord, error)
	Close() error
}

var (
	eng        engine
	configFile string
)

var rootCmd = &cobra.Command{
	Use:          "docqactl",
	Short:        "Operate the document Q&A corpus",
	Long:         `Ingest PDFs, ask grounded questions and manage documents without going through the HTTP API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default configs/config.toml)")
	rootCmd.PersistentPreRunE = openEngine
	rootCmd.PersistentPostRunE = closeEngine
}

// openEngine builds the corpus from configuration unless one is already set.
func openEngine(cmd *cobra.Command, _ []string) error {
	if eng != nil {
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env failed: %v", err)
	}
	if configFile != "" {
		if err := os.Setenv("CONFIG_FILE", configFile); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}
	a, err := bootstrap.Build(cmd.Context(), cfg, bootstrap.Options{})
	if err != nil {
		return err
	}
	eng = &appEngine{app: a}
	return nil
}

func closeEngine(*cobra.Command, []string) error {
	if eng == nil {
		return nil
	}
	err := eng.Close()
	eng = nil
	return err
}

type appEngine struct {
	app *bootstrap.App
}

func (e *appEngine) Upload(ctx context.Context, files []app.UploadFile) *app.UploadResult {
	return e.app.Pipeline.Upload(ctx, files)
}

func (e *appEngine) Ask(ctx context.Context, question string) (*app.AskResult, error) {
	return e.app.Orchestrator.Ask(ctx, question)
}

func (e *appEngine) Documents() []model.Document {
	return e.app.Registry.List()
}

func (e *appEngine) DeleteDocument(ctx context.Context, id string) error {
	return e.app.Registry.Delete(ctx, id)
}

func (e *appEngine) History(ctx context.Context, limit int) ([]model.ChatRecord, error) {
	return e.app.Ledger.List(ctx, limit)
}

func (e *appEngine) Close() error {
	return e.app.Close()
}
