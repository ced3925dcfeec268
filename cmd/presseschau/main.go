package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jhartung/presseschau"
	"github.com/jhartung/presseschau/internal/models"
	"github.com/jhartung/presseschau/internal/storage"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	configPath string
	cfg        *storage.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "presseschau",
		Short: "Local news digest - RSS/Atom reader with on-device LLM summaries",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default: ./config/config.yaml)")

	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(readCmd())
	rootCmd.AddCommand(feedsCmd())
	rootCmd.AddCommand(categoriesCmd())
	rootCmd.AddCommand(modelCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(initConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg = storage.DefaultConfig()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// newEngine builds an engine from the loaded config file.
func newEngine() (*presseschau.Engine, error) {
	return presseschau.NewEngine(presseschau.EngineConfig{
		DBPath:          cfg.Database.Path,
		OllamaBaseURL:   cfg.Ollama.BaseURL,
		Model:           cfg.Ollama.Model,
		ModelDir:        cfg.Model.Dir,
		CacheDir:        cfg.Model.CacheDir,
		MinModelSizeMB:  cfg.Model.MinSizeMB,
		PollInterval:    time.Duration(cfg.Worker.PollIntervalMS) * time.Millisecond,
		PaceInterval:    time.Duration(cfg.Worker.PaceIntervalMS) * time.Millisecond,
		ChunkChars:      cfg.Limits.ChunkChars,
		CategorizeChars: cfg.Limits.CategorizeChars,
	})
}

func fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch all feeds once and store today's new articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.FetchAndSummarizeNews(context.Background())
			if err != nil {
				return fmt.Errorf("fetch failed: %w", err)
			}

			fmt.Printf("Feeds: %d (%d errored), new articles: %d\n",
				result.FeedsTotal, result.FeedsErrored, result.NewArticles)
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	var feedID int64
	var category string
	var unreadOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List articles, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if feedID != 0 {
				engine.SetFeedFilter(&feedID)
			}
			if category != "" {
				engine.SetCategoryFilter(&category)
			}
			if unreadOnly {
				engine.SetReadFilter(presseschau.ReadFilterUnread)
			}

			articles, err := engine.Articles()
			if err != nil {
				return fmt.Errorf("failed to list articles: %w", err)
			}

			for _, a := range articles {
				marker := " "
				if !a.IsRead {
					marker = "*"
				}
				tag := ""
				if a.Category != nil {
					tag = " " + *a.Category
				}
				fmt.Printf("%s %5d  %s  %s%s\n", marker, a.ID,
					a.PublishedAt.Local().Format("02.01. 15:04"), a.Title, tag)
				if a.Summary != nil {
					fmt.Printf("          %s\n", *a.Summary)
				}
			}
			fmt.Printf("%d articles\n", len(articles))
			return nil
		},
	}
	cmd.Flags().Int64Var(&feedID, "feed", 0, "only articles from this feed ID")
	cmd.Flags().StringVar(&category, "category", "", "only articles with this tag, e.g. #Politik")
	cmd.Flags().BoolVarP(&unreadOnly, "unread", "u", false, "only unread articles")
	return cmd
}

func readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <article-id>",
		Short: "Show an article and mark it as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			articleID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid article ID: %w", err)
			}

			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			article, err := engine.GetArticle(articleID)
			if err != nil {
				return fmt.Errorf("failed to load article: %w", err)
			}

			fmt.Printf("%s\n%s\n", article.Title, article.Link)
			if article.Category != nil {
				fmt.Println(*article.Category)
			}
			if article.Summary != nil {
				fmt.Printf("\n%s\n", *article.Summary)
			} else {
				fmt.Println("\n(noch nicht zusammengefasst)")
			}

			return engine.MarkArticleRead(articleID)
		},
	}
}

func feedsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "Manage feed sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			feeds, err := engine.Feeds()
			if err != nil {
				return fmt.Errorf("failed to list feeds: %w", err)
			}
			for _, f := range feeds {
				fmt.Printf("%5d  %s  %s\n", f.ID, f.Name, f.URL)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <url>",
		Short: "Add a feed source",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			id, err := engine.AddFeed(args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to add feed: %w", err)
			}
			fmt.Printf("Added feed %d: %s\n", id, args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <feed-id>",
		Short: "Remove a feed and all of its articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			feedID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid feed ID: %w", err)
			}

			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.DeleteFeed(feedID); err != nil {
				return fmt.Errorf("failed to delete feed: %w", err)
			}
			fmt.Printf("Deleted feed %d\n", feedID)
			return nil
		},
	})

	return cmd
}

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage category tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			categories, err := engine.AllCategories()
			if err != nil {
				return fmt.Errorf("failed to list categories: %w", err)
			}
			for _, c := range categories {
				fmt.Printf("%5d  %s\n", c.ID, c.Name)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Add a category tag, e.g. #Sport",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.AddCategory(args[0]); err != nil {
				return fmt.Errorf("failed to add category: %w", err)
			}
			fmt.Printf("Added category %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <category-id>",
		Short: "Remove a category tag (already-tagged articles keep theirs)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			categoryID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid category ID: %w", err)
			}

			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.DeleteCategory(categoryID); err != nil {
				return fmt.Errorf("failed to delete category: %w", err)
			}
			fmt.Printf("Deleted category %d\n", categoryID)
			return nil
		},
	})

	return cmd
}

func modelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage the local model file",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			path, err := engine.CheckModelStatus()
			if err != nil {
				fmt.Printf("No usable model installed: %v\n", err)
				return nil
			}
			fmt.Printf("Model: %s (%s)\n", path, engine.ModelSize())
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Install a model from a file or .tar.gz archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			err = engine.ImportModel(args[0], func(state models.ImportState) {
				switch s := state.(type) {
				case models.Copying:
					fmt.Printf("\rCopying... %d%% (%.0f/%.0f MB)", s.Percent, s.CopiedMB, s.TotalMB)
				case models.Processing:
					fmt.Print("\rProcessing...          ")
				case models.Finished:
					fmt.Println("\rImport finished.          ")
				case models.Error:
					fmt.Printf("\rImport failed: %s\n", s.Reason)
				}
			})
			if err != nil {
				return fmt.Errorf("model import failed: %w", err)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm",
		Short: "Delete the installed model file",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.DeleteModel(); err != nil {
				return fmt.Errorf("failed to delete model: %w", err)
			}
			fmt.Println("Model deleted.")
			return nil
		},
	})

	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show engine and worker status",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			status, err := engine.Status()
			if err != nil {
				return fmt.Errorf("failed to read status: %w", err)
			}

			fmt.Printf("Model installed:  %v (%s)\n", status.ModelInstalled, status.ModelSize)
			fmt.Printf("Model ready:      %v\n", status.ModelReady)
			fmt.Printf("Summarizing:      %v\n", status.Summarizing)
			fmt.Printf("Unprocessed:      %d\n", status.Unprocessed)
			return nil
		},
	}
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Create a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = "./config/config.yaml"
			}

			dir := filepath.Dir(configPath)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("config file already exists: %s", configPath)
			}

			data, err := yaml.Marshal(storage.DefaultConfig())
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			if err := os.WriteFile(configPath, data, 0644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			fmt.Printf("Created default config at %s\n", configPath)
			return nil
		},
	}
}
