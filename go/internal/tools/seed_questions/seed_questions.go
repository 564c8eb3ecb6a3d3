package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mcdev12/globalquiz/go/internal/dbconfig"
	"github.com/mcdev12/globalquiz/go/internal/quiz"
	"github.com/spf13/pflag"
)

func main() {
	file := pflag.String("file", "", "YAML catalog to load (default: the built-in programming catalog)")
	quizName := pflag.String("quiz", "programming", "name to store the catalog under")
	pflag.Parse()

	// 1) Load the catalog
	catalog := quiz.Default()
	if *file != "" {
		var err error
		catalog, err = quiz.LoadFile(*file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load catalog: %v\n", err)
			os.Exit(1)
		}
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := cfg.NewPool(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := quiz.NewPostgresRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// 3) Upsert and count
	result, err := repo.Upsert(ctx, *quizName, catalog)
	for _, qErr := range result.Errors {
		fmt.Fprintf(os.Stderr, "error upserting %v\n", qErr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// 4) Print summary
	fmt.Printf(
		"Questions seed complete for %q: %d total, %d inserted, %d updated, %d errors\n",
		*quizName, result.Total, result.Inserted, result.Updated, len(result.Errors),
	)
}
