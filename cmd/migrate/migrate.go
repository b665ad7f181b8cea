package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"freelancer-bot/internal/config"
	"freelancer-bot/internal/store"

	"go.mongodb.org/mongo-driver/bson"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/migrate <command>")
		fmt.Println("Commands:")
		fmt.Println("  ensure-indexes  - Create the indexes every collection needs")
		fmt.Println("  verify          - Report indexes and document counts per collection")
		os.Exit(1)
	}

	command := os.Args[1]

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	client, err := config.ConnectMongoDB(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to MongoDB: %v\n", err)
		os.Exit(1)
	}
	defer client.Disconnect(context.Background())

	db := client.Database(cfg.DBName)
	st := store.NewMongoStore(db, cfg.HistoryLimit)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch command {
	case "ensure-indexes":
		if err := st.EnsureIndexes(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Index creation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Indexes are in place.")

	case "verify":
		report, err := st.IndexReport(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Verification failed: %v\n", err)
			os.Exit(1)
		}

		expected := store.Indexes()
		names := make([]string, 0, len(expected))
		for name := range expected {
			names = append(names, name)
		}
		sort.Strings(names)

		missing := 0
		for _, name := range names {
			count, err := db.Collection(name).CountDocuments(ctx, bson.M{})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Count on %s failed: %v\n", name, err)
				os.Exit(1)
			}
			// +1 for the implicit _id_ index
			want := len(expected[name]) + 1
			have := len(report[name])
			status := "ok"
			if have < want {
				status = "MISSING"
				missing++
			}
			fmt.Printf("%-16s docs=%-7d indexes=%d/%d %s\n", name, count, have, want, status)
		}

		if missing > 0 {
			fmt.Printf("%d collection(s) lack indexes; run ensure-indexes\n", missing)
			os.Exit(1)
		}
		fmt.Println("Verification completed successfully!")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}
