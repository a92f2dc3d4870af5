package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"cardscan/process/report"
)

func main() {
	since := flag.String("since", time.Now().AddDate(0, 0, -30).Format("2006-01-02"), "report results from this date (YYYY-MM-DD)")
	top := flag.Int("top", 20, "expected texts to list (0 for all)")
	dsnFlag := flag.String("dsn", "", "postgres DSN (default $DB_DSN)")
	flag.Parse()

	dsn := *dsnFlag
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "DB_DSN not set; export DB_DSN or pass -dsn and retry")
		os.Exit(2)
	}
	t, err := time.Parse("2006-01-02", *since)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -since, expected YYYY-MM-DD: %v\n", err)
		os.Exit(2)
	}

	db, err := report.Open(dsn)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	r, err := report.Load(ctx, db, t)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := r.Print(os.Stdout, *top); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
