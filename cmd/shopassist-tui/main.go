package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"shopassist/internal/client"
	"shopassist/internal/tui"
)

func main() {
	_ = godotenv.Load()

	addr := os.Getenv("SHOPASSIST_URL")
	if addr == "" {
		addr = "http://localhost:8000"
	}
	flag.StringVar(&addr, "server", addr, "Base URL of the shopassist server")
	timeout := flag.Duration("timeout", 60*time.Second, "Request timeout")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := client.New(addr, *timeout)
	events, err := c.Subscribe(ctx)
	if err != nil {
		log.Printf("cart notifications unavailable: %v", err)
	}

	if _, err := tea.NewProgram(tui.New(c, events), tea.WithAltScreen()).Run(); err != nil {
		log.Fatal(err)
	}
}
