package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"query-assistant/internal/application/port/output"
	"query-assistant/internal/di"
	"query-assistant/internal/domain/entity"
	"query-assistant/internal/infrastructure/config"
	"query-assistant/internal/infrastructure/env"
	"query-assistant/internal/infrastructure/userinteraction"
)

type options struct {
	thread  int64
	domain  *entity.LegalDomain
	lang    string
	verbose bool
	ingest  bool
}

func main() {
	threadID := flag.Int64("thread", 0, "conversation thread id")
	domainFlag := flag.String("domain", "", "chat with the legal agent in this domain (civil_law, corporate_law, property_law)")
	lang := flag.String("lang", "en", "reply language")
	verbose := flag.Bool("verbose", false, "show every model round")
	ingest := flag.Bool("ingest", false, "rebuild every knowledge collection and exit")
	flag.Parse()
	log.SetFlags(0)

	opts := options{thread: *threadID, lang: *lang, verbose: *verbose, ingest: *ingest}
	if *domainFlag != "" {
		d, err := entity.ParseLegalDomain(*domainFlag)
		if err != nil {
			log.Fatal(err)
		}
		opts.domain = &d
	}

	if err := run(opts); err != nil {
		log.Fatal(err)
	}
}

func run(opts options) error {
	cfg := config.Load(env.NewEnvService())
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	console := userinteraction.NewConsole(os.Stdin, os.Stdout, opts.verbose)

	ctx := context.Background()
	container, err := di.NewContainer(ctx, cfg, di.Options{Progress: console})
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer container.Close()

	if opts.ingest {
		reports, err := container.Loader.SetupAll(ctx)
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		for _, r := range reports {
			console.Info("%s: %d files, %d chunks", r.Collection, r.Files, r.Chunks)
		}
		return nil
	}

	agent := entity.AgentTypeCardano
	if opts.domain != nil {
		agent = entity.AgentTypeLegal
	}
	console.Info("Chatting with the %s agent on thread %d. Type /new for a fresh thread, exit to quit.", agent, opts.thread)

	thread := opts.thread
	for {
		line, err := console.ReadLine("You: ")
		if errors.Is(err, io.EOF) {
			fmt.Println()
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "bye", "quit", "q":
			console.Info("Goodbye!")
			return nil
		case "/new":
			next, err := nextFreeThread(ctx, container.Store, agent, thread)
			if err != nil {
				console.ShowError(err)
				continue
			}
			thread = next
			console.Info("Started thread %d", thread)
			continue
		}

		reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
		answer, err := container.Gateway.Handle(reqCtx, entity.Query{
			ThreadID: entity.ThreadIDFromInt(thread),
			Input:    line,
			Lang:     opts.lang,
			Domain:   opts.domain,
		})
		cancel()
		if err != nil {
			console.ShowError(err)
			continue
		}
		if answer.NewThread {
			console.Info("(new thread %d, %d rounds)", thread, answer.Rounds)
		}
		console.ShowAnswer(answer.Text)
	}
}

// nextFreeThread returns the first id after current with no stored history.
// A persistent store may already hold the ids that follow.
func nextFreeThread(ctx context.Context, store output.ConversationStore, agent entity.AgentType, current int64) (int64, error) {
	for id := current + 1; ; id++ {
		fresh, err := store.IsNew(ctx, entity.ThreadKey{Agent: agent, ID: entity.ThreadIDFromInt(id)})
		if err != nil {
			return 0, fmt.Errorf("check thread %d: %w", id, err)
		}
		if fresh {
			return id, nil
		}
	}
}
