// Package bot is the conversational command surface: search, ask, trends,
// and analyze, parsed from plain text so any chat transport can drive it
// through the Handle entry point.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/langgraphsystem/rssnews/internal/ask"
	apperr "github.com/langgraphsystem/rssnews/internal/errors"
	"github.com/langgraphsystem/rssnews/internal/llm"
	"github.com/langgraphsystem/rssnews/internal/search"
	"github.com/langgraphsystem/rssnews/internal/store"
)

const (
	searchK    = 10
	searchKMax = 20
	trendsK    = 50
	analyzeK   = 8
	replyLimit = 5
)

// Retriever is the search surface the commands use.
type Retriever interface {
	Retrieve(ctx context.Context, req search.Request) (*search.Result, error)
}

// Asker answers questions through the agentic loop.
type Asker interface {
	Ask(ctx context.Context, question string, opts ask.Options) (*ask.Answer, error)
}

// Bot executes chat commands.
type Bot struct {
	retriever Retriever
	asker     Asker
	completer llm.Completer
	log       *slog.Logger
}

// New builds a Bot.
func New(r Retriever, a Asker, c llm.Completer, log *slog.Logger) *Bot {
	return &Bot{
		retriever: r,
		asker:     a,
		completer: c,
		log:       log.With(slog.String("component", "bot")),
	}
}

// Handle parses one message and returns the reply text.
func (b *Bot) Handle(ctx context.Context, text string) (string, error) {
	name, rest := splitCommand(text)
	switch name {
	case "search":
		return b.handleSearch(ctx, rest)
	case "ask":
		return b.handleAsk(ctx, rest)
	case "trends":
		return b.handleTrends(ctx, rest)
	case "analyze":
		return b.handleAnalyze(ctx, rest)
	case "help", "start", "":
		return helpText, nil
	default:
		return "", apperr.New(apperr.KindValidation, fmt.Sprintf("unknown command %q", name))
	}
}

// splitCommand lifts the command word off the message. A leading slash and
// a @botname suffix are both tolerated.
func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	name, rest, _ := strings.Cut(text, " ")
	name = strings.TrimPrefix(strings.ToLower(name), "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return name, strings.TrimSpace(rest)
}

func (b *Bot) handleSearch(ctx context.Context, rest string) (string, error) {
	opts := extractSearchOpts(rest)
	if opts.query == "" {
		return "Usage: search [--hours=N] [--k=N] [--sources=a.com,b.com] [--lang=xx] <query>", nil
	}
	flags := search.DefaultFlags()
	flags.UseCache = true
	res, err := b.retriever.Retrieve(ctx, search.Request{
		Query:  opts.query,
		Window: opts.window,
		K:      opts.k,
		Filter: store.RetrievalFilter{Sources: opts.sources, Lang: opts.lang},
		Flags:  flags,
	})
	if err != nil {
		return "", err
	}
	if len(res.Chunks) == 0 {
		return "Nothing found.", nil
	}

	var sb strings.Builder
	for i, c := range res.Chunks {
		if i >= replyLimit {
			break
		}
		date := ""
		if c.PublishedAt != nil {
			date = c.PublishedAt.Format("Jan 2") + ", "
		}
		fmt.Fprintf(&sb, "%d. %s (%s%s)\n%s\n", i+1, c.Title, date, c.SourceDomain, c.URL)
	}
	for _, w := range res.Diagnostics.Warnings {
		fmt.Fprintf(&sb, "note: %s\n", w)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

type searchOpts struct {
	query   string
	window  time.Duration
	k       int
	sources []string
	lang    string
}

// extractSearchOpts lifts --hours, --k, --sources, and --lang out of the
// search arguments; whatever remains is the query. Both --flag=value and
// --flag value spellings work.
func extractSearchOpts(rest string) searchOpts {
	opts := searchOpts{k: searchK}
	fields := strings.Fields(rest)
	var kept []string

	take := func(name string, i *int) (string, bool) {
		f := fields[*i]
		if v, ok := strings.CutPrefix(f, "--"+name+"="); ok {
			return v, true
		}
		if f == "--"+name && *i+1 < len(fields) {
			*i++
			return fields[*i], true
		}
		return "", false
	}

	for i := 0; i < len(fields); i++ {
		if v, ok := take("hours", &i); ok {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				opts.window = time.Duration(n) * time.Hour
			}
			continue
		}
		if v, ok := take("k", &i); ok {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				if n > searchKMax {
					n = searchKMax
				}
				opts.k = n
			}
			continue
		}
		if v, ok := take("sources", &i); ok {
			for _, s := range strings.Split(v, ",") {
				if s = strings.TrimSpace(s); s != "" {
					opts.sources = append(opts.sources, s)
				}
			}
			continue
		}
		if v, ok := take("lang", &i); ok {
			opts.lang = strings.ToLower(strings.TrimSpace(v))
			continue
		}
		kept = append(kept, fields[i])
	}
	opts.query = strings.Join(kept, " ")
	return opts
}

func (b *Bot) handleAsk(ctx context.Context, rest string) (string, error) {
	question, depth := extractDepth(rest)
	if question == "" {
		return "Usage: ask [--depth=N] <question>", nil
	}
	answer, err := b.asker.Ask(ctx, question, ask.Options{Depth: depth})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(answer.Answer)
	if len(answer.Evidence) > 0 {
		sb.WriteString("\n\nSources:\n")
		for i, ev := range answer.Evidence {
			if i >= replyLimit {
				break
			}
			fmt.Fprintf(&sb, "[%d] %s - %s\n", i+1, ev.Title, ev.URL)
		}
	}
	fmt.Fprintf(&sb, "\nconfidence %.0f%%, %d iteration(s), %s",
		answer.Confidence*100, answer.Iterations, answer.ModelUsed)
	return sb.String(), nil
}

// extractDepth lifts a --depth=N or --depth N flag out of the question.
func extractDepth(rest string) (string, int) {
	fields := strings.Fields(rest)
	depth := 0
	var kept []string
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		switch {
		case strings.HasPrefix(f, "--depth="):
			if n, err := strconv.Atoi(strings.TrimPrefix(f, "--depth=")); err == nil {
				depth = n
			}
		case f == "--depth" && i+1 < len(fields):
			if n, err := strconv.Atoi(fields[i+1]); err == nil {
				depth = n
				i++
			}
		default:
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " "), depth
}

func (b *Bot) handleTrends(ctx context.Context, rest string) (string, error) {
	window := 24 * time.Hour
	if rest != "" {
		if w, err := time.ParseDuration(rest); err == nil && w > 0 {
			window = w
		}
	}
	flags := search.DefaultFlags()
	flags.UseCache = true
	res, err := b.retriever.Retrieve(ctx, search.Request{
		Window: window,
		K:      trendsK,
		Flags:  flags,
	})
	if err != nil {
		return "", err
	}
	clusters := clusterTitles(res.Chunks)
	if len(clusters) == 0 {
		return "No recent articles to summarize.", nil
	}

	var sb strings.Builder
	sb.WriteString("Trending now:\n")
	for i, cl := range clusters {
		if i >= replyLimit {
			break
		}
		fmt.Fprintf(&sb, "%d. %s (%d article(s), %s)\n",
			i+1, cl.Representative, cl.Size, strings.Join(cl.Domains, ", "))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// analyzeModes maps the analyze subcommand to its prompt focus.
var analyzeModes = map[string]string{
	"keywords":  "Extract the 10 most important keywords and named entities. Return them as a comma-separated list.",
	"sentiment": "Assess the overall sentiment of the coverage as positive, negative, neutral, or mixed, with one sentence of justification.",
	"topics":    "Identify the 3 to 5 main topics being covered and describe each in one short sentence.",
}

func (b *Bot) handleAnalyze(ctx context.Context, rest string) (string, error) {
	mode, query, _ := strings.Cut(rest, " ")
	mode = strings.ToLower(strings.TrimSpace(mode))
	query = strings.TrimSpace(query)
	instruction, ok := analyzeModes[mode]
	if !ok || query == "" {
		return "Usage: analyze keywords|sentiment|topics <query>", nil
	}

	flags := search.DefaultFlags()
	flags.UseCache = true
	res, err := b.retriever.Retrieve(ctx, search.Request{
		Query: query,
		K:     analyzeK,
		Flags: flags,
	})
	if err != nil {
		return "", err
	}
	if len(res.Chunks) == 0 {
		return "Nothing found to analyze.", nil
	}

	var sb strings.Builder
	for i, c := range res.Chunks {
		fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i+1, c.Title, c.Text)
	}
	resp, err := b.completer.Complete(ctx, llm.Request{
		System:    "You analyze a set of news articles. " + instruction,
		User:      sb.String(),
		MaxTokens: 500,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

const helpText = `Commands:
search [--hours=N] [--k=N] [--sources=...] [--lang=xx] <query> - hybrid search over indexed articles
ask [--depth=N] <question> - answer with evidence (operators: site:, after:, before:)
trends [window] - what is being covered right now
analyze keywords|sentiment|topics <query> - analytic summary of matching coverage`
