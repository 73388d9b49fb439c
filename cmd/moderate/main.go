// Command moderate is the moderation dashboard CLI. It signs a reviewer
// in against the auth service, keeps the post cache fresh through the
// moderation controller, and applies approve/reject verdicts.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"oakvoices/internal/bootstrap"
	"oakvoices/internal/config"
	"oakvoices/internal/models"
	"oakvoices/internal/moderation"
	"oakvoices/internal/observability"
	"oakvoices/internal/remote/authsvc"
	"oakvoices/internal/remote/feed"
	"oakvoices/internal/remote/gormstore"
	"oakvoices/internal/store"

	"github.com/google/uuid"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, rdb, err := bootstrap.InitRuntime(cfg, bootstrap.Options{Migrate: true})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	changeFeed := feed.New(rdb)
	data := gormstore.New(db, changeFeed)
	auth := authsvc.New(db, cfg.JWTSecret)
	snap := store.NewSnapshot(rdb, "oakvoices")

	session := store.NewAuthStore(auth, data, snap)
	posts := store.NewPostStore(data, session, snap)
	notes := store.NewNotificationStore()

	ctx := context.Background()
	session.Hydrate(ctx)
	posts.Hydrate(ctx)

	reader := bufio.NewReader(os.Stdin)
	if _, ok := session.Current(); !ok {
		if err := login(ctx, session, reader); err != nil {
			log.Fatalf("Login failed: %v", err)
		}
	}

	ctrl := moderation.New(posts, session, changeFeed, cfg.RefreshInterval)
	if err := ctrl.Start(ctx); err != nil {
		log.Fatalf("Cannot open the moderation dashboard: %v", err)
	}
	defer ctrl.Stop()

	user, _ := session.Current()
	fmt.Printf("Signed in as %s. Type 'help' for commands.\n", user.Name)

	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}

		// Each command gets its own correlation id so its store log lines
		// group together.
		cmdCtx := observability.WithCorrelationID(ctx, uuid.NewString())

		switch args[0] {
		case "list":
			printPending(ctrl.Pending())
		case "approve":
			if len(args) < 2 {
				fmt.Println("Usage: approve <post_id> [notes...]")
				continue
			}
			applyVerdict(cmdCtx, notes, args[1], strings.Join(args[2:], " "), ctrl.Approve)
		case "reject":
			if len(args) < 3 {
				fmt.Println("Usage: reject <post_id> <notes...>")
				continue
			}
			applyVerdict(cmdCtx, notes, args[1], strings.Join(args[2:], " "), ctrl.Reject)
		case "refresh":
			if err := posts.FetchAll(cmdCtx); err != nil {
				fmt.Printf("Refresh failed: %v\n", err)
			}
			printPending(ctrl.Pending())
		case "notifications":
			for _, n := range notes.All() {
				marker := " "
				if !n.Read {
					marker = "*"
				}
				fmt.Printf("%s [%s] %s\n", marker, n.Type, n.Message)
			}
			notes.MarkAllRead()
		case "help":
			fmt.Println("Commands: list, approve <id> [notes], reject <id> <notes>, refresh, notifications, quit")
		case "quit", "exit":
			return
		default:
			fmt.Printf("Unknown command: %s\n", args[0])
		}
	}
}

func login(ctx context.Context, session *store.AuthStore, reader *bufio.Reader) error {
	fmt.Print("Email: ")
	email, err := reader.ReadString('\n')
	if err != nil {
		return err
	}

	fmt.Print("Password: ")
	secret, err := reader.ReadString('\n')
	if err != nil {
		return err
	}

	_, err = session.Login(ctx, strings.TrimSpace(email), strings.TrimSpace(secret))
	return err
}

func printPending(pending []models.Post) {
	if len(pending) == 0 {
		fmt.Println("No posts awaiting review.")
		return
	}
	for _, post := range pending {
		fmt.Printf("%s  %-30q  by %s (%s)  %s\n",
			post.ID, post.Title, post.AuthorName, post.AuthorID,
			post.CreatedAt.Format("2006-01-02 15:04"))
	}
}

func applyVerdict(
	ctx context.Context,
	notes *store.NotificationStore,
	id, reviewNotes string,
	verdict func(context.Context, string, string) (models.Post, error),
) {
	post, err := verdict(ctx, id, reviewNotes)
	if err != nil {
		notes.Add(models.NotifyError, fmt.Sprintf("Review of %s failed: %v", id, err))
		fmt.Printf("Review failed: %v\n", err)
		return
	}
	notes.Add(models.NotifySuccess, fmt.Sprintf("%q is now %s", post.Title, post.Status))
	fmt.Printf("%q is now %s\n", post.Title, post.Status)
}
